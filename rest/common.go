// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"github.com/botvisor/botvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"
)

// Result is the body of control calls that return nothing else.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

var ok = Result{Success: true}

// Error is the body of every failed call.
type Error struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

type LoginRequest struct {
	Key string `json:"key"`
}

type LoginResponse struct {
	Success bool `json:"success"`
	botvisor.Token
}

// DeployRequest mirrors botvisor.DeployRequest, with the language left
// as text so that spelling variants are accepted.
type DeployRequest struct {
	RepoURL  string `json:"repoUrl"`
	Name     string `json:"name,omitempty"`
	Entry    string `json:"entry,omitempty"`
	Language string `json:"language,omitempty"`
}

type LogsResponse struct {
	ID      string               `json:"id"`
	Last    int64                `json:"last,string"`
	Records []botvisor.LogRecord `json:"records"`
}

// Events pushed over the websocket.
const (
	EventBots    = "bots"
	EventLog     = "log"
	EventHistory = "history"
	EventError   = "error"
)

// Actions clients send over the websocket.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Event is one websocket message from the server.
type Event struct {
	Event   string               `json:"event"`
	ID      string               `json:"id,omitempty"`
	Text    string               `json:"text,omitempty"`
	Bots    []botvisor.BotInfo   `json:"bots,omitempty"`
	Records []botvisor.LogRecord `json:"records,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// ClientMessage is one websocket message from a client.
type ClientMessage struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}
