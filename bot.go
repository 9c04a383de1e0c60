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

package botvisor

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a bot.
type Status string

const (
	StatusCloning    Status = "cloning"
	StatusInstalling Status = "installing"
	StatusStopped    Status = "stopped"
	StatusRunning    Status = "running"
	StatusError      Status = "error"
)

// UptimeNA is reported for bots that have never run.
const UptimeNA = "N/A"

// Bot is a single deployed instance.  Everything below the exported
// descriptive fields is owned by the Registry lock, and is mutated only
// by the Supervisor.
type Bot struct {
	ID       string
	Name     string
	RepoURL  string
	Dir      string
	Entry    string
	Language Language
	Port     int

	status    Status
	proc      Proc
	startTime time.Time
	prior     time.Duration // runtime accumulated over earlier runs
	hasPrior  bool
	restarts  int
	serial    int64
	created   time.Time

	stopping  bool // operator asked for termination
	deploying bool // fetch or install pipeline active
	gen       int64
	timer     *time.Timer
	killTimer *time.Timer
	done      chan struct{}
}

// BotInfo is a point-in-time copy of a Bot, with derived fields filled in.
type BotInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RepoURL   string     `json:"repoUrl"`
	Dir       string     `json:"dir"`
	Entry     string     `json:"entry"`
	Language  Language   `json:"language"`
	Port      int        `json:"port"`
	Status    Status     `json:"status"`
	Pid       int        `json:"pid,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Uptime    string     `json:"botUptime"`
	Restarts  int        `json:"restarts"`
	Serial    int64      `json:"serial,string"`
	Created   time.Time  `json:"created"`
}

// FormatUptime renders d as "Xh Ym Zs".  Negative durations are
// treated as zero.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// uptime computes the effective uptime of the bot as of now.
// Call with the registry lock held.
func (b *Bot) uptime(now time.Time) string {
	switch {
	case b.status == StatusRunning && !b.startTime.IsZero():
		return FormatUptime(now.Sub(b.startTime))
	case b.hasPrior:
		return FormatUptime(b.prior)
	}
	return UptimeNA
}

// info snapshots the bot.  Call with the registry lock held.
func (b *Bot) info(now time.Time) BotInfo {
	i := BotInfo{
		ID:       b.ID,
		Name:     b.Name,
		RepoURL:  b.RepoURL,
		Dir:      b.Dir,
		Entry:    b.Entry,
		Language: b.Language,
		Port:     b.Port,
		Status:   b.status,
		Uptime:   b.uptime(now),
		Restarts: b.restarts,
		Serial:   b.serial,
		Created:  b.created,
	}
	if b.proc != nil {
		i.Pid = b.proc.Pid()
	}
	if !b.startTime.IsZero() {
		st := b.startTime
		i.StartTime = &st
	}
	return i
}
