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
	"errors"
)

var (
	ErrAuth          = errors.New("Access denied: invalid or expired token")
	ErrNoBot         = errors.New("No such bot")
	ErrEntryNotFound = errors.New("Entry not found")
	ErrSpawn         = errors.New("Failed to start process")
	ErrInstall       = errors.New("Dependency install failed")
	ErrFetch         = errors.New("Source checkout failed")
	ErrBusy          = errors.New("Bot is busy deploying")
	ErrBotRunning    = errors.New("Bot is running")
	ErrBadRequest    = errors.New("Bad request")
	ErrDuplicate     = errors.New("Bot already registered")
	ErrClosed        = errors.New("Supervisor is shut down")
)
