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

package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/botvisor/botvisor"
)

func TestKeyMarkup(t *testing.T) {
	assert.Equal(t, "[%AQ%N] Quit [%AH%N] Help",
		keyMarkup([]string{"[Q] Quit", "[H] Help"}))
	assert.Equal(t, "100%% [%AX%N]", keyMarkup([]string{"100%", "[X]"}))
	assert.Equal(t, "[%Aopen%N", keyMarkup([]string{"[open"}))
	assert.Equal(t, "", keyMarkup(nil))
}

func TestBotKeys(t *testing.T) {
	running := &botvisor.BotInfo{Status: botvisor.StatusRunning}
	assert.Contains(t, botKeys(running), "[S] Stop")
	assert.NotContains(t, botKeys(running), "[X] Delete")

	stopped := &botvisor.BotInfo{Status: botvisor.StatusStopped}
	assert.Contains(t, botKeys(stopped), "[G] Start")
	assert.Contains(t, botKeys(stopped), "[X] Delete")

	busy := &botvisor.BotInfo{Status: botvisor.StatusInstalling}
	assert.Equal(t, []string{"[I] Info", "[L] Log"}, botKeys(busy))
}

func TestBotLine(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour - 2*time.Second)
	b := &botvisor.BotInfo{
		ID:        "0123456789abcdef",
		Name:      "echo",
		Language:  botvisor.LangNode,
		Status:    botvisor.StatusRunning,
		StartTime: &start,
		Pid:       4242,
		Port:      12345,
		Restarts:  2,
	}
	line := botLine(b, now)
	assert.True(t, strings.HasPrefix(line, "01234567 echo "))
	assert.Contains(t, line, "running")
	assert.Contains(t, line, "1:00:02")
	assert.Contains(t, line, "4242")
	assert.Contains(t, line, "12345")

	b = &botvisor.BotInfo{ID: "x", Name: "idle", Status: botvisor.StatusStopped, Uptime: botvisor.UptimeNA}
	line = botLine(b, now)
	assert.Contains(t, line, "N/A")
	assert.Contains(t, line, " - ")
}

func TestInfoAndLogLines(t *testing.T) {
	b := &botvisor.BotInfo{
		ID:       "id1",
		Name:     "py",
		Entry:    "main.py",
		Language: botvisor.LangPython,
		Status:   botvisor.StatusError,
		Uptime:   "0h 0m 3s",
	}
	lines := infoLines(b, time.Now())
	assert.Contains(t, lines, "       ID: id1")
	assert.Contains(t, lines, "    Entry: main.py (python)")
	assert.Contains(t, lines, "   Uptime: 0h 0m 3s")
	assert.Contains(t, lines, "      PID: -")

	tm := time.Date(2026, 3, 4, 5, 6, 7, 8000000, time.UTC)
	out := logLines([]botvisor.LogRecord{{Time: tm, Text: "hello"}})
	assert.Equal(t, []string{"Mar  4 05:06:07.008 hello"}, out)
}
