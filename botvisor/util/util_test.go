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

package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/botvisor/botvisor"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatDuration(0))
	assert.Equal(t, "0:00:00", FormatDuration(-time.Minute))
	assert.Equal(t, "1:01:01", FormatDuration(time.Hour+time.Minute+time.Second))
	assert.Equal(t, "26:00:09", FormatDuration(26*time.Hour+9*time.Second+300*time.Millisecond))
}

func TestSortBots(t *testing.T) {
	items := []botvisor.BotInfo{
		{ID: "1", Name: "zeta", Status: botvisor.StatusRunning},
		{ID: "2", Name: "alpha", Status: botvisor.StatusStopped},
		{ID: "3", Name: "beta", Status: botvisor.StatusError},
		{ID: "4", Name: "alpha", Status: botvisor.StatusRunning},
		{ID: "5", Name: "gamma", Status: botvisor.StatusInstalling},
	}
	SortBots(items)
	var ids []string
	for _, b := range items {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"3", "5", "2", "4", "1"}, ids)
}

func TestFind(t *testing.T) {
	items := []botvisor.BotInfo{
		{ID: "abc", Name: "first"},
		{ID: "def", Name: "abc"},
	}
	assert.Equal(t, "abc", Find(items, "abc").ID)
	assert.Equal(t, "def", Find(items, "def").ID)
	assert.Equal(t, "abc", Find(items, "first").ID)
	assert.Nil(t, Find(items, "nope"))
}

func TestUptime(t *testing.T) {
	now := time.Now()
	start := now.Add(-90 * time.Second)
	b := &botvisor.BotInfo{Status: botvisor.StatusRunning, StartTime: &start, Uptime: "0h 1m 30s"}
	assert.Equal(t, "0:01:30", Uptime(b, now))

	b = &botvisor.BotInfo{Status: botvisor.StatusStopped, Uptime: botvisor.UptimeNA}
	assert.Equal(t, "N/A", Uptime(b, now))
	assert.Equal(t, "abcdefgh", ShortID("abcdefghijk"))
	assert.Equal(t, "abc", ShortID("abc"))
}
