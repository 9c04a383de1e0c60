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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/botvisor/botvisor"
)

// Health is a coarse classification of a bot's status, used to pick
// colors and to order listings.
type Health int

const (
	HealthFault Health = iota
	HealthBusy
	HealthStopped
	HealthGood
)

func HealthOf(b *botvisor.BotInfo) Health {
	switch b.Status {
	case botvisor.StatusError:
		return HealthFault
	case botvisor.StatusCloning, botvisor.StatusInstalling:
		return HealthBusy
	case botvisor.StatusRunning:
		return HealthGood
	}
	return HealthStopped
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Uptime renders the current run time of b, as of now.  Bots that are
// not running show the daemon's own rendering.
func Uptime(b *botvisor.BotInfo, now time.Time) string {
	if b.Status == botvisor.StatusRunning && b.StartTime != nil {
		return FormatDuration(now.Sub(*b.StartTime))
	}
	return b.Uptime
}

// ShortID trims a bot id for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type sorted []botvisor.BotInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := &s[i]
	b := &s[j]

	// faults first, then anything in the middle of a deploy
	if ha, hb := HealthOf(a), HealthOf(b); ha != hb {
		return ha < hb
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func SortBots(items []botvisor.BotInfo) {
	sort.Sort(sorted(items))
}

// Find returns the bot with the given id, or one whose name matches
// exactly when no id does.
func Find(items []botvisor.BotInfo, key string) *botvisor.BotInfo {
	for i := range items {
		if items[i].ID == key {
			return &items[i]
		}
	}
	for i := range items {
		if items[i].Name == key {
			return &items[i]
		}
	}
	return nil
}
