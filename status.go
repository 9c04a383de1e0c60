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
	"context"
	"sync"
	"time"
)

const DefaultStatusInterval = 5 * time.Second

// Snapshot is the full list of bots at one point in time.
type Snapshot struct {
	Serial int64     `json:"serial,string"`
	Time   time.Time `json:"time"`
	Bots   []BotInfo `json:"bots"`
}

// StatusEmitter pushes a Snapshot to its subscribers every interval,
// and also whenever the registry changes.  It never modifies the
// registry.
type StatusEmitter struct {
	reg      *Registry
	interval time.Duration
	subs     map[chan Snapshot]bool
	lock     sync.Mutex
}

// NewStatusEmitter returns an emitter for reg.  A zero interval
// selects DefaultStatusInterval.
func NewStatusEmitter(reg *Registry, interval time.Duration) *StatusEmitter {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &StatusEmitter{
		reg:      reg,
		interval: interval,
		subs:     make(map[chan Snapshot]bool),
	}
}

// Snapshot computes the current snapshot.
func (e *StatusEmitter) Snapshot() Snapshot {
	bots, serial := e.reg.Snapshot()
	return Snapshot{Serial: serial, Time: time.Now(), Bots: bots}
}

// Subscribe registers for snapshots.  A slow subscriber only ever
// misses stale snapshots: the newest one always replaces an unread one.
func (e *StatusEmitter) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	e.lock.Lock()
	e.subs[ch] = true
	e.lock.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.lock.Lock()
			delete(e.subs, ch)
			close(ch)
			e.lock.Unlock()
		})
	}
}

func (e *StatusEmitter) publish(snap Snapshot) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for ch := range e.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Run publishes snapshots until ctx is done.
func (e *StatusEmitter) Run(ctx context.Context) error {
	for {
		snap := e.Snapshot()
		e.publish(snap)
		e.reg.WatchSerial(ctx, snap.Serial, e.interval)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
