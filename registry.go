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
	"sort"
	"sync"
	"time"
)

// Registry is the authoritative in-memory table of bots.  Its lock is
// the single serialization point for every bot's state; the Supervisor
// takes it for each transition.  Readers can block for changes with
// WatchSerial, which returns whenever any bot changes state.
type Registry struct {
	bots       map[string]*Bot
	serial     int64
	listSerial int64
	updateTime time.Time
	createTime time.Time
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		bots:       make(map[string]*Bot),
		cvs:        make(map[*sync.Cond]bool),
		createTime: time.Now(),
		updateTime: time.Now(),
	}
}

func (r *Registry) lock() {
	r.mx.Lock()
}

func (r *Registry) unlock() {
	r.mx.Unlock()
}

func (r *Registry) wakeUp() {
	// NB: If the lock is not held here, then there is a risk
	// that the woken goroutines won't get see the updated
	// serial number!!
	for cv := range r.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers.  It returns
// the new serial number, so that it can be stored in bots.
// Call with lock held.
func (r *Registry) bumpSerial() int64 {
	r.updateTime = time.Now()
	r.serial++
	rv := r.serial
	r.wakeUp()
	return rv
}

// setStatus changes the status of b and notifies watchers.
// Call with lock held.
func (r *Registry) setStatus(b *Bot, st Status) {
	b.status = st
	b.serial = r.bumpSerial()
}

// touch records a change to b other than its status.
// Call with lock held.
func (r *Registry) touch(b *Bot) {
	b.serial = r.bumpSerial()
}

// watchSerial monitors for a change in a specific serial number.  It returns
// the new serial number when it changes.  If the serial number has not
// changed in the given duration, or ctx is done first, then the old value
// is returned.  A poll can be done by supplying 0 for the expiration.
func (r *Registry) watchSerial(ctx context.Context, old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&r.mx)
	var timer *time.Timer
	var rv int64

	wake := func() {
		r.lock()
		expired = true
		cv.Broadcast()
		r.unlock()
	}
	if expire > 0 {
		timer = time.AfterFunc(expire, wake)
	} else {
		expired = true
	}
	stop := context.AfterFunc(ctx, wake)

	r.lock()
	r.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(r.cvs, cv)
	r.unlock()
	if timer != nil {
		timer.Stop()
	}
	stop()
	return rv
}

// WatchSerial monitors for a change in the global serial number.
func (r *Registry) WatchSerial(ctx context.Context, old int64, expire time.Duration) int64 {
	return r.watchSerial(ctx, old, &r.serial, expire)
}

// WatchBots monitors for bots being added or removed.
func (r *Registry) WatchBots(ctx context.Context, old int64, expire time.Duration) int64 {
	return r.watchSerial(ctx, old, &r.listSerial, expire)
}

// Serial returns the global serial number.  This is incremented
// anytime a bot has a state change.
func (r *Registry) Serial() int64 {
	r.lock()
	defer r.unlock()
	return r.serial
}

// UpdateTime returns when the last change was recorded.
func (r *Registry) UpdateTime() time.Time {
	r.lock()
	defer r.unlock()
	return r.updateTime
}

// Add registers b.  A bot without a status starts out Stopped.
func (r *Registry) Add(b *Bot) error {
	if b == nil || b.ID == "" {
		return ErrBadRequest
	}
	r.lock()
	defer r.unlock()
	return r.add(b)
}

// add does the work of Add.  Call with lock held.
func (r *Registry) add(b *Bot) error {
	if _, ok := r.bots[b.ID]; ok {
		return ErrDuplicate
	}
	if b.status == "" {
		b.status = StatusStopped
	}
	if b.created.IsZero() {
		b.created = time.Now()
	}
	r.bots[b.ID] = b
	r.listSerial = r.bumpSerial()
	b.serial = r.listSerial
	return nil
}

// get looks up a bot.  Call with lock held.
func (r *Registry) get(id string) (*Bot, error) {
	if b, ok := r.bots[id]; ok {
		return b, nil
	}
	return nil, ErrNoBot
}

// remove drops a bot, which must not have a process or pending work.
// Call with lock held.
func (r *Registry) remove(id string) error {
	b, err := r.get(id)
	if err != nil {
		return err
	}
	if b.deploying {
		return ErrBusy
	}
	if b.proc != nil {
		return ErrBotRunning
	}
	delete(r.bots, id)
	r.listSerial = r.bumpSerial()
	return nil
}

// Remove deletes a stopped bot from the table.
func (r *Registry) Remove(id string) error {
	r.lock()
	defer r.unlock()
	return r.remove(id)
}

// Info returns a snapshot of one bot.
func (r *Registry) Info(id string) (BotInfo, error) {
	r.lock()
	defer r.unlock()
	b, err := r.get(id)
	if err != nil {
		return BotInfo{}, err
	}
	return b.info(time.Now()), nil
}

// Status returns just the status of one bot.
func (r *Registry) Status(id string) (Status, error) {
	r.lock()
	defer r.unlock()
	b, err := r.get(id)
	if err != nil {
		return "", err
	}
	return b.status, nil
}

// Len returns the number of registered bots.
func (r *Registry) Len() int {
	r.lock()
	defer r.unlock()
	return len(r.bots)
}

// Snapshot returns every bot, oldest first, together with the serial
// number the snapshot is consistent with.
func (r *Registry) Snapshot() ([]BotInfo, int64) {
	r.lock()
	now := time.Now()
	rv := make([]BotInfo, 0, len(r.bots))
	for _, b := range r.bots {
		rv = append(rv, b.info(now))
	}
	sn := r.serial
	r.unlock()
	sort.Slice(rv, func(i, j int) bool {
		if !rv[i].Created.Equal(rv[j].Created) {
			return rv[i].Created.Before(rv[j].Created)
		}
		return rv[i].ID < rv[j].ID
	})
	return rv, sn
}

// portTaken reports whether any bot already uses port.
// Call with lock held.
func (r *Registry) portTaken(port int) bool {
	for _, b := range r.bots {
		if b.Port == port {
			return true
		}
	}
	return false
}

// dirTaken reports whether any bot already uses dir.
// Call with lock held.
func (r *Registry) dirTaken(dir string) bool {
	for _, b := range r.bots {
		if b.Dir == dir {
			return true
		}
	}
	return false
}
