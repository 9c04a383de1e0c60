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
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 3000
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a bounded, oldest-evicted store of log lines.  Besides polling
// with GetRecords and Watch, callers may Subscribe to receive each new
// record as it is written.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	subs       map[chan LogRecord]bool
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

// Write implements io.Writer.  Each line of b becomes a record.
func (log *Log) Write(b []byte) (int, error) {
	log.Append(string(b))
	return len(b), nil
}

// Append stores each line of text as its own record, and delivers the
// new records to subscribers.  Subscribers that are not keeping up lose
// records rather than stalling the writer.
func (log *Log) Append(text string) {
	str := strings.TrimRight(text, "\r\n")
	if str == "" {
		return
	}
	now := time.Now()
	log.lock()
	for _, line := range strings.Split(str, "\n") {
		line = strings.TrimRight(line, "\r")
		idx := log.numRecords % log.maxRecords
		log.id++
		log.records[idx] = LogRecord{Id: log.id, Time: now, Text: line}
		// NB: numRecords may actually be more than maxRecords.
		// In that case, we've looped, but we use this really to
		// track the next index.
		log.numRecords++
		for ch := range log.subs {
			select {
			case ch <- log.records[idx]:
			default:
			}
		}
	}
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

// Len returns the number of records currently held.
func (log *Log) Len() int {
	log.lock()
	defer log.unlock()
	if log.numRecords > log.maxRecords {
		return log.maxRecords
	}
	return log.numRecords
}

// GetRecords returns the records that are stored, as well as an ID
// suitable for use as an Etag.  The last parameter can be the last ID
// that was checked, in which case this function will return nil immediately
// if the log has not changed since that ID was returned, without duplicating
// any records.  Note that IDs are not unique across different Log instances.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	return log.since(0), log.id
}

// Since returns only the held records newer than last, oldest first.
func (log *Log) Since(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	return log.since(last), log.id
}

func (log *Log) since(last int64) []LogRecord {
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		r := log.records[index%log.maxRecords]
		if r.Id > last {
			recs = append(recs, r)
		}
		index++
	}
	return recs
}

// Watch waits until the log has moved past last, the expire duration
// passes, or ctx is done, and returns the current ID.  A zero expire
// polls.
func (log *Log) Watch(ctx context.Context, last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	wake := func() {
		log.lock()
		expired = true
		cv.Broadcast()
		log.unlock()
	}
	if expire > 0 {
		timer = time.AfterFunc(expire, wake)
	} else {
		expired = true
	}
	stop := context.AfterFunc(ctx, wake)

	log.lock()
	log.cvs[cv] = true
	for {
		if log.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	stop()
	return last
}

// Subscribe registers a channel that receives every record appended
// from now on.  The returned function unsubscribes and closes the channel.
func (log *Log) Subscribe(depth int) (<-chan LogRecord, func()) {
	_, ch, cancel := log.subscribe(depth, false)
	return ch, cancel
}

// Replay is like Subscribe, but also returns the records already held.
// No record is both replayed and delivered, and none is skipped.
func (log *Log) Replay(depth int) ([]LogRecord, <-chan LogRecord, func()) {
	return log.subscribe(depth, true)
}

func (log *Log) subscribe(depth int, replay bool) ([]LogRecord, <-chan LogRecord, func()) {
	if depth < 1 {
		depth = 1
	}
	var history []LogRecord
	ch := make(chan LogRecord, depth)
	log.lock()
	if replay {
		history = log.since(0)
	}
	log.subs[ch] = true
	log.unlock()
	var once sync.Once
	return history, ch, func() {
		once.Do(func() {
			log.lock()
			if log.subs[ch] {
				delete(log.subs, ch)
				close(ch)
			}
			log.unlock()
		})
	}
}

// close drops all subscribers.
func (log *Log) close() {
	log.lock()
	for ch := range log.subs {
		delete(log.subs, ch)
		close(ch)
	}
	log.unlock()
}

// NewLog returns a Log holding at most max records.  A max of zero
// selects MaxLogRecords.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	log := &Log{
		maxRecords: max,
		records:    make([]LogRecord, max),
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
		subs:       make(map[chan LogRecord]bool),
	}
	return log
}
