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
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Broadcaster keeps one Log per bot.  Text appended through it is
// cleaned of terminal escape sequences before it is stored and fanned
// out, so observers only ever see plain text.
type Broadcaster struct {
	logs       map[string]*Log
	maxRecords int
	lock       sync.Mutex
}

// NewBroadcaster returns a Broadcaster whose logs hold at most max
// records each (zero means MaxLogRecords).
func NewBroadcaster(max int) *Broadcaster {
	return &Broadcaster{
		logs:       make(map[string]*Log),
		maxRecords: max,
	}
}

// Open returns the log for id, creating it if needed.
func (b *Broadcaster) Open(id string) *Log {
	b.lock.Lock()
	defer b.lock.Unlock()
	l, ok := b.logs[id]
	if !ok {
		l = NewLog(b.maxRecords)
		b.logs[id] = l
	}
	return l
}

// Log returns the log for id, or nil if there is none.
func (b *Broadcaster) Log(id string) *Log {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.logs[id]
}

// Remove forgets the log for id.  Any subscribers are closed.
func (b *Broadcaster) Remove(id string) {
	b.lock.Lock()
	l := b.logs[id]
	delete(b.logs, id)
	b.lock.Unlock()
	if l != nil {
		l.close()
	}
}

// Append strips escape sequences from chunk and records the result
// against id.
func (b *Broadcaster) Append(id string, chunk string) {
	b.Open(id).Append(ansi.Strip(chunk))
}

// Logf formats a line and appends it to the log for id.
func (b *Broadcaster) Logf(id string, format string, args ...interface{}) {
	b.Append(id, fmt.Sprintf(format, args...))
}

// Subscribe registers for new records of bot id.  The returned records
// are the ones already buffered, in order; live records follow on the
// channel, starting strictly after the last replayed one.
func (b *Broadcaster) Subscribe(id string, depth int) ([]LogRecord, <-chan LogRecord, func()) {
	return b.Open(id).Replay(depth)
}

// Writer returns an io.Writer that appends to the log for id.
func (b *Broadcaster) Writer(id string) *LogWriter {
	return &LogWriter{b: b, id: id}
}

// LogWriter adapts a Broadcaster stream to io.Writer.
type LogWriter struct {
	b  *Broadcaster
	id string
}

func (w *LogWriter) Write(p []byte) (int, error) {
	w.b.Append(w.id, string(p))
	return len(p), nil
}
