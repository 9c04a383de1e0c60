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
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendDepth  = 256
	readLimit  = 4096
)

// wsClient is one websocket observer.  It always receives status
// snapshots, and receives the log of each bot it subscribes to.  Only
// writeLoop writes to the connection.
type wsClient struct {
	h    *Handler
	conn *websocket.Conn
	send chan *Event
	subs map[string]func()
	done chan struct{}
	mx   sync.Mutex
}

func (h *Handler) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{
		h:    h,
		conn: conn,
		send: make(chan *Event, sendDepth),
		subs: make(map[string]func()),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	c.readLoop()
}

// queue hands an event to the writer.  Delivery is best effort; a
// client that cannot keep up loses events.
func (c *wsClient) queue(ev *Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
	}
}

func (c *wsClient) subscribe(id string) {
	if _, err := c.h.s.Registry().Info(id); err != nil {
		c.queue(&Event{Event: EventError, ID: id, Error: err.Error()})
		return
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if _, ok := c.subs[id]; ok {
		return
	}
	hist, ch, cancel := c.h.s.Logs().Subscribe(id, sendDepth)
	c.subs[id] = cancel
	c.queue(&Event{Event: EventHistory, ID: id, Records: hist})
	go func() {
		for rec := range ch {
			c.queue(&Event{Event: EventLog, ID: id, Text: rec.Text})
		}
	}()
}

func (c *wsClient) unsubscribe(id string) {
	c.mx.Lock()
	cancel, ok := c.subs[id]
	delete(c.subs, id)
	c.mx.Unlock()
	if ok {
		cancel()
	}
}

func (c *wsClient) readLoop() {
	defer func() {
		c.mx.Lock()
		for id, cancel := range c.subs {
			delete(c.subs, id)
			cancel()
		}
		c.mx.Unlock()
		close(c.done)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case ActionSubscribe:
			c.subscribe(msg.ID)
		case ActionUnsubscribe:
			c.unsubscribe(msg.ID)
		default:
			c.queue(&Event{Event: EventError, Error: "unknown action: " + msg.Action})
		}
	}
}

func (c *wsClient) write(ev *Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

func (c *wsClient) writeLoop() {
	snaps, cancel := c.h.status.Subscribe()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
	}()

	if err := c.write(&Event{Event: EventBots, Bots: c.h.status.Snapshot().Bots}); err != nil {
		return
	}
	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				return
			}
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := c.write(&Event{Event: EventBots, Bots: snap.Bots}); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
