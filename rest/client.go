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
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/botvisor/botvisor"
)

// Client talks to a botvisor daemon.  Login obtains the token that all
// other calls send.
type Client struct {
	base   string
	rc     *resty.Client
	dialer *websocket.Dialer
	token  string
	lock   sync.Mutex
}

func NewClient(base string) *Client {
	base = strings.TrimRight(base, "/")
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(10 * time.Minute).
		SetHeader("Accept", "application/json")
	return &Client{
		base:   base,
		rc:     rc,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SetHTTPClient replaces the underlying HTTP client.  Tests use this.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.rc = resty.NewWithClient(hc).SetBaseURL(c.base)
}

func (c *Client) SetToken(token string) {
	c.lock.Lock()
	c.token = token
	c.lock.Unlock()
}

func (c *Client) Token() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.token
}

func (c *Client) request(ctx context.Context, out interface{}) *resty.Request {
	r := c.rc.R().SetContext(ctx).SetError(&Error{})
	if tok := c.Token(); tok != "" {
		r.SetAuthToken(tok)
	}
	if out != nil {
		r.SetResult(out)
	}
	return r
}

func (c *Client) check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if e, ok := resp.Error().(*Error); ok && e.Message != "" {
		e.Code = resp.StatusCode()
		return e
	}
	return &Error{Code: resp.StatusCode(), Message: resp.Status()}
}

func botPath(id string, op string) string {
	p := "/api/bots/" + url.PathEscape(id)
	if op != "" {
		p += "/" + op
	}
	return p
}

// Login exchanges the panel key for a token, and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, key string) (*LoginResponse, error) {
	v := &LoginResponse{}
	resp, err := c.request(ctx, v).SetBody(&LoginRequest{Key: key}).Post("/api/login")
	if err = c.check(resp, err); err != nil {
		return nil, err
	}
	c.SetToken(v.Value)
	return v, nil
}

func (c *Client) Bots(ctx context.Context) ([]botvisor.BotInfo, error) {
	v := []botvisor.BotInfo{}
	resp, err := c.request(ctx, &v).Get("/api/bots")
	if err = c.check(resp, err); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) Bot(ctx context.Context, id string) (*botvisor.BotInfo, error) {
	v := &botvisor.BotInfo{}
	resp, err := c.request(ctx, v).Get(botPath(id, ""))
	if err = c.check(resp, err); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) Deploy(ctx context.Context, req *DeployRequest) (*botvisor.DeployResult, error) {
	v := &botvisor.DeployResult{}
	resp, err := c.request(ctx, v).SetBody(req).Post("/api/deploy")
	if err = c.check(resp, err); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) control(ctx context.Context, id, op string) error {
	resp, err := c.request(ctx, &Result{}).Post(botPath(id, op))
	return c.check(resp, err)
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.control(ctx, id, "start")
}

func (c *Client) Stop(ctx context.Context, id string) error {
	return c.control(ctx, id, "stop")
}

func (c *Client) Restart(ctx context.Context, id string) error {
	return c.control(ctx, id, "restart")
}

func (c *Client) Update(ctx context.Context, id string) error {
	return c.control(ctx, id, "update")
}

func (c *Client) Delete(ctx context.Context, id string, purge bool) error {
	resp, err := c.request(ctx, &Result{}).
		SetQueryParam("purge", strconv.FormatBool(purge)).
		Delete(botPath(id, ""))
	return c.check(resp, err)
}

// Logs fetches log records newer than since.  A non-zero wait asks the
// server to hold the request until there are some, for up to wait.
func (c *Client) Logs(ctx context.Context, id string, since int64, wait time.Duration) (*LogsResponse, error) {
	v := &LogsResponse{}
	r := c.request(ctx, v)
	if since != 0 {
		r.SetQueryParam("since", strconv.FormatInt(since, 10))
	}
	if wait > 0 {
		r.SetQueryParam("wait", strconv.Itoa(int(wait/time.Second)))
	}
	resp, err := r.Get(botPath(id, "logs"))
	if err = c.check(resp, err); err != nil {
		return nil, err
	}
	return v, nil
}

// Stream is a live websocket connection to the daemon.
type Stream struct {
	conn   *websocket.Conn
	events chan *Event
	err    error
	wlock  sync.Mutex
}

// Stream opens the real-time channel.  Events arrive on the returned
// Stream's Events channel until it is closed or the connection fails.
func (c *Client) Stream(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, botvisor.ErrAuth
		}
		return nil, errors.Wrap(err, "dialing websocket")
	}
	s := &Stream{conn: conn, events: make(chan *Event, 64)}
	go s.readLoop()
	return s, nil
}

func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		ev := &Event{}
		if err := s.conn.ReadJSON(ev); err != nil {
			s.err = err
			return
		}
		s.events <- ev
	}
}

// Events returns the channel of received events.  It is closed when
// the connection ends; Err then says why.
func (s *Stream) Events() <-chan *Event {
	return s.events
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) send(action, id string) error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	return s.conn.WriteJSON(&ClientMessage{Action: action, ID: id})
}

// Subscribe asks for the log of bot id.  The buffered history arrives
// first, as a single EventHistory.
func (s *Stream) Subscribe(id string) error {
	return s.send(ActionSubscribe, id)
}

func (s *Stream) Unsubscribe(id string) error {
	return s.send(ActionUnsubscribe, id)
}

func (s *Stream) Close() error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
