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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botvisor/botvisor"
)

const testKey = "open-sesame"

type testProc struct {
	pid  int
	exit chan int
	once sync.Once
}

func (p *testProc) Pid() int { return p.pid }

func (p *testProc) Terminate() error {
	p.once.Do(func() { p.exit <- -1 })
	return nil
}

func (p *testProc) Kill() error { return p.Terminate() }

func (p *testProc) Wait() (int, error) { return <-p.exit, nil }

type testSpawner struct {
	mx sync.Mutex
	n  int
}

func (s *testSpawner) Spawn(c *botvisor.Command) (botvisor.Proc, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.n++
	c.Output.Write([]byte("booted\n"))
	return &testProc{pid: 100 + s.n, exit: make(chan int, 1)}, nil
}

func (s *testSpawner) count() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.n
}

type testFetcher struct{}

func (testFetcher) Fetch(ctx context.Context, repo, dir string, out io.Writer) error {
	if strings.Contains(repo, "missing") {
		return errors.New("not found")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "index.js"), []byte("\n"), 0644)
}

func (testFetcher) Update(ctx context.Context, dir string, out io.Writer) error {
	return nil
}

type testInstaller struct{}

func (testInstaller) Install(ctx context.Context, dir string, lang botvisor.Language, out io.Writer) error {
	return nil
}

type testEnv struct {
	srv   *httptest.Server
	sup   *botvisor.Supervisor
	sp    *testSpawner
	gate  *botvisor.TokenGate
	cl    *Client
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sp := &testSpawner{}
	sup := botvisor.NewSupervisor(botvisor.NewRegistry(), botvisor.NewBroadcaster(0), sp, botvisor.Options{
		AppsDir:      t.TempDir(),
		StartDelay:   time.Hour,
		RestartDelay: time.Hour,
		StopTimeout:  time.Second,
	})
	sup.SetLogger(logger)
	sup.SetFetcher(testFetcher{})
	sup.SetInstaller(testInstaller{})

	gate := botvisor.NewTokenGate(testKey, 0)
	status := botvisor.NewStatusEmitter(sup.Registry(), 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go status.Run(ctx)

	h := NewHandler(sup, gate, status)
	h.SetLogger(logger)
	srv := httptest.NewServer(h)

	env := &testEnv{srv: srv, sup: sup, sp: sp, gate: gate, cl: NewClient(srv.URL)}
	t.Cleanup(func() {
		sup.Shutdown(context.Background())
		cancel()
		srv.Close()
	})
	resp, err := env.cl.Login(context.Background(), testKey)
	require.NoError(t, err)
	env.token = resp.Value
	return env
}

func (env *testEnv) addBot(t *testing.T, id string) {
	dir := filepath.Join(env.sup.Options().AppsDir, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("\n"), 0644))
	require.NoError(t, env.sup.Registry().Add(&botvisor.Bot{
		ID: id, Name: id, Dir: dir, Entry: "index.js", Language: botvisor.LangNode, Port: 10500,
	}))
}

func (env *testEnv) do(t *testing.T, method, path, body string, hdr map[string]string) (int, map[string]interface{}) {
	req, err := http.NewRequest(method, env.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var v map[string]interface{}
	json.Unmarshal(b, &v)
	return resp.StatusCode, v
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	assert.True(t, env.gate.Verify(env.token))
	assert.Equal(t, env.token, env.cl.Token())

	_, err := NewClient(env.srv.URL).Login(context.Background(), "wrong")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusUnauthorized, e.Code)
	assert.Equal(t, "Access Denied: Invalid or expired token.", e.Message)

	code, _ := env.do(t, "POST", "/api/login", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTokenRequired(t *testing.T) {
	env := newTestEnv(t)
	env.addBot(t, "b1")

	code, body := env.do(t, "GET", "/api/bots", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Access Denied: Invalid or expired token.", body["error"])

	code, _ = env.do(t, "GET", "/api/bots?token=bogus", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, "POST", "/api/bots/b1/start", `{"token":"bogus"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 0, env.sp.count())

	code, _ = env.do(t, "GET", "/api/bots?token="+env.token, "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = env.do(t, "POST", "/api/bots/b1/start", `{"token":"`+env.token+`"}`, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, env.sp.count())

	code, _ = env.do(t, "POST", "/api/bots/b1/stop", "", map[string]string{
		"Authorization": "Bearer " + env.token,
	})
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestBotControl(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addBot(t, "b1")

	bots, err := env.cl.Bots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "b1", bots[0].ID)
	assert.Equal(t, botvisor.StatusStopped, bots[0].Status)
	assert.Equal(t, botvisor.UptimeNA, bots[0].Uptime)

	require.NoError(t, env.cl.Start(ctx, "b1"))
	info, err := env.cl.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, botvisor.StatusRunning, info.Status)
	assert.Equal(t, 10500, info.Port)
	assert.NotNil(t, info.StartTime)

	err = env.cl.Delete(ctx, "b1", false)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusConflict, e.Code)

	require.NoError(t, env.cl.Restart(ctx, "b1"))
	assert.Equal(t, 2, env.sp.count())

	require.NoError(t, env.cl.Stop(ctx, "b1"))
	require.NoError(t, env.sup.Wait(ctx, "b1"))
	require.NoError(t, env.cl.Stop(ctx, "b1"))

	require.NoError(t, env.cl.Delete(ctx, "b1", true))
	_, err = env.cl.Bot(ctx, "b1")
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.Code)

	err = env.cl.Start(ctx, "nope")
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.Code)
}

func TestDeploy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.cl.Deploy(ctx, &DeployRequest{RepoURL: "https://example.com/me/bot.git", Name: "my bot"})
	require.NoError(t, err)
	assert.Equal(t, "my-bot", res.Name)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, filepath.Join(env.sup.Options().AppsDir, "my-bot"), res.Dir)

	info, err := env.cl.Bot(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, botvisor.StatusStopped, info.Status)
	assert.True(t, env.sup.Pending(res.ID))

	var e *Error
	_, err = env.cl.Deploy(ctx, &DeployRequest{})
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusBadRequest, e.Code)

	_, err = env.cl.Deploy(ctx, &DeployRequest{RepoURL: "x", Language: "cobol"})
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusBadRequest, e.Code)

	_, err = env.cl.Deploy(ctx, &DeployRequest{RepoURL: "https://example.com/missing"})
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusInternalServerError, e.Code)

	require.NoError(t, env.cl.Update(ctx, res.ID))
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addBot(t, "b1")
	logs := env.sup.Logs()
	logs.Append("b1", "\x1b[36mfirst\x1b[0m\nsecond\n")

	lr, err := env.cl.Logs(ctx, "b1", 0, 0)
	require.NoError(t, err)
	require.Len(t, lr.Records, 2)
	assert.Equal(t, "first", lr.Records[0].Text)
	assert.Equal(t, lr.Records[1].Id, lr.Last)

	lr2, err := env.cl.Logs(ctx, "b1", lr.Last, 0)
	require.NoError(t, err)
	assert.Empty(t, lr2.Records)

	go func() {
		time.Sleep(20 * time.Millisecond)
		logs.Append("b1", "third")
	}()
	start := time.Now()
	lr3, err := env.cl.Logs(ctx, "b1", lr.Last, 5*time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, lr3.Records, 1)
	assert.Equal(t, "third", lr3.Records[0].Text)

	_, err = env.cl.Logs(ctx, "nope", 0, 0)
	assert.Error(t, err)

	code, _ := env.do(t, "GET", "/api/bots/b1/logs?since=x&token="+env.token, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func nextEvent(t *testing.T, s *Stream, kind string) *Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "stream closed: %v", s.Err())
			if ev.Event == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addBot(t, "b1")
	env.sup.Logs().Append("b1", "old line")

	bad := NewClient(env.srv.URL)
	bad.SetToken("bogus")
	_, err := bad.Stream(ctx)
	assert.ErrorIs(t, err, botvisor.ErrAuth)

	s, err := env.cl.Stream(ctx)
	require.NoError(t, err)
	defer s.Close()

	ev := nextEvent(t, s, EventBots)
	require.Len(t, ev.Bots, 1)
	assert.Equal(t, "b1", ev.Bots[0].ID)

	require.NoError(t, s.Subscribe("b1"))
	ev = nextEvent(t, s, EventHistory)
	assert.Equal(t, "b1", ev.ID)
	require.Len(t, ev.Records, 1)
	assert.Equal(t, "old line", ev.Records[0].Text)

	env.sup.Logs().Append("b1", "\x1b[31mfresh\x1b[0m")
	ev = nextEvent(t, s, EventLog)
	assert.Equal(t, "b1", ev.ID)
	assert.Equal(t, "fresh", ev.Text)

	require.NoError(t, env.cl.Start(ctx, "b1"))
	for {
		ev = nextEvent(t, s, EventBots)
		if len(ev.Bots) == 1 && ev.Bots[0].Status == botvisor.StatusRunning {
			break
		}
	}

	require.NoError(t, s.Subscribe("nope"))
	ev = nextEvent(t, s, EventError)
	assert.Equal(t, "nope", ev.ID)
}
