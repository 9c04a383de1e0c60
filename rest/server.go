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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/botvisor/botvisor"
)

const (
	maxBody     = 1 << 20
	maxLongPoll = 300 * time.Second
)

// Handler wraps a Supervisor, adding http.Handler functionality.
// Every route except login and the health check needs a token, given
// as the "token" query parameter, as a "token" field in a JSON body,
// or as a Bearer authorization header.
type Handler struct {
	s        *botvisor.Supervisor
	gate     *botvisor.TokenGate
	status   *botvisor.StatusEmitter
	r        *mux.Router
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

var denied = &Error{
	Code:    http.StatusUnauthorized,
	Message: "Access Denied: Invalid or expired token.",
}

// toError maps supervisor errors onto HTTP responses.
func toError(err error) *Error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, botvisor.ErrAuth):
		return denied
	case errors.Is(err, botvisor.ErrNoBot):
		code = http.StatusNotFound
	case errors.Is(err, botvisor.ErrBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, botvisor.ErrBusy), errors.Is(err, botvisor.ErrBotRunning):
		code = http.StatusConflict
	case errors.Is(err, botvisor.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	return &Error{Code: code, Message: err.Error()}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.writeError(w, toError(err))
}

// readBody buffers a request body so that it can be read again after
// the token has been pulled out of it.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, err
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if a := r.Header.Get("Authorization"); strings.HasPrefix(a, "Bearer ") {
		return strings.TrimPrefix(a, "Bearer ")
	}
	if b, err := readBody(r); err == nil && len(b) != 0 {
		var v struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(b, &v) == nil {
			return v.Token
		}
	}
	return ""
}

func (h *Handler) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.gate.Verify(tokenFrom(r)) {
			h.writeError(w, denied)
			return
		}
		next(w, r)
	}
}

func decode(r *http.Request, v interface{}) error {
	b, err := readBody(r)
	if err != nil {
		return botvisor.ErrBadRequest
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return botvisor.ErrBadRequest
	}
	return nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	tok, err := h.gate.Issue(req.Key)
	if err != nil {
		h.log.WithField("remote", r.RemoteAddr).Warn("login refused")
		h.fail(w, err)
		return
	}
	h.writeJson(w, &LoginResponse{Success: true, Token: tok})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, ok)
}

func (h *Handler) listBots(w http.ResponseWriter, r *http.Request) {
	bots, _ := h.s.Registry().Snapshot()
	h.writeJson(w, bots)
}

func (h *Handler) getBot(w http.ResponseWriter, r *http.Request) {
	if info, err := h.s.Registry().Info(mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
	} else {
		h.writeJson(w, info)
	}
}

func (h *Handler) deploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	lang, err := botvisor.ParseLanguage(req.Language)
	if err != nil {
		h.fail(w, err)
		return
	}
	// The pipeline continues even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.s.Deploy(ctx, botvisor.DeployRequest{
		RepoURL:  req.RepoURL,
		Name:     req.Name,
		Entry:    req.Entry,
		Language: lang,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJson(w, res)
}

func (h *Handler) startBot(w http.ResponseWriter, r *http.Request) {
	if err := h.s.Start(mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) stopBot(w http.ResponseWriter, r *http.Request) {
	if err := h.s.Stop(mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) restartBot(w http.ResponseWriter, r *http.Request) {
	opts := h.s.Options()
	ctx, cancel := context.WithTimeout(r.Context(), opts.StopTimeout+5*time.Second)
	defer cancel()
	if err := h.s.Restart(ctx, mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) updateBot(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if err := h.s.Update(ctx, mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) deleteBot(w http.ResponseWriter, r *http.Request) {
	purge, _ := strconv.ParseBool(r.URL.Query().Get("purge"))
	if err := h.s.Delete(mux.Vars(r)["id"], purge); err != nil {
		h.fail(w, err)
	} else {
		h.writeJson(w, ok)
	}
}

// getLog returns the buffered log records newer than "since".  With
// "wait" (seconds), it holds the request open until there is something
// newer, so that clients can follow a log by polling.
func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.s.Registry().Info(id); err != nil {
		h.fail(w, err)
		return
	}
	q := r.URL.Query()
	var since int64
	var wait time.Duration
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.fail(w, botvisor.ErrBadRequest)
			return
		}
		since = n
	}
	if v := q.Get("wait"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.fail(w, botvisor.ErrBadRequest)
			return
		}
		wait = time.Duration(n) * time.Second
		if wait > maxLongPoll {
			wait = maxLongPoll
		}
	}
	l := h.s.Logs().Open(id)
	if wait > 0 && since != 0 {
		l.Watch(r.Context(), since, wait)
	}
	recs, last := l.Since(since)
	h.writeJson(w, &LogsResponse{ID: id, Last: last, Records: recs})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// SetLogger sets the logger for transport diagnostics.
func (h *Handler) SetLogger(l logrus.FieldLogger) {
	h.log = l
}

func NewHandler(s *botvisor.Supervisor, gate *botvisor.TokenGate, status *botvisor.StatusEmitter) *Handler {
	r := mux.NewRouter()
	h := &Handler{
		s:      s,
		gate:   gate,
		status: status,
		r:      r,
		log:    logrus.StandardLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", h.login).Methods("POST")
	api.HandleFunc("/bots", h.requireToken(h.listBots)).Methods("GET")
	api.HandleFunc("/deploy", h.requireToken(h.deploy)).Methods("POST")
	api.HandleFunc("/bots/{id}", h.requireToken(h.getBot)).Methods("GET")
	api.HandleFunc("/bots/{id}", h.requireToken(h.deleteBot)).Methods("DELETE")
	api.HandleFunc("/bots/{id}/start", h.requireToken(h.startBot)).Methods("POST")
	api.HandleFunc("/bots/{id}/stop", h.requireToken(h.stopBot)).Methods("POST")
	api.HandleFunc("/bots/{id}/restart", h.requireToken(h.restartBot)).Methods("POST")
	api.HandleFunc("/bots/{id}/update", h.requireToken(h.updateBot)).Methods("POST")
	api.HandleFunc("/bots/{id}/logs", h.requireToken(h.getLog)).Methods("GET")
	r.HandleFunc("/ws", h.requireToken(h.serveWs)).Methods("GET")
	r.HandleFunc("/healthz", h.health).Methods("GET")
	return h
}
