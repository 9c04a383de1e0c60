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

// Package ui implements the full screen operator console.  It follows
// the daemon over the websocket channel, and acts on bots through the
// REST API.
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
	"github.com/sirupsen/logrus"

	"github.com/botvisor/botvisor"
	"github.com/botvisor/botvisor/botvisor/util"
	"github.com/botvisor/botvisor/rest"
)

var errNotFound = errors.New("Bot not found")

// App is the root widget.  All of its state is owned by the
// application goroutine; background work reports back with PostFunc.
type App struct {
	app    *views.Application
	view   views.View
	panel  views.Widget
	info   *InfoPanel
	help   *HelpPanel
	log    *LogPanel
	main   *MainPanel
	client *rest.Client
	server string
	logger logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	stream *rest.Stream
	err    error
	items  []botvisor.BotInfo
	notice string
	noteAt time.Time

	logID   string
	logRecs []botvisor.LogRecord
	logErr  error

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(id string) {
	a.info.SetID(id)
	a.show(a.info)
}

// ShowLog switches to the log of bot id, subscribing to it in place of
// any log shown before.
func (a *App) ShowLog(id string) {
	if a.logID != id {
		if a.stream != nil && a.logID != "" {
			go a.stream.Unsubscribe(a.logID)
		}
		a.logID = id
		a.logRecs = nil
		a.logErr = nil
		if a.stream != nil {
			go a.stream.Subscribe(id)
		}
	}
	a.log.SetID(id)
	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

// botKeys lists the actions available for b.
func botKeys(b *botvisor.BotInfo) []string {
	words := []string{"[I] Info", "[L] Log"}
	switch b.Status {
	case botvisor.StatusRunning:
		words = append(words, "[S] Stop", "[R] Restart", "[U] Update")
	case botvisor.StatusStopped, botvisor.StatusError:
		words = append(words, "[G] Start", "[U] Update", "[X] Delete")
	}
	return words
}

// HandleBotKey performs the action bound to key on bot id, reporting
// whether the key meant anything.
func (a *App) HandleBotKey(id string, key rune) bool {
	switch key {
	case 'I', 'i':
		a.ShowInfo(id)
	case 'L', 'l':
		a.ShowLog(id)
	case 'G', 'g':
		a.act("Start", id, a.client.Start)
	case 'S', 's':
		a.act("Stop", id, a.client.Stop)
	case 'R', 'r':
		a.act("Restart", id, a.client.Restart)
	case 'U', 'u':
		a.act("Update", id, a.client.Update)
	case 'X', 'x':
		a.act("Delete", id, func(ctx context.Context, id string) error {
			return a.client.Delete(ctx, id, false)
		})
	default:
		return false
	}
	return true
}

// act runs a control call in the background.  Failures are shown in
// the status bar for a few seconds; successes show up through the
// status stream.
func (a *App) act(what, id string, fn func(context.Context, string) error) {
	a.Logf("%s %s", what, id)
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 2*time.Minute)
		defer cancel()
		err := fn(ctx, id)
		if err == nil {
			return
		}
		a.Logf("%s %s: %v", what, id, err)
		a.app.PostFunc(func() {
			a.notice = fmt.Sprintf("%s failed: %v", what, err)
			a.noteAt = time.Now()
			a.app.Update()
		})
	}()
}

// Notice is the most recent action failure, if it is still fresh.
func (a *App) Notice() string {
	if a.notice != "" && time.Since(a.noteAt) > 5*time.Second {
		a.notice = ""
	}
	return a.notice
}

func (a *App) Quit() {
	a.app.Quit()
}

func (a *App) SetLogger(logger logrus.FieldLogger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Debugf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetClient() *rest.Client {
	return a.client
}

func (a *App) Server() string {
	return a.server
}

func (a *App) GetAppName() string {
	return "Botvisor"
}

// NewApp creates the console for the daemon at server.  The client
// must already be logged in.
func NewApp(client *rest.Client, server string) *App {
	app := &App{
		app:    &views.Application{},
		client: client,
		server: server,
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app)
	app.panel = app.main
	return app
}

func (a *App) GetItems() ([]botvisor.BotInfo, error) {
	return a.items, a.err
}

func (a *App) GetItem(id string) (*botvisor.BotInfo, error) {
	if a.err != nil {
		return nil, a.err
	}
	if b := util.Find(a.items, id); b != nil {
		return b, nil
	}
	return nil, errNotFound
}

func (a *App) GetLog(id string) ([]botvisor.LogRecord, error) {
	if a.logID == id {
		return a.logRecs, a.logErr
	}
	return nil, nil
}

// handle applies a stream event.
func (a *App) handle(s *rest.Stream, ev *rest.Event) {
	if s != a.stream {
		return
	}
	switch ev.Event {
	case rest.EventBots:
		items := append([]botvisor.BotInfo(nil), ev.Bots...)
		util.SortBots(items)
		a.items = items
		a.err = nil
	case rest.EventHistory:
		if ev.ID == a.logID {
			a.logRecs = ev.Records
			a.logErr = nil
		}
	case rest.EventLog:
		if ev.ID == a.logID {
			a.logRecs = append(a.logRecs, botvisor.LogRecord{
				Time: time.Now(),
				Text: ev.Text,
			})
			if n := len(a.logRecs) - botvisor.MaxLogRecords; n > 0 {
				a.logRecs = a.logRecs[n:]
			}
		}
	case rest.EventError:
		if ev.ID != "" && ev.ID == a.logID {
			a.logErr = errors.New(ev.Error)
		}
	}
	a.app.Update()
}

// follow keeps a stream open to the daemon, reconnecting as needed.
func (a *App) follow() {
	for {
		s, err := a.client.Stream(a.ctx)
		if err == nil {
			a.app.PostFunc(func() {
				a.stream = s
				a.err = nil
				if a.logID != "" {
					go s.Subscribe(a.logID)
				}
			})
			for ev := range s.Events() {
				ev := ev
				a.app.PostFunc(func() { a.handle(s, ev) })
			}
			err = s.Err()
			s.Close()
		}
		if a.ctx.Err() != nil {
			return
		}
		a.Logf("stream: %v", err)
		a.app.PostFunc(func() {
			if a.stream == s {
				a.stream = nil
			}
			a.err = err
			a.app.Update()
		})
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *App) Run() error {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.follow()
	go func() {
		// Uptimes tick even when nothing else changes.
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-t.C:
				a.app.Update()
			}
		}
	}()
	a.Logf("Starting app loop")
	err := a.app.Run()
	a.cancel()
	if a.stream != nil {
		a.stream.Close()
	}
	return err
}
