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

package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/botvisor/botvisor"
	"github.com/botvisor/botvisor/botvisor/util"
)

// InfoPanel shows the details of one bot.
type InfoPanel struct {
	text *views.TextArea
	info *botvisor.BotInfo
	id   string

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'I', 'i':
				return true
			}
			if p.info != nil && app.HandleBotKey(p.info.ID, ev.Rune()) {
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetID(id string) {
	p.id = id
	p.info = nil
}

// infoLines describes b, as of now.
func infoLines(b *botvisor.BotInfo, now time.Time) []string {
	pid := "-"
	if b.Pid != 0 {
		pid = fmt.Sprint(b.Pid)
	}
	started := "-"
	if b.StartTime != nil {
		started = b.StartTime.Local().Format(time.DateTime)
	}
	return []string{
		fmt.Sprintf("%10s %s", "ID:", b.ID),
		fmt.Sprintf("%10s %s", "Name:", b.Name),
		fmt.Sprintf("%10s %s", "Repo:", b.RepoURL),
		fmt.Sprintf("%10s %s", "Dir:", b.Dir),
		fmt.Sprintf("%10s %s (%s)", "Entry:", b.Entry, b.Language),
		fmt.Sprintf("%10s %d", "Port:", b.Port),
		fmt.Sprintf("%10s %s", "Status:", b.Status),
		fmt.Sprintf("%10s %s", "PID:", pid),
		fmt.Sprintf("%10s %s", "Started:", started),
		fmt.Sprintf("%10s %s", "Uptime:", util.Uptime(b, now)),
		fmt.Sprintf("%10s %d", "Restarts:", b.Restarts),
		fmt.Sprintf("%10s %s", "Created:", b.Created.Local().Format(time.DateTime)),
	}
}

// update runs on the application goroutine.
func (p *InfoPanel) update() {
	info, err := p.App().GetItem(p.id)
	p.info = info
	words := []string{"[ESC] Main", "[H] Help"}

	if info == nil {
		p.SetTitle("Details for " + util.ShortID(p.id))
		if err != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", err))
			p.SetError()
		} else {
			p.SetStatus("Loading...")
			p.SetNormal()
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetTitle("Details for " + info.Name)
	p.SetStatus(string(info.Status))
	p.SetHealth(util.HealthOf(info))
	p.text.SetLines(infoLines(info, time.Now()))
	p.SetKeys(append(words, botKeys(info)...))
}
