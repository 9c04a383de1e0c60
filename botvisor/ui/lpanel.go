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

// LogPanel follows the log of one bot.
type LogPanel struct {
	text  *views.TextArea
	info  *botvisor.BotInfo
	id    string
	nrecs int
	last  time.Time // time of the last record shown

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
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
			case 'L', 'l':
				return true
			}
			if p.info != nil && app.HandleBotKey(p.info.ID, ev.Rune()) {
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *LogPanel) SetID(id string) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.id = id
	p.info = nil
	p.nrecs = 0
	p.last = time.Time{}
}

// logLines renders records for display.
func logLines(recs []botvisor.LogRecord) []string {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%s %s",
			r.Time.Format(time.StampMilli), r.Text))
	}
	return lines
}

// update runs on the application goroutine.
func (p *LogPanel) update() {
	app := p.App()
	info, e1 := app.GetItem(p.id)
	recs, e2 := app.GetLog(p.id)
	p.info = info

	words := []string{"[ESC] Main", "[H] Help"}

	if info == nil {
		p.SetTitle("Log for " + util.ShortID(p.id))
		e := e2
		if e == nil {
			e = e1
		}
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetError()
		} else {
			p.SetStatus("Loading ...")
			p.SetNormal()
		}
		p.SetKeys(words)
		return
	}

	p.SetTitle("Log for " + info.Name)
	if e2 != nil {
		p.SetStatus(fmt.Sprintf("Log unavailable: %v", e2))
		p.SetError()
	} else {
		p.SetStatus(fmt.Sprintf("%s  %d lines", info.Status, len(recs)))
		p.SetHealth(util.HealthOf(info))
	}

	// Only rebuild the text when records changed.
	var last time.Time
	if len(recs) > 0 {
		last = recs[len(recs)-1].Time
	}
	if len(recs) != p.nrecs || !last.Equal(p.last) {
		p.nrecs = len(recs)
		p.last = last
		p.text.SetLines(logLines(recs))
		if len(recs) > 0 {
			// follow the tail
			p.text.MakeVisible(0, len(recs)-1)
		}
	}

	p.SetKeys(append(words, botKeys(info)...))
}
