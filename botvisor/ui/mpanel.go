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

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleBusy = tcell.StyleDefault.
			Foreground(tcell.ColorTeal).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

func healthStyle(h util.Health) tcell.Style {
	switch h {
	case util.HealthFault:
		return StyleError
	case util.HealthBusy:
		return StyleBusy
	case util.HealthStopped:
		return StyleWarn
	case util.HealthGood:
		return StyleGood
	}
	return StyleNormal
}

// botLine formats one row of the bot list.
func botLine(b *botvisor.BotInfo, now time.Time) string {
	pid := "-"
	if b.Pid != 0 {
		pid = fmt.Sprint(b.Pid)
	}
	return fmt.Sprintf("%-8s %-20s %-7s %-11s %10s %7s %5d %3d",
		util.ShortID(b.ID), b.Name, b.Language, b.Status,
		util.Uptime(b, now), pid, b.Port, b.Restarts)
}

// MainPanel lists the bots known to the daemon, and lets the operator
// act on the selected one.
type MainPanel struct {
	content  *views.CellView
	selected string // id of the selected bot
	nfault   int
	nbusy    int
	nrunning int
	nstopped int
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []botvisor.BotInfo

	Panel
}

// mainModel provides the model for a CellArea.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle("Bots")
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if m.selected != "" {
				app.ShowInfo(m.selected)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			}
			if m.selected != "" && app.HandleBotKey(m.selected, ev.Rune()) {
				return true
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}
	line := m.lines[y]
	ch := ' '
	if x >= 0 && x < len(line) {
		ch = rune(line[x])
	}
	style := m.styles[y]
	if m.items[y].ID == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	return model.m.width, model.m.height
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == "" {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.items[m.cury].ID
	} else {
		m.selected = ""
	}
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.  It runs on the application goroutine.
func (m *MainPanel) update() {
	app := m.App()
	items, err := app.GetItems()
	m.items = items

	// keep the selection on the same bot, wherever it moved to
	if m.selected != "" {
		found := false
		for i := range m.items {
			if m.items[i].ID == m.selected {
				m.cury = i
				found = true
			}
		}
		if !found {
			m.selected = ""
		}
	}

	if err != nil {
		m.SetError()
		m.SetStatus(fmt.Sprintf("Disconnected: %v", err))
		m.lines = nil
		m.styles = nil
		m.items = nil
		m.width, m.height = 0, 0
		m.SetKeys([]string{"[Q] Quit", "[H] Help"})
		return
	}

	now := time.Now()
	lines := make([]string, 0, len(m.items))
	styles := make([]tcell.Style, 0, len(m.items))

	m.nfault = 0
	m.nbusy = 0
	m.nstopped = 0
	m.nrunning = 0
	m.height = 0
	m.width = 0

	for i := range m.items {
		info := &m.items[i]
		line := botLine(info, now)
		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++
		lines = append(lines, line)

		h := util.HealthOf(info)
		switch h {
		case util.HealthFault:
			m.nfault++
		case util.HealthBusy:
			m.nbusy++
		case util.HealthStopped:
			m.nstopped++
		case util.HealthGood:
			m.nrunning++
		}
		styles = append(styles, healthStyle(h))
	}

	m.lines = lines
	m.styles = styles

	status := fmt.Sprintf("%4d Bots %4d Faulted %4d Running %4d Stopped %4d Deploying",
		len(m.items), m.nfault, m.nrunning, m.nstopped, m.nbusy)
	if note := app.Notice(); note != "" {
		status = note
	}
	m.SetStatus(status)

	switch {
	case app.Notice() != "":
		m.SetError()
	case m.nfault > 0:
		m.SetError()
	case m.nstopped > 0 || m.nbusy > 0:
		m.SetHealth(util.HealthStopped)
	case m.nrunning > 0:
		m.SetHealth(util.HealthGood)
	default:
		m.SetNormal()
	}

	words := []string{"[Q] Quit", "[H] Help"}
	if m.selected != "" {
		words = append(words, botKeys(&m.items[m.cury])...)
	}
	m.SetKeys(words)
}
