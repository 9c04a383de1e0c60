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
	"io"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ports handed to bots are drawn from [PortBase, PortBase+PortRange).
const (
	PortBase  = 10000
	PortRange = 40000
)

// Fetcher obtains and refreshes bot sources.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, dir string, out io.Writer) error
	Update(ctx context.Context, dir string, out io.Writer) error
}

// Installer installs a checkout's dependencies.
type Installer interface {
	Install(ctx context.Context, dir string, lang Language, out io.Writer) error
}

// GitFetcher uses the git command line.
type GitFetcher struct {
	Git string // defaults to "git"
}

func (g *GitFetcher) git() string {
	if g.Git == "" {
		return "git"
	}
	return g.Git
}

func (g *GitFetcher) Fetch(ctx context.Context, repoURL, dir string, out io.Writer) error {
	return runCommand(ctx, &Command{
		Path:   g.git(),
		Args:   []string{"clone", repoURL, dir},
		Output: out,
	})
}

func (g *GitFetcher) Update(ctx context.Context, dir string, out io.Writer) error {
	return runCommand(ctx, &Command{
		Path:   g.git(),
		Args:   []string{"-C", dir, "pull", "--ff-only"},
		Output: out,
	})
}

// ShellInstaller runs pip3 for python checkouts that have a
// requirements.txt, and npm for node checkouts that have a package.json.
type ShellInstaller struct {
	Pip string // defaults to "pip3"
	Npm string // defaults to "npm"
}

func (si *ShellInstaller) Install(ctx context.Context, dir string, lang Language, out io.Writer) error {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	c := &Command{Dir: dir, Output: out}
	switch lang {
	case LangPython:
		if !exists("requirements.txt") {
			io.WriteString(out, "🐍 No requirements.txt, skipping pip install\n")
			return nil
		}
		io.WriteString(out, "🐍 Running pip install -r requirements.txt...\n")
		c.Path = si.Pip
		if c.Path == "" {
			c.Path = "pip3"
		}
		c.Args = []string{"install", "-r", "requirements.txt"}
	default:
		if !exists("package.json") {
			io.WriteString(out, "📦 No package.json, skipping npm install\n")
			return nil
		}
		io.WriteString(out, "📦 Running npm install...\n")
		c.Path = si.Npm
		if c.Path == "" {
			c.Path = "npm"
		}
		c.Args = []string{"install", "--no-audit", "--no-fund"}
	}
	return runCommand(ctx, c)
}

// DeployRequest asks for a new bot.  Only RepoURL is required.
type DeployRequest struct {
	RepoURL  string   `json:"repoUrl"`
	Name     string   `json:"name,omitempty"`
	Entry    string   `json:"entry,omitempty"`
	Language Language `json:"language,omitempty"`
}

// DeployResult identifies a freshly deployed bot.
type DeployResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

// SafeName derives the display name, which is also the checkout
// directory name.  A given name has its whitespace runs turned into
// dashes; otherwise the repository's base name is used, with a short
// suffix taken from id.
func SafeName(name, repoURL, id string) string {
	var rv string
	if n := strings.Fields(name); len(n) != 0 {
		rv = strings.Join(n, "-")
	} else {
		base := path.Base(strings.TrimRight(repoURL, "/"))
		base = strings.TrimSuffix(base, ".git")
		if len(id) > 6 {
			id = id[:6]
		}
		rv = base + "-" + id
	}
	rv = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '-'
	}, rv)
	if strings.Trim(rv, ".") == "" {
		rv = "bot-" + id
	}
	return rv
}

// pickPort chooses a port no registered bot uses.
// Call with the registry lock held.
func (s *Supervisor) pickPort() int {
	for {
		p := PortBase + rand.Intn(PortRange)
		if !s.reg.portTaken(p) {
			return p
		}
	}
}

// Deploy registers a new bot, checks out its source, and installs its
// dependencies.  It returns once installation is done; the bot is then
// Stopped, and is started automatically after StartDelay.  A failed
// checkout or install leaves the bot in Error.
func (s *Supervisor) Deploy(ctx context.Context, req DeployRequest) (DeployResult, error) {
	repo := strings.TrimSpace(req.RepoURL)
	if repo == "" {
		return DeployResult{}, errors.Wrap(ErrBadRequest, "repoUrl required")
	}
	id := uuid.NewString()
	name := SafeName(req.Name, repo, id)

	s.reg.lock()
	if s.closed {
		s.reg.unlock()
		return DeployResult{}, ErrClosed
	}
	dir := filepath.Join(s.opts.AppsDir, name)
	if s.reg.dirTaken(dir) {
		dir = dir + "-" + id[:8]
	}
	b := &Bot{
		ID:        id,
		Name:      name,
		RepoURL:   repo,
		Dir:       dir,
		Entry:     req.Entry,
		Language:  req.Language,
		Port:      s.pickPort(),
		status:    StatusCloning,
		deploying: true,
	}
	if err := s.reg.add(b); err != nil {
		s.reg.unlock()
		return DeployResult{}, err
	}
	s.reg.unlock()

	res := DeployResult{ID: id, Name: name, Dir: dir}
	out := s.logs.Writer(id)
	log := s.botLogger(b).WithField("repo", repo)

	s.logs.Logf(id, "📦 Cloning %s -> %s", repo, dir)
	log.Info("deploying")
	if err := os.RemoveAll(dir); err != nil {
		return res, s.failDeploy(b, ErrFetch, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return res, s.failDeploy(b, ErrFetch, err)
	}
	if err := s.fetcher.Fetch(ctx, repo, dir, out); err != nil {
		return res, s.failDeploy(b, ErrFetch, err)
	}
	s.logs.Logf(id, "✅ Clone complete")

	s.reg.lock()
	s.reg.setStatus(b, StatusInstalling)
	s.reg.unlock()

	lang, entry, err := Resolve(dir, req.Language, req.Entry)
	if err != nil {
		return res, s.failDeploy(b, ErrInstall, err)
	}
	s.reg.lock()
	b.Language = lang
	b.Entry = entry
	s.reg.touch(b)
	s.reg.unlock()

	if err := s.installer.Install(ctx, dir, lang, out); err != nil {
		return res, s.failDeploy(b, ErrInstall, err)
	}
	s.finishDeploy(b, log)
	return res, nil
}

// Update stops the bot, pulls the latest source, reinstalls, and then
// starts it again after StartDelay.
func (s *Supervisor) Update(ctx context.Context, id string) error {
	s.reg.lock()
	b, err := s.reg.get(id)
	if err != nil {
		s.reg.unlock()
		return err
	}
	if b.deploying {
		s.reg.unlock()
		return ErrBusy
	}
	if s.closed {
		s.reg.unlock()
		return ErrClosed
	}
	s.stop(b)
	b.deploying = true
	s.reg.unlock()

	if err := s.Wait(ctx, id); err != nil {
		s.reg.lock()
		b.deploying = false
		s.reg.touch(b)
		s.reg.unlock()
		return err
	}

	log := s.botLogger(b)
	out := s.logs.Writer(id)
	s.reg.lock()
	s.reg.setStatus(b, StatusCloning)
	s.reg.unlock()
	s.logs.Logf(id, "📥 Pulling latest changes in %s", b.Dir)
	log.Info("updating")
	if err := s.fetcher.Update(ctx, b.Dir, out); err != nil {
		return s.failDeploy(b, ErrFetch, err)
	}
	s.logs.Logf(id, "✅ Pull complete")

	s.reg.lock()
	s.reg.setStatus(b, StatusInstalling)
	lang := b.Language
	s.reg.unlock()
	if err := s.installer.Install(ctx, b.Dir, lang, out); err != nil {
		return s.failDeploy(b, ErrInstall, err)
	}
	s.finishDeploy(b, log)
	return nil
}

func (s *Supervisor) failDeploy(b *Bot, kind error, err error) error {
	s.reg.lock()
	b.deploying = false
	s.reg.setStatus(b, StatusError)
	s.reg.unlock()
	if kind == ErrFetch {
		s.logs.Logf(b.ID, "❌ Checkout failed: %v", err)
	} else {
		s.logs.Logf(b.ID, "❌ Install failed: %v", err)
	}
	s.botLogger(b).WithError(err).Error("deploy failed")
	return errors.Wrapf(kind, "%v", err)
}

func (s *Supervisor) finishDeploy(b *Bot, log logrus.FieldLogger) {
	s.reg.lock()
	defer s.reg.unlock()
	b.deploying = false
	b.restarts = 0
	s.reg.setStatus(b, StatusStopped)
	s.logs.Logf(b.ID, "✅ Install done, starting in %v", s.opts.StartDelay)
	log.WithField("delay", s.opts.StartDelay.String()).Info("installed")
	if !s.closed {
		s.schedule(b, s.opts.StartDelay, true)
	}
}
