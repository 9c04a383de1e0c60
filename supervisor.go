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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options tune a Supervisor.  Zero values select the defaults.
type Options struct {
	AppsDir      string        // parent directory of checkouts
	StorageURI   string        // handed to every bot as MONGO_URI
	Runtime      Runtime       // interpreter invocation
	MaxRestarts  int           // automatic restarts before giving up (5)
	RestartDelay time.Duration // delay before an automatic restart (5s)
	StartDelay   time.Duration // delay between install and first start (2s)
	StopTimeout  time.Duration // grace period before SIGKILL (10s)
	Env          []string      // base child environment; nil is os.Environ()
}

const (
	DefaultMaxRestarts  = 5
	DefaultRestartDelay = 5 * time.Second
	DefaultStartDelay   = 2 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

func (o *Options) setDefaults() {
	if o.AppsDir == "" {
		o.AppsDir = "apps"
	}
	if o.Runtime.Node == "" {
		o.Runtime.Node = DefaultRuntime.Node
	}
	if o.Runtime.Python == "" {
		o.Runtime.Python = DefaultRuntime.Python
	}
	if o.Runtime.MemoryLimitMB == 0 {
		o.Runtime.MemoryLimitMB = DefaultRuntime.MemoryLimitMB
	}
	if o.MaxRestarts == 0 {
		o.MaxRestarts = DefaultMaxRestarts
	}
	if o.RestartDelay == 0 {
		o.RestartDelay = DefaultRestartDelay
	}
	if o.StartDelay == 0 {
		o.StartDelay = DefaultStartDelay
	}
	if o.StopTimeout == 0 {
		o.StopTimeout = DefaultStopTimeout
	}
}

// Supervisor owns the process lifecycle of every bot in a Registry.
// Each bot has at most one live process.  When a process exits with a
// failure the Supervisor restarts it after RestartDelay, at most
// MaxRestarts times in a row; a manual Start resets that count.  An
// operator Stop never leads to an automatic restart, and cancels any
// restart that is already pending.
//
// Failures are contained to the bot they concern: they are written to
// the bot's log, and reflected in its status.
type Supervisor struct {
	reg       *Registry
	logs      *Broadcaster
	spawner   Spawner
	fetcher   Fetcher
	installer Installer
	opts      Options
	logger    logrus.FieldLogger
	closed    bool
	running   sync.WaitGroup
}

// NewSupervisor creates a Supervisor.  Deploys use git and the stock
// installers unless SetFetcher or SetInstaller say otherwise.
func NewSupervisor(reg *Registry, logs *Broadcaster, sp Spawner, opts Options) *Supervisor {
	opts.setDefaults()
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	return &Supervisor{
		reg:       reg,
		logs:      logs,
		spawner:   sp,
		fetcher:   &GitFetcher{},
		installer: &ShellInstaller{},
		opts:      opts,
		logger:    logrus.StandardLogger(),
	}
}

// SetLogger sets the logger used for supervisor diagnostics.  (Bot
// output goes to the Broadcaster, not here.)
func (s *Supervisor) SetLogger(l logrus.FieldLogger) {
	s.logger = l
}

func (s *Supervisor) SetFetcher(f Fetcher) {
	s.fetcher = f
}

func (s *Supervisor) SetInstaller(i Installer) {
	s.installer = i
}

func (s *Supervisor) Registry() *Registry {
	return s.reg
}

func (s *Supervisor) Logs() *Broadcaster {
	return s.logs
}

func (s *Supervisor) Options() Options {
	return s.opts
}

func (s *Supervisor) botLogger(b *Bot) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{"bot_id": b.ID, "name": b.Name})
}

// Start launches the bot's process and resets its restart count.
// Starting a bot that already has a live process does nothing.
func (s *Supervisor) Start(id string) error {
	s.reg.lock()
	defer s.reg.unlock()
	b, err := s.reg.get(id)
	if err != nil {
		return err
	}
	return s.start(b, true)
}

// start spawns a process for b.  Call with the registry lock held.
// Spawning is quick, so it is done under the lock; that keeps start
// single-flight for each bot.
func (s *Supervisor) start(b *Bot, manual bool) error {
	if b.proc != nil {
		return nil
	}
	if b.deploying {
		return ErrBusy
	}
	if s.closed {
		return ErrClosed
	}
	s.cancelPending(b)
	if manual {
		b.restarts = 0
	}
	if b.Entry == "" {
		b.Entry = DefaultEntry(b.Language)
	}
	if _, err := os.Stat(filepath.Join(b.Dir, b.Entry)); err != nil {
		s.logs.Logf(b.ID, "❌ Entry not found: %s", b.Entry)
		s.reg.setStatus(b, StatusError)
		s.botLogger(b).WithError(err).Warn("entry not found")
		return errors.Wrapf(ErrEntryNotFound, "%s", b.Entry)
	}
	if b.Port == 0 {
		b.Port = s.pickPort()
	}

	path, args := s.opts.Runtime.CommandFor(b.Language, b.Entry)
	if b.Language == LangPython {
		s.logs.Logf(b.ID, "🚀 Starting Python bot: %s", b.Entry)
	} else {
		s.logs.Logf(b.ID, "🚀 Starting Node bot: %s (RAM %dMB)",
			b.Entry, s.opts.Runtime.MemoryLimitMB)
	}
	proc, err := s.spawner.Spawn(&Command{
		Path:   path,
		Args:   args,
		Dir:    b.Dir,
		Env:    botEnv(s.opts.Env, b, s.opts.StorageURI),
		Output: s.logs.Writer(b.ID),
	})
	if err != nil {
		s.logs.Logf(b.ID, "⚠️ Process error: %v", err)
		s.reg.setStatus(b, StatusStopped)
		s.botLogger(b).WithError(err).Error("spawn failed")
		return errors.Wrapf(ErrSpawn, "%v", err)
	}

	b.proc = proc
	b.stopping = false
	b.startTime = time.Now()
	b.prior = 0
	b.hasPrior = false
	b.done = make(chan struct{})
	s.reg.setStatus(b, StatusRunning)
	s.botLogger(b).WithField("pid", proc.Pid()).Info("started")

	s.running.Add(1)
	go s.watch(b, proc)
	return nil
}

func (s *Supervisor) watch(b *Bot, proc Proc) {
	code, err := proc.Wait()
	s.onExit(b, proc, code, err)
	s.running.Done()
}

// onExit is the transition taken when a bot's process has terminated.
// It runs exactly once for each process.
func (s *Supervisor) onExit(b *Bot, proc Proc, code int, err error) {
	s.reg.lock()
	defer s.reg.unlock()

	if b.proc != proc {
		return
	}
	// Waiters are released only once every line below is logged.
	defer close(b.done)

	if !b.startTime.IsZero() {
		b.prior += time.Since(b.startTime)
		b.hasPrior = true
	}
	b.proc = nil
	b.startTime = time.Time{}
	if b.killTimer != nil {
		b.killTimer.Stop()
		b.killTimer = nil
	}
	requested := b.stopping
	b.stopping = false

	if err != nil {
		s.logs.Logf(b.ID, "⚠️ Process error: %v", err)
	}
	s.logs.Logf(b.ID, "🛑 Bot exited (code=%d)", code)
	s.reg.setStatus(b, StatusStopped)
	s.botLogger(b).WithField("exit_code", code).Info("exited")

	if requested || s.closed || code == 0 {
		return
	}
	if b.restarts < s.opts.MaxRestarts {
		b.restarts++
		s.logs.Logf(b.ID, "🔁 Restarting in %v (try %d/%d)",
			s.opts.RestartDelay, b.restarts, s.opts.MaxRestarts)
		s.schedule(b, s.opts.RestartDelay, false)
	} else {
		s.logs.Logf(b.ID, "❌ Max restart attempts reached. Bot stopped.")
		s.botLogger(b).Warn("max restart attempts reached")
	}
}

// schedule arranges for b to be started after delay.  Any earlier
// pending start is superseded.  Call with the registry lock held.
func (s *Supervisor) schedule(b *Bot, delay time.Duration, manual bool) {
	s.cancelPending(b)
	gen := b.gen
	b.timer = time.AfterFunc(delay, func() {
		s.reg.lock()
		defer s.reg.unlock()
		if b.gen != gen || s.closed || s.reg.bots[b.ID] != b {
			return
		}
		b.timer = nil
		if err := s.start(b, manual); err != nil {
			s.botLogger(b).WithError(err).Warn("scheduled start failed")
		}
	})
}

// cancelPending cancels a scheduled start, if any.
// Call with the registry lock held.
func (s *Supervisor) cancelPending(b *Bot) {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Pending reports whether a start is scheduled for the bot.
func (s *Supervisor) Pending(id string) bool {
	s.reg.lock()
	defer s.reg.unlock()
	b, err := s.reg.get(id)
	return err == nil && b.timer != nil
}

// Stop asks the bot's process to terminate, and cancels any pending
// automatic restart.  The process gets StopTimeout to exit before it is
// killed.  Stopping a bot without a process is a no-op.
func (s *Supervisor) Stop(id string) error {
	s.reg.lock()
	defer s.reg.unlock()
	b, err := s.reg.get(id)
	if err != nil {
		return err
	}
	s.stop(b)
	return nil
}

// stop does the work of Stop.  Call with the registry lock held.
func (s *Supervisor) stop(b *Bot) {
	s.cancelPending(b)
	proc := b.proc
	if proc == nil || b.stopping {
		return
	}
	b.stopping = true
	s.logs.Logf(b.ID, "⏹ Stop requested")
	if err := proc.Terminate(); err != nil {
		s.botLogger(b).WithError(err).Warn("failed sending SIGTERM")
	}
	b.killTimer = time.AfterFunc(s.opts.StopTimeout, func() {
		s.reg.lock()
		defer s.reg.unlock()
		if b.proc != proc {
			return
		}
		s.logs.Logf(b.ID, "⚠️ Graceful shutdown timed out, killing")
		if err := proc.Kill(); err != nil {
			s.botLogger(b).WithError(err).Warn("failed killing")
		}
	})
}

// Wait blocks until the bot has no live process, or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id string) error {
	s.reg.lock()
	b, err := s.reg.get(id)
	if err != nil {
		s.reg.unlock()
		return err
	}
	if b.proc == nil {
		s.reg.unlock()
		return nil
	}
	done := b.done
	s.reg.unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the bot, waits for its process to go away, and starts
// it again with a fresh restart count.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	if err := s.Stop(id); err != nil {
		return err
	}
	if err := s.Wait(ctx, id); err != nil {
		return err
	}
	return s.Start(id)
}

// Delete removes a bot that has no live process and no deploy in
// flight.  With purge set, its working directory is removed as well.
func (s *Supervisor) Delete(id string, purge bool) error {
	s.reg.lock()
	b, err := s.reg.get(id)
	if err != nil {
		s.reg.unlock()
		return err
	}
	if err = s.reg.remove(id); err != nil {
		s.reg.unlock()
		return err
	}
	s.cancelPending(b)
	dir := b.Dir
	s.reg.unlock()

	s.logs.Remove(id)
	s.botLogger(b).Info("deleted")
	if purge && dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "removing %s", dir)
		}
	}
	return nil
}

// Shutdown stops every bot and waits for their processes to exit, or
// for ctx to be done.  No further starts happen afterwards.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.reg.lock()
	s.closed = true
	for _, b := range s.reg.bots {
		s.stop(b)
	}
	s.reg.unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
