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
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Command describes an OS process to launch.  Every line the process
// writes to standard output or standard error is delivered to Output,
// one Write per line.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Output io.Writer
}

// Proc is a launched process.  Wait must be called exactly once; it
// returns the exit code (or -1 when the process died from a signal).
type Proc interface {
	Pid() int
	Terminate() error
	Kill() error
	Wait() (int, error)
}

// Spawner launches processes.  The Supervisor only ever talks to the OS
// through this interface.
type Spawner interface {
	Spawn(c *Command) (Proc, error)
}

// ExecSpawner is the Spawner backed by os/exec.  Children are placed in
// their own process group so that signals reach anything they fork.
type ExecSpawner struct{}

type execProc struct {
	cmd     *exec.Cmd
	readers sync.WaitGroup
	once    sync.Once
	code    int
	err     error
}

func doLog(r io.Reader, w io.Writer) {
	// Gather stdout/stderr in chunks of lines
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 && w != nil {
			w.Write([]byte(line))
		}
		if err != nil {
			return
		}
	}
}

func newCmd(ctx context.Context, c *Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	setProcessGroup(cmd)
	return cmd
}

func (ExecSpawner) Spawn(c *Command) (Proc, error) {
	cmd := newCmd(context.Background(), c)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &execProc{cmd: cmd}
	p.readers.Add(2)
	go func() {
		doLog(stdout, c.Output)
		p.readers.Done()
	}()
	go func() {
		doLog(stderr, c.Output)
		p.readers.Done()
	}()
	return p, nil
}

func (p *execProc) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProc) Terminate() error {
	return terminateGroup(p.cmd.Process)
}

func (p *execProc) Kill() error {
	return killGroup(p.cmd.Process)
}

func (p *execProc) Wait() (int, error) {
	p.once.Do(func() {
		// Drain the pipes first; Wait closes them.
		p.readers.Wait()
		p.code, p.err = exitCode(p.cmd.Wait())
	})
	return p.code, p.err
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return -1, err
}

// runCommand runs c to completion, streaming its output.  The process
// group is killed if ctx is cancelled first.
func runCommand(ctx context.Context, c *Command) error {
	cmd := newCmd(ctx, c)
	cmd.Cancel = func() error {
		return killGroup(cmd.Process)
	}
	cmd.WaitDelay = 5 * time.Second
	if c.Output != nil {
		w := &lineWriter{w: c.Output}
		cmd.Stdout = w
		cmd.Stderr = w
		defer w.Flush()
	}
	return cmd.Run()
}

// lineWriter re-chunks arbitrary writes into whole lines.
type lineWriter struct {
	w   io.Writer
	buf []byte
	mx  sync.Mutex
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mx.Lock()
	defer lw.mx.Unlock()
	lw.buf = append(lw.buf, p...)
	for {
		i := bytes.IndexByte(lw.buf, '\n')
		if i < 0 {
			break
		}
		lw.w.Write(lw.buf[:i+1])
		lw.buf = lw.buf[i+1:]
	}
	return len(p), nil
}

func (lw *lineWriter) Flush() {
	lw.mx.Lock()
	defer lw.mx.Unlock()
	if len(lw.buf) != 0 {
		lw.w.Write(lw.buf)
		lw.buf = nil
	}
}
