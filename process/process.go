// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

// Package process implements the subprocess supervisor of spec.md §4.4: a
// launcher that pipes a child's stdin/stdout/stderr through an
// eventloop.Loop (Async mode) or a private select loop (Sync mode), and
// reaps exits via the package-global child reaper (reaper.go).
//
// Grounded on original_source/rct/Process.cpp (startInternal, handleInput/
// handleOutput, the sync select loop, finish) with syscall.ForkExec
// (the standard library's syscall package) replacing the original's manual
// fork+dup2+execve/execv: Go cannot safely fork a multithreaded runtime by
// hand, and ForkExec's ProcAttr.Files is the idiomatic equivalent of the
// original's fd-0/1/2 dup2 dance (it's what os/exec itself builds on).
package process

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ooScott/rct/eventloop"
)

// Mode selects how a Process runs, mirroring the original's Process::Mode.
type Mode int

const (
	Sync Mode = iota
	Async
)

// Result is returned by Exec/Start, the Go analogue of Process::ExecState.
type Result int

const (
	Done Result = iota
	TimedOut
	Failed
)

// ExecFlags are bits accepted by Exec, mirroring the original's execFlags.
type ExecFlags uint32

const (
	NoFlags ExecFlags = 0
	// NoCloseStdIn keeps the parent's stdin-write pipe end open across a
	// sync Exec instead of closing it before entering the wait loop. The
	// original's sync default is to close stdin immediately; this flag
	// opts out so a caller that wants to keep writing to the child's
	// stdin while Exec's private select loop is still running can do so
	// (see SPEC_FULL.md "SUPPLEMENTED FEATURES").
	NoCloseStdIn ExecFlags = 1 << iota
)

const maxOutputBuffer = 16 * 1024 * 1024

// Process supervises one child program (spec.md §4.4's field list: pid,
// three pipe pairs plus a sync completion pipe, pending-write/accumulated-
// output buffer pairs, mode, mutex, exit code, cwd, error string).
type Process struct {
	loop *eventloop.Loop // nil for Sync processes: no loop is used at all
	log  zerolog.Logger

	mode Mode
	cwd  string

	mu          sync.Mutex
	pid         int // -1 until started, -1 again after reap
	returnCode  int
	errorString string

	stdinR, stdinW   int
	stdoutR, stdoutW int
	stderrR, stderrW int
	syncR, syncW     int

	stdinQueue *ringBuffer
	stdinCur   []byte
	stdinIdx   int

	stdoutBuf, stderrBuf []byte
	stdoutIdx, stderrIdx int

	// Signals — plain callback fields, the Go stand-in for the original's
	// Signal<> members (spec.md §4.2 field list: readyReadStdOut,
	// readyReadStdErr, finished).
	OnReadyReadStdOut func(p *Process)
	OnReadyReadStdErr func(p *Process)
	OnFinished        func(p *Process)
}

// NewAsyncProcess constructs a Process that integrates with loop: its
// stdout/stderr pipes are registered with loop for Read, and Write posts
// handleInput onto loop rather than running it inline (spec.md §4.4
// "Parent: ... in Async mode, register stdout/stderr with the loop for
// Read").
func NewAsyncProcess(loop *eventloop.Loop) *Process {
	return newProcess(Async, loop)
}

// NewSyncProcess constructs a Process whose Exec runs its own private
// select loop, independent of any eventloop.Loop (spec.md §5 "Sync Process
// exec suspends the calling thread inside its own select, independent of
// any loop").
func NewSyncProcess() *Process {
	return newProcess(Sync, nil)
}

func newProcess(mode Mode, loop *eventloop.Loop) *Process {
	p := &Process{
		loop:       loop,
		log:        log.Logger,
		mode:       mode,
		pid:        -1,
		stdinR:     -1,
		stdinW:     -1,
		stdoutR:    -1,
		stdoutW:    -1,
		stderrR:    -1,
		stderrW:    -1,
		syncR:      -1,
		syncW:      -1,
		stdinQueue: newRingBuffer(64),
	}
	return p
}

// SetCwd sets the child's working directory, used on the next Start/Exec.
func (p *Process) SetCwd(cwd string) { p.cwd = cwd }

// Pid returns the child's pid, or -1 if not started or already reaped.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// ReturnCode returns the child's exit code, valid after OnFinished fires.
func (p *Process) ReturnCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.returnCode
}

// ErrorString returns the last error description (e.g. "Command not
// found"), mirroring Process::errorString.
func (p *Process) ErrorString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorString
}

func (p *Process) setError(format string, args ...any) {
	p.mu.Lock()
	p.errorString = fmt.Sprintf(format, args...)
	p.mu.Unlock()
}

// Stop sends SIGTERM to the child, if still running. Does not wait (spec.md
// §4.4 "stop(): If pid != -1, send SIGTERM. Does not wait.").
func (p *Process) Stop() {
	pid := p.Pid()
	if pid == -1 {
		return
	}
	_ = signalProcess(pid)
}
