//go:build unix

// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

package process

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// reaper is the single package-wide SIGCHLD watcher (spec.md §4.5 "Child
// reaper"): one goroutine, started lazily on first use, owns the pid table
// and scans every tracked pid with a non-blocking Wait4 on each wakeup
// rather than trusting the signal to carry which pid exited (POSIX makes no
// such guarantee once signals coalesce). Grounded on
// original_source/rct/Process.cpp's ProcessThread (a dedicated
// SIGCHLD-handling thread using sigwait+waitpid) translated to Go's
// os/signal.Notify channel idiom.
type reaper struct {
	mu      sync.Mutex
	tracked map[int]*Process
	ch      chan os.Signal
}

var globalReaper = &reaper{
	tracked: make(map[int]*Process),
}

var reaperOnce sync.Once

func ensureReaperStarted() {
	reaperOnce.Do(func() {
		globalReaper.ch = make(chan os.Signal, 16)
		signal.Notify(globalReaper.ch, unix.SIGCHLD)
		go globalReaper.run()
	})
}

func (r *reaper) run() {
	for range r.ch {
		r.reapAll()
	}
}

func (r *reaper) reapAll() {
	r.mu.Lock()
	pids := make([]int, 0, len(r.tracked))
	for pid := range r.tracked {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	for _, pid := range pids {
		var status unix.WaitStatus
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if err != nil || wpid != pid {
			continue // still running, or already reaped by someone else
		}

		r.mu.Lock()
		p, ok := r.tracked[pid]
		if ok {
			delete(r.tracked, pid)
		}
		r.mu.Unlock()
		if !ok {
			continue
		}

		code := -1
		switch {
		case status.Exited():
			code = status.ExitStatus()
		case status.Signaled():
			code = -int(status.Signal())
		}
		p.finish(code)
	}
}

// registerPid tracks pid as belonging to p and starts the reaper goroutine
// if this is the first Process the package has ever launched.
func registerPid(pid int, p *Process) {
	ensureReaperStarted()
	globalReaper.mu.Lock()
	globalReaper.tracked[pid] = p
	globalReaper.mu.Unlock()
}

// finish runs once, when the reaper observes pid's exit. For an Async
// process it must run on the owning loop's goroutine, since it tears down
// loop-registered sockets (closeStdOutLocked/closeStdErrLocked call
// loop.UnregisterSocket, which fails with ErrWrongGoroutine off-goroutine
// and leaves the fd registered); for a Sync process it
// runs directly on the reaper goroutine, since Sync's fields are reached
// only through p.mu and the sync completion pipe, never the loop.
func (p *Process) finish(code int) {
	if p.mode == Async {
		p.loop.Post(func() { p.finishLocked(code) })
		return
	}
	p.finishLocked(code)
}

// finishLocked mirrors spec.md §4.4's Finish step: sets pid=-1, stores the
// return code, drains and closes stdout/stderr for Async (there is no other
// goroutine that will ever do it), or just signals the completion pipe for
// Sync (syncWait owns the final drain once it observes that pipe readable —
// doing it here too would race with it), then fires OnFinished. Unlike the
// original's Process::finish (which only ever signals mFinished on the
// Async path, and fires the ready-read signals for its final drain while
// still holding the lock), the distilled spec states plainly that "finished
// fires exactly once" regardless of mode — and firing any callback while
// holding p.mu risks deadlock the instant it calls back into a p.mu-guarded
// accessor, since sync.Mutex isn't reentrant. So every user callback here
// is captured under the lock and invoked only after it's released, ready-
// read first so the final chunk is visible by the time OnFinished runs.
func (p *Process) finishLocked(code int) {
	p.mu.Lock()
	p.returnCode = code
	p.pid = -1
	p.closeStdInLocked()

	var stdoutTotal, stderrTotal int
	if p.mode == Async {
		stdoutTotal = p.handleOutputLocked(p.stdoutR, &p.stdoutBuf, &p.stdoutIdx)
		stderrTotal = p.handleOutputLocked(p.stderrR, &p.stderrBuf, &p.stderrIdx)
		p.closeStdOutLocked()
		p.closeStdErrLocked()
	} else if p.syncW != -1 {
		var q [1]byte
		q[0] = 'q'
		_, _ = unix.Write(p.syncW, q[:])
		closeFD(&p.syncW)
	}

	onStdOut, onStdErr, onFinished := p.OnReadyReadStdOut, p.OnReadyReadStdErr, p.OnFinished
	p.mu.Unlock()

	if stdoutTotal > 0 && onStdOut != nil {
		onStdOut(p)
	}
	if stderrTotal > 0 && onStdErr != nil {
		onStdErr(p)
	}
	if onFinished != nil {
		onFinished(p)
	}
}

// Shutdown sends SIGTERM to every child the reaper still tracks. It does
// not wait for them, does not remove them from the table, and does not stop
// the reaper goroutine: that goroutine keeps running, so the children's
// exits are still reaped and reported through finish. Supplemented per
// SPEC_FULL.md in place of the original's static ProcessThreadKiller
// destructor — Go has no static-destructor equivalent, so an embedding
// program calls Shutdown from its own shutdown sequence instead.
func Shutdown() {
	globalReaper.mu.Lock()
	defer globalReaper.mu.Unlock()
	for pid := range globalReaper.tracked {
		_ = signalProcess(pid)
	}
}
