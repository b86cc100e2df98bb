// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

// Package eventloop implements the per-thread(-goroutine) cooperative
// scheduler described in spec.md §3/§4.2: a Mux-driven readiness loop with a
// time-ordered timer set and a mutex-protected posted-callable queue that is
// the sole cross-goroutine entry point.
//
// Grounded on original_source/rct/EventLoop.h (field-for-field: sockets map,
// timersByTime/timersById, nextTimerId, eventPipe, stop/timeout flags, the
// Flag/Mode/exec-result enums) and on the teacher's
// core/concurrency/eventloop.go for idiomatic Go batching/shutdown shape.
package eventloop

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/ooScott/rct/mux"
)

// Flag is a bitset of loop-construction options, mirroring the original
// EventLoop::Flag.
type Flag uint32

const (
	None Flag = 0
	// MainEventLoop marks this as the process's one "main" loop — the only
	// one allowed to request signal handlers and the one returned by
	// MainLoop().
	MainEventLoop Flag = 1 << iota
	// EnableSigIntHandler quits this loop on SIGINT. Main loop only.
	EnableSigIntHandler
	// EnableSigTermHandler quits this loop on SIGTERM. Main loop only.
	EnableSigTermHandler
)

// Result is the bitset returned by Exec, mirroring EventLoop::{Success,
// GeneralError, Timeout}.
type Result uint32

const (
	Success      Result = 0x100
	GeneralError Result = 0x200
	Timeout      Result = 0x400
)

// SocketCallback is invoked with the fired mode bits for a registered fd.
type SocketCallback func(fd int, fired mux.Mode)

// Event is a posted callable — the Go analogue of the original's abstract
// Event::exec(). Posting a func value is the idiomatic Go replacement for
// the original's heap-allocated polymorphic Event/SignalEvent hierarchy.
type Event func()

type socketReg struct {
	mode mux.Mode
	cb   SocketCallback
}

// Loop is a single-goroutine cooperative scheduler. All loop-private state
// (sockets, timers, stop/timedOut) may only be touched from the goroutine
// that is inside Exec; posting and waking are the only sanctioned
// cross-goroutine operations (spec.md §3 invariants, §5).
type Loop struct {
	flags Flag
	log   zerolog.Logger

	// ownerGoroutine is set on Exec entry and cleared on exit; it is the Go
	// stand-in for the original's threadId.
	mu             sync.Mutex
	ownerGoroutine uint64
	execRunning    bool

	postedMu sync.Mutex
	posted   *queue.Queue

	wakeR, wakeW *os.File

	mx mux.Mux

	sockets map[int]*socketReg

	timers *timerSet

	stop      bool
	timedOut  bool
	inactivityTimeout time.Duration

	sigStop     chan struct{}
	sigStopOnce sync.Once
}

// New constructs a Loop with the given flags and installs its Mux. It does
// not start running — call Exec to enter the scheduling loop.
func New(flags Flag) (*Loop, error) {
	if flags&MainEventLoop == 0 && flags&(EnableSigIntHandler|EnableSigTermHandler) != 0 {
		return nil, ErrSignalHandlersNeedMain
	}
	if flags&MainEventLoop != 0 {
		mainMu.Lock()
		if mainLoop != nil {
			mainMu.Unlock()
			return nil, ErrMainLoopExists
		}
		mainMu.Unlock()
	}

	m, err := mux.New()
	if err != nil {
		return nil, fmt.Errorf("eventloop: %w", err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("eventloop: wake pipe: %w", err)
	}

	l := &Loop{
		flags:   flags,
		log:     log.Logger,
		posted:  queue.New(),
		wakeR:   r,
		wakeW:   w,
		mx:      m,
		sockets: make(map[int]*socketReg),
		timers:  newTimerSet(),
		sigStop: make(chan struct{}),
	}

	// The wake pipe's read end is always registered Read; its callback
	// drains and discards (spec.md §4.2 "Wakeup pipe").
	if err := m.Add(int(r.Fd()), mux.Read, l.drainWake); err != nil {
		_ = m.Close()
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("eventloop: register wake pipe: %w", err)
	}

	if flags&MainEventLoop != 0 {
		mainMu.Lock()
		mainLoop = l
		mainMu.Unlock()
	}

	if flags&(EnableSigIntHandler|EnableSigTermHandler) != 0 {
		l.installSignalHandlers()
	}

	return l, nil
}

func (l *Loop) drainWake(fd int, _ mux.Mode) {
	// r.Fd() in New put the descriptor into blocking mode; read it raw and
	// non-blocking so an emptied pipe ends the drain instead of blocking.
	_ = unix.SetNonblock(fd, true)
	var buf [256]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n == 0 || err != nil {
			return
		}
		if n < len(buf) {
			return
		}
	}
}

// Flags returns the flags this loop was constructed with.
func (l *Loop) Flags() Flag { return l.flags }

// SetInactivityTimeout sets the duration of socket/timer silence after which
// Exec returns Timeout. Per spec.md §3, changes made while the loop is
// already running may not be honored until the next Exec call.
func (l *Loop) SetInactivityTimeout(d time.Duration) {
	l.inactivityTimeout = d
}

// onLoopGoroutine reports whether the calling goroutine is the one currently
// inside Exec (or no Exec is running yet, in which case mutation is allowed —
// this mirrors construction-time setup in the original before the loop
// thread is established).
func (l *Loop) onLoopGoroutine() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.execRunning {
		return true
	}
	return goroutineID() == l.ownerGoroutine
}

// requireLoopGoroutine enforces spec.md §3's invariant that loop-private
// state is only touched on the loop's own goroutine.
func (l *Loop) requireLoopGoroutine() error {
	if !l.onLoopGoroutine() {
		return ErrWrongGoroutine
	}
	return nil
}
