package eventloop

import "sync"

// mainLoop/mainMu hold the process-wide "main" loop slot (spec.md §3:
// "if Main, in a process-global weak slot"). Go lacks pre-1.24 weak
// pointers; this module emulates the "weak" intent by clearing the slot
// explicitly in Close rather than relying on GC finalization.
var (
	mainMu   sync.Mutex
	mainLoop *Loop

	currentMu sync.Mutex
	current   = make(map[uint64]*Loop) // goroutine id -> loop running Exec there
)

// MainLoop returns the process's main loop, or nil if none was constructed
// with MainEventLoop (or it has since been Closed).
func MainLoop() *Loop {
	mainMu.Lock()
	defer mainMu.Unlock()
	return mainLoop
}

// Current returns the Loop currently executing on the calling goroutine, or
// nil if the calling goroutine is not inside any Loop.Exec. This is the Go
// analogue of the original's per-thread "current loop" accessor
// (EventLoop::eventLoop()); nested Exec on the same goroutine is not
// supported, matching spec.md §9.
func Current() *Loop {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current[goroutineID()]
}

func (l *Loop) setCurrent() {
	currentMu.Lock()
	current[l.ownerGoroutine] = l
	currentMu.Unlock()
}

func (l *Loop) clearCurrent() {
	currentMu.Lock()
	delete(current, l.ownerGoroutine)
	currentMu.Unlock()
}

// Close releases the loop's Mux and wake pipe. It must be called after Exec
// has returned.
func (l *Loop) Close() error {
	mainMu.Lock()
	if mainLoop == l {
		mainLoop = nil
	}
	mainMu.Unlock()

	l.sigStopOnce.Do(func() { close(l.sigStop) })

	err := l.mx.Close()
	if cerr := l.wakeR.Close(); err == nil {
		err = cerr
	}
	if cerr := l.wakeW.Close(); err == nil {
		err = cerr
	}
	return err
}
