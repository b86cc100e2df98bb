package eventloop

import (
	"os"
	"os/signal"
	"syscall"
)

// installSignalHandlers wires SIGINT/SIGTERM to Quit for the main loop, per
// spec.md §4.2/§6. Only ever called from New when MainEventLoop plus at
// least one of EnableSigIntHandler/EnableSigTermHandler was requested
// (enforced in New: ErrSignalHandlersNeedMain otherwise).
//
// Go's os/signal.Notify is the idiomatic substitute for the original's raw
// signal()+self-pipe pairing (Thread.cpp/Process.cpp use the same self-pipe
// trick for SIGCHLD): the Go runtime already funnels delivered signals
// through its own internal non-blocking notification path before handing
// them to this channel, so the handler body here does no more work than the
// original's async-signal-safe handler did — it just calls Quit.
func (l *Loop) installSignalHandlers() {
	var sigs []os.Signal
	if l.flags&EnableSigIntHandler != 0 {
		sigs = append(sigs, syscall.SIGINT)
	}
	if l.flags&EnableSigTermHandler != 0 {
		sigs = append(sigs, syscall.SIGTERM)
	}
	if len(sigs) == 0 {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		for {
			select {
			case <-ch:
				l.Quit()
			case <-l.sigStop:
				signal.Stop(ch)
				return
			}
		}
	}()
}
