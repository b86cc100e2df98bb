package eventloop

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Post appends ev to the posted queue and wakes the loop if necessary.
// Thread-safe, O(1) amortized; the sole sanctioned way to reach into a Loop
// from a goroutine other than the one running Exec (spec.md §3, §4.2).
//
// posted uses github.com/eapache/queue (a plain FIFO ring buffer) guarded by
// a mutex, exactly matching the original's "std::queue<Event*> events"
// protected by a mutex (EventLoop.h) — eapache/queue was present in the
// teacher's go.mod but exercised by none of its own files; this is where it
// finally earns its keep.
func (l *Loop) Post(ev Event) {
	l.postedMu.Lock()
	l.posted.Add(ev)
	l.postedMu.Unlock()
	l.wakeIfForeign()
}

// CallLater is an alias for Post: the original distinguishes post/postMove/
// callLater only by C++ move-semantics on the bound arguments, a distinction
// Go's closures make moot. All three collapse to Post here.
func (l *Loop) CallLater(ev Event) { l.Post(ev) }

func (l *Loop) wakeIfForeign() {
	if l.onLoopGoroutine() {
		// The loop will drain `posted` at the top of its next iteration
		// regardless; no need to interrupt a Wait it isn't blocked in.
		return
	}
	l.wakeup()
}

// wakeup unblocks a Mux.Wait blocked in another goroutine by writing one
// byte to the wake pipe. Non-blocking: a pending unread byte already
// guarantees the next Wait will return promptly, so EAGAIN here is not an
// error.
func (l *Loop) wakeup() {
	var b [1]byte
	for {
		_, err := l.wakeW.Write(b[:])
		if err == nil {
			return
		}
		if err == syscall.EINTR {
			continue
		}
		if err == syscall.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		return
	}
}

// drainPosted pops up to the queue length observed at entry (a snapshot,
// not the live length) and execs each popped event — this bounds one
// iteration's posted-event work even if a callback re-posts, preventing
// livelock (spec.md §4.2 step 1).
func (l *Loop) drainPosted() {
	l.postedMu.Lock()
	n := l.posted.Length()
	batch := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, l.posted.Remove().(Event))
	}
	l.postedMu.Unlock()

	for _, ev := range batch {
		l.safeExec(ev)
	}
}

// safeExec runs a posted event, logging and swallowing panics: spec.md §7
// ("Posted-event failures are logged and swallowed — the loop must
// continue").
func (l *Loop) safeExec(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("eventloop: posted event panicked")
		}
	}()
	ev()
}

// pendingPosted reports whether any posted events are currently queued.
func (l *Loop) pendingPosted() bool {
	l.postedMu.Lock()
	defer l.postedMu.Unlock()
	return l.posted.Length() > 0
}
