package eventloop

import "time"

// Exec runs the scheduling loop described in spec.md §4.2 until Quit is
// called or timeout elapses (a non-positive timeout means "no outer
// bound"). Must be called on the goroutine that will own this Loop for the
// duration of the call; nested Exec on the same goroutine is not supported
// (spec.md §9).
func (l *Loop) Exec(timeout time.Duration) Result {
	l.mu.Lock()
	l.ownerGoroutine = goroutineID()
	l.execRunning = true
	l.timedOut = false
	l.mu.Unlock()
	l.setCurrent()
	defer func() {
		l.clearCurrent()
		l.mu.Lock()
		l.execRunning = false
		l.mu.Unlock()
	}()

	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}
	lastActivity := time.Now()

	for {
		l.drainPosted()

		l.mu.Lock()
		stop := l.stop
		l.mu.Unlock()
		if stop {
			return Success
		}

		now := time.Now()

		if hasDeadline && !now.Before(deadline) {
			l.mu.Lock()
			l.timedOut = true
			l.mu.Unlock()
			return Timeout
		}

		waitMs := -1
		if hasDeadline {
			waitMs = int(deadline.Sub(now) / time.Millisecond)
		}
		if when, ok := l.timers.nextDeadline(); ok {
			untilTimer := int(when.Sub(now) / time.Millisecond)
			if untilTimer < 0 {
				untilTimer = 0
			}
			if waitMs < 0 || untilTimer < waitMs {
				waitMs = untilTimer
			}
		}
		if l.inactivityTimeout > 0 {
			untilInactive := int(l.inactivityTimeout.Milliseconds()) - int(now.Sub(lastActivity)/time.Millisecond)
			if untilInactive <= 0 {
				l.mu.Lock()
				l.timedOut = true
				l.mu.Unlock()
				return Timeout
			}
			if waitMs < 0 || untilInactive < waitMs {
				waitMs = untilInactive
			}
		}
		if l.pendingPosted() {
			// A post raced in after drainPosted but before we blocked;
			// don't sleep past it.
			waitMs = 0
		}

		dispatched, err := l.mx.Wait(waitMs)
		if err != nil {
			l.log.Error().Err(err).Msg("eventloop: mux wait failed")
			return GeneralError
		}

		firedTimers := l.timers.drainDue(time.Now(), func(cb TimerCallback, id uint32) {
			l.safeExecTimer(cb, id)
		})

		if dispatched > 0 || firedTimers > 0 {
			lastActivity = time.Now()
		}
	}
}

func (l *Loop) safeExecTimer(cb TimerCallback, id uint32) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Uint32("timer_id", id).Msg("eventloop: timer callback panicked")
		}
	}()
	cb(id)
}

// Quit sets the stop flag and wakes the loop. It is level-triggered: the
// flag persists until the loop observes it, and Quit returns immediately
// without waiting for Exec to actually return (spec.md §5).
func (l *Loop) Quit() {
	l.mu.Lock()
	l.stop = true
	l.mu.Unlock()
	l.wakeup()
}

// TimedOut reports whether the most recent Exec call returned because of an
// outer or inactivity timeout.
func (l *Loop) TimedOut() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timedOut
}
