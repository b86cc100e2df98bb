//go:build unix

package process

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const fdSetWordBits = 8 * unsafe.Sizeof(unix.FdSet{}.Bits[0])

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/int(fdSetWordBits)] |= 1 << (uint(fd) % uint(fdSetWordBits))
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/int(fdSetWordBits)]&(1<<(uint(fd)%uint(fdSetWordBits))) != 0
}

// syncWait runs Process's private select loop (spec.md §4.4 "Sync wait
// loop"), entirely independent of any eventloop.Loop — grounded on
// Process::startInternal's Sync branch. It selects on stdout+stderr+the
// completion pipe for read and, if stdin is still open, on stdin for
// write (unconditionally, matching the original — a caller that keeps
// stdin open past the default close via NoCloseStdIn accepts that the
// loop will wake on every iteration stdin has kernel buffer room, since
// write-readiness isn't gated on whether anything is actually queued).
func (p *Process) syncWait(timeout time.Duration) Result {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		p.mu.Lock()
		stdoutFD, stderrFD, syncFD, stdinFD := p.stdoutR, p.stderrR, p.syncR, p.stdinW
		p.mu.Unlock()

		var rfds, wfds unix.FdSet
		max := 0
		if stdoutFD != -1 {
			fdSet(&rfds, stdoutFD)
			if stdoutFD > max {
				max = stdoutFD
			}
		}
		if stderrFD != -1 {
			fdSet(&rfds, stderrFD)
			if stderrFD > max {
				max = stderrFD
			}
		}
		if syncFD != -1 {
			fdSet(&rfds, syncFD)
			if syncFD > max {
				max = syncFD
			}
		}
		if stdinFD != -1 {
			fdSet(&wfds, stdinFD)
			if stdinFD > max {
				max = stdinFD
			}
		}

		var tv *unix.Timeval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				p.Stop()
				return TimedOut
			}
			t := unix.NsecToTimeval(remaining.Nanoseconds())
			tv = &t
		}

		n, err := unix.Select(max+1, &rfds, &wfds, nil, tv)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			// CloseStdIn may have closed stdin after the snapshot above;
			// take a fresh snapshot instead of failing.
			p.mu.Lock()
			stdinClosed := stdinFD != -1 && p.stdinW != stdinFD
			p.mu.Unlock()
			if stdinClosed {
				continue
			}
		}
		if err != nil {
			p.setError("Sync select failed: %v", err)
			return Failed
		}
		if n == 0 {
			// Timeout elapsed with nothing ready; re-check the deadline on
			// the next loop iteration (handles the tv==nil/no-timeout case
			// falling through here only if select itself returned early).
			continue
		}

		if stdoutFD != -1 && fdIsSet(&rfds, stdoutFD) {
			p.drainStdOut()
		}
		if stderrFD != -1 && fdIsSet(&rfds, stderrFD) {
			p.drainStdErr()
		}
		if stdinFD != -1 && fdIsSet(&wfds, stdinFD) {
			p.handleInput()
		}
		if syncFD != -1 && fdIsSet(&rfds, syncFD) {
			p.mu.Lock()
			p.handleOutputLocked(p.stdoutR, &p.stdoutBuf, &p.stdoutIdx)
			p.handleOutputLocked(p.stderrR, &p.stderrBuf, &p.stderrIdx)
			p.closeStdOutLocked()
			p.closeStdErrLocked()
			closeFD(&p.syncR)
			p.mu.Unlock()
			return Done
		}
	}
}
