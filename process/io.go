//go:build unix

package process

import (
	"golang.org/x/sys/unix"

	"github.com/ooScott/rct/mux"
)

// Write queues data for the child's stdin and schedules a drain attempt.
// Safe to call from any goroutine (spec.md §4.4 "Input buffering"): data is
// pushed onto the MPMC ring (ring.go), and handleInput — guarded throughout
// by p.mu — is invoked via Post for Async processes, since it may touch the
// owning loop (RegisterSocket/UnregisterSocket, which require the loop's own
// goroutine). Sync processes have no loop to protect, so handleInput runs
// inline; p.mu still serializes it against syncWait's own calls on the
// private select loop's goroutine.
func (p *Process) Write(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	p.mu.Lock()
	closed := p.stdinW == -1
	p.mu.Unlock()
	if closed {
		return false
	}
	chunk := append([]byte(nil), data...)
	if !p.stdinQueue.Enqueue(chunk) {
		return false
	}
	if p.mode == Async {
		p.loop.Post(p.handleInput)
	} else {
		p.handleInput()
	}
	return true
}

// handleInput drains the pending stdin chunk queue onto the child's stdin,
// non-blocking. Grounded on Process::handleInput: unregister write
// interest up front, try to write the current front chunk (or the next
// dequeued one) until the ring is empty or the socket would block, at
// which point write interest is re-armed and the loop returns. Mirrors the
// original's choice to re-arm on ANY write failure rather than only EAGAIN.
func (p *Process) handleInput() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fd := p.stdinW
	if fd == -1 {
		return
	}
	if p.mode == Async {
		_ = p.loop.UnregisterSocket(fd)
	}

	for {
		if p.stdinCur == nil {
			chunk, ok := p.stdinQueue.Dequeue()
			if !ok {
				return // queue drained; write interest stays unregistered
			}
			p.stdinCur = chunk
			p.stdinIdx = 0
		}

		n, err := unix.Write(fd, p.stdinCur[p.stdinIdx:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if p.mode == Async {
				_ = p.loop.RegisterSocket(fd, mux.Write, func(fd int, fired mux.Mode) { p.onOutputReadable(fd, fired) })
			}
			return
		}
		p.stdinIdx += n
		if p.stdinIdx == len(p.stdinCur) {
			p.stdinCur = nil
			p.stdinIdx = 0
		}
	}
}

const handleOutputBufSize = 1024

// handleOutputLocked reads fd until EAGAIN/EOF/error, appending to *buf
// (compacting the consumed prefix above maxOutputBuffer, dropping the
// buffer entirely if compaction isn't enough), and returns the total bytes
// read. Caller must hold p.mu. Grounded on Process::handleOutput.
func (p *Process) handleOutputLocked(fd int, buf *[]byte, idx *int) int {
	if fd == -1 {
		return 0
	}
	var tmp [handleOutputBufSize]byte
	total := 0
	for {
		n, err := unix.Read(fd, tmp[:])
		if n > 0 {
			sz := len(*buf)
			if sz+n > maxOutputBuffer {
				if sz+n-*idx > maxOutputBuffer {
					p.log.Warn().Msg("process: output buffer too big, dropping data")
					*buf = nil
					*idx = 0
					sz = 0
				} else {
					remaining := append([]byte(nil), (*buf)[*idx:]...)
					*buf = remaining
					*idx = 0
					sz = len(remaining)
				}
			}
			*buf = append(*buf, tmp[:n]...)
			total += n
			continue
		}
		if n == 0 {
			if p.mode == Async {
				_ = p.loop.UnregisterSocket(fd)
			}
			break
		}
		if err == unix.EINTR {
			continue
		}
		break // EAGAIN or hard error: stop for now
	}
	return total
}

// onOutputReadable is the loop callback registered for stdout/stderr (and,
// transiently, stdin-write) readiness, the Go analogue of
// Process::processCallback.
func (p *Process) onOutputReadable(fd int, fired mux.Mode) {
	if fired&mux.Error != 0 {
		return
	}
	p.mu.Lock()
	isStdin := fd == p.stdinW
	isStdout := fd == p.stdoutR
	isStderr := fd == p.stderrR
	p.mu.Unlock()

	switch {
	case isStdin:
		p.handleInput()
	case isStdout:
		p.drainStdOut()
	case isStderr:
		p.drainStdErr()
	}
}

func (p *Process) drainStdOut() {
	p.mu.Lock()
	total := p.handleOutputLocked(p.stdoutR, &p.stdoutBuf, &p.stdoutIdx)
	cb := p.OnReadyReadStdOut
	p.mu.Unlock()
	if total > 0 && cb != nil {
		cb(p)
	}
}

func (p *Process) drainStdErr() {
	p.mu.Lock()
	total := p.handleOutputLocked(p.stderrR, &p.stderrBuf, &p.stderrIdx)
	cb := p.OnReadyReadStdErr
	p.mu.Unlock()
	if total > 0 && cb != nil {
		cb(p)
	}
}

// ReadAllStdOut atomically swaps out and returns the accumulated stdout
// buffer, resetting its read index (spec.md §4.4 "readAllStdOut... swap the
// buffer out and reset the index to 0").
func (p *Process) ReadAllStdOut() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stdoutBuf
	p.stdoutBuf = nil
	p.stdoutIdx = 0
	return out
}

// ReadAllStdErr is ReadAllStdOut's stderr counterpart.
func (p *Process) ReadAllStdErr() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stderrBuf
	p.stderrBuf = nil
	p.stderrIdx = 0
	return out
}

func (p *Process) closeStdIn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeStdInLocked()
}

// CloseStdIn closes the write end of the child's stdin, signalling EOF to
// it. Safe to call from any goroutine at any time; a no-op once already
// closed. Async processes touch the loop while closing, so the actual work
// is posted onto the owning goroutine, same as Write/handleInput.
func (p *Process) CloseStdIn() {
	if p.mode == Async {
		p.loop.Post(p.closeStdIn)
		return
	}
	p.closeStdIn()
}

func (p *Process) closeStdInLocked() {
	if p.stdinW == -1 {
		return
	}
	if p.mode == Async {
		_ = p.loop.UnregisterSocket(p.stdinW)
	}
	closeFD(&p.stdinW)
}

func (p *Process) closeStdOutLocked() {
	if p.stdoutR == -1 {
		return
	}
	if p.mode == Async {
		_ = p.loop.UnregisterSocket(p.stdoutR)
	}
	closeFD(&p.stdoutR)
}

func (p *Process) closeStdErrLocked() {
	if p.stderrR == -1 {
		return
	}
	if p.mode == Async {
		_ = p.loop.UnregisterSocket(p.stderrR)
	}
	closeFD(&p.stderrR)
}
