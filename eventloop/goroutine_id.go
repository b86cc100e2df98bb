package eventloop

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns a best-effort numeric fingerprint of the calling
// goroutine, parsed out of the runtime's own debug stack dump.
//
// The original rct EventLoop compares std::thread::id to reject mutation of
// loop-private state (sockets, timers, stop) from a foreign thread
// (spec.md §3 invariants, §7 *WrongThread*). Go exposes no supported
// goroutine-identity API; this is the one place in this module that reaches
// for an unsupported runtime trick rather than a library, because nothing in
// the retrieved corpus solves goroutine-identity and the stdlib deliberately
// doesn't either. It backs the loop-goroutine check (requireLoopGoroutine's
// ErrWrongGoroutine, and wakeIfForeign's decision whether to write the wake
// pipe) and the goroutine-keyed lookup in Current().
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	// "goroutine 123 [running]:\n..."
	const prefix = "goroutine "
	buf = bytes.TrimPrefix(buf, []byte(prefix))
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
