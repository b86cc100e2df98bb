package connection

import (
	"golang.org/x/sys/unix"

	"github.com/ooScott/rct/mux"
)

// Send encodes id and payload as one frame (spec.md §4.3 "Outbound"):
// a 4-byte little-endian length prefix for 1+len(payload), then the id
// byte, then payload, queued as two writes exactly as the original's
// sendData issues the header and body as separate socket writes. Both must
// be accepted by the socket (or queued for later flush) for Send to
// return true.
func (c *Connection) Send(id uint8, payload []byte) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.emitError(ErrNotConnected)
		return false
	}

	bodyLen := 1 + len(payload)
	header := make([]byte, headerSize)
	putHeader(header, bodyLen)

	body := make([]byte, bodyLen)
	body[0] = id
	copy(body[1:], payload)

	c.writeMu.Lock()
	c.writeQueue = append(c.writeQueue, writeChunk{data: header}, writeChunk{data: body})
	c.pendingWrite += len(header) + len(body)
	c.writeMu.Unlock()

	return c.flushWrites()
}

// WriteAsync posts the Send onto the loop rather than invoking it inline —
// used to break recursion when a handler wants to reply from inside
// OnNewMessage dispatch (spec.md §4.3 "writeAsync").
func (c *Connection) WriteAsync(id uint8, payload []byte) {
	c.loop.Post(func() {
		c.Send(id, payload)
	})
}

// flushWrites attempts to drain the outbound queue non-blocking. It arms
// Write readiness on the loop's Mux when the socket can't take everything
// right now, and disarms it once the queue empties — the Go equivalent of
// SocketClient::writeMore's addFileDescriptor/removeFileDescriptor dance.
func (c *Connection) flushWrites() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	ok := true
	for len(c.writeQueue) > 0 {
		front := &c.writeQueue[0]
		n, err := unix.Write(c.fd, front.data[front.idx:])
		if n > 0 {
			front.idx += n
			written += n
			if front.idx == len(front.data) {
				c.writeQueue = c.writeQueue[1:]
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		ok = false
		c.emitError(ErrWriteFailed)
		c.writeQueue = nil
		break
	}

	if written > 0 {
		c.pendingWrite -= written
		if c.pendingWrite < 0 {
			c.pendingWrite = 0
		}
		if c.pendingWrite == 0 && c.OnSendFinished != nil {
			c.OnSendFinished(c)
		}
	}

	if len(c.writeQueue) > 0 {
		_ = c.loop.UpdateSocket(c.fd, mux.Read|mux.Write)
	} else {
		_ = c.loop.UpdateSocket(c.fd, mux.Read)
	}

	return ok
}
