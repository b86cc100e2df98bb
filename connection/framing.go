package connection

import (
	"golang.org/x/sys/unix"

	"github.com/ooScott/rct/mux"
)

const headerSize = 4

// bufferSize sums the bytes remaining across all pending inbound chunks,
// grounded on Connection.cpp's static bufferSize helper.
func bufferSize(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// bufferRead copies up to size bytes out of bufs into out, consuming
// (and, for a partially taken chunk, shrinking in place) the fronts of
// bufs as it goes. Grounded on Connection.cpp's static bufferRead, which
// peels fully-consumed buffers off the front of the list and trims a
// partially-consumed one rather than copying the whole backlog on every
// call.
func bufferRead(bufs [][]byte, out []byte, size int) ([][]byte, int) {
	if size == 0 {
		return bufs, 0
	}
	num, rem := 0, size
	for len(bufs) > 0 && rem > 0 {
		front := bufs[0]
		cur := len(front)
		if cur > rem {
			cur = rem
		}
		copy(out[num:num+cur], front[:cur])
		rem -= cur
		num += cur
		if cur == len(front) {
			bufs = bufs[1:]
		} else {
			bufs[0] = front[cur:]
		}
	}
	return bufs, num
}

// onReadable is the loop callback registered for the connection's fd. It
// drains everything currently available, non-blocking, and feeds it into
// the frame decoder.
func (c *Connection) onReadable(fd int, fired mux.Mode) {
	if fired&mux.Write != 0 {
		c.flushWrites()
	}
	if fired&mux.Read == 0 && fired&mux.Error == 0 {
		return
	}
	c.readAvailable()
}

// readAvailable drains the socket non-blocking until it would block, a
// disconnected peer is detected, or a hard error occurs, appending whatever
// arrived to inbound and then running the decoder.
func (c *Connection) readAvailable() {
	disconnected := false
readLoop:
	for {
		buf := defaultBufPool.Get(4096)
		n, err := unix.Read(c.fd, buf)
		switch {
		case n > 0:
			// Copy into a right-sized chunk before queuing: the pooled
			// buffer is reused on the next iteration.
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			defaultBufPool.Put(buf)
			c.mu.Lock()
			c.inbound = append(c.inbound, chunk)
			c.mu.Unlock()
			if n < len(buf) {
				// Short read: nothing more buffered right now.
				break readLoop
			}
		case n == 0:
			defaultBufPool.Put(buf)
			disconnected = true
			break readLoop
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			defaultBufPool.Put(buf)
			break readLoop
		case err == unix.EINTR:
			defaultBufPool.Put(buf)
			continue
		default:
			defaultBufPool.Put(buf)
			c.emitError(ErrReadFailed)
			disconnected = true
			break readLoop
		}
	}
	c.decodeLoop()
	if disconnected {
		_ = c.Close()
	}
}

// decodeLoop peels whole frames off the front of inbound, dispatching each
// to the Factory (or finished, for the reserved id) until fewer than a full
// frame remains. Grounded on Connection::onDataAvailable.
func (c *Connection) decodeLoop() {
	for {
		c.mu.Lock()
		available := bufferSize(c.inbound)
		if available == 0 {
			c.mu.Unlock()
			return
		}
		if c.pendingRead == 0 {
			if available < headerSize {
				c.mu.Unlock()
				return
			}
			var hdr [headerSize]byte
			bufs, _ := bufferRead(c.inbound, hdr[:], headerSize)
			c.inbound = bufs
			c.pendingRead = int(getHeader(hdr[:]))
			available -= headerSize
		}
		if available < c.pendingRead {
			c.mu.Unlock()
			return
		}
		body := make([]byte, c.pendingRead)
		bufs, n := bufferRead(c.inbound, body, c.pendingRead)
		c.inbound = bufs
		body = body[:n]
		c.pendingRead = 0
		c.mu.Unlock()

		c.dispatchFrame(body)
	}
}

// dispatchFrame interprets one decoded frame body (id byte + payload) and
// fires the appropriate signal.
func (c *Connection) dispatchFrame(body []byte) {
	if len(body) == 0 {
		c.log.Warn().Msg("connection: empty frame body, dropping")
		return
	}
	id := body[0]
	payload := body[1:]

	if id == FinishMessageID {
		if c.OnFinished != nil {
			c.OnFinished(c)
		}
		return
	}

	msg := c.factory.Create(id, payload)
	if msg == nil {
		// Open Question (a): a rejected frame is dropped, decoding
		// continues, finished does not fire.
		c.log.Warn().Uint8("id", id).Msg("connection: factory rejected frame")
		return
	}
	if c.OnNewMessage != nil {
		c.OnNewMessage(msg, c)
	}
}
