package connection

import (
	"testing"

	"github.com/rs/zerolog"
)

func newBareConnection() *Connection {
	return &Connection{
		log:     zerolog.Nop(),
		factory: DefaultFactory,
	}
}

// TestDecodeAcrossArbitraryFragments feeds a single well-formed frame split
// at every possible byte boundary and checks that newMessage fires exactly
// once with the original payload intact (spec.md §8: "For all byte
// splittings of a well-formed sequence of frames fed to Connection,
// newMessage is emitted exactly once per frame, in order, with payload
// bytes identical to those enqueued by the sender").
func TestDecodeAcrossArbitraryFragments(t *testing.T) {
	id := uint8(9)
	payload := []byte("the quick brown fox")
	body := append([]byte{id}, payload...)
	header := make([]byte, headerSize)
	putHeader(header, len(body))
	frame := append(header, body...)

	for split := 0; split <= len(frame); split++ {
		c := newBareConnection()
		var got *RawMessage
		c.OnNewMessage = func(msg Message, conn *Connection) {
			got = msg.(*RawMessage)
		}

		first, second := frame[:split], frame[split:]
		if len(first) > 0 {
			c.inbound = append(c.inbound, append([]byte(nil), first...))
		}
		c.decodeLoop()
		if got != nil && split != len(frame) {
			t.Fatalf("split=%d: newMessage fired before the frame was complete", split)
		}
		if len(second) > 0 {
			c.inbound = append(c.inbound, append([]byte(nil), second...))
		}
		c.decodeLoop()

		if got == nil {
			t.Fatalf("split=%d: newMessage never fired", split)
		}
		if got.ID != id {
			t.Fatalf("split=%d: expected id %d, got %d", split, id, got.ID)
		}
		if string(got.Payload) != string(payload) {
			t.Fatalf("split=%d: expected payload %q, got %q", split, payload, got.Payload)
		}
	}
}

// TestDecodeMultipleFramesInOrder checks that two back-to-back frames
// arriving in one chunk both fire, in order.
func TestDecodeMultipleFramesInOrder(t *testing.T) {
	frame := func(id uint8, payload string) []byte {
		body := append([]byte{id}, []byte(payload)...)
		hdr := make([]byte, headerSize)
		putHeader(hdr, len(body))
		return append(hdr, body...)
	}

	var all []byte
	all = append(all, frame(1, "one")...)
	all = append(all, frame(2, "two")...)

	c := newBareConnection()
	var order []uint8
	var payloads []string
	c.OnNewMessage = func(msg Message, conn *Connection) {
		raw := msg.(*RawMessage)
		order = append(order, raw.ID)
		payloads = append(payloads, string(raw.Payload))
	}

	c.inbound = append(c.inbound, all)
	c.decodeLoop()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected ids [1 2] in order, got %v", order)
	}
	if payloads[0] != "one" || payloads[1] != "two" {
		t.Fatalf("unexpected payloads: %v", payloads)
	}
}

// TestFinishMessageBypassesFactory checks that the reserved Finish id fires
// OnFinished instead of OnNewMessage, and that a Factory that always
// rejects still lets Finish through (spec.md §4.3 "Special message").
func TestFinishMessageBypassesFactory(t *testing.T) {
	c := newBareConnection()
	c.factory = FactoryFunc(func(id uint8, payload []byte) Message { return nil })

	finished := false
	c.OnFinished = func(conn *Connection) { finished = true }
	c.OnNewMessage = func(msg Message, conn *Connection) {
		t.Fatal("OnNewMessage should not fire for the Finish id")
	}

	body := []byte{FinishMessageID}
	hdr := make([]byte, headerSize)
	putHeader(hdr, len(body))
	c.inbound = append(c.inbound, append(hdr, body...))
	c.decodeLoop()

	if !finished {
		t.Fatal("OnFinished never fired")
	}
}

// TestRejectedFrameIsDroppedAndDecodingContinues covers Open Question (a):
// a Factory rejection drops the frame and decoding resumes at the next
// header without firing OnFinished.
func TestRejectedFrameIsDroppedAndDecodingContinues(t *testing.T) {
	reject := true
	c := newBareConnection()
	c.factory = FactoryFunc(func(id uint8, payload []byte) Message {
		if reject {
			return nil
		}
		return &RawMessage{ID: id, Payload: payload}
	})

	frame := func(id uint8, payload string) []byte {
		body := append([]byte{id}, []byte(payload)...)
		hdr := make([]byte, headerSize)
		putHeader(hdr, len(body))
		return append(hdr, body...)
	}

	var got *RawMessage
	finished := false
	c.OnFinished = func(conn *Connection) { finished = true }
	c.OnNewMessage = func(msg Message, conn *Connection) { got = msg.(*RawMessage) }

	c.inbound = append(c.inbound, frame(5, "dropped"))
	c.decodeLoop()
	if got != nil || finished {
		t.Fatal("rejected frame should not fire newMessage or finished")
	}

	reject = false
	c.inbound = append(c.inbound, frame(6, "kept"))
	c.decodeLoop()
	if got == nil || got.ID != 6 {
		t.Fatalf("expected the next frame to decode normally, got %v", got)
	}
}

func TestBufferReadPeelsAndTrimsChunks(t *testing.T) {
	bufs := [][]byte{[]byte("abc"), []byte("defgh"), []byte("ij")}
	out := make([]byte, 6)
	bufs, n := bufferRead(bufs, out, 6)
	if n != 6 || string(out) != "abcdef" {
		t.Fatalf("unexpected read: n=%d out=%q", n, out)
	}
	if bufferSize(bufs) != 4 {
		t.Fatalf("expected 4 bytes remaining, got %d (%v)", bufferSize(bufs), bufs)
	}
	if string(bufs[0]) != "gh" {
		t.Fatalf("expected trimmed front chunk %q, got %q", "gh", bufs[0])
	}
}
