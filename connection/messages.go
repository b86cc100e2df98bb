// Package connection implements the framed message transport of spec.md
// §4.3: a length-prefixed protocol layered over a connected stream socket,
// driven by an eventloop.Loop for readiness.
//
// Grounded on original_source/rct/Connection.cpp (decode state machine,
// sendData's two-write protocol, checkData) and
// original_source/src/SocketClient.cpp (non-blocking fd setup, the
// readyRead/bytesWritten/disconnected signal set that Connection subscribes
// to).
package connection

import "encoding/binary"

// FinishMessageID is the reserved message id recognized directly by
// Connection rather than handed to a Factory (spec.md §4.3 "Special
// message" / GLOSSARY "Frame"). Chosen as the distilled spec leaves the
// exact value implementation-defined; 0xFF keeps it out of the way of
// small sequential application ids.
const FinishMessageID uint8 = 0xFF

// Message is a decoded application payload. Factory implementations return
// concrete types satisfying this; Connection only needs the id back for
// bookkeeping and logging.
type Message interface {
	MessageID() uint8
}

// RawMessage is the Factory's fallback decoding: it carries the id and the
// undecoded payload bytes verbatim. Using this as the default Factory lets
// Connection round-trip arbitrary application protocols without requiring
// callers to register one.
type RawMessage struct {
	ID      uint8
	Payload []byte
}

// MessageID implements Message.
func (m *RawMessage) MessageID() uint8 { return m.ID }

// FinishMessage is the reserved empty-payload message that triggers
// Connection.finished instead of newMessage.
type FinishMessage struct{}

// MessageID implements Message.
func (FinishMessage) MessageID() uint8 { return FinishMessageID }

// Factory maps a decoded (id, payload) pair to a Message, the Go analogue
// of the original's Messages::create collaborator. A nil return means the
// frame is rejected; per DESIGN.md's Open Question (a) decision, a rejected
// frame is dropped and decoding continues at the next header without
// firing finished.
type Factory interface {
	Create(id uint8, payload []byte) Message
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(id uint8, payload []byte) Message

// Create implements Factory.
func (f FactoryFunc) Create(id uint8, payload []byte) Message { return f(id, payload) }

// DefaultFactory wraps every non-Finish frame in a RawMessage, never
// rejecting a frame. Used when the caller supplies no Factory.
var DefaultFactory Factory = FactoryFunc(func(id uint8, payload []byte) Message {
	return &RawMessage{ID: id, Payload: payload}
})

// putHeader encodes the 4-byte little-endian length prefix for a frame
// whose body (id + payload) is bodyLen bytes long.
func putHeader(buf []byte, bodyLen int) {
	binary.LittleEndian.PutUint32(buf, uint32(bodyLen))
}

func getHeader(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
