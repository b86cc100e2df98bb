//go:build unix

// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

package connection

import (
	"fmt"
	"net"
	"syscall"
)

// extractFD pulls the raw file descriptor out of a net.Conn, the pattern
// grounded on the teacher's examples/reactor_echo/main.go getFD helper.
// Once extracted, Connection talks to the fd exclusively through raw
// golang.org/x/sys/unix syscalls — it never calls conn.Read/Write again,
// since those would race the fd's registration with this package's own
// Mux (the teacher's reactor example does the same: net.Listen only to get
// an fd, then raw syscall.Read/Write for all I/O).
func extractFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("connection: %T does not expose a raw fd", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}
