//go:build unix && !linux

// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

package mux

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// selectMux is the POSIX select(2) fallback used on non-Linux unix
// platforms, grounded on the original rct EventLoop's HAVE_SELECT branch
// (EventLoop.h): level-triggered only, so OneShot here is emulated by
// removing the fd from the registration set before dispatch — the caller
// must Add it again to re-arm, exactly as spec.md §4.1 describes for the
// level-triggered fallback.
type selectMux struct {
	mu   sync.Mutex
	regs map[int]*registration
}

type registration struct {
	mode Mode
	cb   Callback
}

// New constructs the select-based fallback Mux.
func New() (Mux, error) {
	return &selectMux{regs: make(map[int]*registration)}, nil
}

func (m *selectMux) Add(fd int, mode Mode, cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[fd]; ok {
		return ErrAlreadyRegistered
	}
	m.regs[fd] = &registration{mode: mode, cb: cb}
	return nil
}

func (m *selectMux) Modify(fd int, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[fd]
	if !ok {
		return fmt.Errorf("mux: modify unknown fd %d", fd)
	}
	reg.mode = mode
	return nil
}

func (m *selectMux) Remove(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regs, fd)
	return nil
}

func (m *selectMux) Wait(timeoutMs int) (int, error) {
	m.mu.Lock()
	var rfds, wfds unix.FdSet
	max := 0
	type pending struct {
		fd   int
		mode Mode
		cb   Callback
	}
	var watch []pending
	for fd, reg := range m.regs {
		if reg.mode&Read != 0 {
			fdSet(&rfds, fd)
		}
		if reg.mode&Write != 0 {
			fdSet(&wfds, fd)
		}
		if fd > max {
			max = fd
		}
		watch = append(watch, pending{fd, reg.mode, reg.cb})
	}
	m.mu.Unlock()

	var tv *unix.Timeval
	if timeoutMs >= 0 {
		t := unix.NsecToTimeval(int64(timeoutMs) * int64(1_000_000))
		tv = &t
	}

	n, err := unix.Select(max+1, &rfds, &wfds, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("mux: select: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	dispatched := 0
	for _, p := range watch {
		var fired Mode
		if p.mode&Read != 0 && fdIsSet(&rfds, p.fd) {
			fired |= Read
		}
		if p.mode&Write != 0 && fdIsSet(&wfds, p.fd) {
			fired |= Write
		}
		if fired == 0 {
			continue
		}
		if p.mode&OneShot != 0 {
			m.mu.Lock()
			delete(m.regs, p.fd)
			m.mu.Unlock()
		}
		p.cb(p.fd, fired)
		dispatched++
	}
	return dispatched, nil
}

func (m *selectMux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs = nil
	return nil
}

// fdSet/fdIsSet manipulate unix.FdSet.Bits directly: x/sys/unix exposes the
// raw word array but no bit helpers (unlike the C FD_SET/FD_ISSET macros).
// Bits is a fixed array of integer words whose width depends on the platform
// (int32 on darwin even on 64-bit, for example), so the bits per word are
// taken from the element type; len()*bits-per-word covers FD_SETSIZE file
// descriptors, which is ample for the pipes and sockets this mux ever watches.
const fdSetWordBits = 8 * unsafe.Sizeof(unix.FdSet{}.Bits[0])

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/int(fdSetWordBits)] |= 1 << (uint(fd) % uint(fdSetWordBits))
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/int(fdSetWordBits)]&(1<<(uint(fd)%uint(fdSetWordBits))) != 0
}
