//go:build linux

// Copyright (c) 2026
// Author: ooScott <ooscott@users.noreply.github.com>

package mux

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollMux is the Linux backend, grounded on the teacher's
// reactor/epoll_reactor.go and reactor/reactor_linux.go: edge-triggered by
// default (EPOLLET), OneShot disarms natively (EPOLLONESHOT) and must be
// re-armed by the caller via Add/Modify.
type epollMux struct {
	epfd int

	mu   sync.Mutex
	regs map[int]*registration
}

type registration struct {
	mode Mode
	cb   Callback
}

// New constructs the Linux epoll-backed Mux.
func New() (Mux, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("mux: epoll_create1: %w", err)
	}
	return &epollMux{epfd: epfd, regs: make(map[int]*registration)}, nil
}

func toEpollEvents(mode Mode) uint32 {
	var ev uint32
	if mode&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if mode&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	if mode&LevelTriggered == 0 {
		ev |= unix.EPOLLET
	}
	if mode&OneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

func (m *epollMux) Add(fd int, mode Mode, cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[fd]; ok {
		return ErrAlreadyRegistered
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(mode), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("mux: epoll_ctl add: %w", err)
	}
	m.regs[fd] = &registration{mode: mode, cb: cb}
	return nil
}

func (m *epollMux) Modify(fd int, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[fd]
	if !ok {
		return fmt.Errorf("mux: modify unknown fd %d", fd)
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(mode), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("mux: epoll_ctl mod: %w", err)
	}
	reg.mode = mode
	return nil
}

func (m *epollMux) Remove(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[fd]; !ok {
		return nil
	}
	delete(m.regs, fd)
	// EPOLL_CTL_DEL on an fd the kernel already closed returns EBADF; the
	// caller is expected to unregister before close, so treat failures here
	// as non-fatal bookkeeping noise.
	_ = unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (m *epollMux) Wait(timeoutMs int) (int, error) {
	const maxEvents = 256
	var raw [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(m.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("mux: epoll_wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)

		m.mu.Lock()
		reg, ok := m.regs[fd]
		m.mu.Unlock()
		if !ok {
			continue
		}

		var fired Mode
		if raw[i].Events&unix.EPOLLIN != 0 {
			fired |= Read
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			fired |= Write
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			fired |= Error
		}

		reg.cb(fd, fired)
		dispatched++
	}
	return dispatched, nil
}

func (m *epollMux) Close() error {
	return unix.Close(m.epfd)
}
