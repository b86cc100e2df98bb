package eventloop

import "github.com/ooScott/rct/mux"

// RegisterSocket registers fd with the loop's Mux under mode, invoking cb
// with the fired bits on every ready batch. Must be called from the loop's
// own goroutine (spec.md §4.2: "otherwise the call is a programming error").
func (l *Loop) RegisterSocket(fd int, mode mux.Mode, cb SocketCallback) error {
	if err := l.requireLoopGoroutine(); err != nil {
		return err
	}
	if _, exists := l.sockets[fd]; exists {
		return ErrAlreadySocketRegistered
	}
	reg := &socketReg{mode: mode, cb: cb}
	if err := l.mx.Add(fd, mode, func(fd int, fired mux.Mode) {
		l.fireSocket(fd, fired)
	}); err != nil {
		return err
	}
	l.sockets[fd] = reg
	return nil
}

// UpdateSocket changes the registered interest mode for fd.
func (l *Loop) UpdateSocket(fd int, mode mux.Mode) error {
	if err := l.requireLoopGoroutine(); err != nil {
		return err
	}
	reg, ok := l.sockets[fd]
	if !ok {
		return ErrUnknownSocket
	}
	if err := l.mx.Modify(fd, mode); err != nil {
		return err
	}
	reg.mode = mode
	return nil
}

// UnregisterSocket removes fd from the loop. Idempotent.
func (l *Loop) UnregisterSocket(fd int) error {
	if err := l.requireLoopGoroutine(); err != nil {
		return err
	}
	if _, ok := l.sockets[fd]; !ok {
		return nil
	}
	delete(l.sockets, fd)
	return l.mx.Remove(fd)
}

func (l *Loop) fireSocket(fd int, fired mux.Mode) {
	reg, ok := l.sockets[fd]
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Int("fd", fd).Msg("eventloop: socket callback panicked")
		}
	}()
	reg.cb(fd, fired)
}

// ProcessSocket performs a one-shot synchronous wait for events on a single
// fd (spec.md §4.2). It does not drain posted events or fire other timers;
// it is independent of Exec. The process package does not call it: a Sync
// Process runs its own select loop (process/sync_wait.go).
func (l *Loop) ProcessSocket(fd int, timeoutMs int) (mux.Mode, error) {
	fired := mux.Mode(0)
	tmp, err := mux.New()
	if err != nil {
		return 0, err
	}
	defer tmp.Close()

	reg, ok := l.sockets[fd]
	mode := mux.Read
	if ok {
		mode = reg.mode
	}
	if err := tmp.Add(fd, mode, func(_ int, m mux.Mode) { fired = m }); err != nil {
		return 0, err
	}
	if _, err := tmp.Wait(timeoutMs); err != nil {
		return 0, err
	}
	return fired, nil
}
