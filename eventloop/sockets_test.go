package eventloop_test

import (
	"os"
	"testing"
	"time"

	"github.com/ooScott/rct/eventloop"
	"github.com/ooScott/rct/mux"
)

func TestRegisterSocketDeliversReadEvents(t *testing.T) {
	l := newTestLoop(t)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	got := make(chan []byte, 1)
	done := make(chan eventloop.Result, 1)
	go func() { done <- l.Exec(0) }()

	l.Post(func() {
		fd := int(r.Fd())
		_ = l.RegisterSocket(fd, mux.Read, func(fd int, fired mux.Mode) {
			buf := make([]byte, 64)
			n, _ := r.Read(buf)
			got <- buf[:n]
		})
	})

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case b := <-got:
		if string(b) != "hello" {
			t.Fatalf("expected 'hello', got %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read callback never fired")
	}

	l.Quit()
	<-done
}

func TestRegisterSocketDuplicateFails(t *testing.T) {
	l := newTestLoop(t)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	done := make(chan eventloop.Result, 1)
	go func() { done <- l.Exec(0) }()

	errCh := make(chan error, 1)
	l.Post(func() {
		fd := int(r.Fd())
		_ = l.RegisterSocket(fd, mux.Read, func(int, mux.Mode) {})
		errCh <- l.RegisterSocket(fd, mux.Read, func(int, mux.Mode) {})
	})

	select {
	case err := <-errCh:
		if err != eventloop.ErrAlreadySocketRegistered {
			t.Fatalf("expected ErrAlreadySocketRegistered, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never got duplicate-register result")
	}

	l.Quit()
	<-done
}
