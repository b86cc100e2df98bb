package mux_test

import (
	"os"
	"testing"
	"time"

	"github.com/ooScott/rct/mux"
)

func TestWaitDeliversReadReadiness(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	m, err := mux.New()
	if err != nil {
		t.Fatalf("mux.New: %v", err)
	}
	defer m.Close()

	fired := make(chan mux.Mode, 1)
	fd := int(r.Fd())
	if err := m.Add(fd, mux.Read, func(_ int, mode mux.Mode) {
		fired <- mode
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := m.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", n)
	}

	select {
	case mode := <-fired:
		if mode&mux.Read == 0 {
			t.Fatalf("expected Read bit set, got %v", mode)
		}
	default:
		t.Fatal("callback was not invoked")
	}
}

func TestAddDuplicateFails(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	m, err := mux.New()
	if err != nil {
		t.Fatalf("mux.New: %v", err)
	}
	defer m.Close()

	fd := int(r.Fd())
	if err := m.Add(fd, mux.Read, func(int, mux.Mode) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(fd, mux.Read, func(int, mux.Mode) {}); err != mux.ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestWaitTimesOut(t *testing.T) {
	m, err := mux.New()
	if err != nil {
		t.Fatalf("mux.New: %v", err)
	}
	defer m.Close()

	start := time.Now()
	n, err := m.Wait(50)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 events on an empty mux, got %d", n)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("Wait returned suspiciously fast: %v", elapsed)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	m, err := mux.New()
	if err != nil {
		t.Fatalf("mux.New: %v", err)
	}
	defer m.Close()

	if err := m.Remove(999); err != nil {
		t.Fatalf("Remove of unknown fd should be a no-op, got %v", err)
	}
}
