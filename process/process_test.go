package process_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/ooScott/rct/eventloop"
	"github.com/ooScott/rct/process"
)

func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l, err := eventloop.New(eventloop.None)
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	return l
}

func TestSyncExecCapturesStdout(t *testing.T) {
	p := process.NewSyncProcess()
	result := p.Exec("/bin/echo", []string{"hello", "world"}, nil, 5*time.Second, process.NoFlags)
	if result != process.Done {
		t.Fatalf("expected Done, got %v (error=%q)", result, p.ErrorString())
	}
	if p.ReturnCode() != 0 {
		t.Fatalf("expected return code 0, got %d", p.ReturnCode())
	}
	out := p.ReadAllStdOut()
	if !bytes.Equal(out, []byte("hello world\n")) {
		t.Fatalf("unexpected stdout: %q", out)
	}
}

func TestSyncExecCommandNotFound(t *testing.T) {
	p := process.NewSyncProcess()
	result := p.Exec("this-command-does-not-exist-anywhere", nil, nil, time.Second, process.NoFlags)
	if result != process.Failed {
		t.Fatalf("expected Failed, got %v", result)
	}
	if p.ErrorString() == "" {
		t.Fatal("expected a non-empty error string")
	}
}

func TestSyncExecEchoesStdinWithNoCloseStdIn(t *testing.T) {
	p := process.NewSyncProcess()
	done := make(chan process.Result, 1)
	go func() {
		done <- p.Exec("/bin/cat", nil, nil, 5*time.Second, process.NoCloseStdIn)
	}()

	// Give cat a moment to start before we feed it, then close stdin
	// ourselves so it sees EOF and exits.
	time.Sleep(50 * time.Millisecond)
	if !p.Write([]byte("ping")) {
		t.Fatal("write returned false")
	}
	time.Sleep(50 * time.Millisecond)
	p.CloseStdIn()

	select {
	case result := <-done:
		if result != process.Done {
			t.Fatalf("expected Done, got %v (error=%q)", result, p.ErrorString())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exec never returned")
	}
	if got := p.ReadAllStdOut(); string(got) != "ping" {
		t.Fatalf("expected echoed stdin %q, got %q", "ping", got)
	}
}

func TestAsyncStartFiresOnFinished(t *testing.T) {
	loop := newTestLoop(t)
	done := make(chan eventloop.Result, 1)
	go func() { done <- loop.Exec(0) }()
	defer func() {
		loop.Quit()
		<-done
	}()

	p := process.NewAsyncProcess(loop)
	finished := make(chan struct{})
	var stdout []byte
	loop.Post(func() {
		p.OnReadyReadStdOut = func(pr *process.Process) {
			stdout = append(stdout, pr.ReadAllStdOut()...)
		}
		p.OnFinished = func(pr *process.Process) {
			close(finished)
		}
		if result := p.Start("/bin/echo", []string{"async"}, nil); result != process.Done {
			t.Errorf("Start failed: %s", p.ErrorString())
		}
	})

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("process never finished")
	}
	if p.ReturnCode() != 0 {
		t.Fatalf("expected return code 0, got %d", p.ReturnCode())
	}
	if !bytes.Equal(stdout, []byte("async\n")) {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
}

func TestAsyncWriteToStdinIsEchoedByCat(t *testing.T) {
	loop := newTestLoop(t)
	done := make(chan eventloop.Result, 1)
	go func() { done <- loop.Exec(0) }()
	defer func() {
		loop.Quit()
		<-done
	}()

	p := process.NewAsyncProcess(loop)
	finished := make(chan struct{})
	started := make(chan struct{})
	var stdout []byte
	loop.Post(func() {
		p.OnReadyReadStdOut = func(pr *process.Process) {
			stdout = append(stdout, pr.ReadAllStdOut()...)
		}
		p.OnFinished = func(pr *process.Process) {
			close(finished)
		}
		if result := p.Start("/bin/cat", nil, nil); result != process.Done {
			t.Errorf("Start failed: %s", p.ErrorString())
		}
		close(started)
	})

	// Write refuses data until Start has opened the child's stdin, so wait
	// for the posted Start to have run on the loop goroutine.
	<-started
	if !p.Write([]byte("roundtrip")) {
		t.Fatal("write returned false")
	}
	p.CloseStdIn()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("process never finished")
	}
	if string(stdout) != "roundtrip" {
		t.Fatalf("expected echoed stdin %q, got %q", "roundtrip", stdout)
	}
}

func TestStopSendsSignalToRunningChild(t *testing.T) {
	p := process.NewSyncProcess()
	done := make(chan process.Result, 1)
	go func() { done <- p.Exec("/bin/sleep", []string{"30"}, nil, 10*time.Second, process.NoFlags) }()

	time.Sleep(50 * time.Millisecond)
	p.Stop()

	select {
	case result := <-done:
		if result != process.Done {
			t.Fatalf("expected Done (child terminated by signal), got %v", result)
		}
		if p.ReturnCode() >= 0 {
			t.Fatalf("expected a negative (signal) return code, got %d", p.ReturnCode())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exec never returned after Stop")
	}
}

func TestSyncExecTimeoutSendsSignalAndReaperReportsExit(t *testing.T) {
	p := process.NewSyncProcess()
	result := p.Exec("/bin/sleep", []string{"30"}, nil, 100*time.Millisecond, process.NoFlags)
	if result != process.TimedOut {
		t.Fatalf("expected TimedOut, got %v (error=%q)", result, p.ErrorString())
	}

	// Exec's timeout branch only sends SIGTERM and returns; the reap itself
	// happens on the package-global reaper goroutine once SIGCHLD arrives.
	deadline := time.Now().Add(5 * time.Second)
	for p.Pid() != -1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.Pid() != -1 {
		t.Fatal("reaper never reported the timed-out child's exit")
	}
}
