//go:build unix

package process

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ooScott/rct/mux"
)

// findCommand resolves command per spec.md §4.4 step 1: used verbatim if
// absolute, otherwise searched in each ':'-separated PATH entry for the
// first regular file with read+execute permission. Grounded on
// Process::findCommand's access(R_OK|X_OK) semantics.
func findCommand(command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("process: empty command")
	}
	if strings.HasPrefix(command, "/") {
		return command, nil
	}
	path := os.Getenv("PATH")
	if path == "" {
		return "", fmt.Errorf("process: command not found")
	}
	for _, dir := range strings.Split(path, ":") {
		if dir == "" {
			continue
		}
		candidate := dir + "/" + command
		if fi, err := os.Stat(candidate); err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if unix.Access(candidate, unix.R_OK|unix.X_OK) == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("process: command not found")
}

// Environment returns the calling process's inherited environment, the Go
// analogue of Process::environment() — supplemented from original_source/
// per SPEC_FULL.md (dropped from the distilled spec's text, not excluded
// by any Non-goal).
func Environment() []string {
	return os.Environ()
}

func signalProcess(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

func closeFD(fd *int) {
	if *fd == -1 {
		return
	}
	_ = unix.Close(*fd)
	*fd = -1
}

// startInternal resolves the command, creates the pipe set, and forks+execs
// the child, mirroring Process::startInternal. On return without error the
// parent-side fds are set non-blocking and the pid is registered with the
// reaper.
func (p *Process) startInternal(command string, args []string, env []string) error {
	cmd, err := findCommand(command)
	if err != nil {
		p.setError("Command not found")
		return err
	}

	var stdinP, stdoutP, stderrP [2]int
	if err := unix.Pipe(stdinP[:]); err != nil {
		return fmt.Errorf("process: stdin pipe: %w", err)
	}
	if err := unix.Pipe(stdoutP[:]); err != nil {
		unix.Close(stdinP[0])
		unix.Close(stdinP[1])
		return fmt.Errorf("process: stdout pipe: %w", err)
	}
	if err := unix.Pipe(stderrP[:]); err != nil {
		unix.Close(stdinP[0])
		unix.Close(stdinP[1])
		unix.Close(stdoutP[0])
		unix.Close(stdoutP[1])
		return fmt.Errorf("process: stderr pipe: %w", err)
	}
	var syncP [2]int = [2]int{-1, -1}
	if p.mode == Sync {
		if err := unix.Pipe(syncP[:]); err != nil {
			unix.Close(stdinP[0])
			unix.Close(stdinP[1])
			unix.Close(stdoutP[0])
			unix.Close(stdoutP[1])
			unix.Close(stderrP[0])
			unix.Close(stderrP[1])
			return fmt.Errorf("process: sync pipe: %w", err)
		}
	}

	argv := append([]string{cmd}, args...)
	attr := &syscall.ProcAttr{
		Dir:   p.cwd,
		Env:   env,
		Files: []uintptr{uintptr(stdinP[0]), uintptr(stdoutP[1]), uintptr(stderrP[1])},
	}
	if len(env) == 0 {
		attr.Env = os.Environ()
	}

	pid, err := syscall.ForkExec(cmd, argv, attr)
	// Parent closes the child-side fds in all cases (success or failure):
	// spec.md §4.4 step 4 "On failure, close all pipes"; step 6 "Parent:
	// close child ends".
	unix.Close(stdinP[0])
	unix.Close(stdoutP[1])
	unix.Close(stderrP[1])
	if err != nil {
		unix.Close(stdinP[1])
		unix.Close(stdoutP[0])
		unix.Close(stderrP[0])
		if syncP[0] != -1 {
			unix.Close(syncP[0])
			unix.Close(syncP[1])
		}
		p.setError("Fork failed")
		return fmt.Errorf("process: fork/exec: %w", err)
	}

	for _, fd := range []int{stdinP[1], stdoutP[0], stderrP[0]} {
		_ = unix.SetNonblock(fd, true)
	}

	p.mu.Lock()
	p.pid = pid
	p.stdinW = stdinP[1]
	p.stdoutR = stdoutP[0]
	p.stderrR = stderrP[0]
	p.syncR, p.syncW = syncP[0], syncP[1]
	p.mu.Unlock()

	registerPid(pid, p)

	if p.mode == Async {
		_ = p.loop.RegisterSocket(p.stdoutR, mux.Read, func(fd int, fired mux.Mode) { p.onOutputReadable(fd, fired) })
		_ = p.loop.RegisterSocket(p.stderrR, mux.Read, func(fd int, fired mux.Mode) { p.onOutputReadable(fd, fired) })
	}
	return nil
}

// Start launches command asynchronously, integrating with the Process's
// loop (spec.md §4.4, Async path). Mirrors Process::start.
func (p *Process) Start(command string, args []string, env []string) Result {
	if p.mode != Async {
		panic("process: Start called on a Sync process")
	}
	if err := p.startInternal(command, args, env); err != nil {
		return Failed
	}
	return Done
}

// Exec launches command and blocks the calling goroutine in a private
// select loop until the child exits or timeout elapses (0 means no
// timeout), mirroring Process::exec's sync path (spec.md §4.4 "Sync wait
// loop").
func (p *Process) Exec(command string, args []string, env []string, timeout time.Duration, flags ExecFlags) Result {
	if p.mode != Sync {
		panic("process: Exec called on an Async process")
	}
	if err := p.startInternal(command, args, env); err != nil {
		return Failed
	}
	if flags&NoCloseStdIn == 0 {
		p.closeStdIn()
	}
	return p.syncWait(timeout)
}
