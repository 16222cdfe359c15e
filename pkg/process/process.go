// Package process wraps a spawned external process behind a uniform
// poll/wait/kill interface.
//
// A task that has not been submitted yet holds no handle at all: callers
// treat the absent handle as "still running" when polling and receive
// ErrNotStarted from the blocking operations. This replaces the classic
// fake-process stand-in with an explicit not-started variant.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
)

// ErrNotStarted is returned when wait, communicate or kill is invoked on a
// job whose process was never spawned. This is a caller sequencing bug, not
// a recoverable runtime condition.
var ErrNotStarted = errors.New("process: job has not been started")

// Handle is the minimal contract over a running external process.
type Handle interface {
	// Poll reports whether the process has terminated, without blocking.
	// The exit code is only meaningful when done is true.
	Poll() (code int, done bool)

	// Wait blocks until the process terminates and returns its exit code.
	// A non-zero exit code is not an error; err reports wait failures only.
	Wait() (code int, err error)

	// Communicate sends input to stdin (if a pipe was attached), waits for
	// termination, and returns whatever stdout/stderr was captured.
	Communicate(input string) (stdout, stderr string, err error)

	// Kill terminates the process group.
	Kill() error

	// ExitCode returns the recorded exit code, or 0 if the process has not
	// terminated yet.
	ExitCode() int
}

// Local runs a command as a direct child in its own process group, so the
// workload never shares fate with a crashing supervisor.
type Local struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	done     chan struct{}
	exitCode int
	waitErr  error
}

// Start launches cmd and returns a handle on it. The command must not have
// been started by the caller. Stdout/stderr destinations set on cmd are
// preserved; when left nil they are captured for Communicate.
func Start(cmd *exec.Cmd) (*Local, error) {
	l := &Local{cmd: cmd, done: make(chan struct{})}

	if cmd.Stdout == nil {
		l.stdout = &bytes.Buffer{}
		cmd.Stdout = l.stdout
	}
	if cmd.Stderr == nil {
		l.stderr = &bytes.Buffer{}
		cmd.Stderr = l.stderr
	}
	if cmd.Stdin == nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("process: stdin pipe: %w", err)
		}
		l.stdin = pipe
	}

	// New process group: the workload must survive a supervisor crash and
	// Kill must reach any children it spawned.
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: failed to start %s: %w", cmd.Path, err)
	}

	go l.reap()

	return l, nil
}

// Pid returns the process id of the child.
func (l *Local) Pid() int {
	return l.cmd.Process.Pid
}

func (l *Local) reap() {
	err := l.cmd.Wait()

	l.exitCode = 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Includes -1 when the child was killed by a signal.
			l.exitCode = exitErr.ExitCode()
		} else {
			l.waitErr = err
		}
	}

	close(l.done)
}

// Poll implements Handle.
func (l *Local) Poll() (int, bool) {
	select {
	case <-l.done:
		return l.exitCode, true
	default:
		return 0, false
	}
}

// Wait implements Handle.
func (l *Local) Wait() (int, error) {
	<-l.done
	return l.exitCode, l.waitErr
}

// Communicate implements Handle. When the command's streams were redirected
// to files by the submission script, the returned stdout/stderr are empty;
// the job's artifacts hold the data.
func (l *Local) Communicate(input string) (string, string, error) {
	if l.stdin != nil {
		if input != "" {
			if _, err := io.WriteString(l.stdin, input); err != nil {
				return "", "", fmt.Errorf("process: write stdin: %w", err)
			}
		}
		l.stdin.Close()
	}

	if _, err := l.Wait(); err != nil {
		return "", "", err
	}

	var out, errOut string
	if l.stdout != nil {
		out = l.stdout.String()
	}
	if l.stderr != nil {
		errOut = l.stderr.String()
	}
	return out, errOut, nil
}

// Kill implements Handle. It signals the whole process group.
func (l *Local) Kill() error {
	pid := l.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		// Group may be gone already; fall back to the process itself.
		return l.cmd.Process.Kill()
	}
	return nil
}

// ExitCode implements Handle.
func (l *Local) ExitCode() int {
	select {
	case <-l.done:
		return l.exitCode
	default:
		return 0
	}
}
