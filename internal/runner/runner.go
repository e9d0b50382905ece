// Package runner spawns and supervises external tool processes, exposing
// their output as line channels and their termination as a single Wait
// result.
package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Spawn failures classified for callers that map them to user-facing codes.
var (
	ErrToolMissing      = errors.New("tool binary not found")
	ErrPermissionDenied = errors.New("tool binary not executable")
)

// Proc is a single supervised child process.
type Proc interface {
	// Stdout and Stderr deliver decoded output lines. Both channels are
	// closed when their stream ends.
	Stdout() <-chan string
	Stderr() <-chan string
	// Wait blocks until the process has exited and both streams are
	// drained. The exit code is -1 when the process died on a signal.
	Wait() (int, error)
	// Kill forcibly terminates the process and waits, bounded, for it to
	// reap.
	Kill() error
	PID() int
}

// Runner starts supervised processes.
type Runner interface {
	Start(ctx context.Context, bin string, args []string) (Proc, error)
}

// ExecRunner runs real OS processes.
type ExecRunner struct {
	// KillWait bounds how long Kill waits for the process to reap.
	KillWait time.Duration
	Logger   *slog.Logger
}

// NewExecRunner returns a runner with the given kill wait bound.
func NewExecRunner(killWait time.Duration) *ExecRunner {
	if killWait <= 0 {
		killWait = 5 * time.Second
	}
	return &ExecRunner{
		KillWait: killWait,
		Logger:   slog.With("component", "runner"),
	}
}

type proc struct {
	cmd      *exec.Cmd
	stdout   chan string
	stderr   chan string
	killWait time.Duration
	logger   *slog.Logger

	done     chan struct{}
	exitCode int
	exitErr  error
}

// Start launches bin with args. The child gets no stdin, a detached console
// on Windows, and line-buffered stdout/stderr pumps. ctx cancellation kills
// the process group.
func (r *ExecRunner) Start(ctx context.Context, bin string, args []string) (Proc, error) {
	cmd := exec.Command(bin, args...)
	cmd.Stdin = nil
	configureSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, classifySpawnError(err)
	}

	p := &proc{
		cmd:      cmd,
		stdout:   make(chan string, 64),
		stderr:   make(chan string, 64),
		killWait: r.KillWait,
		logger:   r.Logger.With("pid", cmd.Process.Pid, "bin", bin),
		done:     make(chan struct{}),
	}

	var pumps errgroup.Group
	pumps.Go(func() error { return pumpLines(stdout, p.stdout) })
	pumps.Go(func() error { return pumpLines(stderr, p.stderr) })

	// Reap exactly once, after both pipes hit EOF. cmd.Wait closes the
	// pipes, so it must not race the scanners.
	go func() {
		pumpErr := pumps.Wait()
		err := cmd.Wait()
		p.exitCode = cmd.ProcessState.ExitCode()
		if err == nil {
			err = pumpErr
		}
		p.exitErr = err
		close(p.done)
	}()

	// ctx cancellation maps to a kill so callers can use one context for
	// both spawn and supervision.
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Kill()
		case <-p.done:
		}
	}()

	return p, nil
}

func pumpLines(r io.Reader, out chan<- string) error {
	defer close(out)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out <- strings.ToValidUTF8(sc.Text(), "�")
	}
	return sc.Err()
}

func (p *proc) Stdout() <-chan string { return p.stdout }
func (p *proc) Stderr() <-chan string { return p.stderr }
func (p *proc) PID() int              { return p.cmd.Process.Pid }

func (p *proc) Wait() (int, error) {
	<-p.done
	var exitErr *exec.ExitError
	if errors.As(p.exitErr, &exitErr) {
		return p.exitCode, nil
	}
	return p.exitCode, p.exitErr
}

func (p *proc) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(p.killWait):
		p.logger.Warn("Process did not reap within kill wait")
		return errors.New("process did not exit after kill")
	}
}

func classifySpawnError(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return errors.Join(ErrToolMissing, err)
	case errors.Is(err, os.ErrPermission):
		return errors.Join(ErrPermissionDenied, err)
	default:
		return err
	}
}
