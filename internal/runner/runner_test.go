//go:build !windows

package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCollectsOutputAndExitCode(t *testing.T) {
	t.Parallel()

	r := NewExecRunner(time.Second)
	p, err := r.Start(context.Background(), "sh", []string{"-c", "echo one; echo two; echo err >&2; exit 3"})
	require.NoError(t, err)

	var out, errLines []string
	for line := range p.Stdout() {
		out = append(out, line)
	}
	for line := range p.Stderr() {
		errLines = append(errLines, line)
	}

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, []string{"one", "two"}, out)
	assert.Equal(t, []string{"err"}, errLines)
}

func TestStartMissingBinary(t *testing.T) {
	t.Parallel()

	r := NewExecRunner(time.Second)
	_, err := r.Start(context.Background(), "definitely-not-a-real-binary-xyz", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolMissing))
}

func TestKillTerminatesProcess(t *testing.T) {
	t.Parallel()

	r := NewExecRunner(2 * time.Second)
	p, err := r.Start(context.Background(), "sh", []string{"-c", "sleep 30"})
	require.NoError(t, err)

	require.NoError(t, p.Kill())

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, -1, code)
}

func TestContextCancelKillsProcess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewExecRunner(2 * time.Second)
	p, err := r.Start(ctx, "sh", []string{"-c", "sleep 30"})
	require.NoError(t, err)

	cancel()

	waited := make(chan struct{})
	go func() {
		p.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after context cancel")
	}
}

func TestWaitAfterStreamsDrained(t *testing.T) {
	t.Parallel()

	r := NewExecRunner(time.Second)
	p, err := r.Start(context.Background(), "sh", []string{"-c", "printf 'no trailing newline'"})
	require.NoError(t, err)

	var lines []string
	for line := range p.Stdout() {
		lines = append(lines, line)
	}
	for range p.Stderr() {
	}

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"no trailing newline"}, lines)
}
