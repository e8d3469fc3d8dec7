package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, backend *Backend, target ...string) *Session {
	t.Helper()
	sess, err := NewSession(target, backend, t.TempDir())
	require.NoError(t, err)

	return sess
}

func TestWrapStrategy_RunsToCompletion(t *testing.T) {
	backend := &Backend{
		Name:       "strace",
		Capability: CapSyscallLatency,
		tool:       "true",
		traceExt:   ".log",
		wrapArgv: func(_ string, _ []string) []string {
			return nil
		},
	}
	sess := newTestSession(t, backend, "true")

	s := NewWrapStrategy()
	require.NoError(t, s.Run(context.Background(), sess))
}

func TestWrapStrategy_InterruptStopsTracer(t *testing.T) {
	backend := &Backend{
		Name:       "strace",
		Capability: CapSyscallLatency,
		tool:       "sleep",
		traceExt:   ".log",
		wrapArgv: func(_ string, _ []string) []string {
			return []string{"30"}
		},
	}
	sess := newTestSession(t, backend, "sleep", "30")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s := NewWrapStrategy()
	start := time.Now()
	err := s.Run(ctx, sess)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestWrapStrategy_MissingTool(t *testing.T) {
	backend := &Backend{
		Name:       "strace",
		Capability: CapSyscallLatency,
		tool:       "/nonexistent/tracer",
		traceExt:   ".log",
		wrapArgv: func(_ string, _ []string) []string {
			return nil
		},
	}
	sess := newTestSession(t, backend, "true")

	s := NewWrapStrategy()
	require.ErrorIs(t, s.Run(context.Background(), sess), ErrBackendUnavailable)
}

func TestAttachStrategy_GracePeriodExit(t *testing.T) {
	backend := &Backend{
		Name:       "offcputime",
		Capability: CapOffCPUStacks,
		Attach:     true,
		tool:       "cat",
		traceExt:   ".out",
		attachArgv: func(_ string, _ int) []string {
			return nil
		},
	}
	sess := newTestSession(t, backend, "true")

	var slept time.Duration
	s := NewAttachStrategy(
		WithAttachGrace(250*time.Millisecond),
		WithAttachSleeper(func(d time.Duration) { slept = d }),
		WithAttachPidCheck(func(int32) bool { return false }),
	)

	err := s.Run(context.Background(), sess)
	require.Error(t, err)
	require.Contains(t, err.Error(), "grace period")
	require.Equal(t, 250*time.Millisecond, slept)
}

func TestAttachStrategy_TracesUntilTargetExits(t *testing.T) {
	backend := &Backend{
		Name:          "offcputime",
		Capability:    CapOffCPUStacks,
		Attach:        true,
		tool:          "echo",
		traceExt:      ".out",
		stdoutIsTrace: true,
		attachArgv: func(_ string, _ int) []string {
			return []string{"octo;main;poll 42"}
		},
	}
	sess := newTestSession(t, backend, "sleep", "0.2")

	s := NewAttachStrategy(
		WithAttachSleeper(func(time.Duration) {}),
		WithAttachPidCheck(func(int32) bool { return true }),
	)

	require.NoError(t, s.Run(context.Background(), sess))
	require.FileExists(t, sess.TracePath())
}
