package profile

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProfilerRun_EmptyTarget(t *testing.T) {
	p := NewProfiler()
	_, err := p.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrTargetEmpty)
}

func TestProfilerRun_UnknownMode(t *testing.T) {
	p := NewProfiler(WithMode("cpu"))
	_, err := p.Run(context.Background(), []string{"true"})
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestProfilerRun_TargetNotFound(t *testing.T) {
	p := NewProfiler(
		WithLookPath(func(string) (string, error) { return "", os.ErrNotExist }),
	)
	_, err := p.Run(context.Background(), []string{"no-such-binary"})
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestProfilerCollect_MissingTraceIsEmpty(t *testing.T) {
	backend := &Backend{
		Name:       "perf-sched",
		Capability: CapOffCPUStacks,
		traceExt:   ".data",
		exportArgv: func(tracePath string) []string {
			return []string{tracePath}
		},
	}
	sess := newTestSession(t, backend, "true")

	p := NewProfiler()
	col, err := p.Collect(sess)
	require.NoError(t, err)
	require.Zero(t, col.Skips)
	require.Nil(t, col.Syscalls)
}

func TestProfilerCollect_ParsesRawTrace(t *testing.T) {
	backend := &Backend{
		Name:       "strace",
		Capability: CapSyscallLatency,
		traceExt:   ".log",
		collect:    CollectSyscallTrace,
	}
	sess := newTestSession(t, backend, "true")

	trace := `1693412345.100000 read(3, "", 4096) = 4096 <0.000100>
1693412345.101000 futex(0x7f, FUTEX_WAIT, 0, NULL) = 0 <0.052000>
`
	require.NoError(t, os.WriteFile(sess.TracePath(), []byte(trace), 0o644))

	p := NewProfiler()
	col, err := p.Collect(sess)
	require.NoError(t, err)
	require.Equal(t, 2, col.Syscalls.Count())
	require.Equal(t, "futex", col.Syscalls.ByTotal()[0].Name)
}

func TestProfilerCollect_ExportStep(t *testing.T) {
	// cat as the export tool copies the raw artifact to the export path
	// verbatim, standing in for perf script / perf sched latency.
	backend := &Backend{
		Name:       "perf-sched",
		Capability: CapOffCPUStacks,
		tool:       "cat",
		traceExt:   ".data",
		exportArgv: func(tracePath string) []string {
			return []string{tracePath}
		},
		collect: func(r io.Reader, _ int) (*Collection, error) {
			return CollectSchedLatency(r)
		},
	}
	sess := newTestSession(t, backend, "true")

	raw := `  octo:(4)              |    714.943 ms |     3421 | avg:   0.031 ms | max:   1.341 ms | max start: 95894.99 s
`
	require.NoError(t, os.WriteFile(sess.TracePath(), []byte(raw), 0o644))

	p := NewProfiler()
	col, err := p.Collect(sess)
	require.NoError(t, err)
	require.FileExists(t, sess.ExportPath())
	require.Equal(t, 1, col.Sched.Len())
	require.Equal(t, "octo:(4)", col.Sched.Ranked()[0].Task)
}
