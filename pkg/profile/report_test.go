package profile

import (
	"bytes"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReporterEmit_Syscall(t *testing.T) {
	backend := &Backend{Name: "strace", Capability: CapSyscallLatency, traceExt: ".log"}
	sess := newTestSession(t, backend, "true")

	agg := NewSyscallAggregate(DefaultTopN)
	agg.Observe(SyscallEvent{Name: "futex", Seq: 0, Duration: 0.12})
	agg.Observe(SyscallEvent{Name: "read", Seq: 1, Duration: 0.002})
	col := &Collection{Syscalls: agg, Skips: 1}

	var out bytes.Buffer
	r := NewReporter(WithReporterOut(&out))
	require.NoError(t, r.Emit(sess, col))

	persisted, err := os.ReadFile(sess.SummaryPath())
	require.NoError(t, err)
	require.Equal(t, out.String(), string(persisted))
	require.Contains(t, out.String(), "syscall latency summary (strace)")
	require.Contains(t, out.String(), "futex")
	require.Contains(t, out.String(), "parse skips: 1")
}

func TestReporterEmit_FoldedWithoutRenderer(t *testing.T) {
	backend := &Backend{Name: "offcputime", Capability: CapOffCPUStacks, Attach: true, traceExt: ".out"}
	sess := newTestSession(t, backend, "true")

	agg := NewFoldedAggregate()
	agg.Add("octo;main;poll", 7)
	col := &Collection{Stacks: agg}

	var out bytes.Buffer
	r := NewReporter(
		WithReporterOut(&out),
		WithReporterLookPath(func(string) (string, error) { return "", exec.ErrNotFound }),
	)
	require.NoError(t, r.Emit(sess, col))

	// The folded artifact stands on its own when no renderer is installed.
	require.FileExists(t, sess.FoldedPath())
	require.NoFileExists(t, sess.FlamegraphPath())

	folded, err := os.ReadFile(sess.FoldedPath())
	require.NoError(t, err)
	require.Equal(t, "octo;main;poll 7\n", string(folded))
	require.Contains(t, out.String(), "off-cpu stack summary (offcputime)")
	require.Contains(t, out.String(), "tracer attached after target start")
}

func TestReporterEmit_RenderDisabled(t *testing.T) {
	backend := &Backend{Name: "offcputime", Capability: CapOffCPUStacks, Attach: true, traceExt: ".out"}
	sess := newTestSession(t, backend, "true")

	agg := NewFoldedAggregate()
	agg.Add("octo;main;poll", 1)

	r := NewReporter(
		WithReporterOut(&bytes.Buffer{}),
		WithReporterRender(false),
		WithReporterLookPath(func(string) (string, error) {
			t.Fatal("renderer probed with rendering disabled")
			return "", nil
		}),
	)
	require.NoError(t, r.Emit(sess, &Collection{Stacks: agg}))
	require.FileExists(t, sess.FoldedPath())
}

func TestReporterEmit_EmptyCollection(t *testing.T) {
	backend := &Backend{Name: "strace", Capability: CapSyscallLatency, traceExt: ".log"}
	sess := newTestSession(t, backend, "true")
	require.NoError(t, sess.Interrupt())

	var out bytes.Buffer
	r := NewReporter(WithReporterOut(&out))
	require.NoError(t, r.Emit(sess, nil))
	require.Contains(t, out.String(), "no data collected")
	require.Contains(t, out.String(), "session interrupted")
}
