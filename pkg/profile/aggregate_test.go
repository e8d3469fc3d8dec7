package profile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waitprof/waitprof/pkg/profile"
)

func observeAll(agg *profile.SyscallAggregate, events []profile.SyscallEvent) {
	for _, ev := range events {
		agg.Observe(ev)
	}
}

func TestSyscallAggregate_Example(t *testing.T) {
	events := []profile.SyscallEvent{
		{Name: "read", Seq: 0, Start: 0, Duration: 0.002},
		{Name: "read", Seq: 1, Start: 1, Duration: 0.004},
		{Name: "write", Seq: 2, Start: 2, Duration: 0.001},
	}
	agg := profile.NewSyscallAggregate(20)
	observeAll(agg, events)

	stats := agg.ByTotal()
	require.Len(t, stats, 2)

	require.Equal(t, "read", stats[0].Name)
	require.Equal(t, 2, stats[0].Count)
	require.InDelta(t, 0.006, stats[0].Total, 1e-9)
	require.InDelta(t, 0.003, stats[0].Mean(), 1e-9)

	require.Equal(t, "write", stats[1].Name)
	require.Equal(t, 1, stats[1].Count)
	require.InDelta(t, 0.001, stats[1].Total, 1e-9)
	require.InDelta(t, 0.001, stats[1].Mean(), 1e-9)

	// The 1ms write is at the floor, not above it, so only the two reads
	// qualify, slowest first.
	slow := agg.Slow()
	require.Len(t, slow, 2)
	require.Equal(t, "read", slow[0].Name)
	require.InDelta(t, 0.004, slow[0].Duration, 1e-9)
	require.Equal(t, "read", slow[1].Name)
	require.InDelta(t, 0.002, slow[1].Duration, 1e-9)
}

func TestSyscallAggregate_TotalsInvariant(t *testing.T) {
	events := []profile.SyscallEvent{
		{Name: "read", Seq: 0, Duration: 0.0021},
		{Name: "write", Seq: 1, Duration: 0.0002},
		{Name: "futex", Seq: 2, Duration: 0.1204},
		{Name: "read", Seq: 3, Duration: 0.0009},
		{Name: "epoll_wait", Seq: 4, Duration: 0.0505},
	}
	agg := profile.NewSyscallAggregate(20)
	observeAll(agg, events)

	var eventSum, statSum float64
	for _, ev := range events {
		eventSum += ev.Duration
	}
	for _, st := range agg.ByTotal() {
		statSum += st.Total
	}
	require.InDelta(t, eventSum, statSum, 1e-9)
	require.InDelta(t, eventSum, agg.Total(), 1e-9)
	require.Equal(t, len(events), agg.Count())
}

func TestSyscallAggregate_SlowListProperties(t *testing.T) {
	events := []profile.SyscallEvent{
		{Name: "read", Seq: 0, Duration: 0.0021},
		{Name: "write", Seq: 1, Duration: 0.0002},
		{Name: "futex", Seq: 2, Duration: 0.1204},
		{Name: "read", Seq: 3, Duration: 0.0009},
		{Name: "recvfrom", Seq: 4, Duration: 0.0021},
		{Name: "epoll_wait", Seq: 5, Duration: 0.0505},
	}
	agg := profile.NewSyscallAggregate(3)
	observeAll(agg, events)

	slow := agg.Slow()
	require.Len(t, slow, 3)
	for i, ev := range slow {
		require.Greater(t, ev.Duration, profile.SlowCallFloor)
		if i > 0 {
			require.GreaterOrEqual(t, slow[i-1].Duration, ev.Duration)
		}
		// Every entry is a real observed event.
		require.Contains(t, events, ev)
	}

	// Ties are broken by earliest occurrence: seq 0 beats seq 4 at 2.1ms.
	require.Equal(t, 0, slow[2].Seq)
}

func TestSyscallAggregate_Empty(t *testing.T) {
	agg := profile.NewSyscallAggregate(20)
	require.True(t, agg.Empty())
	require.Zero(t, agg.Count())
	require.Zero(t, agg.Total())
	require.Zero(t, agg.Mean())
	require.Empty(t, agg.Slow())
}

func TestSyscallSummary_Deterministic(t *testing.T) {
	events := []profile.SyscallEvent{
		{Name: "read", Seq: 0, Duration: 0.0021},
		{Name: "write", Seq: 1, Duration: 0.0302},
		{Name: "futex", Seq: 2, Duration: 0.1204},
		{Name: "read", Seq: 3, Duration: 0.0009},
		{Name: "connect", Seq: 4, Duration: 0.0302},
	}
	notes := profile.Notes{Backend: "strace", Skips: 2}

	render := func() string {
		agg := profile.NewSyscallAggregate(20)
		observeAll(agg, events)
		var buf bytes.Buffer
		require.NoError(t, profile.WriteSyscallSummary(&buf, agg, notes))
		return buf.String()
	}

	first := render()
	second := render()
	require.Equal(t, first, second)
	require.Contains(t, first, "futex")
	require.Contains(t, first, "parse skips: 2")
}

func TestFoldedAggregate_GroupsAndOrders(t *testing.T) {
	agg := profile.NewFoldedAggregate()
	agg.Add("octo;main;download", 3)
	agg.Add("octo;main;write_chunk", 1)
	agg.Add("octo;main;download", 2)

	require.Equal(t, 2, agg.Len())
	require.Equal(t, uint64(6), agg.Total())

	var buf bytes.Buffer
	_, err := agg.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, "octo;main;download 5\nocto;main;write_chunk 1\n", buf.String())

	top := agg.Top(1)
	require.Len(t, top, 1)
	require.Equal(t, "octo;main;download", top[0].Stack)
	require.Equal(t, uint64(5), top[0].Count)
}

func TestSchedAggregate_RankedByMaxDelay(t *testing.T) {
	agg := profile.NewSchedAggregate()
	agg.Add(profile.TaskWait{Task: "octo:(4)", MaxDelay: 0.0013, AvgDelay: 0.0001, Switches: 3421, Runtime: 0.714})
	agg.Add(profile.TaskWait{Task: "kworker/2:1", MaxDelay: 0.0042, AvgDelay: 0.0002, Switches: 12, Runtime: 0.001})
	agg.Add(profile.TaskWait{Task: "octo", MaxDelay: 0.0013, AvgDelay: 0.0003, Switches: 5, Runtime: 0.050})

	ranked := agg.Ranked()
	require.Len(t, ranked, 3)
	require.Equal(t, "kworker/2:1", ranked[0].Task)
	// Equal max delays fall back to task name ordering.
	require.Equal(t, "octo", ranked[1].Task)
	require.Equal(t, "octo:(4)", ranked[2].Task)
}

func TestWriteSummaries_NoData(t *testing.T) {
	notes := profile.Notes{Backend: "strace", Interrupted: true}

	var buf bytes.Buffer
	require.NoError(t, profile.WriteSyscallSummary(&buf, profile.NewSyscallAggregate(20), notes))
	require.Contains(t, buf.String(), "no data collected")
	require.Contains(t, buf.String(), "interrupted")

	buf.Reset()
	require.NoError(t, profile.WriteStackSummary(&buf, profile.NewFoldedAggregate(), notes, 10))
	require.Contains(t, buf.String(), "no data collected")

	buf.Reset()
	require.NoError(t, profile.WriteSchedSummary(&buf, profile.NewSchedAggregate(), notes))
	require.Contains(t, buf.String(), "no data collected")
}

func TestWriteStackSummary_ApproximateNote(t *testing.T) {
	agg := profile.NewFoldedAggregate()
	agg.Add("octo;main;poll", 10)

	var buf bytes.Buffer
	notes := profile.Notes{Backend: "perf-record", Approximate: true}
	require.NoError(t, profile.WriteStackSummary(&buf, agg, notes, 10))
	require.Contains(t, buf.String(), "approximate")
	require.Contains(t, buf.String(), "on-CPU time")
}
