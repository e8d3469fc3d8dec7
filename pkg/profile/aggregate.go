package profile

import (
	"fmt"
	"io"
	"sort"
)

// SlowCallFloor is the duration below which an individual call never enters
// the slow-call list.
const SlowCallFloor = 0.001

// DefaultTopN bounds the slow-call list.
const DefaultTopN = 20

// SyscallEvent is one raw observation from a syscall-latency backend.
// Start and Duration are seconds; Seq preserves emission order.
type SyscallEvent struct {
	Name     string
	Seq      int
	PID      int
	Start    float64
	Duration float64
}

// SyscallStat is the per-syscall aggregate.
type SyscallStat struct {
	Name  string
	Count int
	Total float64
}

func (s SyscallStat) Mean() float64 {
	if s.Count == 0 {
		return 0
	}

	return s.Total / float64(s.Count)
}

// SyscallAggregate reduces a syscall event stream into per-name statistics
// plus a bounded list of the slowest individual calls. It accumulates
// incrementally so callers can stream events through it.
type SyscallAggregate struct {
	stats map[string]*SyscallStat
	slow  []SyscallEvent
	topN  int
	total float64
	count int
}

func NewSyscallAggregate(topN int) *SyscallAggregate {
	if topN <= 0 {
		topN = DefaultTopN
	}

	return &SyscallAggregate{
		stats: make(map[string]*SyscallStat),
		topN:  topN,
	}
}

func (a *SyscallAggregate) Observe(ev SyscallEvent) {
	st, ok := a.stats[ev.Name]
	if !ok {
		st = &SyscallStat{Name: ev.Name}
		a.stats[ev.Name] = st
	}
	st.Count++
	st.Total += ev.Duration
	a.total += ev.Duration
	a.count++

	if ev.Duration > SlowCallFloor {
		a.insertSlow(ev)
	}
}

// insertSlow keeps the slow list sorted by duration descending with ties
// broken by earliest occurrence, trimmed to topN.
func (a *SyscallAggregate) insertSlow(ev SyscallEvent) {
	idx := sort.Search(len(a.slow), func(i int) bool {
		if a.slow[i].Duration != ev.Duration {
			return a.slow[i].Duration < ev.Duration
		}
		return a.slow[i].Seq > ev.Seq
	})
	if idx >= a.topN {
		return
	}
	a.slow = append(a.slow, SyscallEvent{})
	copy(a.slow[idx+1:], a.slow[idx:])
	a.slow[idx] = ev
	if len(a.slow) > a.topN {
		a.slow = a.slow[:a.topN]
	}
}

func (a *SyscallAggregate) Empty() bool {
	return a.count == 0
}

func (a *SyscallAggregate) Count() int {
	return a.count
}

// Total is the sum of all observed durations in seconds.
func (a *SyscallAggregate) Total() float64 {
	return a.total
}

func (a *SyscallAggregate) Mean() float64 {
	if a.count == 0 {
		return 0
	}

	return a.total / float64(a.count)
}

// ByTotal returns per-syscall statistics sorted by total duration descending
// with name as the tie breaker, so repeated runs over the same events render
// identically.
func (a *SyscallAggregate) ByTotal() []SyscallStat {
	stats := make([]SyscallStat, 0, len(a.stats))
	for _, st := range a.stats {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].Name < stats[j].Name
	})

	return stats
}

// Slow returns the top-N individual events by duration above the 1ms floor.
func (a *SyscallAggregate) Slow() []SyscallEvent {
	out := make([]SyscallEvent, len(a.slow))
	copy(out, a.slow)

	return out
}

// FoldedAggregate groups identical folded-stack strings, summing occurrence
// counts. Output preserves insertion order, which is deterministic for a
// given raw sequence; flamegraph renderers tolerate any line ordering.
type FoldedAggregate struct {
	counts map[string]uint64
	order  []string
}

func NewFoldedAggregate() *FoldedAggregate {
	return &FoldedAggregate{
		counts: make(map[string]uint64),
	}
}

func (a *FoldedAggregate) Add(stack string, count uint64) {
	if _, ok := a.counts[stack]; !ok {
		a.order = append(a.order, stack)
	}
	a.counts[stack] += count
}

// Len is the number of unique stacks.
func (a *FoldedAggregate) Len() int {
	return len(a.order)
}

// Total is the sum of all sample counts.
func (a *FoldedAggregate) Total() uint64 {
	var total uint64
	for _, c := range a.counts {
		total += c
	}

	return total
}

// Top returns the n stacks with the highest counts, ties broken by stack
// string.
func (a *FoldedAggregate) Top(n int) []StackCount {
	all := make([]StackCount, 0, len(a.order))
	for _, stack := range a.order {
		all = append(all, StackCount{Stack: stack, Count: a.counts[stack]})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Stack < all[j].Stack
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}

	return all
}

// WriteTo emits the folded-stack file, one "stack count" line per unique
// call path.
func (a *FoldedAggregate) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, stack := range a.order {
		n, err := fmt.Fprintf(w, "%s %d\n", stack, a.counts[stack])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// StackCount pairs a folded stack with its sample count.
type StackCount struct {
	Stack string
	Count uint64
}

// TaskWait is one ranked row of a scheduler-timeline report. Durations are
// seconds.
type TaskWait struct {
	Task     string
	Runtime  float64
	Switches int
	AvgDelay float64
	MaxDelay float64
}

// SchedAggregate collects per-task scheduler wait statistics.
type SchedAggregate struct {
	tasks []TaskWait
}

func NewSchedAggregate() *SchedAggregate {
	return new(SchedAggregate)
}

func (a *SchedAggregate) Add(t TaskWait) {
	a.tasks = append(a.tasks, t)
}

func (a *SchedAggregate) Len() int {
	return len(a.tasks)
}

// Ranked returns tasks sorted by max delay descending, ties broken by task
// name.
func (a *SchedAggregate) Ranked() []TaskWait {
	out := make([]TaskWait, len(a.tasks))
	copy(out, a.tasks)
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxDelay != out[j].MaxDelay {
			return out[i].MaxDelay > out[j].MaxDelay
		}
		return out[i].Task < out[j].Task
	})

	return out
}
