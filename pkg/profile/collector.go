package profile

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Collection is the normalized result of one backend run. Exactly one of the
// aggregate fields is populated, so the report emitter never needs to know
// which backend produced the raw data.
type Collection struct {
	Syscalls *SyscallAggregate
	Stacks   *FoldedAggregate
	Sched    *SchedAggregate

	// Skips counts raw lines that did not match the expected shape. Tracing
	// tool output is inherently noisy, so these are reported, not fatal.
	Skips int
}

const maxTraceLine = 1024 * 1024

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxTraceLine)

	return sc
}

// strace -f -ttt -T lines. On a terminal follow-mode lines carry a bracketed
// "[pid N]" prefix; with -o they carry a bare pid column instead:
//
//	[pid 12345] 1693412345.123456 read(3, "..."..., 65536) = 65536 <0.000021>
//	12345 1693412345.123456 read(3, "..."..., 65536) = 65536 <0.000021>
//	1693412345.123456 <... epoll_wait resumed>...) = 1 <0.104325>
var (
	straceCallRe    = regexp.MustCompile(`^(?:\[pid\s+(\d+)\]\s+|(\d+)\s+)?(\d+\.\d+)\s+(\w+)\(.*<(\d+\.\d+)>$`)
	straceResumedRe = regexp.MustCompile(`^(?:\[pid\s+(\d+)\]\s+|(\d+)\s+)?(\d+\.\d+)\s+<\.\.\.\s+(\w+)\s+resumed>.*<(\d+\.\d+)>$`)
)

// CollectSyscallTrace reduces a syscall-latency trace in a single streaming
// pass. Per-name totals and the bounded slow-call list accumulate
// incrementally, so very large traces never require materializing the whole
// event sequence.
func CollectSyscallTrace(r io.Reader, topN int) (*Collection, error) {
	agg := NewSyscallAggregate(topN)
	skips := 0
	seq := 0
	var base float64

	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// Exit and signal markers plus the first half of a split call are
		// expected tracer noise, not skips. The duration of a split call
		// arrives on the matching resumed line. Marker lines carry a pid
		// column under -o, so both ends are checked.
		if strings.HasPrefix(line, "+++") || strings.HasSuffix(line, "+++") ||
			strings.HasPrefix(line, "---") || strings.HasSuffix(line, "---") ||
			strings.HasSuffix(line, "<unfinished ...>") {
			continue
		}
		m := straceCallRe.FindStringSubmatch(line)
		if m == nil {
			m = straceResumedRe.FindStringSubmatch(line)
		}
		if m == nil {
			skips++
			continue
		}
		ts, tsErr := strconv.ParseFloat(m[3], 64)
		dur, durErr := strconv.ParseFloat(m[5], 64)
		if tsErr != nil || durErr != nil {
			skips++
			continue
		}
		pidField := m[1]
		if pidField == "" {
			pidField = m[2]
		}
		pid, _ := strconv.Atoi(pidField)
		if seq == 0 {
			base = ts
		}
		agg.Observe(SyscallEvent{
			Name:     m[4],
			Seq:      seq,
			PID:      pid,
			Start:    ts - base,
			Duration: dur,
		})
		seq++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan syscall trace")
	}

	return &Collection{Syscalls: agg, Skips: skips}, nil
}

// CollectFolded reads stacks already in folded form, one call path per line
// with a trailing sample count, as emitted by offcputime -f.
func CollectFolded(r io.Reader) (*Collection, error) {
	agg := NewFoldedAggregate()
	skips := 0

	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			skips++
			continue
		}
		count, err := strconv.ParseUint(line[idx+1:], 10, 64)
		if err != nil {
			skips++
			continue
		}
		agg.Add(line[:idx], count)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan folded stacks")
	}

	return &Collection{Stacks: agg, Skips: skips}, nil
}

// CollectStackSamples collapses perf script output into folded stacks: each
// sample becomes one semicolon-joined line rooted at the command name, with
// identical call paths summed.
func CollectStackSamples(r io.Reader) (*Collection, error) {
	agg := NewFoldedAggregate()
	skips := 0

	var comm string
	var frames []string
	flush := func() {
		if comm != "" && len(frames) > 0 {
			parts := make([]string, 0, len(frames)+1)
			parts = append(parts, comm)
			// perf script prints the innermost frame first, folded stacks
			// want root first.
			for i := len(frames) - 1; i >= 0; i-- {
				parts = append(parts, frames[i])
			}
			agg.Add(strings.Join(parts, ";"), 1)
		}
		comm, frames = "", nil
	}

	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		indented := strings.HasPrefix(line, "\t") || strings.HasPrefix(line, " ")
		if !indented {
			// Sample header: "comm pid [cpu] time: period event:".
			flush()
			fields := strings.Fields(line)
			if len(fields) == 0 {
				skips++
				continue
			}
			comm = fields[0]
			continue
		}
		sym, ok := parseFrame(line)
		if !ok {
			skips++
			continue
		}
		frames = append(frames, sym)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan stack samples")
	}
	flush()

	return &Collection{Stacks: agg, Skips: skips}, nil
}

// parseFrame extracts the symbol from a perf script frame line:
//
//	"	    55d8f2a1b2c3 frame_symbol+0x1f (/usr/bin/octo)"
func parseFrame(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	sym := fields[1]
	if len(fields) > 2 {
		sym = strings.Join(fields[1:len(fields)-1], " ")
	}
	if i := strings.LastIndex(sym, "+0x"); i > 0 {
		sym = sym[:i]
	}

	return sym, true
}

var msValRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*ms`)

// CollectSchedLatency parses the per-task table printed by perf sched
// latency into ranked per-thread wait durations.
func CollectSchedLatency(r io.Reader) (*Collection, error) {
	agg := NewSchedAggregate()
	skips := 0

	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "|") {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) < 5 {
			continue
		}
		task := strings.TrimSpace(cols[0])
		if task == "" || task == "Task" || strings.HasPrefix(task, "-") || strings.HasPrefix(task, "TOTAL") {
			continue
		}
		runtime, ok1 := msValue(cols[1])
		switches, swErr := strconv.Atoi(strings.TrimSpace(cols[2]))
		avgDelay, ok2 := msValue(cols[3])
		maxDelay, ok3 := msValue(cols[4])
		if !ok1 || !ok2 || !ok3 || swErr != nil {
			skips++
			continue
		}
		agg.Add(TaskWait{
			Task:     task,
			Runtime:  runtime,
			Switches: switches,
			AvgDelay: avgDelay,
			MaxDelay: maxDelay,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan scheduler latency report")
	}

	return &Collection{Sched: agg, Skips: skips}, nil
}

// msValue extracts a millisecond figure from a table cell and returns it in
// seconds.
func msValue(cell string) (float64, bool) {
	m := msValRe.FindStringSubmatch(cell)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	return ms / 1000, true
}
