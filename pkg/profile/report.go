package profile

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/waitprof/waitprof/internal/format"
)

// Notes carries the caveats a report must surface alongside the aggregate.
type Notes struct {
	Backend     string
	Approximate bool
	Attached    bool
	Interrupted bool
	Skips       int
}

func (n Notes) write(w io.Writer) error {
	if n.Approximate {
		if _, err := fmt.Fprintln(w, "note: CPU-sampling backend; figures reflect on-CPU time, not waiting (approximate)"); err != nil {
			return err
		}
	}
	if n.Attached {
		if _, err := fmt.Fprintln(w, "note: tracer attached after target start; early events are not covered"); err != nil {
			return err
		}
	}
	if n.Interrupted {
		if _, err := fmt.Fprintln(w, "note: session interrupted; figures cover data collected up to the interrupt"); err != nil {
			return err
		}
	}
	if n.Skips > 0 {
		if _, err := fmt.Fprintf(w, "parse skips: %d\n", n.Skips); err != nil {
			return err
		}
	}

	return nil
}

func writeHeader(w io.Writer, title string) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	return err
}

// WriteSyscallSummary renders the syscall latency report: overall figures,
// the per-syscall breakdown sorted by total duration, then the slow-call
// list. Output is a pure function of the aggregate.
func WriteSyscallSummary(w io.Writer, agg *SyscallAggregate, notes Notes) error {
	if err := writeHeader(w, fmt.Sprintf("syscall latency summary (%s)", notes.Backend)); err != nil {
		return err
	}
	if agg == nil || agg.Empty() {
		return writeNoData(w, notes)
	}

	fmt.Fprintf(w, "total: %s s over %d calls (avg %s ms)\n\n",
		format.Seconds(agg.Total()), agg.Count(), format.Millis(agg.Mean()))

	fmt.Fprintf(w, "%10s %8s %10s  %s\n", "total s", "calls", "avg ms", "syscall")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, st := range agg.ByTotal() {
		fmt.Fprintf(w, "%10s %8d %10s  %s\n",
			format.Seconds(st.Total), st.Count, format.Millis(st.Mean()), st.Name)
	}

	slow := agg.Slow()
	if len(slow) > 0 {
		fmt.Fprintf(w, "\nslowest calls (> %s ms):\n\n", format.Millis(SlowCallFloor))
		fmt.Fprintf(w, "%10s %10s  %s\n", "at s", "dur ms", "syscall")
		fmt.Fprintln(w, strings.Repeat("-", 40))
		for _, ev := range slow {
			fmt.Fprintf(w, "%10s %10s  %s\n",
				format.Seconds(ev.Start), format.Millis(ev.Duration), ev.Name)
		}
	}

	fmt.Fprintln(w)

	return notes.write(w)
}

// WriteSchedSummary renders the scheduler-timeline report: per-task wait
// statistics ranked by max delay.
func WriteSchedSummary(w io.Writer, agg *SchedAggregate, notes Notes) error {
	if err := writeHeader(w, fmt.Sprintf("scheduler wait summary (%s)", notes.Backend)); err != nil {
		return err
	}
	if agg == nil || agg.Len() == 0 {
		return writeNoData(w, notes)
	}

	fmt.Fprintf(w, "%12s %10s %10s %10s  %s\n", "runtime s", "switches", "avg ms", "max ms", "task")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, t := range agg.Ranked() {
		fmt.Fprintf(w, "%12s %10d %10s %10s  %s\n",
			format.Seconds(t.Runtime), t.Switches,
			format.Millis(t.AvgDelay), format.Millis(t.MaxDelay), t.Task)
	}

	fmt.Fprintln(w)

	return notes.write(w)
}

// WriteStackSummary renders the top folded stacks by sample count.
func WriteStackSummary(w io.Writer, agg *FoldedAggregate, notes Notes, topN int) error {
	if err := writeHeader(w, fmt.Sprintf("off-cpu stack summary (%s)", notes.Backend)); err != nil {
		return err
	}
	if agg == nil || agg.Len() == 0 {
		return writeNoData(w, notes)
	}

	total := agg.Total()
	fmt.Fprintf(w, "total: %d samples over %d unique stacks\n\n", total, agg.Len())
	fmt.Fprintf(w, "%10s %7s  %s\n", "samples", "%", "stack")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, sc := range agg.Top(topN) {
		pct := float64(sc.Count) / float64(total) * 100
		fmt.Fprintf(w, "%10d %6.2f%%  %s\n", sc.Count, pct, format.Truncate(sc.Stack, 64))
	}

	fmt.Fprintln(w)

	return notes.write(w)
}

func writeNoData(w io.Writer, notes Notes) error {
	if _, err := fmt.Fprintln(w, "no data collected"); err != nil {
		return err
	}
	fmt.Fprintln(w)

	return notes.write(w)
}

// Renderer candidates probed for the optional image artifact, most specific
// first.
var flamegraphRenderers = []string{"inferno-flamegraph", "flamegraph.pl"}

// Reporter writes the final artifacts for a session and, when a downstream
// flamegraph renderer is available, invokes it over the folded output.
type Reporter struct {
	render   bool
	topN     int
	out      io.Writer
	lookPath func(string) (string, error)
	logger   log.Logger
}

type ReporterOption func(*Reporter)

func WithReporterRender(render bool) ReporterOption {
	return func(r *Reporter) {
		r.render = render
	}
}

func WithReporterTopN(topN int) ReporterOption {
	return func(r *Reporter) {
		r.topN = topN
	}
}

func WithReporterOut(out io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.out = out
	}
}

func WithReporterLookPath(lookPath func(string) (string, error)) ReporterOption {
	return func(r *Reporter) {
		r.lookPath = lookPath
	}
}

func WithReporterLogger(logger log.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		render:   true,
		topN:     DefaultTopN,
		out:      os.Stdout,
		lookPath: exec.LookPath,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Emit renders and persists the session artifacts for whatever data shape
// the collection holds. A collection with zero raw events still produces a
// valid "no data collected" report.
func (r *Reporter) Emit(sess *Session, col *Collection) error {
	f, err := os.Create(sess.SummaryPath())
	if err != nil {
		return errors.Wrap(err, "failed to create summary report")
	}
	defer f.Close()
	w := io.MultiWriter(f, r.out)

	notes := Notes{
		Backend:     sess.Backend.Name,
		Approximate: sess.Backend.Approximate,
		Attached:    sess.Backend.Attach,
		Interrupted: sess.State() == StateInterrupted,
	}
	if col == nil {
		col = &Collection{}
	}
	notes.Skips = col.Skips

	switch {
	case col.Syscalls != nil && !col.Syscalls.Empty():
		return WriteSyscallSummary(w, col.Syscalls, notes)
	case col.Sched != nil && col.Sched.Len() > 0:
		return WriteSchedSummary(w, col.Sched, notes)
	case col.Stacks != nil && col.Stacks.Len() > 0:
		if err := r.emitFolded(sess, col.Stacks); err != nil {
			return err
		}
		return WriteStackSummary(w, col.Stacks, notes, r.topN)
	default:
		return writeNoData(w, notes)
	}
}

func (r *Reporter) emitFolded(sess *Session, agg *FoldedAggregate) error {
	f, err := os.Create(sess.FoldedPath())
	if err != nil {
		return errors.Wrap(err, "failed to create folded-stack file")
	}
	if _, err := agg.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write folded stacks")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to close folded-stack file")
	}
	r.logger.Info().Str("path", sess.FoldedPath()).Msg("folded stacks written")

	if !r.render {
		return nil
	}
	if err := r.renderFlamegraph(sess); err != nil {
		// Rendering is best effort: the folded file already stands on its
		// own as flamegraph input.
		r.logger.Warn().Err(err).Msg("flamegraph rendering skipped")
	}

	return nil
}

func (r *Reporter) renderFlamegraph(sess *Session) error {
	var renderer string
	for _, cand := range flamegraphRenderers {
		if path, err := r.lookPath(cand); err == nil {
			renderer = path
			break
		}
	}
	if renderer == "" {
		return errors.Wrap(ErrNoRenderer, "install inferno (cargo install inferno) or flamegraph.pl")
	}

	in, err := os.Open(sess.FoldedPath())
	if err != nil {
		return errors.Wrap(err, "failed to open folded stacks")
	}
	defer in.Close()
	out, err := os.Create(sess.FlamegraphPath())
	if err != nil {
		return errors.Wrap(err, "failed to create flamegraph file")
	}
	defer out.Close()

	cmd := exec.Command(renderer)
	cmd.Stdin = in
	cmd.Stdout = out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "renderer %s failed", renderer)
	}
	r.logger.Info().Str("path", sess.FlamegraphPath()).Msg("flamegraph rendered")

	return nil
}
