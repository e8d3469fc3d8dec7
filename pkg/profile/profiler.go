package profile

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/waitprof/waitprof/internal/format"
	"github.com/waitprof/waitprof/internal/output"
	"github.com/waitprof/waitprof/internal/settings"
)

const (
	ModeSyscall = "syscall"
	ModeOffCPU  = "offcpu"
)

// Profiler orchestrates one profiling session: backend selection, process
// control, collection and reporting.
type Profiler struct {
	*ProfilerOptions
}

func NewProfiler(opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		ProfilerOptions: &ProfilerOptions{
			mode:      ModeOffCPU,
			outputDir: settings.DefaultOutputDir,
			topN:      DefaultTopN,
			render:    true,
			grace:     DefaultAttachGrace,
			lookPath:  exec.LookPath,
			logger:    log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Profiler) capability() (Capability, error) {
	switch p.mode {
	case ModeSyscall:
		return CapSyscallLatency, nil
	case ModeOffCPU:
		return CapOffCPUStacks, nil
	}

	return "", errors.Wrapf(ErrUnknownMode, "%q", p.mode)
}

// Run drives a full session for the target command line. The session runs
// until the target finishes or ctx is canceled; cancellation stops the
// tracer cleanly and still aggregates and reports whatever was captured.
func (p *Profiler) Run(ctx context.Context, target []string) (*Session, error) {
	if len(target) == 0 {
		return nil, ErrTargetEmpty
	}
	capability, err := p.capability()
	if err != nil {
		return nil, err
	}

	// Pre-flight: fail before any child process starts.
	if _, err := p.lookPath(target[0]); err != nil {
		return nil, errors.Wrapf(ErrTargetNotFound, "%s", target[0])
	}

	prober := p.prober
	if prober == nil {
		prober = NewProber(WithProberLogger(p.logger))
	}
	backend, err := prober.Select(ctx, capability)
	if err != nil {
		return nil, err
	}
	p.logger.Info().
		Str("backend", backend.Name).
		Str("tool", backend.Tool()).
		Bool("attach", backend.Attach).
		Msg("backend selected")
	if backend.Approximate {
		p.logger.Warn().Msg("falling back to CPU sampling: figures will reflect on-CPU time, not waiting")
	}

	sess, err := NewSession(target, backend, p.outputDir)
	if err != nil {
		return nil, err
	}

	runErr := p.runSession(ctx, sess)
	interrupted := runErr != nil && errors.Is(runErr, context.Canceled)
	switch {
	case interrupted:
		if err := sess.Interrupt(); err != nil {
			return sess, err
		}
		p.logger.Warn().Msg("session interrupted, aggregating partial data")
	case runErr != nil:
		sess.Fail()
		return sess, runErr
	}

	col, err := p.Collect(sess)
	if err != nil {
		sess.Fail()
		return sess, err
	}

	reporter := NewReporter(
		WithReporterRender(p.render),
		WithReporterTopN(p.topN),
		WithReporterLookPath(p.lookPath),
		WithReporterLogger(p.logger),
	)
	if err := reporter.Emit(sess, col); err != nil {
		sess.Fail()
		return sess, err
	}

	if !interrupted {
		if err := sess.Complete(); err != nil {
			return sess, err
		}
	}
	p.logger.Info().
		Str("state", sess.State().String()).
		Str("output_dir", sess.OutputDir).
		Msg("session reported")

	return sess, nil
}

// runSession supervises the process strategy and the optional status line
// for the blocking span of the session.
func (p *Profiler) runSession(ctx context.Context, sess *Session) error {
	strategy := p.strategy(sess.Backend)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return strategy.Run(runCtx, sess)
	})
	if p.status {
		g.Go(func() error {
			p.statusLoop(runCtx, sess)
			return nil
		})
	}

	return g.Wait()
}

func (p *Profiler) strategy(backend *Backend) ProcessStrategy {
	if backend.Attach {
		return NewAttachStrategy(
			WithAttachGrace(p.grace),
			WithAttachLogger(p.logger),
		)
	}

	return NewWrapStrategy(
		WithWrapLogger(p.logger),
	)
}

func (p *Profiler) statusLoop(ctx context.Context, sess *Session) {
	output.StatusBar(ctx,
		1*time.Second, // bar refresh interval.
		func() {
			var size int64
			if fi, err := os.Stat(sess.TracePath()); err == nil {
				size = fi.Size()
			}
			output.PrintRight(output.PrettyProfileStatus(
				sess.Backend.Name,
				format.Duration(time.Since(sess.StartedAt)),
				format.Bytes(size),
			))
		},
	)
}

// Collect turns the session's raw artifact into the normalized aggregate. A
// missing trace file, e.g. after an interrupt before the tracer produced
// anything, yields an empty collection rather than an error.
func (p *Profiler) Collect(sess *Session) (*Collection, error) {
	backend := sess.Backend
	path := sess.TracePath()

	if backend.exportArgv != nil {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return &Collection{}, nil
			}
			return nil, errors.Wrap(err, "failed to stat raw trace")
		}
		if err := p.export(sess); err != nil {
			return nil, err
		}
		path = sess.ExportPath()
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Collection{}, nil
		}
		return nil, errors.Wrap(err, "failed to open trace")
	}
	defer f.Close()

	return backend.collect(f, p.topN)
}

// export runs the backend tool to turn a binary raw artifact into its
// textual form. It deliberately runs outside the session context: after an
// interrupt, collection over already-captured data must still proceed.
func (p *Profiler) export(sess *Session) error {
	backend := sess.Backend
	out, err := os.Create(sess.ExportPath())
	if err != nil {
		return errors.Wrap(err, "failed to create trace export")
	}
	defer out.Close()

	argv := backend.exportArgv(sess.TracePath())
	p.logger.Debug().Str("tool", backend.Tool()).Strs("args", argv).Msg("exporting raw trace")
	cmd := exec.Command(backend.Tool(), argv...)
	cmd.Stdout = out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "failed to export trace with %s", backend.Tool())
	}

	return nil
}
