package profile

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	// Tracers get their normal termination signal first so they flush
	// buffered output; SIGKILL only after the stop timeout.
	stopSignal  = syscall.SIGINT
	stopTimeout = 5 * time.Second

	// DefaultAttachGrace is the fixed settle period between target start and
	// tracer attach. Events in that window are invisible to the collector;
	// the report carries the partial-coverage note.
	DefaultAttachGrace = 500 * time.Millisecond
)

// ProcessStrategy runs the tracer and the target for the session's duration.
// It returns the context error when the session was interrupted and nil when
// the run completed on its own.
type ProcessStrategy interface {
	Run(ctx context.Context, sess *Session) error
}

// WrapStrategy lets the tracing tool exec the target as its child and waits
// on the tracer.
type WrapStrategy struct {
	logger log.Logger
}

type WrapOption func(*WrapStrategy)

func WithWrapLogger(logger log.Logger) WrapOption {
	return func(s *WrapStrategy) {
		s.logger = logger
	}
}

func NewWrapStrategy(opts ...WrapOption) *WrapStrategy {
	s := &WrapStrategy{
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *WrapStrategy) Run(ctx context.Context, sess *Session) error {
	argv := sess.Backend.wrapArgv(sess.TracePath(), sess.Target)
	tracer := exec.Command(sess.Backend.Tool(), argv...)
	// The target's stdout/stderr are opaque to the orchestrator; pass them
	// through untouched.
	tracer.Stdout = os.Stdout
	tracer.Stderr = os.Stderr

	s.logger.Debug().Str("tool", sess.Backend.Tool()).Strs("args", argv).Msg("starting tracer")
	if err := tracer.Start(); err != nil {
		if isNotFound(err) {
			return errors.Wrapf(ErrBackendUnavailable, "%s", sess.Backend.Tool())
		}
		return errors.Wrap(err, "failed to start tracer")
	}

	done := make(chan error, 1)
	go func() {
		done <- tracer.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			// The tracer mirrors the target's exit status in wrap mode; a
			// nonzero target exit still produced usable data.
			s.logger.Warn().Err(err).Msg("tracer exited with error")
		}
		return nil
	case <-ctx.Done():
		stopTracer(tracer.Process, done, s.logger)
		return ctx.Err()
	}
}

// AttachStrategy starts the target in its own process group, waits a fixed
// grace period, then scopes the tracer to the target's pid and blocks until
// the target exits.
type AttachStrategy struct {
	grace    time.Duration
	sleep    func(time.Duration)
	pidAlive func(int32) bool
	logger   log.Logger
}

type AttachOption func(*AttachStrategy)

func WithAttachGrace(grace time.Duration) AttachOption {
	return func(s *AttachStrategy) {
		s.grace = grace
	}
}

func WithAttachSleeper(sleep func(time.Duration)) AttachOption {
	return func(s *AttachStrategy) {
		s.sleep = sleep
	}
}

func WithAttachPidCheck(pidAlive func(int32) bool) AttachOption {
	return func(s *AttachStrategy) {
		s.pidAlive = pidAlive
	}
}

func WithAttachLogger(logger log.Logger) AttachOption {
	return func(s *AttachStrategy) {
		s.logger = logger
	}
}

func NewAttachStrategy(opts ...AttachOption) *AttachStrategy {
	s := &AttachStrategy{
		grace:    DefaultAttachGrace,
		sleep:    time.Sleep,
		pidAlive: pidAlive,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *AttachStrategy) Run(ctx context.Context, sess *Session) error {
	target := exec.Command(sess.Target[0], sess.Target[1:]...)
	target.Stdout = os.Stdout
	target.Stderr = os.Stderr
	// Own process group: a terminal interrupt delivered to the orchestrator
	// never reaches the target, so its fate is consistent across interrupts.
	target.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := target.Start(); err != nil {
		return errors.Wrap(err, "failed to start target")
	}
	pid := target.Process.Pid

	s.logger.Info().Int("pid", pid).Dur("grace", s.grace).Msg("target started, settling before attach")
	s.sleep(s.grace)
	if !s.pidAlive(int32(pid)) {
		target.Wait()
		return errors.Errorf("target exited during the attach grace period (pid %d)", pid)
	}

	argv := sess.Backend.attachArgv(sess.TracePath(), pid)
	tracer := exec.Command(sess.Backend.Tool(), argv...)
	var traceOut *os.File
	if sess.Backend.stdoutIsTrace {
		var err error
		traceOut, err = os.Create(sess.TracePath())
		if err != nil {
			return errors.Wrap(err, "failed to create trace file")
		}
		tracer.Stdout = traceOut
	}
	tracer.Stderr = os.Stderr

	s.logger.Debug().Str("tool", sess.Backend.Tool()).Strs("args", argv).Msg("attaching tracer")
	if err := tracer.Start(); err != nil {
		if traceOut != nil {
			traceOut.Close()
		}
		s.logger.Warn().Int("pid", pid).Msg("tracer failed to start, target left running")
		if isNotFound(err) {
			return errors.Wrapf(ErrBackendUnavailable, "%s", sess.Backend.Tool())
		}
		return errors.Wrap(err, "failed to start tracer")
	}

	tracerDone := make(chan error, 1)
	go func() {
		tracerDone <- tracer.Wait()
	}()
	targetDone := make(chan error, 1)
	go func() {
		targetDone <- target.Wait()
	}()

	var interrupted bool
	select {
	case err := <-targetDone:
		if err != nil {
			s.logger.Warn().Err(err).Msg("target exited with error")
		}
	case <-ctx.Done():
		// The target runs in its own group and is left to its own fate.
		interrupted = true
	}

	stopTracer(tracer.Process, tracerDone, s.logger)
	if traceOut != nil {
		traceOut.Close()
	}
	if interrupted {
		return ctx.Err()
	}

	return nil
}

func stopTracer(p *os.Process, done <-chan error, logger log.Logger) {
	logger.Info().Int("pid", p.Pid).Msg("stopping tracer")
	if err := p.Signal(stopSignal); err != nil {
		logger.Debug().Err(err).Msg("failed to signal tracer")
	}
	select {
	case <-done:
	case <-time.After(stopTimeout):
		logger.Warn().Msg("tracer did not stop in time, killing")
		p.Kill()
		<-done
	}
}

func pidAlive(pid int32) bool {
	ok, err := process.PidExists(pid)

	return err == nil && ok
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
