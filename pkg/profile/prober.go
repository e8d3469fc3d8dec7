package profile

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// Prober determines which tracing backend is usable on the current host.
type Prober struct {
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
	logger   log.Logger
}

type ProberOption func(*Prober)

func WithProberLookPath(lookPath func(string) (string, error)) ProberOption {
	return func(p *Prober) {
		p.lookPath = lookPath
	}
}

func WithProberRunner(run func(ctx context.Context, name string, args ...string) error) ProberOption {
	return func(p *Prober) {
		p.run = run
	}
}

func WithProberLogger(logger log.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		lookPath: exec.LookPath,
		run:      runQuiet,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Select returns the first backend for the requested capability whose probe
// succeeds, in priority order. When none succeeds it fails with
// NoBackendAvailableError listing the candidates tried.
func (p *Prober) Select(ctx context.Context, capability Capability) (*Backend, error) {
	var tried []string
	for _, b := range backends() {
		if b.Capability != capability {
			continue
		}
		if err := p.probe(ctx, b); err != nil {
			p.logger.Debug().Err(err).Str("backend", b.Name).Msg("probe failed")
			tried = append(tried, b.Name)
			continue
		}
		return b, nil
	}

	return nil, &NoBackendAvailableError{Capability: capability, Tried: tried}
}

// ProbeResult is one row of a backend availability listing.
type ProbeResult struct {
	Backend *Backend
	Err     error
}

// List probes every backend for the capability without selecting one.
func (p *Prober) List(ctx context.Context, capability Capability) []ProbeResult {
	var results []ProbeResult
	for _, b := range backends() {
		if b.Capability != capability {
			continue
		}
		results = append(results, ProbeResult{Backend: b, Err: p.probe(ctx, b)})
	}

	return results
}

// probe checks tool presence and, for backends that define one, runs a
// negligible dry-run trace. Dry-run artifacts live in a temporary directory
// removed before returning, so probing leaves nothing behind.
func (p *Prober) probe(ctx context.Context, b *Backend) error {
	for _, tool := range b.tools {
		path, err := p.lookPath(tool)
		if err != nil {
			continue
		}
		if b.dryRunArgv != nil {
			tmpDir, err := os.MkdirTemp("", "waitprof-probe-*")
			if err != nil {
				return errors.Wrap(err, "failed to create probe scratch dir")
			}
			err = p.run(ctx, path, b.dryRunArgv(tmpDir)...)
			os.RemoveAll(tmpDir)
			if err != nil {
				return errors.Wrapf(err, "dry run failed for %s", tool)
			}
		}
		b.tool = path

		return nil
	}

	return errors.Errorf("%s not found in PATH", strings.Join(b.tools, ", "))
}

func runQuiet(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	return cmd.Run()
}
