package profile

import (
	"time"

	log "github.com/rs/zerolog"
)

type ProfilerOptions struct {
	mode      string
	outputDir string
	topN      int
	status    bool
	render    bool
	grace     time.Duration

	prober   *Prober
	lookPath func(string) (string, error)
	logger   log.Logger
}

type ProfilerOption func(*Profiler)

func WithMode(mode string) ProfilerOption {
	return func(p *Profiler) {
		p.mode = mode
	}
}

func WithOutputDir(dir string) ProfilerOption {
	return func(p *Profiler) {
		p.outputDir = dir
	}
}

func WithTopN(topN int) ProfilerOption {
	return func(p *Profiler) {
		p.topN = topN
	}
}

func WithStatus(status bool) ProfilerOption {
	return func(p *Profiler) {
		p.status = status
	}
}

func WithFlamegraph(render bool) ProfilerOption {
	return func(p *Profiler) {
		p.render = render
	}
}

func WithAttachGracePeriod(grace time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.grace = grace
	}
}

func WithProber(prober *Prober) ProfilerOption {
	return func(p *Profiler) {
		p.prober = prober
	}
}

func WithLookPath(lookPath func(string) (string, error)) ProfilerOption {
	return func(p *Profiler) {
		p.lookPath = lookPath
	}
}

func WithLogger(logger log.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}
