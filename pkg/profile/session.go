package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/waitprof/waitprof/internal/settings"
)

// State is the lifecycle state of a run session. A session is terminal
// exactly once: it transitions from running to completed, interrupted or
// failed and never back.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateInterrupted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	case StateFailed:
		return "failed"
	}

	return "unknown"
}

// Session is one profiling invocation: the target command line, the chosen
// backend and the session-scoped output directory all artifacts live under.
type Session struct {
	ID        string
	Target    []string
	Backend   *Backend
	Mode      string
	StartedAt time.Time
	OutputDir string

	mu    sync.Mutex
	state State
}

func NewSession(target []string, backend *Backend, baseDir string) (*Session, error) {
	now := time.Now()
	id := uuid.NewString()
	mode := backend.Capability.Mode()

	// The directory name carries mode, timestamp and a session id fragment
	// so repeated or concurrent sessions never collide.
	dir := filepath.Join(baseDir, fmt.Sprintf("%s-%s-%s-%s",
		settings.CmdName, mode, now.Format("20060102-150405"), id[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create session output directory")
	}

	return &Session{
		ID:        id,
		Target:    target,
		Backend:   backend,
		Mode:      mode,
		StartedAt: now,
		OutputDir: dir,
		state:     StateRunning,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Complete() error {
	return s.transition(StateCompleted)
}

func (s *Session) Interrupt() error {
	return s.transition(StateInterrupted)
}

func (s *Session) Fail() error {
	return s.transition(StateFailed)
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return errors.Wrapf(ErrSessionTerminal, "cannot transition %s to %s", s.state, to)
	}
	s.state = to

	return nil
}

// Artifact paths are mode- and backend-qualified so differing capability
// modes never silently overwrite a prior report.

func (s *Session) artifact(suffix string) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("%s-%s%s", s.Mode, s.Backend.Name, suffix))
}

// TracePath is the raw trace artifact produced by the tracer.
func (s *Session) TracePath() string {
	return s.artifact(s.Backend.traceExt)
}

// ExportPath is the textual export of a binary raw artifact.
func (s *Session) ExportPath() string {
	return s.artifact("-export.txt")
}

// SummaryPath is the derived textual report.
func (s *Session) SummaryPath() string {
	return s.artifact("-summary.txt")
}

// FoldedPath is the folded-stack artifact consumed by flamegraph renderers.
func (s *Session) FoldedPath() string {
	return s.artifact(".folded")
}

// FlamegraphPath is the optional rendered image artifact.
func (s *Session) FlamegraphPath() string {
	return s.artifact("-flamegraph.svg")
}
