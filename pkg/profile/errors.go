package profile

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrTargetEmpty        = errors.New("target command is empty")
	ErrTargetNotFound     = errors.New("target executable not found")
	ErrBackendUnavailable = errors.New("backend tool disappeared after probing")
	ErrNoRenderer         = errors.New("no flamegraph renderer found")
	ErrSessionTerminal    = errors.New("session is already terminal")
	ErrUnknownMode        = errors.New("unknown profiling mode")
)

// NoBackendAvailableError reports that no backend for the requested
// capability passed its probe, naming every candidate tried so the caller
// can print actionable remediation.
type NoBackendAvailableError struct {
	Capability Capability
	Tried      []string
}

func (e *NoBackendAvailableError) Error() string {
	return fmt.Sprintf("no backend available for capability %q (tried: %s)",
		e.Capability, strings.Join(e.Tried, ", "))
}
