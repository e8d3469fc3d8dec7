package profile

import (
	"io"
	"path/filepath"
	"strconv"
)

// Capability tags what a backend can observe about the target.
type Capability string

const (
	CapSyscallLatency Capability = "syscall-latency"
	CapOffCPUStacks   Capability = "off-cpu-stacks"
)

// Mode returns the short mode name used in artifact file names.
func (c Capability) Mode() string {
	if c == CapSyscallLatency {
		return ModeSyscall
	}
	return ModeOffCPU
}

// Backend is one of a closed set of tracing strategies. Backends are
// enumerated at process start in priority order and never mutated after the
// prober resolved the tool path.
type Backend struct {
	Name        string
	Capability  Capability
	Attach      bool
	Approximate bool
	InstallHint string

	// Candidate binary names, first one found in PATH wins.
	tools    []string
	tool     string
	traceExt string

	// The tracer writes its raw output to stdout instead of a file.
	stdoutIsTrace bool

	dryRunArgv func(tmpDir string) []string
	wrapArgv   func(tracePath string, target []string) []string
	attachArgv func(tracePath string, pid int) []string

	// exportArgv converts a binary raw artifact into the textual form the
	// collector parses. Nil when the raw artifact is already textual.
	exportArgv func(tracePath string) []string

	collect func(r io.Reader, topN int) (*Collection, error)
}

// Tool returns the resolved tracer binary path.
func (b *Backend) Tool() string {
	return b.tool
}

// backends returns the candidate list, priority ordered within each
// capability. Off-CPU observation falls back from the dedicated BCC tool to
// kernel scheduler tracing to plain CPU sampling, which measures on-CPU time
// and is flagged approximate in the resulting report.
func backends() []*Backend {
	return []*Backend{
		{
			Name:          "offcputime",
			Capability:    CapOffCPUStacks,
			Attach:        true,
			InstallHint:   "install bcc-tools (offcputime or offcputime-bpfcc)",
			tools:         []string{"offcputime", "offcputime-bpfcc"},
			traceExt:      ".out",
			stdoutIsTrace: true,
			attachArgv: func(_ string, pid int) []string {
				return []string{"-f", "-p", strconv.Itoa(pid)}
			},
			collect: func(r io.Reader, _ int) (*Collection, error) {
				return CollectFolded(r)
			},
		},
		{
			Name:        "perf-sched",
			Capability:  CapOffCPUStacks,
			Attach:      true,
			InstallHint: "install linux perf with scheduler tracepoint access",
			tools:       []string{"perf"},
			traceExt:    ".data",
			dryRunArgv: func(tmpDir string) []string {
				return []string{"sched", "record", "-o", filepath.Join(tmpDir, "probe.data"), "--", "true"}
			},
			attachArgv: func(tracePath string, pid int) []string {
				return []string{"sched", "record", "-o", tracePath, "-p", strconv.Itoa(pid)}
			},
			exportArgv: func(tracePath string) []string {
				return []string{"sched", "latency", "-i", tracePath}
			},
			collect: func(r io.Reader, _ int) (*Collection, error) {
				return CollectSchedLatency(r)
			},
		},
		{
			Name:        "perf-record",
			Capability:  CapOffCPUStacks,
			Approximate: true,
			InstallHint: "install linux perf",
			tools:       []string{"perf"},
			traceExt:    ".data",
			dryRunArgv: func(tmpDir string) []string {
				return []string{"record", "-F", "99", "-o", filepath.Join(tmpDir, "probe.data"), "--", "true"}
			},
			wrapArgv: func(tracePath string, target []string) []string {
				argv := []string{"record", "-g", "-F", "99", "-o", tracePath, "--"}
				return append(argv, target...)
			},
			exportArgv: func(tracePath string) []string {
				return []string{"script", "-i", tracePath}
			},
			collect: func(r io.Reader, _ int) (*Collection, error) {
				return CollectStackSamples(r)
			},
		},
		{
			Name:        "strace",
			Capability:  CapSyscallLatency,
			InstallHint: "install strace",
			tools:       []string{"strace"},
			traceExt:    ".log",
			dryRunArgv: func(tmpDir string) []string {
				return []string{"-qq", "-o", filepath.Join(tmpDir, "probe.log"), "true"}
			},
			wrapArgv: func(tracePath string, target []string) []string {
				argv := []string{"-f", "-ttt", "-T", "-o", tracePath, "--"}
				return append(argv, target...)
			},
			collect: CollectSyscallTrace,
		},
	}
}
