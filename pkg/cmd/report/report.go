package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waitprof/waitprof/pkg/cmd/options"
	"github.com/waitprof/waitprof/pkg/profile"
)

const CmdName = "report"

const (
	kindSyscall = "syscall"
	kindFolded  = "folded"
	kindSched   = "sched"
)

type Options struct {
	kind string
	topN int

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <trace-file>", CmdName),
		Short: "Re-aggregate an existing raw trace artifact",
		Long: fmt.Sprintf(`
%s reduces a previously recorded textual trace into the same summary a live
session would produce, without re-running the target.
`, CmdName),
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.kind, "kind", "k", "", "Trace kind (syscall, folded, sched); inferred from the file extension when empty")
	cmd.Flags().IntVar(&o.topN, "top", profile.DefaultTopN, "Number of entries in top lists")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	path := args[0]
	kind := o.kind
	if kind == "" {
		kind = inferKind(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open trace %s", path)
	}
	defer f.Close()

	notes := profile.Notes{Backend: filepath.Base(path)}
	switch kind {
	case kindSyscall:
		col, err := profile.CollectSyscallTrace(f, o.topN)
		if err != nil {
			return err
		}
		notes.Skips = col.Skips
		return profile.WriteSyscallSummary(os.Stdout, col.Syscalls, notes)
	case kindFolded:
		col, err := profile.CollectFolded(f)
		if err != nil {
			return err
		}
		notes.Skips = col.Skips
		return profile.WriteStackSummary(os.Stdout, col.Stacks, notes, o.topN)
	case kindSched:
		col, err := profile.CollectSchedLatency(f)
		if err != nil {
			return err
		}
		notes.Skips = col.Skips
		return profile.WriteSchedSummary(os.Stdout, col.Sched, notes)
	}

	return errors.Errorf("unknown trace kind %q (use syscall, folded or sched)", kind)
}

// inferKind guesses the trace kind from the artifact name, matching the
// session artifact naming.
func inferKind(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".folded") || strings.HasSuffix(base, ".out"):
		return kindFolded
	case strings.Contains(base, "sched"):
		return kindSched
	}

	return kindSyscall
}
