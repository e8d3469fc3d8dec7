package profile

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waitprof/waitprof/internal/settings"
	"github.com/waitprof/waitprof/pkg/cmd/options"
	"github.com/waitprof/waitprof/pkg/profile"
)

const CmdName = "profile"

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <target> [target args...]", CmdName),
		Short: "Profile where a target process spends time waiting",
		Long: fmt.Sprintf(`
%s runs the target under the best available tracing backend for the requested
mode and writes a latency report beneath a session-scoped output directory.
The session lasts until the target exits or it is interrupted with Ctrl-C;
an interrupted session still reports over the data collected so far.
`, CmdName),
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.mode, "mode", "m", profile.ModeOffCPU, "Profiling mode (syscall, offcpu)")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", settings.DefaultOutputDir, "Directory the session output directory is created under")
	cmd.Flags().IntVar(&o.topN, "top", profile.DefaultTopN, "Number of entries in the slow-call list")

	cmd.Flags().IntVar(&o.chunks, "chunks", 0, "Forwarded to the target as --chunks")
	cmd.Flags().IntVar(&o.parallel, "parallel", 0, "Forwarded to the target as --parallel")
	cmd.Flags().BoolVar(&o.force, "force", false, "Forwarded to the target as --force")

	cmd.Flags().BoolVar(&o.status, "status", true, "Periodically print a status line during the run")
	cmd.Flags().BoolVar(&o.flamegraph, "flamegraph", true, "Render a flamegraph when a renderer is available")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	profiler := profile.NewProfiler(
		profile.WithMode(o.mode),
		profile.WithOutputDir(o.outputDir),
		profile.WithTopN(o.topN),
		profile.WithStatus(o.status),
		profile.WithFlamegraph(o.flamegraph),
		profile.WithLogger(o.Logger),
	)

	sess, err := profiler.Run(o.Ctx, o.targetArgv(cmd, args))
	if err != nil {
		return errors.Wrap(err, "profiling failed")
	}
	o.Logger.Info().
		Str("state", sess.State().String()).
		Str("output", sess.OutputDir).
		Msg("session finished")

	return nil
}

// targetArgv builds the target's argument vector, forwarding the download
// flags the target understands. The target remains an opaque executable; the
// orchestrator only interprets its exit status.
func (o *Options) targetArgv(cmd *cobra.Command, args []string) []string {
	argv := make([]string, 0, len(args)+5)
	argv = append(argv, args...)
	if cmd.Flags().Changed("chunks") {
		argv = append(argv, "--chunks", strconv.Itoa(o.chunks))
	}
	if cmd.Flags().Changed("parallel") {
		argv = append(argv, "--parallel", strconv.Itoa(o.parallel))
	}
	if o.force {
		argv = append(argv, "--force")
	}

	return argv
}
