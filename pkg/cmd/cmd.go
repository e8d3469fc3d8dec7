package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waitprof/waitprof/internal/settings"
	"github.com/waitprof/waitprof/pkg/cmd/backends"
	"github.com/waitprof/waitprof/pkg/cmd/options"
	"github.com/waitprof/waitprof/pkg/cmd/profile"
	"github.com/waitprof/waitprof/pkg/cmd/report"
)

const logLevelInfo = "info"

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: fmt.Sprintf("%s is a latency profiling orchestrator", settings.CmdName),
		Long: fmt.Sprintf(`
%s drives a target process under the best available OS tracing backend and
reduces the raw trace into latency summaries, folded stacks and flamegraphs,
focusing on where the process waits rather than where it burns CPU.
`, settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.AddCommand(profile.NewCommand(opts))
	cmd.AddCommand(backends.NewCommand(opts))
	cmd.AddCommand(report.NewCommand(opts))
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", logLevelInfo, "Log level (trace, debug, info, warn, error, fatal, panic)")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("terminating...")
		cancel()
	}()

	opts := options.NewCommonOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewCommand(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
