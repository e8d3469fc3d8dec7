package backends

import (
	"fmt"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waitprof/waitprof/pkg/cmd/options"
	"github.com/waitprof/waitprof/pkg/profile"
)

const CmdName = "backends"

type Options struct {
	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             "Probe and list the tracing backends usable on this host",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	prober := profile.NewProber(profile.WithProberLogger(o.Logger))
	for _, capability := range []profile.Capability{profile.CapOffCPUStacks, profile.CapSyscallLatency} {
		fmt.Printf("%s:\n", capability)
		for _, res := range prober.List(o.Ctx, capability) {
			b := res.Backend
			state := "available"
			if res.Err != nil {
				state = fmt.Sprintf("unavailable (%s)", b.InstallHint)
			}
			notes := ""
			if b.Approximate {
				notes = " [approximate: measures on-CPU time]"
			}
			if b.Attach {
				notes += " [attach mode: partial coverage]"
			}
			fmt.Printf("  %-14s %s%s\n", b.Name, state, notes)
		}
		fmt.Println()
	}

	return nil
}
