// Package cmd implements the coxswain command tree.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coxswain-dev/coxswain/internal/conductor"
	"github.com/coxswain-dev/coxswain/internal/config"
)

var (
	flagConfig  string
	flagVerbose bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:           "coxswain",
	Short:         "Conduct remote shell sessions over a single transport",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := flagConfig
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
		if flagVerbose {
			cfg.Verbose = true
		}

		level := slog.LevelInfo
		if cfg.Verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

// newConductor builds the root conductor for a destination argv.
func newConductor(args []string) *conductor.Conductor {
	return conductor.New(conductor.Config{
		SSHArgs:          strings.Join(args, " "),
		ParsedArgs:       parseSSHArgs(args),
		VarsToSend:       cfg.Vars,
		InitialDirectory: cfg.InitialDirectory,
		InjectShell:      cfg.InjectShellIntegration,
		AutopollEnabled:  cfg.Autopoll,
		Verbose:          cfg.Verbose,
	})
}

// parseSSHArgs splits a destination argv into the host identity and
// the command args after it. Flags and their values stay with the
// host.
func parseSSHArgs(args []string) conductor.ParsedArgs {
	var parsed conductor.ParsedArgs
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		parsed.Identity = arg
		parsed.CommandArgs = append([]string(nil), args[i+1:]...)
		break
	}
	return parsed
}
