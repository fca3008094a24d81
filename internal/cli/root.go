// Package cli implements the hotswap command.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chenyanchen/hotswap/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config   string
	LogLevel string // overrides log_level from the config file
}

// NewRootCommand creates the root command for the hotswap CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hotswap",
		Short: "hotswap - live-reloading Go sources",
		Long:  "Watch Go source units and swap their compiled generations into a running process.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel == "" {
				return nil
			}
			if _, err := config.ParseLevel(opts.LogLevel); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", config.DefaultFile, "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewFuncCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// load reads the configuration; a missing default file yields the defaults.
func (o *RootOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.Config == config.DefaultFile {
		cfg, err = config.LoadOrDefault(o.Config)
	} else {
		cfg, err = config.Load(o.Config)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
