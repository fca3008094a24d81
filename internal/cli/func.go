package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/config"
	"github.com/chenyanchen/hotswap/exp/reload"
)

// Producer is the signature of functions watched by the func command.
type Producer = func() string

const eventBuffer = 64

// FuncOptions holds flags for the func command.
type FuncOptions struct {
	*RootOptions
	// Once prints the first generation of every function and exits.
	Once bool
}

// NewFuncCommand creates the func command.
func NewFuncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FuncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "func [name source]",
		Short: "Watch functions and print their result per generation",
		Long: `Compile each function, call it and print its result, again on every
change of its source. Functions take no arguments and return a string.

Without arguments the functions listed under "functions" in the config are
watched; SIGHUP re-reads the config and reconciles the watched set.

Example:
  hotswap func Greeting Greeting.go
  hotswap func --config hotswap.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 args, received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuncs(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "print the first generation and exit")

	return cmd
}

func runFuncs(cmd *cobra.Command, opts *FuncOptions, args []string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	specs := funcSpecs(cfg, args)
	if len(specs) == 0 {
		return fmt.Errorf("no functions: pass a name and source or list them in the config")
	}

	// Reload events arrive on compiling goroutines, some of them inside
	// Reconcile; they are printed from the loop below.
	events := make(chan hotswap.Event, eventBuffer)
	registry, err := newRegistry(cfg, logger, func(e hotswap.Event) {
		select {
		case events <- e:
		default:
			logger.Warn("event dropped", "unit", e.Unit, "kind", e.Kind)
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Teardown(); err != nil {
			logger.Error("teardown", "error", err)
		}
	}()

	set, err := reload.New[Producer](registry, specs)
	if err != nil {
		return err
	}
	defer set.Close()

	out := cmd.OutOrStdout()
	if opts.Once {
		for _, name := range set.Names() {
			printResult(out, set, name)
		}
		return nil
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			reconcile(ctx, opts.RootOptions, set, args, logger)
		case e := <-events:
			switch e.Kind {
			case hotswap.EventReloaded:
				printResult(out, set, e.Unit)
			case hotswap.EventCompileFailed:
				fmt.Fprintf(out, "%s: compile failed: %s\n", e.Unit, e.Error)
			}
		}
	}
}

func funcSpecs(cfg *config.Config, args []string) []reload.Spec {
	if len(args) == 2 {
		return []reload.Spec{{Name: args[0], Path: args[1], Options: withBackendLibraries(cfg, hotswap.Options{PreloadHost: true})}}
	}
	specs := make([]reload.Spec, 0, len(cfg.Functions))
	for _, spec := range cfg.Functions {
		spec.Options = withBackendLibraries(cfg, spec.Options)
		specs = append(specs, spec)
	}
	return specs
}

func reconcile(ctx context.Context, opts *RootOptions, set *reload.Reconciler[Producer], args []string, logger *slog.Logger) {
	cfg, err := opts.load()
	if err != nil {
		logger.Error("reload config", "error", err)
		return
	}
	res, err := set.Reconcile(ctx, funcSpecs(cfg, args))
	if err != nil {
		logger.Error("reconcile functions", "error", err)
		return
	}
	logger.Info("functions reconciled", "added", res.Added, "removed", res.Removed, "rebuilt", res.Rebuilt)
}

func printResult(w io.Writer, set *reload.Reconciler[Producer], name string) {
	slot, ok := set.Get(name)
	if !ok {
		return
	}
	fn, err := slot.Get()
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		return
	}
	fmt.Fprintf(w, "%s (generation %d): %s\n", name, slot.Generation(), fn())
}
