package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chenyanchen/hotswap/internal/opsfeed"
	"github.com/chenyanchen/hotswap/shell"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	// Frames stops the run after that many frames; zero runs until
	// interrupted or the application quits.
	Frames uint64
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [app-source]",
		Short: "Run a reloadable application headless",
		Long: `Run the application declared in app-source (or app.path of the config)
inside a headless host, swapping in a new generation whenever its source
changes.

Reload events are streamed as JSON over a websocket at /ws and reload
metrics are exported at /metrics.

Example:
  hotswap run Game.go
  hotswap run --config game/hotswap.yaml --frames 600`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runApp(cmd, opts, path)
		},
	}

	cmd.Flags().Uint64Var(&opts.Frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")

	return cmd
}

func runApp(cmd *cobra.Command, opts *RunOptions, path string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if path == "" && cfg.App.Path == "" {
		return fmt.Errorf("no application source: pass one or set app.path")
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	feed := opsfeed.New(opsfeed.WithLogger(logger))
	defer feed.Close()

	registry, err := newRegistry(cfg, logger, feed.Publish)
	if err != nil {
		return err
	}

	host := shell.NewHeadless(cfg.App.Width, cfg.App.Height)
	host.SetFrameRate(cfg.App.FrameRate)
	sh, err := shell.New(shellConfig(cfg, registry, host, path))
	if err != nil {
		return err
	}
	if err := sh.Start(); err != nil {
		return err
	}
	defer func() {
		sh.Shutdown()
		if err := registry.Teardown(); err != nil {
			logger.Error("teardown", "error", err)
		}
	}()
	if sh.Delegate() == nil {
		logger.Warn("no generation compiled yet, waiting for a valid source")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		shell.Run(runCtx, sh, host)
		return nil
	})
	if opts.Frames > 0 {
		g.Go(func() error {
			watchFrames(runCtx, host, opts.Frames)
			return nil
		})
	}

	for _, srv := range servers(cfg.MetricsAddr, cfg.FeedAddr, feed) {
		g.Go(func() error {
			logger.Info("serving", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("stopped", "frames", host.ElapsedFrames(), "generation", sh.Generation())
	return err
}

// servers builds the listeners for metrics and the event feed, sharing one
// server when both use the same address.
func servers(metricsAddr, feedAddr string, feed http.Handler) []*http.Server {
	var out []*http.Server
	switch {
	case metricsAddr != "" && metricsAddr == feedAddr:
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		m.Handle("/ws", feed)
		out = append(out, &http.Server{Addr: metricsAddr, Handler: m})
	default:
		if metricsAddr != "" {
			m := http.NewServeMux()
			m.Handle("/metrics", promhttp.Handler())
			out = append(out, &http.Server{Addr: metricsAddr, Handler: m})
		}
		if feedAddr != "" {
			m := http.NewServeMux()
			m.Handle("/ws", feed)
			out = append(out, &http.Server{Addr: feedAddr, Handler: m})
		}
	}
	return out
}

func watchFrames(ctx context.Context, host *shell.Headless, frames uint64) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if host.ElapsedFrames() >= frames {
				host.Quit()
				return
			}
		}
	}
}
