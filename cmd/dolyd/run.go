package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-doly/internal/config"
	"github.com/teslashibe/go-doly/internal/log"
	"github.com/teslashibe/go-doly/internal/tracing"
	"github.com/teslashibe/go-doly/pkg/driver/sim"
	"github.com/teslashibe/go-doly/pkg/robot"
	"github.com/teslashibe/go-doly/pkg/web"
)

func newRunCmd(opts *options) *cobra.Command {
	var addr string
	var noWeb bool
	var latency time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start every subsystem and serve the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Web.Addr = addr
			}
			if noWeb {
				cfg.Web.Enabled = false
			}
			if latency > 0 {
				cfg.Sim.Latency = latency
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, loader, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override web.addr")
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "do not serve the dashboard")
	cmd.Flags().DurationVar(&latency, "auto-latency", 0, "override sim.latency, the simulated command duration")
	return cmd
}

func run(ctx context.Context, loader *config.Loader, cfg config.Config) error {
	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.Component("dolyd")

	// Only the log level can change without a restart.
	loader.Watch(func(next config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "file", loader.File(), "error", err)
			return
		}
		if next.Log.Level != cfg.Log.Level {
			log.SetLevel(next.Log.Level)
			cfg.Log.Level = next.Log.Level
			logger.Info("log level changed", "level", next.Log.Level)
		}
	})

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	drv := sim.New(
		sim.WithAuto(cfg.Sim.Latency, cfg.Sim.Steps),
		sim.WithLogger(log.Component("sim")),
	)
	r, err := robot.New(cfg.Config, drv,
		robot.WithLogger(log.Component("robot")),
		robot.WithTracer(tp.Tracer()),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start robot: %w", err)
	}
	logger.Info("🤖 doly started", "config", loader.File(), "tracing", tp.Enabled())

	if !cfg.Web.Enabled {
		<-ctx.Done()
		logger.Info("👋 shutting down")
		return nil
	}

	srv := web.NewServer(cfg.Web.Addr, r,
		web.WithLogger(log.L()),
		web.WithUpdateInterval(cfg.Web.UpdateInterval),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("web: %w", err)
	}
	logger.Info("👋 shutting down")
	return nil
}
