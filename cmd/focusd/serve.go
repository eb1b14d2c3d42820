package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-focus/internal/config"
	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/eeg"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/producer"
	"github.com/teslashibe/go-focus/pkg/sensor"
	"github.com/teslashibe/go-focus/pkg/snapshot"
	"github.com/teslashibe/go-focus/pkg/web"
)

type serveFlags struct {
	host      string
	port      int
	eeg       string
	autostart bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the producers and the websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			log.Init(cfg.Log.Level, cfg.Log.Format)
			return serve(cmd.Context(), cfg, log.L())
		},
	}
	cmd.Flags().StringVar(&f.host, "host", config.DefaultHost, "Listen host (env FOCUS_HOST)")
	cmd.Flags().IntVarP(&f.port, "port", "p", config.DefaultPort, "Listen port (env FOCUS_PORT)")
	cmd.Flags().StringVar(&f.eeg, "eeg", config.EEGSynthetic, "EEG source: synthetic, mqtt or none")
	cmd.Flags().BoolVar(&f.autostart, "blink-autostart", false, "Start blink tracking without waiting for a client")
	return cmd
}

// apply copies explicitly set flags over cfg.
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("eeg") {
		cfg.EEG.Source = f.eeg
	}
	if flags.Changed("blink-autostart") {
		cfg.Blink.Autostart = f.autostart
	}
	return cfg.Validate()
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	// The controller submits to the hub and the hub drives the controller.
	var h *hub.Hub
	sink := producer.SinkFunc(func(s snapshot.Snapshot) { h.Submit(s) })

	ctrl := producer.NewBlinkController(ctx, cfg.BlinkProducer(),
		camera.Opener(cfg.Camera.Config, logger), sink, producer.WithLogger(logger))
	h = hub.New("focus", cfg.HubSettings(), hub.WithLogger(logger), hub.WithController(ctrl))
	webOpts := []web.Option{web.WithLogger(logger), web.WithBlinkStatus(ctrl)}

	if src, err := openEEG(ctx, cfg, logger); err != nil {
		logger.Warn("eeg unavailable, focus disabled", "source", cfg.EEG.Source, "error", err)
		h.Submit(snapshot.NewFocus(snapshot.StatusError, time.Now(), snapshot.Focus{}).
			WithMessage(fmt.Sprintf("EEG unavailable: %v", err)))
	} else if src != nil {
		if st, ok := src.(web.EEGStats); ok {
			webOpts = append(webOpts, web.WithEEGStats(st))
		}
		fp, err := producer.NewFocusProducer(cfg.FocusCalculator(), src, h, producer.WithLogger(logger))
		if err != nil {
			src.Close()
			return err
		}
		g.Go(func() error {
			if err := fp.Run(ctx); err != nil {
				logger.Error("focus producer stopped", "error", err)
			}
			return nil
		})
	}

	srv := web.NewServer(cfg.Server.Addr(), h, webOpts...)

	g.Go(func() error {
		return h.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		ctrl.Wait()
		return nil
	})

	if cfg.Blink.Autostart {
		if _, err := ctrl.Start(ctx); err != nil {
			logger.Warn("blink autostart failed", "error", err)
		}
	}

	logger.Info("focusd running",
		"addr", cfg.Server.Addr(),
		"eeg", cfg.EEG.Source,
		"blink_autostart", cfg.Blink.Autostart)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("focusd stopped")
	return nil
}

// openEEG returns the configured sample source, or nil for "none".
func openEEG(ctx context.Context, cfg config.Config, logger *slog.Logger) (sensor.SampleSource, error) {
	switch cfg.EEG.Source {
	case config.EEGNone:
		return nil, nil
	case config.EEGMQTT:
		return eeg.Open(ctx, cfg.EEG.Config, logger)
	default:
		return sensor.NewSyntheticEEG(cfg.EEG.SampleRate), nil
	}
}
