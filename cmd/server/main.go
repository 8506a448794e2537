package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/realtuner/stage/internal/adapters/http"
	"github.com/realtuner/stage/internal/adapters/playback"
	wssignal "github.com/realtuner/stage/internal/adapters/signal"
	"github.com/realtuner/stage/internal/adapters/store"
	"github.com/realtuner/stage/internal/app"
	"github.com/realtuner/stage/internal/config"
	"github.com/realtuner/stage/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	snapshots, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open snapshot store")
	}
	defer snapshots.Close()

	var sinks core.SinkFactory
	if cfg.PlaybackEnabled {
		sinks = playback.Factory(cfg.PlaybackBin, cfg.SinkCloseTimeout)
	}

	hub := wssignal.NewHub()
	relay := app.NewAudioRelay(hub, sinks)
	coord := app.NewCoordinator(
		app.Options{
			TurnSeconds:        cfg.TurnSeconds,
			GracePeriod:        cfg.GracePeriod,
			DisconnectDebounce: cfg.DisconnectDebounce,
		},
		app.LoadState(snapshots),
		app.NewPresence(),
		app.NewTurnTimer(time.Second),
		relay,
		snapshots,
		hub,
	)
	coord.Start()

	ctl := wssignal.NewController(coord, relay, hub, cfg.ReadLimit)

	r := router.SetupRouter(ctx, cfg, coord, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Stage server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	coord.Shutdown()
	log.Info().Msg("Server exited gracefully")
}
