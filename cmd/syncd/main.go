package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerkeep/ledgersync/internal/client"
	"github.com/ledgerkeep/ledgersync/internal/config"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("ledgersync")
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := client.NewEngine(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating sync engine")
	}
	engine.Start(ctx, true)

	if owner := os.Getenv("LEDGERSYNC_OWNER_ID"); owner != "" {
		engine.SignIn(owner, os.Getenv("LEDGERSYNC_AUTH_TOKEN"))
	}

	unsubscribe := engine.OnStatus(func(status models.SyncStatus) {
		log.Info().
			Bool("online", status.IsOnline).
			Bool("channel", status.IsChannelConnected).
			Int("pending", status.PendingCount).
			Str("last_error", status.LastError).
			Msg("sync status")
	})
	defer unsubscribe()

	for _, table := range models.AllTables() {
		teardown := engine.Subscribe(ctx, table, "", func(event models.ChangeEvent) {
			log.Info().
				Str("kind", string(event.Kind)).
				Str("table", string(event.Table)).
				Str("row_id", event.RowID()).
				Msg("change event")
		})
		defer teardown()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Final drain attempt; the signal context is already done, so give the
	// flush its own short-lived one.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err = engine.ForceSync(drainCtx); err != nil {
		log.Warn().Err(err).Msg("error draining offline queue on shutdown")
	}
	cancel()

	if err = engine.Close(); err != nil {
		log.Err(err).Msg("error closing sync engine")
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}

	if buildDate == "" {
		buildDate = "N/A"
	}

	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
