package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tnyamukapa/rentpay/internal/core/events"
	escrowPkg "github.com/tnyamukapa/rentpay/internal/escrow"
	escrowPostgres "github.com/tnyamukapa/rentpay/internal/escrow/postgres"
	"github.com/tnyamukapa/rentpay/internal/idempotency"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers such as the escrow release sweeper.`,
}

// Escrow sweeper command
var escrowWorkerCmd = &cobra.Command{
	Use:   "escrow",
	Short: "Start the escrow release sweeper",
	Long:  `Start the sweeper that releases escrow holds whose dispute-free schedule has passed`,
	Run: func(cmd *cobra.Command, args []string) {
		startEscrowWorker()
	},
}

var (
	sweepInterval  time.Duration
	sweepBatchSize int
)

func startEscrowWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.App.Environment, "service", config.App.Name+"-worker")
	lg := slog.Default()

	// Use command line flags if provided, otherwise use config values
	interval := getDurationFlag(sweepInterval, config.Escrow.SweepInterval)
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := getIntFlag(sweepBatchSize, config.Escrow.SweepBatchSize)
	if batchSize <= 0 {
		batchSize = 100
	}

	db, gormDB, err := initDB(config.Database)
	if err != nil {
		lg.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eventBus := events.NewEventBus(lg)
	escrowPkg.NewEventHandler(lg).RegisterEventHandlers(eventBus)
	escrowService := escrowPkg.NewService(escrowPostgres.NewEscrowRepository(gormDB), eventBus, config.Escrow, lg)
	idemStore := idempotency.NewPostgresStore(gormDB)

	lg.Info("starting escrow sweeper",
		"interval", interval.String(),
		"batch_size", batchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		lg.Info("received signal, shutting down escrow sweeper", "signal", sig)
		cancel()
	}()

	sweep := func() {
		released, err := escrowService.ReleaseDue(ctx, batchSize)
		if err != nil {
			lg.Error("escrow sweep failed", "error", err)
			return
		}
		if released > 0 {
			lg.Info("escrow sweep released holds", "released", released)
		}

		purged, err := idemStore.PurgeExpired(ctx)
		if err != nil {
			lg.Error("idempotency purge failed", "error", err)
			return
		}
		if purged > 0 {
			lg.Info("purged expired idempotency records", "purged", purged)
		}
	}

	// Run once at startup so holds that came due while the worker was
	// down are not delayed a full interval.
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer drainCancel()
			if err := eventBus.Drain(drainCtx); err != nil {
				lg.Warn("event bus drained with handlers still pending", "error", err)
			}
			lg.Info("escrow sweeper stopped")
			return
		}
	}
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	escrowWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Sweep interval (overrides config)")
	escrowWorkerCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 0, "Holds released per sweep (overrides config)")

	workerCmd.AddCommand(escrowWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
