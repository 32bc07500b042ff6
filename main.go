package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cosmomed/pharmacy-locator/access"
	"github.com/cosmomed/pharmacy-locator/config"
	"github.com/cosmomed/pharmacy-locator/data"
	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/directory"
	"github.com/cosmomed/pharmacy-locator/events"
	"github.com/cosmomed/pharmacy-locator/health"
	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/locator"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/cosmomed/pharmacy-locator/scheduler"
	"github.com/cosmomed/pharmacy-locator/server"
	"github.com/cosmomed/pharmacy-locator/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	statsRefreshInterval = 15 * time.Minute
	publishTimeout       = 5 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmacy-locator",
		Short: "CosmoMed pharmacy locator API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; the environment may already be set.
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading .env: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the locator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load the pharmacy register from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logging.Shutdown()

			store, err := directory.Open(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			res, err := store.ImportCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			logging.Info("Pharmacy register imported", "file", args[0],
				"rows", res.Rows, "created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
			return nil
		},
	}
}

// setup loads the configuration and initializes logging.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	err = logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
		Level:          cfg.LogLevel,
		Console:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, nil
}

func newPublisher(cfg *config.Config) interfaces.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logging.Info("No Kafka brokers configured, selection events are logged only")
		return events.LogPublisher{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

// newSource reads the local store unless a remote directory is configured.
func newSource(cfg *config.Config, store *directory.Store) interfaces.PharmacySource {
	if cfg.PharmacySourceURL == "" {
		return directory.NewSource(store)
	}
	logging.Info("Fetching pharmacies from remote directory", "url", cfg.PharmacySourceURL)
	return pharmacy.NewHTTPSource(cfg.PharmacySourceURL, cfg.FetchTimeout, cfg.FetchRetries)
}

func runServer() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.Shutdown()

	logging.Info("Configuration loaded", "env", cfg.Env.String(), "db_driver", cfg.DBDriver)

	store, err := directory.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog := data.NewCatalog()
	catalog.SetServerStartTime(time.Now())

	publisher := events.NewAsyncPublisher(newPublisher(cfg), publishTimeout)
	defer publisher.Close()

	verifier := access.NewTokenVerifier(cfg.JWTSecret)
	if !verifier.Enabled() {
		logging.Warn("JWT_SECRET is not set, every caller is a general user")
	}

	registry := locator.NewRegistry(locator.Deps{
		Source:        newSource(cfg, store),
		Publisher:     publisher,
		Provider:      directions.NewHTTPProvider(cfg.DirectionsAPIURL, cfg.DirectionsAPIKey, cfg.RouteTimeout),
		ClusterGridPx: cfg.ClusterGridPx,
		RouteTimeout:  cfg.RouteTimeout,
	})

	sched := scheduler.NewScheduler(catalog, store, registry, scheduler.Options{
		RefreshInterval: statsRefreshInterval,
		IdleTimeout:     cfg.SessionIdleTimeout,
	})
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv := server.NewServer(cfg, server.Deps{
		Directory: store,
		Catalog:   catalog,
		Sessions:  registry,
		Health:    health.NewHealthChecker(catalog, store, registry, statsRefreshInterval),
		Validator: validation.NewValidator(),
		Verifier:  verifier,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logging.Error("Server failed", "error", err)
			return err
		}
		return nil
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
