// sitewatchd ingests camera uploads, reconciles them against known
// locations, and keeps one digital-twin document per tracked spot.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitewatch/sitewatch/internal/alerts"
	"github.com/sitewatch/sitewatch/internal/api"
	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/db"
	"github.com/sitewatch/sitewatch/internal/ingest"
	"github.com/sitewatch/sitewatch/internal/logging"
	"github.com/sitewatch/sitewatch/internal/storage"
	"github.com/sitewatch/sitewatch/internal/twin"
	"github.com/sitewatch/sitewatch/internal/vision"
)

var Version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "sitewatchd",
		Short:   "Camera image ingestion and digital-twin reconciliation service",
		Version: Version,
	}

	root.AddCommand(serveCmd(), processCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func processCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Reprocess records whose last upload ran without the classifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to reprocess")
	return cmd
}

// app is everything both subcommands need wired up.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	database *db.DB
	repo     *capture.SQLiteRepository
	store    twin.Store
	gateway  *vision.HTTPGateway
	service  *ingest.Service
	hub      *alerts.Hub
}

func bootstrap(withHub bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	files, err := storage.New(cfg.UploadDir())
	if err != nil {
		database.Close()
		return nil, err
	}

	repo := capture.NewRepository(database.Conn())

	var store twin.Store
	if cfg.TwinBaseURL != "" {
		store = twin.NewHTTPStore(cfg.TwinBaseURL, cfg.TwinUsername, cfg.TwinPassword,
			cfg.TwinTimeout(), logging.WithComponent(logger, "twin"))
		logger.Info("twin store enabled", "base_url", cfg.TwinBaseURL,
			"password", logging.SanitizeSecret(cfg.TwinPassword))
	} else {
		store = twin.NewMemoryStore()
		logger.Warn("no twin store configured, documents held in memory only")
	}

	gateway := vision.NewHTTPGateway(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel,
		cfg.VisionTimeout(), cfg.VisionMaxImageBytes, logging.WithComponent(logger, "vision"))
	classifier := vision.NewAdapter(gateway, logging.WithComponent(logger, "vision"))

	var hub *alerts.Hub
	if withHub {
		hub = alerts.NewHub(logging.WithComponent(logger, "alerts"))
	}

	service := ingest.NewService(database.Conn(), repo, store, classifier, gateway,
		files, hub, logging.WithComponent(logger, "ingest"), ingest.Options{
			ProximityMeters: cfg.ProximityMeters,
			HistoryMax:      cfg.HistoryMax,
			Namespace:       cfg.TwinNamespace,
			LockTimeout:     cfg.LockTimeout(),
			SendAlerts:      cfg.SendAlerts,
		})

	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		repo:     repo,
		store:    store,
		gateway:  gateway,
		service:  service,
		hub:      hub,
	}, nil
}

func runServe() error {
	startTime := time.Now()

	a, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer a.database.Close()

	a.logger.Info("starting sitewatchd", "version", Version,
		"addr", a.cfg.Addr, "data_dir", a.cfg.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.hub.Run(ctx)

	server := api.NewServer(api.ServerConfig{
		Addr:       a.cfg.Addr,
		Service:    a.service,
		Repository: a.repo,
		Store:      a.store,
		Hub:        a.hub,
		UploadsDir: a.cfg.UploadDir(),
		Namespace:  a.cfg.TwinNamespace,
		Logger:     logging.WithComponent(a.logger, "api"),
		StartTime:  startTime,
		Version:    Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown error", "error", err)
	}
	a.logger.Info("sitewatchd stopped")
	return nil
}

func runProcess(limit int) error {
	a, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer a.database.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	count, err := a.service.Reprocess(ctx, limit)
	if err != nil {
		return fmt.Errorf("reprocess: %w", err)
	}
	a.logger.Info("reprocessing finished", "count", count)
	return nil
}
