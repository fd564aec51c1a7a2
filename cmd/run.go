package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/listingharvest/crawler/internal/config"
	"github.com/listingharvest/crawler/internal/crawler"
	"github.com/listingharvest/crawler/internal/fingerprint"
	"github.com/listingharvest/crawler/internal/logging"
	"github.com/listingharvest/crawler/internal/metrics"
	"github.com/listingharvest/crawler/internal/session"
	"github.com/listingharvest/crawler/internal/storage/csvfile"
	"github.com/listingharvest/crawler/internal/storage/postgres"
)

// newRunCmd creates the 'run' subcommand, which executes one crawl campaign.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs a crawl campaign until the listing target is met",
		RunE:  runCampaign,
	}
}

// managerAdapter narrows *session.Manager to the crawler.SessionManager interface.
type managerAdapter struct {
	mgr *session.Manager
}

func (a managerAdapter) Open(ctx context.Context) (crawler.Session, error) {
	s, err := a.mgr.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func runCampaign(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Addr, logger)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics listener shutdown", zap.Error(err))
			}
		}()
	}

	seed := cfg.Crawl.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	gen := fingerprint.NewGenerator(fingerprint.Pools{}, rand.New(rand.NewSource(rng.Int63())))
	sessions := session.NewManager(gen, session.Config{Headless: cfg.Browser.Headless}, logger)
	pacer := crawler.NewPacer(rand.New(rand.NewSource(rng.Int63())))

	fetcher := crawler.NewChromedpFetcher(cfg.FetcherConfig(), pacer, crawler.NewExtractor(), logger)
	controller := crawler.NewController(
		managerAdapter{mgr: sessions},
		fetcher,
		pacer,
		rand.New(rand.NewSource(rng.Int63())),
		cfg.ControllerConfig(),
		logger,
	)
	coordinator := crawler.NewCoordinator(controller, pacer, cfg.CoordinatorConfig(), logger)

	listings := coordinator.Run(ctx, cfg.Regions())
	if len(listings) == 0 {
		logger.Warn("campaign produced no listings")
	}

	// Persist even partial results, regardless of how the campaign ended.
	writeCtx := context.WithoutCancel(ctx)
	if err := csvfile.NewWriter(cfg.Output.CSVPath, logger).Write(writeCtx, listings); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewListingStore(writeCtx, postgres.StoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("open listing store: %w", err)
		}
		defer store.Close()
		if err := store.Write(writeCtx, listings); err != nil {
			return fmt.Errorf("store listings: %w", err)
		}
	}

	metrics.LogCounters(logger)
	logger.Info("harvest complete",
		zap.Int("listings", len(listings)),
		zap.String("csv_path", cfg.Output.CSVPath),
	)
	return nil
}
