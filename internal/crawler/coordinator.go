package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegionCrawler is the per-region crawl operation the coordinator invokes.
type RegionCrawler interface {
	CrawlRegion(ctx context.Context, region Region) ([]Listing, error)
}

// CoordinatorConfig holds campaign-level knobs.
type CoordinatorConfig struct {
	// TotalTarget is the number of listings the campaign collects overall.
	TotalTarget int
	// InterRegionDelay paces the hand-off between regions.
	InterRegionDelay DelayRange
}

// Coordinator runs a crawl campaign: regions strictly in order, each invoked
// with the listings still needed globally. A failing region contributes
// whatever it gathered and never aborts the campaign.
type Coordinator struct {
	controller RegionCrawler
	pacer      Pacer
	cfg        CoordinatorConfig
	logger     *zap.Logger
}

// NewCoordinator builds a Coordinator over the given region crawler.
func NewCoordinator(controller RegionCrawler, pacer Pacer, cfg CoordinatorConfig, logger *zap.Logger) *Coordinator {
	if cfg.InterRegionDelay == (DelayRange{}) {
		cfg.InterRegionDelay = DelayRange{Min: 3 * time.Second, Max: 6 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		controller: controller,
		pacer:      pacer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run crawls the regions in order until the total target is met and returns
// the merged ordered listing sequence.
func (co *Coordinator) Run(ctx context.Context, regions []Region) []Listing {
	runID := uuid.NewString()
	log := co.logger.With(zap.String("run_id", runID))
	log.Info("starting crawl campaign",
		zap.Int("total_target", co.cfg.TotalTarget),
		zap.Int("regions", len(regions)),
	)

	var all []Listing
	for i, region := range regions {
		remaining := co.cfg.TotalTarget - len(all)
		if remaining <= 0 {
			log.Info("total target reached, skipping remaining regions",
				zap.Int("collected", len(all)))
			break
		}
		region.TargetCount = remaining

		got, err := co.controller.CrawlRegion(ctx, region)
		if err != nil {
			// Partial results still count; the campaign moves on.
			log.Error("region crawl failed",
				zap.String("region", region.Code),
				zap.Int("partial", len(got)),
				zap.Error(err),
			)
		}
		all = append(all, got...)
		if err == nil {
			TotalRegionsCompleted.Inc()
		}
		log.Info("region finished",
			zap.String("region", region.Code),
			zap.Int("collected", len(got)),
			zap.Int("total", len(all)),
		)

		if len(all) < co.cfg.TotalTarget && i < len(regions)-1 {
			waited := co.pacer.Wait(ctx, co.cfg.InterRegionDelay)
			log.Debug("inter-region pause", zap.Duration("waited", waited))
		}
	}

	log.Info("campaign finished", zap.Int("collected", len(all)))
	return all
}
