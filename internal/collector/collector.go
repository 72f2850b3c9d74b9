// Package collector runs the resumable tile sweep: workers pull seed
// points, query the listings source, and checkpoint each seed atomically
// so an interrupted run resumes where it stopped.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shiok-scout/gems-cli/internal/checkpoint"
	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
	"github.com/shiok-scout/gems-cli/internal/resilience"
	"github.com/shiok-scout/gems-cli/pkg/places"
)

// Collector sweeps seed points and checkpoints the results.
type Collector struct {
	store   checkpoint.Store
	source  places.Client
	limiter *rate.Limiter
	cfg     config.CollectConfig
}

// Stats summarizes one sweep run.
type Stats struct {
	Swept    int // seeds queried this run
	Skipped  int // seeds already checkpointed
	Failed   int // seeds that exhausted retries
	Entities int // raw entities stored this run
}

// New creates a Collector. The rate limiter is shared across workers so
// the aggregate request rate stays within the source's quota no matter
// how many workers run.
func New(store checkpoint.Store, source places.Client, cfg config.CollectConfig) *Collector {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Collector{
		store:   store,
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cfg:     cfg,
	}
}

// Run sweeps every seed not yet checkpointed. A seed that fails after
// retries is recorded and skipped; the sweep continues. Only context
// cancellation aborts the run.
func (c *Collector) Run(ctx context.Context, seedList []model.Seed) (Stats, error) {
	log := zap.L().With(zap.String("component", "collector"))

	var swept, skipped, failed, entities atomic.Int64

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, seed := range seedList {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			done, err := c.store.Has(gctx, seed.Index)
			if err != nil {
				return eris.Wrapf(err, "collector: check seed %d", seed.Index)
			}
			if done {
				skipped.Add(1)
				return nil
			}

			sLog := log.With(
				zap.Int("seed", seed.Index),
				zap.Float64("lat", seed.Lat),
				zap.Float64("lon", seed.Lon),
			)

			found, err := c.sweepSeed(gctx, seed)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				sLog.Warn("seed failed after retries", zap.Error(err))
				if markErr := c.store.MarkFailed(gctx, seed.Index, err.Error()); markErr != nil {
					return eris.Wrapf(markErr, "collector: record failure for seed %d", seed.Index)
				}
				failed.Add(1)
				return nil // don't abort the sweep on individual seed failure
			}

			if err := c.store.Append(gctx, seed.Index, found); err != nil {
				return eris.Wrapf(err, "collector: checkpoint seed %d", seed.Index)
			}

			swept.Add(1)
			entities.Add(int64(len(found)))
			sLog.Debug("seed swept", zap.Int("entities", len(found)))
			return nil
		})
	}

	err := g.Wait()

	stats := Stats{
		Swept:    int(swept.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
		Entities: int(entities.Load()),
	}
	log.Info("sweep finished",
		zap.Int("swept", stats.Swept),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("entities", stats.Entities),
	)
	return stats, err
}

// sweepSeed queries a single seed point with rate limiting and retries.
func (c *Collector) sweepSeed(ctx context.Context, seed model.Seed) ([]model.RawEntity, error) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts: c.cfg.MaxRetries + 1,
		OnRetry:     resilience.RetryLogger("places", "search_nearby"),
	}

	results, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]places.Place, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.source.SearchNearby(ctx, seed.Lat, seed.Lon, c.cfg.RadiusMeters)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entities := make([]model.RawEntity, 0, len(results))
	for _, p := range results {
		name := p.DisplayName.Text
		if name == "" {
			continue
		}
		category := p.PrimaryType
		if category == "" {
			category = model.CategoryUnknown
		}
		entities = append(entities, model.RawEntity{
			PlaceID:     p.ID,
			Name:        name,
			Category:    category,
			Rating:      p.Rating,
			ReviewCount: p.UserRatingCount,
			Lat:         p.Location.Latitude,
			Lon:         p.Location.Longitude,
			SeedIndex:   seed.Index,
			CollectedAt: now,
		})
	}
	return entities, nil
}
