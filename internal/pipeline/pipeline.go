// Package pipeline orchestrates a scoring run over one immutable corpus
// snapshot: load checkpointed raw entities, dedupe, classify cuisines,
// build features, train the expectation model, score residuals, persist.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/checkpoint"
	"github.com/shiok-scout/gems-cli/internal/classifier"
	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/dedupe"
	"github.com/shiok-scout/gems-cli/internal/features"
	"github.com/shiok-scout/gems-cli/internal/model"
	"github.com/shiok-scout/gems-cli/internal/regress"
	"github.com/shiok-scout/gems-cli/internal/scorer"
	"github.com/shiok-scout/gems-cli/internal/zones"
	"github.com/shiok-scout/gems-cli/pkg/anthropic"
)

// Pipeline wires the scoring stages together.
type Pipeline struct {
	cfg   *config.Config
	store checkpoint.Store
	llm   anthropic.Client
	zones *zones.Resolver // nil when no zone file is configured
}

// New builds a Pipeline. Zone boundaries are loaded up front so a bad
// zone file fails the run before any expensive stage starts.
func New(cfg *config.Config, st checkpoint.Store, llm anthropic.Client) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, store: st, llm: llm}
	if cfg.Region.ZoneFile != "" {
		resolver, err := zones.Load(cfg.Region.ZoneFile, cfg.Features.ZoneBufferMeters)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load zone boundaries")
		}
		p.zones = resolver
	}
	return p, nil
}

// Run executes the full scoring pipeline and persists the scored table.
// Every canonical entity with a usable rating gets an output row, even
// when classification or zone resolution partially failed for it.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	stats := &RunStats{
		RunID:                uuid.New().String(),
		StartedAt:            time.Now().UTC(),
		CategoryDistribution: make(map[string]int),
	}
	log.Info("pipeline: starting scoring run", zap.String("run_id", stats.RunID))

	var raw []model.RawEntity
	if err := stats.track(log, "load", func() error {
		var err error
		raw, err = p.store.LoadAll(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: load raw entities")
		}
		if len(raw) == 0 {
			return eris.New("pipeline: checkpoint store is empty; run collect first")
		}
		stats.RawEntities = len(raw)
		return nil
	}); err != nil {
		return nil, err
	}

	var entities []model.CanonicalEntity
	_ = stats.track(log, "dedupe", func() error {
		entities = dedupe.Collapse(raw)
		stats.CanonicalEntities = len(entities)
		stats.CompressionRatio = float64(len(raw)) / float64(len(entities))
		return nil
	})

	if err := stats.track(log, "classify", func() error {
		cls, err := classifier.New(p.llm, p.cfg.Classifier, p.cfg.Anthropic)
		if err != nil {
			return eris.Wrap(err, "pipeline: build classifier")
		}
		results := cls.Classify(ctx, entities)
		classifier.Apply(entities, results)
		for _, r := range results {
			if r.Resolved {
				stats.Classified++
			}
		}
		// Classify degrades on batch failures but stops early on
		// cancellation; surface the latter.
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: classification interrupted")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	_ = stats.track(log, "features", func() error {
		if p.zones != nil {
			p.zones.Annotate(entities)
		} else {
			for i := range entities {
				entities[i].Zone = model.ZoneUnknown
			}
		}
		features.Annotate(entities, p.cfg.Features)
		for _, e := range entities {
			stats.CategoryDistribution[e.Category]++
		}
		return nil
	})

	var mdl *regress.Model
	enc := features.FitEncoder(entities)
	if err := stats.track(log, "train", func() error {
		_, x, y := features.TrainingSet(entities, enc)
		if len(x) == 0 {
			return eris.New("pipeline: no trainable entities; nothing to fit")
		}
		stats.TrainingRows = len(x)

		rmse, err := regress.CrossValidate(x, y, features.CategoricalColumns[:], p.cfg.Model)
		if err != nil {
			log.Warn("pipeline: cross-validation skipped", zap.Error(err))
		} else {
			stats.CVRMSE = rmse
			if p.cfg.Model.MaxRMSE > 0 && rmse > p.cfg.Model.MaxRMSE {
				log.Warn("pipeline: model quality below target",
					zap.Float64("rmse", rmse),
					zap.Float64("max_rmse", p.cfg.Model.MaxRMSE),
				)
			}
		}

		mdl, err = regress.Train(x, y, features.CategoricalColumns[:], p.cfg.Model)
		if err != nil {
			return eris.Wrap(err, "pipeline: train expectation model")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var scored []model.ScoredEntity
	_ = stats.track(log, "score", func() error {
		rated := make([]model.CanonicalEntity, 0, len(entities))
		for _, e := range entities {
			if e.HasRating() {
				rated = append(rated, e)
			}
		}
		x, _ := enc.Matrix(rated)
		scored = scorer.Score(rated, mdl.PredictAll(x), p.cfg.Scoring)
		stats.Scored = len(scored)
		for _, s := range scored {
			if s.Tier == model.TierHiddenGem {
				stats.HiddenGems++
			}
		}
		return nil
	})

	if err := stats.track(log, "persist", func() error {
		if err := p.store.SaveScored(ctx, stats.RunID, scored); err != nil {
			return eris.Wrap(err, "pipeline: save scored entities")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(stats.StartedAt)
	log.Info("pipeline: scoring run complete",
		zap.String("run_id", stats.RunID),
		zap.Int("raw", stats.RawEntities),
		zap.Int("canonical", stats.CanonicalEntities),
		zap.Int("training_rows", stats.TrainingRows),
		zap.Float64("cv_rmse", stats.CVRMSE),
		zap.Int("scored", stats.Scored),
		zap.Int("hidden_gems", stats.HiddenGems),
		zap.Duration("took", stats.Duration),
	)
	return stats, nil
}
