package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed,omitempty"`
}

// RunStats aggregates per-stage timings and corpus-level counts for one
// scoring run. It is the pipeline's report to the CLI layer.
type RunStats struct {
	RunID                string         `json:"run_id"`
	StartedAt            time.Time      `json:"started_at"`
	Duration             time.Duration  `json:"duration"`
	RawEntities          int            `json:"raw_entities"`
	CanonicalEntities    int            `json:"canonical_entities"`
	CompressionRatio     float64        `json:"compression_ratio"`
	Classified           int            `json:"classified"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	TrainingRows         int            `json:"training_rows"`
	CVRMSE               float64        `json:"cv_rmse"`
	Scored               int            `json:"scored"`
	HiddenGems           int            `json:"hidden_gems"`
	Stages               []StageTiming  `json:"stages"`
}

// track runs one stage, records its timing, and logs the outcome.
func (s *RunStats) track(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	took := time.Since(start)
	s.Stages = append(s.Stages, StageTiming{Name: name, Duration: took, Failed: err != nil})

	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Duration("took", took),
			zap.Error(err),
		)
		return err
	}
	log.Debug("pipeline: stage complete",
		zap.String("stage", name),
		zap.Duration("took", took),
	)
	return nil
}
