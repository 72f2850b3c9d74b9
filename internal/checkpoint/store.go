package checkpoint

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
)

// SeedStatus is the durable state of one seed point.
type SeedStatus string

const (
	SeedStatusComplete SeedStatus = "complete"
	SeedStatusFailed   SeedStatus = "failed"
)

// Counts summarizes sweep progress.
type Counts struct {
	Complete int
	Failed   int
	Entities int
}

// Store is the durable checkpoint record of the tile sweep. A seed point is
// atomic: Append commits its entities and completion mark in one
// transaction, so a resuming run never observes a partially stored seed.
// Replay order equals collection order.
type Store interface {
	// Has reports whether the seed point is fully processed. Failed seeds
	// are not "had": a later run re-attempts them.
	Has(ctx context.Context, seedIndex int) (bool, error)

	// Append durably stores all entities collected at one seed point and
	// marks it complete, atomically with respect to process interruption.
	Append(ctx context.Context, seedIndex int, entities []model.RawEntity) error

	// MarkFailed records a persistently failing seed point so the sweep can
	// continue and operators can inspect it later.
	MarkFailed(ctx context.Context, seedIndex int, reason string) error

	// LoadAll replays every checkpointed raw entity in seed-point order,
	// then collection order within a seed.
	LoadAll(ctx context.Context) ([]model.RawEntity, error)

	// Counts returns sweep progress totals.
	Counts(ctx context.Context) (Counts, error)

	// SaveScored replaces the scored-entity output table wholesale. The
	// table is recomputed on every pipeline run to keep model and data in
	// sync.
	SaveScored(ctx context.Context, runID string, entities []model.ScoredEntity) error

	// LoadScored returns the most recently saved scored table.
	LoadScored(ctx context.Context) ([]model.ScoredEntity, error)

	Migrate(ctx context.Context) error
	Close() error
}

// New creates a Store from configuration.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "gems.db"
		}
		return NewSQLite(path)
	case "postgres":
		return NewPostgres(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("checkpoint: unknown store driver %q", cfg.Driver)
	}
}
