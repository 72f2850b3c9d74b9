package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/shiok-scout/gems-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot sweep-loop operations.
var preparedStatements = map[string]string{
	"has_seed":      `SELECT status FROM seed_checkpoints WHERE seed_index = $1`,
	"insert_entity": `INSERT INTO raw_entities (seed_index, place_id, name, category, rating, review_count, lat, lon, collected_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"mark_seed": `INSERT INTO seed_checkpoints (seed_index, status, entity_count, reason, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (seed_index) DO UPDATE SET
			status = excluded.status,
			entity_count = excluded.entity_count,
			reason = excluded.reason,
			completed_at = excluded.completed_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(connString string) (*PostgresStore, error) {
	ctx := context.Background()

	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS seed_checkpoints (
	seed_index   INTEGER PRIMARY KEY,
	status       TEXT NOT NULL,
	entity_count INTEGER NOT NULL DEFAULT 0,
	reason       TEXT,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_entities (
	id           BIGSERIAL PRIMARY KEY,
	seed_index   INTEGER NOT NULL REFERENCES seed_checkpoints(seed_index),
	place_id     TEXT,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL,
	rating       DOUBLE PRECISION,
	review_count INTEGER NOT NULL DEFAULT 0,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scored_entities (
	key              TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	rating           DOUBLE PRECISION NOT NULL,
	predicted_rating DOUBLE PRECISION NOT NULL,
	residual         DOUBLE PRECISION NOT NULL,
	tier             TEXT NOT NULL,
	zone             TEXT NOT NULL,
	category         TEXT NOT NULL,
	review_count     INTEGER NOT NULL,
	is_chain         BOOLEAN NOT NULL,
	cluster_density  INTEGER NOT NULL,
	explanation      TEXT NOT NULL,
	lat              DOUBLE PRECISION NOT NULL,
	lon              DOUBLE PRECISION NOT NULL,
	scored_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_entities_seed ON raw_entities(seed_index);
CREATE INDEX IF NOT EXISTS idx_scored_entities_tier ON scored_entities(tier);
CREATE INDEX IF NOT EXISTS idx_scored_entities_zone ON scored_entities(zone);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Has(ctx context.Context, seedIndex int) (bool, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM seed_checkpoints WHERE seed_index = $1`, seedIndex,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has seed %d", seedIndex)
	}
	return status == string(SeedStatusComplete), nil
}

func (s *PostgresStore) Append(ctx context.Context, seedIndex int, entities []model.RawEntity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The checkpoint row goes in first so the entity rows have a parent
	// to reference. The mark still commits with the entities or not at
	// all, since everything rides the same transaction.
	_, err = tx.Exec(ctx,
		`INSERT INTO seed_checkpoints (seed_index, status, entity_count, reason, completed_at)
		 VALUES ($1, $2, $3, NULL, $4)
		 ON CONFLICT (seed_index) DO UPDATE SET
			status = excluded.status,
			entity_count = excluded.entity_count,
			reason = excluded.reason,
			completed_at = excluded.completed_at`,
		seedIndex, string(SeedStatusComplete), len(entities), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark seed %d complete", seedIndex)
	}

	for _, e := range entities {
		var rating any
		if e.Rating != nil {
			rating = *e.Rating
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO raw_entities (seed_index, place_id, name, category, rating, review_count, lat, lon, collected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			seedIndex, e.PlaceID, e.Name, e.Category, rating, e.ReviewCount, e.Lat, e.Lon, e.CollectedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert entity for seed %d", seedIndex)
		}
	}

	return eris.Wrapf(tx.Commit(ctx), "postgres: commit seed %d", seedIndex)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, seedIndex int, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seed_checkpoints (seed_index, status, entity_count, reason, completed_at)
		 VALUES ($1, $2, 0, $3, $4)
		 ON CONFLICT (seed_index) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			completed_at = excluded.completed_at`,
		seedIndex, string(SeedStatusFailed), reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: mark seed %d failed", seedIndex)
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]model.RawEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.seed_index, e.place_id, e.name, e.category, e.rating, e.review_count, e.lat, e.lon, e.collected_at
		 FROM raw_entities e
		 JOIN seed_checkpoints c ON c.seed_index = e.seed_index
		 WHERE c.status = $1
		 ORDER BY e.seed_index, e.id`,
		string(SeedStatusComplete),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load all")
	}
	defer rows.Close()

	var entities []model.RawEntity
	for rows.Next() {
		var e model.RawEntity
		var placeID *string
		var rating *float64
		if err := rows.Scan(&e.SeedIndex, &placeID, &e.Name, &e.Category, &rating, &e.ReviewCount, &e.Lat, &e.Lon, &e.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		if placeID != nil {
			e.PlaceID = *placeID
		}
		e.Rating = rating
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: load all iterate")
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COALESCE(SUM(entity_count), 0)
		 FROM seed_checkpoints`,
		string(SeedStatusComplete), string(SeedStatusFailed),
	).Scan(&c.Complete, &c.Failed, &c.Entities)
	return c, eris.Wrap(err, "postgres: counts")
}

func (s *PostgresStore) SaveScored(ctx context.Context, runID string, entities []model.ScoredEntity) error {
	if runID == "" {
		runID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save scored")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Wholesale replacement: the scored table is always a product of one run.
	if _, err := tx.Exec(ctx, `DELETE FROM scored_entities`); err != nil {
		return eris.Wrap(err, "postgres: clear scored")
	}

	now := time.Now().UTC()
	for _, e := range entities {
		_, err := tx.Exec(ctx,
			`INSERT INTO scored_entities
				(key, run_id, display_name, rating, predicted_rating, residual, tier, zone, category,
				 review_count, is_chain, cluster_density, explanation, lat, lon, scored_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			e.Key, runID, e.DisplayName, e.Rating, e.PredictedRating, e.Residual, string(e.Tier),
			e.Zone, e.Category, e.ReviewCount, e.IsChain, e.ClusterDensity,
			e.Explanation, e.Coordinates.Lat, e.Coordinates.Lon, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert scored %s", e.Key)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit scored")
}

func (s *PostgresStore) LoadScored(ctx context.Context) ([]model.ScoredEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, display_name, rating, predicted_rating, residual, tier, zone, category,
			review_count, is_chain, cluster_density, explanation, lat, lon
		 FROM scored_entities
		 ORDER BY residual DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load scored")
	}
	defer rows.Close()

	var entities []model.ScoredEntity
	for rows.Next() {
		var e model.ScoredEntity
		var tier string
		if err := rows.Scan(&e.Key, &e.DisplayName, &e.Rating, &e.PredictedRating, &e.Residual, &tier,
			&e.Zone, &e.Category, &e.ReviewCount, &e.IsChain, &e.ClusterDensity,
			&e.Explanation, &e.Coordinates.Lat, &e.Coordinates.Lon); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scored")
		}
		e.Tier = model.Tier(tier)
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: load scored iterate")
}
