package checkpoint

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/shiok-scout/gems-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS seed_checkpoints (
	seed_index   INTEGER PRIMARY KEY,
	status       TEXT NOT NULL,
	entity_count INTEGER NOT NULL DEFAULT 0,
	reason       TEXT,
	completed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_entities (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	seed_index   INTEGER NOT NULL REFERENCES seed_checkpoints(seed_index),
	place_id     TEXT,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL,
	rating       REAL,
	review_count INTEGER NOT NULL DEFAULT 0,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	collected_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scored_entities (
	key              TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	rating           REAL NOT NULL,
	predicted_rating REAL NOT NULL,
	residual         REAL NOT NULL,
	tier             TEXT NOT NULL,
	zone             TEXT NOT NULL,
	category         TEXT NOT NULL,
	review_count     INTEGER NOT NULL,
	is_chain         INTEGER NOT NULL,
	cluster_density  INTEGER NOT NULL,
	explanation      TEXT NOT NULL,
	lat              REAL NOT NULL,
	lon              REAL NOT NULL,
	scored_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_raw_entities_seed ON raw_entities(seed_index);
CREATE INDEX IF NOT EXISTS idx_scored_entities_tier ON scored_entities(tier);
CREATE INDEX IF NOT EXISTS idx_scored_entities_zone ON scored_entities(zone);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Has(ctx context.Context, seedIndex int) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM seed_checkpoints WHERE seed_index = ?`, seedIndex,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has seed %d", seedIndex)
	}
	return status == string(SeedStatusComplete), nil
}

func (s *SQLiteStore) Append(ctx context.Context, seedIndex int, entities []model.RawEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	// The checkpoint row goes in first so the entity rows have a parent
	// to reference. The mark still commits with the entities or not at
	// all, since everything rides the same transaction.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO seed_checkpoints (seed_index, status, entity_count, completed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (seed_index) DO UPDATE SET
			status = excluded.status,
			entity_count = excluded.entity_count,
			reason = NULL,
			completed_at = excluded.completed_at`,
		seedIndex, string(SeedStatusComplete), len(entities), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark seed %d complete", seedIndex)
	}

	for _, e := range entities {
		var rating any
		if e.Rating != nil {
			rating = *e.Rating
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO raw_entities (seed_index, place_id, name, category, rating, review_count, lat, lon, collected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seedIndex, e.PlaceID, e.Name, e.Category, rating, e.ReviewCount, e.Lat, e.Lon, e.CollectedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert entity for seed %d", seedIndex)
		}
	}

	return eris.Wrapf(tx.Commit(), "sqlite: commit seed %d", seedIndex)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, seedIndex int, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seed_checkpoints (seed_index, status, entity_count, reason, completed_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (seed_index) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			completed_at = excluded.completed_at`,
		seedIndex, string(SeedStatusFailed), reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark seed %d failed", seedIndex)
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]model.RawEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.seed_index, e.place_id, e.name, e.category, e.rating, e.review_count, e.lat, e.lon, e.collected_at
		 FROM raw_entities e
		 JOIN seed_checkpoints c ON c.seed_index = e.seed_index
		 WHERE c.status = ?
		 ORDER BY e.seed_index, e.id`,
		string(SeedStatusComplete),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load all")
	}
	defer rows.Close()

	var entities []model.RawEntity
	for rows.Next() {
		var e model.RawEntity
		var placeID sql.NullString
		var rating sql.NullFloat64
		if err := rows.Scan(&e.SeedIndex, &placeID, &e.Name, &e.Category, &rating, &e.ReviewCount, &e.Lat, &e.Lon, &e.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		e.PlaceID = placeID.String
		if rating.Valid {
			r := rating.Float64
			e.Rating = &r
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: load all iterate")
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = ?),
			COUNT(*) FILTER (WHERE status = ?),
			COALESCE(SUM(entity_count), 0)
		 FROM seed_checkpoints`,
		string(SeedStatusComplete), string(SeedStatusFailed),
	).Scan(&c.Complete, &c.Failed, &c.Entities)
	return c, eris.Wrap(err, "sqlite: counts")
}

func (s *SQLiteStore) SaveScored(ctx context.Context, runID string, entities []model.ScoredEntity) error {
	if runID == "" {
		runID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save scored")
	}
	defer tx.Rollback() //nolint:errcheck

	// Wholesale replacement: the scored table is always a product of one run.
	if _, err := tx.ExecContext(ctx, `DELETE FROM scored_entities`); err != nil {
		return eris.Wrap(err, "sqlite: clear scored")
	}

	now := time.Now().UTC()
	for _, e := range entities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scored_entities
				(key, run_id, display_name, rating, predicted_rating, residual, tier, zone, category,
				 review_count, is_chain, cluster_density, explanation, lat, lon, scored_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Key, runID, e.DisplayName, e.Rating, e.PredictedRating, e.Residual, string(e.Tier),
			e.Zone, e.Category, e.ReviewCount, boolToInt(e.IsChain), e.ClusterDensity,
			e.Explanation, e.Coordinates.Lat, e.Coordinates.Lon, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert scored %s", e.Key)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit scored")
}

func (s *SQLiteStore) LoadScored(ctx context.Context) ([]model.ScoredEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, display_name, rating, predicted_rating, residual, tier, zone, category,
			review_count, is_chain, cluster_density, explanation, lat, lon
		 FROM scored_entities
		 ORDER BY residual DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load scored")
	}
	defer rows.Close()

	var entities []model.ScoredEntity
	for rows.Next() {
		var e model.ScoredEntity
		var tier string
		var isChain int
		if err := rows.Scan(&e.Key, &e.DisplayName, &e.Rating, &e.PredictedRating, &e.Residual, &tier,
			&e.Zone, &e.Category, &e.ReviewCount, &isChain, &e.ClusterDensity,
			&e.Explanation, &e.Coordinates.Lat, &e.Coordinates.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scored")
		}
		e.Tier = model.Tier(tier)
		e.IsChain = isChain != 0
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: load scored iterate")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
