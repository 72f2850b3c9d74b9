package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiok-scout/gems-cli/internal/checkpoint"
	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
	"github.com/shiok-scout/gems-cli/pkg/anthropic"
)

// stubLLM fails every call; entities the keyword pass cannot resolve
// degrade to the placeholder category, which is what we want to exercise.
type stubLLM struct{}

func (s *stubLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return nil, eris.New("llm unavailable")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "gems.db")},
		Classifier: config.ClassifierConfig{
			Labels: []string{
				"Japanese", "Chinese", "Thai", "Malay", "Italian",
				"Seafood", "Hawker", "Western", "Other",
			},
		},
		Anthropic: config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024},
		Features: config.FeaturesConfig{
			ClusterRadiusMeters: 200,
			ChainMinSightings:   3,
			ZoneBufferMeters:    2000,
		},
		Model:   config.ModelConfig{Trees: 40, MaxDepth: 3, MinLeaf: 1, CVFolds: 5, Seed: 42},
		Scoring: config.ScoringConfig{GemThreshold: 0.5, FairThreshold: 0.0},
	}
}

func newTestStore(t *testing.T, cfg *config.Config) checkpoint.Store {
	t.Helper()
	st, err := checkpoint.New(cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func raw(name string, rating float64, reviews int, lat, lon float64, seed int) model.RawEntity {
	return model.RawEntity{
		Name:        name,
		Category:    "restaurant",
		Rating:      &rating,
		ReviewCount: reviews,
		Lat:         lat,
		Lon:         lon,
		SeedIndex:   seed,
		CollectedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

// seedCorpus checkpoints a small but trainable corpus: seven rated
// restaurants whose names the keyword pass resolves, one rated duplicate
// sighting, and one unrated stall.
func seedCorpus(t *testing.T, st checkpoint.Store) {
	t.Helper()
	ctx := context.Background()

	seed0 := []model.RawEntity{
		raw("Sakura Sushi", 4.5, 320, 1.2800, 103.8400, 0),
		raw("Nasi Lemak Kampung", 4.2, 150, 1.2810, 103.8410, 0),
		raw("Maxwell Food Centre", 4.4, 5230, 1.2803, 103.8446, 0),
		raw("Tom Yum House", 4.0, 90, 1.2830, 103.8430, 0),
		raw("Golden Wok", 3.8, 210, 1.2840, 103.8440, 0),
	}
	seed1 := []model.RawEntity{
		raw("Sakura Sushi", 4.5, 310, 1.2800, 103.8400, 1), // overlap, fewer reviews
		raw("Pasta Bella", 4.1, 60, 1.2900, 103.8500, 1),
		raw("Harbour Seafood", 3.9, 480, 1.2910, 103.8510, 1),
		{
			Name: "Mystery Stall", Category: "restaurant",
			Lat: 1.2920, Lon: 103.8520, SeedIndex: 1,
			CollectedAt: time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
		},
	}

	require.NoError(t, st.Append(ctx, 0, seed0))
	require.NoError(t, st.Append(ctx, 1, seed1))
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t, cfg)
	seedCorpus(t, st)

	p, err := New(cfg, st, &stubLLM{})
	require.NoError(t, err)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 9, stats.RawEntities)
	assert.Equal(t, 8, stats.CanonicalEntities, "duplicate sighting collapses")
	assert.InDelta(t, 9.0/8.0, stats.CompressionRatio, 1e-9)
	assert.Equal(t, 7, stats.TrainingRows, "the unrated stall is excluded from training")
	assert.Equal(t, 7, stats.Scored, "every rated canonical entity gets an output row")
	assert.Len(t, stats.Stages, 7)

	assert.Equal(t, 1, stats.CategoryDistribution["Japanese"])
	assert.Equal(t, 1, stats.CategoryDistribution["Hawker"])
	assert.Equal(t, 1, stats.CategoryDistribution[model.CategoryUnknown], "unresolvable name degrades to placeholder")

	scored, err := st.LoadScored(context.Background())
	require.NoError(t, err)
	require.Len(t, scored, 7)

	for i, s := range scored {
		assert.NotEmpty(t, s.Explanation, "row %d", i)
		assert.Contains(t, []model.Tier{model.TierHiddenGem, model.TierFairValue, model.TierOvervalued}, s.Tier)
		if i > 0 {
			assert.GreaterOrEqual(t, scored[i-1].Residual, s.Residual, "rows ordered by residual")
		}
	}

	// The duplicated sighting keeps the higher review count.
	byName := make(map[string]model.ScoredEntity, len(scored))
	for _, s := range scored {
		byName[s.DisplayName] = s
	}
	assert.Equal(t, 320, byName["Sakura Sushi"].ReviewCount)
	assert.Equal(t, "Japanese", byName["Sakura Sushi"].Category)
	assert.NotContains(t, byName, "Mystery Stall")
}

func TestPipeline_Deterministic(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t, cfg)
	seedCorpus(t, st)

	p, err := New(cfg, st, &stubLLM{})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	first, err := st.LoadScored(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	second, err := st.LoadScored(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second, "same corpus and seed produce the same scored table")
}

func TestPipeline_EmptyStoreFails(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t, cfg)

	p, err := New(cfg, st, &stubLLM{})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run collect first")
}

func TestPipeline_BadZoneFileFailsConstruction(t *testing.T) {
	cfg := testConfig(t)
	cfg.Region.ZoneFile = filepath.Join(t.TempDir(), "missing.geojson")
	st := newTestStore(t, cfg)

	_, err := New(cfg, st, &stubLLM{})
	require.Error(t, err)
}

func TestPipeline_ZoneAnnotation(t *testing.T) {
	cfg := testConfig(t)
	zonePath := filepath.Join(t.TempDir(), "zones.geojson")
	zoneJSON := `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"PLN_AREA_N": "Outram"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[103.80, 1.25], [103.90, 1.25], [103.90, 1.31], [103.80, 1.31], [103.80, 1.25]]]
			}
		}]
	}`
	require.NoError(t, os.WriteFile(zonePath, []byte(zoneJSON), 0o644))
	cfg.Region.ZoneFile = zonePath

	st := newTestStore(t, cfg)
	seedCorpus(t, st)

	p, err := New(cfg, st, &stubLLM{})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	scored, err := st.LoadScored(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	for _, s := range scored {
		assert.Equal(t, "Outram", s.Zone)
	}
}

// Two Western restaurants in different zones, plus a stale duplicate
// sighting of the first. The merged record must come from the sighting
// with more reviews, and the zone baseline must show up in the residuals:
// the high performer in the weaker zone beats expectations by more.
func TestPipeline_TwoZoneResidualOrdering(t *testing.T) {
	cfg := testConfig(t)

	zonePath := filepath.Join(t.TempDir(), "zones.geojson")
	zoneJSON := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"PLN_AREA_N": "Tengah"},
				"geometry": {
					"type": "Polygon",
					"coordinates": [[[103.70, 1.33], [103.76, 1.33], [103.76, 1.38], [103.70, 1.38], [103.70, 1.33]]]
				}
			},
			{
				"type": "Feature",
				"properties": {"PLN_AREA_N": "Orchard"},
				"geometry": {
					"type": "Polygon",
					"coordinates": [[[103.80, 1.28], [103.86, 1.28], [103.86, 1.32], [103.80, 1.32], [103.80, 1.28]]]
				}
			}
		]
	}`
	require.NoError(t, os.WriteFile(zonePath, []byte(zoneJSON), 0o644))
	cfg.Region.ZoneFile = zonePath
	cfg.Model.L2 = 1 // keep leaves from memorizing the two rows exactly

	st := newTestStore(t, cfg)
	ctx := context.Background()

	westernRaw := func(name string, rating float64, reviews int, lat, lon float64, seed int) model.RawEntity {
		e := raw(name, rating, reviews, lat, lon, seed)
		e.Category = "Western"
		return e
	}
	require.NoError(t, st.Append(ctx, 0, []model.RawEntity{
		westernRaw("Chez West", 4.9, 347, 1.3500, 103.7300, 0),
		westernRaw("Orchard Grill", 4.1, 40, 1.3000, 103.8300, 0),
	}))
	require.NoError(t, st.Append(ctx, 1, []model.RawEntity{
		westernRaw("Chez West", 4.8, 300, 1.3500, 103.7300, 1), // stale overlap
	}))

	p, err := New(cfg, st, &stubLLM{})
	require.NoError(t, err)

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RawEntities)
	assert.Equal(t, 2, stats.CanonicalEntities)

	scored, err := st.LoadScored(ctx)
	require.NoError(t, err)
	require.Len(t, scored, 2)

	byName := make(map[string]model.ScoredEntity, 2)
	for _, s := range scored {
		byName[s.DisplayName] = s
	}
	chez, ok := byName["Chez West"]
	require.True(t, ok)

	assert.Equal(t, 4.9, chez.Rating, "merged record keeps the higher-review sighting")
	assert.Equal(t, 347, chez.ReviewCount)
	assert.Equal(t, "Tengah", chez.Zone)
	assert.Equal(t, "Orchard", byName["Orchard Grill"].Zone)
	assert.Greater(t, chez.Residual, byName["Orchard Grill"].Residual)
}

func TestPipeline_CancelledContext(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t, cfg)
	seedCorpus(t, st)

	p, err := New(cfg, st, &stubLLM{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx)
	require.Error(t, err)
}
