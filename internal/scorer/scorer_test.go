package scorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
)

func testScoringCfg() config.ScoringConfig {
	return config.ScoringConfig{
		GemThreshold:  0.5,
		FairThreshold: 0.0,
		MinReviews:    0,
	}
}

func ratedEntity(name string, rating float64, reviews int) model.CanonicalEntity {
	return model.CanonicalEntity{
		Key:         strings.ToLower(name),
		DisplayName: name,
		Rating:      &rating,
		ReviewCount: reviews,
		Lat:         1.28,
		Lon:         103.84,
		Category:    "Hawker",
		Zone:        "Outram",
	}
}

func TestScore_TierBoundaries(t *testing.T) {
	entities := []model.CanonicalEntity{
		ratedEntity("Tian Tian Chicken Rice", 4.6, 5230), // residual exactly 0.5
		ratedEntity("Maxwell Laksa", 4.1, 310),           // residual exactly 0.0
		ratedEntity("Corner Kopitiam", 3.9, 85),          // residual just below 0.0
		ratedEntity("Tourist Trap Seafood", 3.2, 1200),   // residual -0.9
	}
	predicted := []float64{4.1, 4.1, 3.9001, 4.1}

	scored := Score(entities, predicted, testScoringCfg())
	require.Len(t, scored, 4)

	assert.Equal(t, model.TierHiddenGem, scored[0].Tier, "boundary residual belongs to the gem tier")
	assert.Equal(t, model.TierFairValue, scored[1].Tier, "zero residual is fair value")
	assert.Equal(t, model.TierOvervalued, scored[2].Tier)
	assert.Equal(t, model.TierOvervalued, scored[3].Tier)

	assert.InDelta(t, 0.5, scored[0].Residual, 1e-9)
	assert.Equal(t, 4.6, scored[0].Rating)
	assert.Equal(t, 4.1, scored[0].PredictedRating)
}

func TestScore_SkipsUnratedEntities(t *testing.T) {
	unrated := model.CanonicalEntity{Key: "mystery stall", DisplayName: "Mystery Stall"}
	entities := []model.CanonicalEntity{
		ratedEntity("Tian Tian Chicken Rice", 4.6, 5230),
		unrated,
	}
	predicted := []float64{4.0, 4.0}

	scored := Score(entities, predicted, testScoringCfg())
	require.Len(t, scored, 1)
	assert.Equal(t, "Tian Tian Chicken Rice", scored[0].DisplayName)
}

func TestScore_CarriesProfileFields(t *testing.T) {
	e := ratedEntity("Swee Choon Tim Sum", 4.3, 8900)
	e.IsChain = true
	e.ClusterDensity = 17

	scored := Score([]model.CanonicalEntity{e}, []float64{4.2}, testScoringCfg())
	require.Len(t, scored, 1)

	got := scored[0]
	assert.Equal(t, e.Key, got.Key)
	assert.Equal(t, "Hawker", got.Category)
	assert.Equal(t, "Outram", got.Zone)
	assert.True(t, got.IsChain)
	assert.Equal(t, 17, got.ClusterDensity)
	assert.Equal(t, 8900, got.ReviewCount)
	assert.Equal(t, model.Coordinates{Lat: 1.28, Lon: 103.84}, got.Coordinates)
	assert.NotEmpty(t, got.Explanation)
}

func TestScore_CustomThresholds(t *testing.T) {
	cfg := config.ScoringConfig{GemThreshold: 0.3, FairThreshold: -0.2}
	e := ratedEntity("Corner Kopitiam", 4.4, 85)

	scored := Score([]model.CanonicalEntity{e}, []float64{4.05}, cfg)
	require.Len(t, scored, 1)
	assert.Equal(t, model.TierHiddenGem, scored[0].Tier)

	scored = Score([]model.CanonicalEntity{e}, []float64{4.55}, cfg)
	assert.Equal(t, model.TierFairValue, scored[0].Tier, "residual -0.15 clears the lowered fair floor")
}

func TestExplain_TemplatePerResidualBand(t *testing.T) {
	e := ratedEntity("Tian Tian Chicken Rice", 4.6, 5230)

	cases := []struct {
		name     string
		residual float64
		want     string
	}{
		{"gem", 0.5, "a true gem!"},
		{"above", 0.2, "performing above average"},
		{"inline", 0.05, "No surprises here"},
		{"below", -0.3, "slightly below expectations"},
		{"under", -0.8, "underperforming"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Explain(e, e.RatingValue()-tc.residual, tc.residual)
			assert.Contains(t, got, tc.want)
		})
	}
}

func TestExplain_FactorsAndArea(t *testing.T) {
	e := ratedEntity("Tian Tian Chicken Rice", 4.6, 5230)
	e.ClusterDensity = 52

	got := Explain(e, 4.1, 0.5)
	assert.Contains(t, got, "Hawker cuisine")
	assert.Contains(t, got, "high popularity (5230 reviews)")
	assert.Contains(t, got, "highly competitive area")
	assert.Contains(t, got, "in Outram")
	assert.Contains(t, got, "4.1★")
	assert.Contains(t, got, "4.6★")
}

func TestExplain_UnknownZoneFallsBackToGenericArea(t *testing.T) {
	e := ratedEntity("Corner Kopitiam", 4.2, 40)
	e.Zone = model.ZoneUnknown

	got := Explain(e, 3.6, 0.6)
	assert.Contains(t, got, "in this area")
	assert.NotContains(t, got, model.ZoneUnknown)
}

func TestExplain_FlaggedEntityGetsCaveat(t *testing.T) {
	e := ratedEntity("Pop Up Stall", 4.8, 0)
	e.Flags = []model.QualityFlag{model.QualityRatedNoReviews}

	got := Explain(e, 4.1, 0.7)
	assert.Contains(t, got, "Caveat: rated no reviews.")
}

func TestExplain_Deterministic(t *testing.T) {
	e := ratedEntity("Maxwell Laksa", 4.1, 310)
	first := Explain(e, 3.9, 0.2)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Explain(e, 3.9, 0.2))
	}
}

func TestExplainFactors(t *testing.T) {
	cases := []struct {
		name   string
		entity model.CanonicalEntity
		want   string
	}{
		{
			name:   "sparse reviews low competition",
			entity: model.CanonicalEntity{Category: "Peranakan", ReviewCount: 12, ClusterDensity: 2},
			want:   "Peranakan cuisine, very few reviews, low competition nearby",
		},
		{
			name:   "moderate reviews",
			entity: model.CanonicalEntity{Category: "Thai", ReviewCount: 64, ClusterDensity: 15},
			want:   "Thai cuisine, 64 reviews",
		},
		{
			name:   "mid-volume reviews omitted",
			entity: model.CanonicalEntity{Category: "Japanese", ReviewCount: 240, ClusterDensity: 15},
			want:   "Japanese cuisine",
		},
		{
			name:   "unknown category skipped",
			entity: model.CanonicalEntity{Category: model.CategoryUnknown, ReviewCount: 700, ClusterDensity: 45},
			want:   "high popularity (700 reviews), highly competitive area",
		},
		{
			name:   "nothing notable",
			entity: model.CanonicalEntity{Category: model.CategoryUnknown, ReviewCount: 150, ClusterDensity: 20},
			want:   "its profile",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, explainFactors(tc.entity))
		})
	}
}
