// Package scorer turns model predictions into the scored output table:
// residuals, value tiers, and a natural-language explanation per entity.
package scorer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/model"
)

// Score builds the scored table from rated entities and their predicted
// ratings. entities and predicted are parallel slices. Entities below the
// review floor keep their row but are scored like any other; downstream
// surfaces decide what to show.
func Score(entities []model.CanonicalEntity, predicted []float64, cfg config.ScoringConfig) []model.ScoredEntity {
	out := make([]model.ScoredEntity, 0, len(entities))
	gems := 0
	for i, e := range entities {
		if e.Rating == nil {
			continue
		}
		rating := *e.Rating
		residual := rating - predicted[i]
		tier := tierFor(residual, cfg)
		if tier == model.TierHiddenGem {
			gems++
		}

		out = append(out, model.ScoredEntity{
			Key:             e.Key,
			DisplayName:     e.DisplayName,
			Rating:          rating,
			PredictedRating: predicted[i],
			Residual:        residual,
			Tier:            tier,
			Zone:            e.Zone,
			Category:        e.Category,
			ReviewCount:     e.ReviewCount,
			IsChain:         e.IsChain,
			ClusterDensity:  e.ClusterDensity,
			Explanation:     Explain(e, predicted[i], residual),
			Coordinates:     model.Coordinates{Lat: e.Lat, Lon: e.Lon},
		})
	}

	zap.L().Info("scored entities",
		zap.Int("total", len(out)),
		zap.Int("hidden_gems", gems),
	)
	return out
}

func tierFor(residual float64, cfg config.ScoringConfig) model.Tier {
	switch {
	case residual >= cfg.GemThreshold:
		return model.TierHiddenGem
	case residual >= cfg.FairThreshold:
		return model.TierFairValue
	default:
		return model.TierOvervalued
	}
}

// Explain builds a deterministic one-paragraph explanation from the
// entity's dominant factors. Same input always yields the same text.
// Entities carrying quality flags get a trailing caveat.
func Explain(e model.CanonicalEntity, predicted, residual float64) string {
	text := explainResidual(e, predicted, residual)
	if len(e.Flags) > 0 {
		caveats := make([]string, len(e.Flags))
		for i, f := range e.Flags {
			caveats[i] = strings.ReplaceAll(string(f), "_", " ")
		}
		text += fmt.Sprintf(" Caveat: %s.", strings.Join(caveats, ", "))
	}
	return text
}

func explainResidual(e model.CanonicalEntity, predicted, residual float64) string {
	factors := explainFactors(e)

	area := e.Zone
	if area == "" || area == model.ZoneUnknown {
		area = "this area"
	}

	switch {
	case residual >= 0.5:
		return fmt.Sprintf("With %s, similar spots in %s average %.1f★. This place beats expectations at %.1f★ - a true gem!",
			factors, area, predicted, e.RatingValue())
	case residual > 0.1:
		return fmt.Sprintf("Based on %s, we'd expect %.1f★. Scoring %.1f★ means it's performing above average.",
			factors, predicted, e.RatingValue())
	case residual > -0.1:
		return fmt.Sprintf("Rating of %.1f★ is in line with expectations (%.1f★) for %s. No surprises here.",
			e.RatingValue(), predicted, factors)
	case residual > -0.5:
		return fmt.Sprintf("Given %s, similar places score %.1f★. At %.1f★, this is slightly below expectations.",
			factors, predicted, e.RatingValue())
	default:
		return fmt.Sprintf("With %s, we'd expect %.1f★. The %.1f★ rating suggests it's underperforming.",
			factors, predicted, e.RatingValue())
	}
}

// explainFactors picks the notable profile facts in fixed order: cuisine,
// review volume, nearby competition.
func explainFactors(e model.CanonicalEntity) string {
	var factors []string

	if e.Category != "" && e.Category != model.CategoryUnknown {
		factors = append(factors, fmt.Sprintf("%s cuisine", e.Category))
	}

	switch {
	case e.ReviewCount < 20:
		factors = append(factors, "very few reviews")
	case e.ReviewCount < 100:
		factors = append(factors, fmt.Sprintf("%d reviews", e.ReviewCount))
	case e.ReviewCount > 500:
		factors = append(factors, fmt.Sprintf("high popularity (%d reviews)", e.ReviewCount))
	}

	if e.ClusterDensity < 5 {
		factors = append(factors, "low competition nearby")
	} else if e.ClusterDensity > 40 {
		factors = append(factors, "highly competitive area")
	}

	if len(factors) == 0 {
		return "its profile"
	}
	return strings.Join(factors, ", ")
}
