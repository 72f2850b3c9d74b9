// Package dedupe collapses raw entities collected from overlapping tiles
// into one canonical record per venue.
package dedupe

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/shiok-scout/gems-cli/internal/model"
)

// normalizer strips diacritics so "Café" and "Cafe" share an identity.
// Non-Latin names pass through NFKD unchanged apart from compatibility
// folding, so they keep distinct identities rather than collapsing.
var normalizer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName produces the name component of a venue's identity key:
// diacritic-folded, lowercased, whitespace-collapsed.
func NormalizeName(name string) string {
	folded, _, err := transform.String(normalizer, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Key builds the identity key for a venue: the normalized name alone.
// Every sighting of a name across the sweep collapses to one canonical
// record; branch-level detail survives only through the Sightings count.
func Key(name string) string {
	return NormalizeName(name)
}

// Collapse reduces raw entities to canonical ones. The winner per key is
// the sighting with the highest review count; ties go to the most
// recently collected, then the earliest in replay order. Sightings
// counts rated raw occurrences of the normalized name across the whole
// corpus, which downstream stages use for chain detection, so it must be
// taken before collapsing. Unrated sightings do not count: a listing
// without a rating is too thin to be evidence of a chain.
func Collapse(raw []model.RawEntity) []model.CanonicalEntity {
	nameCounts := make(map[string]int, len(raw))
	for _, e := range raw {
		if e.HasRating() {
			nameCounts[NormalizeName(e.Name)]++
		}
	}

	byKey := make(map[string]*model.CanonicalEntity, len(raw))
	var order []string

	for _, e := range raw {
		key := Key(e.Name)

		existing, ok := byKey[key]
		if !ok {
			c := canonical(key, e)
			c.Sightings = nameCounts[key]
			byKey[key] = &c
			order = append(order, key)
			continue
		}

		if betterSighting(e, existing) {
			c := canonical(key, e)
			c.Sightings = nameCounts[key]
			byKey[key] = &c
		}
	}

	out := make([]model.CanonicalEntity, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}

	if len(raw) > 0 {
		zap.L().Info("collapsed raw entities",
			zap.Int("raw", len(raw)),
			zap.Int("canonical", len(out)),
			zap.Float64("compression", float64(len(raw))/float64(len(out))),
		)
	}
	return out
}

// betterSighting reports whether candidate should replace the current
// winner for the same key.
func betterSighting(candidate model.RawEntity, current *model.CanonicalEntity) bool {
	if candidate.ReviewCount != current.ReviewCount {
		return candidate.ReviewCount > current.ReviewCount
	}
	// Tie on review count: prefer the most recently collected sighting.
	// A later equal tie keeps the first-seen record.
	return candidate.CollectedAt.After(current.CollectedAt)
}

func canonical(key string, e model.RawEntity) model.CanonicalEntity {
	c := model.CanonicalEntity{
		Key:         key,
		DisplayName: e.Name,
		PlaceID:     e.PlaceID,
		ReviewCount: e.ReviewCount,
		Lat:         e.Lat,
		Lon:         e.Lon,
		Category:    e.Category,
		Zone:        model.ZoneUnknown,
		CollectedAt: e.CollectedAt,
	}
	if e.Rating != nil {
		r := *e.Rating
		c.Rating = &r
	}
	if c.Rating == nil {
		c.Flags = append(c.Flags, model.QualityNoRating)
	} else if c.ReviewCount == 0 {
		c.Flags = append(c.Flags, model.QualityRatedNoReviews)
	}
	return c
}
