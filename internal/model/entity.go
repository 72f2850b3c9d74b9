package model

import "time"

// CategoryUnknown is the placeholder category for listings the source could
// not classify. The classifier replaces it where possible; rows that survive
// every classification pass keep it.
const CategoryUnknown = "Other"

// ZoneUnknown marks entities whose coordinates could not be matched to any
// configured zone boundary.
const ZoneUnknown = "Unknown"

// ZoneOutside marks entities whose coordinates fall outside the covered
// region entirely (beyond the nearest-zone fallback buffer).
const ZoneOutside = "Outside Region"

// RawEntity is a single observation of a listing at one seed point. Raw
// entities are immutable once checkpointed; overlapping sightings of the
// same real-world restaurant are reconciled downstream by the deduplicator.
type RawEntity struct {
	PlaceID     string    `json:"place_id,omitempty"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount int       `json:"review_count"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	SeedIndex   int       `json:"seed_index"`
	CollectedAt time.Time `json:"collected_at"`
}

// HasRating reports whether the observation carries a usable star rating.
func (e RawEntity) HasRating() bool {
	return e.Rating != nil && *e.Rating > 0
}

// SeedKind distinguishes generated grid points from landmark-derived seeds.
type SeedKind string

const (
	SeedKindGrid     SeedKind = "grid"
	SeedKindLandmark SeedKind = "landmark"
)

// Seed is one fixed geographic coordinate queried during the sweep.
type Seed struct {
	Index int      `json:"index"`
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Kind  SeedKind `json:"kind"`
}

// QualityFlag marks a data-quality anomaly on a canonical entity. Flagged
// rows are excluded from model training but never dropped from the output.
type QualityFlag string

const (
	QualityRatedNoReviews QualityFlag = "rated_no_reviews"
	QualityOutsideRegion  QualityFlag = "outside_region"
	QualityNoRating       QualityFlag = "no_rating"
)

// CanonicalEntity is the deduplicated, one-row-per-real-world-restaurant
// record. Field values come from the sighting with the highest review count;
// IsChain and ClusterDensity are corpus-relative and recomputed every run.
type CanonicalEntity struct {
	Key            string        `json:"key"` // normalized name, unique per corpus
	DisplayName    string        `json:"display_name"`
	PlaceID        string        `json:"place_id,omitempty"`
	Rating         *float64      `json:"rating,omitempty"`
	ReviewCount    int           `json:"review_count"`
	Lat            float64       `json:"lat"`
	Lon            float64       `json:"lon"`
	Category       string        `json:"category"`
	Zone           string        `json:"zone"`
	IsChain        bool          `json:"is_chain"`
	ClusterDensity int           `json:"cluster_density"`
	Sightings      int           `json:"sightings"`
	CollectedAt    time.Time     `json:"collected_at"`
	Flags          []QualityFlag `json:"flags,omitempty"`
}

// HasRating reports whether the canonical record carries a usable rating.
func (e CanonicalEntity) HasRating() bool {
	return e.Rating != nil && *e.Rating > 0
}

// RatingValue returns the star rating, or 0 when none was observed.
func (e CanonicalEntity) RatingValue() float64 {
	if e.Rating == nil {
		return 0
	}
	return *e.Rating
}

// Flagged reports whether the entity carries the given quality flag.
func (e CanonicalEntity) Flagged(f QualityFlag) bool {
	for _, have := range e.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// Trainable reports whether the entity may contribute a training row:
// it needs a usable rating and no quality flags.
func (e CanonicalEntity) Trainable() bool {
	return e.HasRating() && len(e.Flags) == 0
}

// ClassificationResult is the classifier's verdict for one entity key.
type ClassificationResult struct {
	Key      string `json:"key"`
	Category string `json:"category"`
	Resolved bool   `json:"resolved"`
	Source   string `json:"source"` // "keyword" or "llm"
}
