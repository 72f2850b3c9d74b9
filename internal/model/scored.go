package model

// Tier buckets an entity by its residual. With the default thresholds,
// residual >= 0.5 is a Hidden Gem, [0, 0.5) is Fair Value, and anything
// negative is Overvalued. Boundary values belong to the upper tier.
type Tier string

const (
	TierHiddenGem  Tier = "Hidden Gem"
	TierFairValue  Tier = "Fair Value"
	TierOvervalued Tier = "Overvalued"
)

// Coordinates is a lat/lon pair as exposed in the output artifact.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ScoredEntity is the terminal, externally consumed artifact: one canonical
// entity with its model expectation, residual, tier, and explanation. The
// field names below are the output contract of the pipeline.
type ScoredEntity struct {
	Key             string      `json:"key"`
	DisplayName     string      `json:"display_name"`
	Rating          float64     `json:"rating"`
	PredictedRating float64     `json:"predicted_rating"`
	Residual        float64     `json:"residual"`
	Tier            Tier        `json:"tier"`
	Zone            string      `json:"zone"`
	Category        string      `json:"category"`
	ReviewCount     int         `json:"review_count"`
	IsChain         bool        `json:"is_chain"`
	ClusterDensity  int         `json:"cluster_density"`
	Explanation     string      `json:"explanation"`
	Coordinates     Coordinates `json:"coordinates"`
}
