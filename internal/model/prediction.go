package model

import "time"

// CitationPrediction is a per-domain forecast of citation probability,
// recomputed by the prediction-refresh job.
type CitationPrediction struct {
	Domain          string             `json:"domain"`
	Probability     float64            `json:"probability"` // 0..1 chance of a citation in the next 7 days
	ExpectedPerWeek float64            `json:"expected_per_week"`
	Factors         map[string]float64 `json:"factors,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// NetworkEffect records cross-domain evidence that an entity is corroborated
// by citations from multiple independent domains.
type NetworkEffect struct {
	EntityName    string    `json:"entity_name"`
	Domains       []string  `json:"domains"`
	CitationCount int       `json:"citation_count"`
	Strength      float64   `json:"strength"` // 0..1, grows with corroborating domains
	UpdatedAt     time.Time `json:"updated_at"`
}

// GlobalEntity is the cross-domain rollup of an entity keyed by its
// canonical (case-folded) name.
type GlobalEntity struct {
	Name      string    `json:"name"`
	Domains   []string  `json:"domains"`
	Citations int       `json:"citations"`
	UpdatedAt time.Time `json:"updated_at"`
}
