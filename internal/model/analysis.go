package model

import "time"

// EntityInsight reports how often an entity is cited and the confidence
// boost that evidence earns.
type EntityInsight struct {
	EntityID        string   `json:"entity_id"`
	Name            string   `json:"name"`
	CitationCount   int      `json:"citation_count"`
	CitationRate    float64  `json:"citation_rate"` // citations per day over the span first..last
	ConfidenceBoost float64  `json:"confidence_boost"`
	CitationIDs     []string `json:"citation_ids,omitempty"`
}

// RelationshipInsight reports co-citation evidence for a relationship: both
// endpoint names appearing in the same answer text.
type RelationshipInsight struct {
	Key         string   `json:"key"`
	SourceID    string   `json:"source_id"`
	TargetID    string   `json:"target_id"`
	Type        string   `json:"type"`
	CoCitations int      `json:"co_citations"`
	CitationIDs []string `json:"citation_ids,omitempty"`
}

// ClaimValidation reports citation evidence corroborating a claim.
type ClaimValidation struct {
	ClaimID           string   `json:"claim_id"`
	Validations       int      `json:"validations"`
	CurrentConfidence float64  `json:"current_confidence"`
	NewConfidence     float64  `json:"new_confidence"`
	CitationIDs       []string `json:"citation_ids,omitempty"`
}

// LearningAnalysis is the output of one analyze pass over a domain's graph
// and citation evidence. Zero matching citations yields a zero-valued
// analysis, which is a first-class outcome rather than an error.
type LearningAnalysis struct {
	ID                     string                `json:"id"`
	Domain                 string                `json:"domain"`
	TotalCitationsAnalyzed int                   `json:"total_citations_analyzed"`
	HighValueEntities      []EntityInsight       `json:"high_value_entities,omitempty"`
	HighValueRelationships []RelationshipInsight `json:"high_value_relationships,omitempty"`
	ValidatedClaims        []ClaimValidation     `json:"validated_claims,omitempty"`
	SuggestedUpdates       []GraphUpdate         `json:"suggested_updates,omitempty"`
	CurrentScore           float64               `json:"current_score"`
	PredictedScore         float64               `json:"predicted_score"`
	AnalyzedAt             time.Time             `json:"analyzed_at"`
}

// ExpectedImprovement is the predicted score gain from applying the
// suggested updates.
func (a *LearningAnalysis) ExpectedImprovement() float64 {
	return a.PredictedScore - a.CurrentScore
}
