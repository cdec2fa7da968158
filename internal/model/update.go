package model

import "time"

// UpdateType is the variant tag for a GraphUpdate.
type UpdateType string

const (
	// UpdateTypeEntityFields overwrites fields on an existing entity.
	UpdateTypeEntityFields UpdateType = "entity_fields"
	// UpdateTypeRelationshipUpsert creates or updates a relationship by key.
	UpdateTypeRelationshipUpsert UpdateType = "relationship_upsert"
	// UpdateTypeClaimFields overwrites fields on an existing claim.
	UpdateTypeClaimFields UpdateType = "claim_fields"
	// UpdateTypeConfidence overwrites the confidence of a target element.
	UpdateTypeConfidence UpdateType = "confidence_adjustment"
	// UpdateTypeNewEntity appends a new entity to the graph.
	UpdateTypeNewEntity UpdateType = "new_entity"
	// UpdateTypeStructure is reserved for future dedup/merge logic; applying
	// it is a defined no-op (metadata still bumps).
	UpdateTypeStructure UpdateType = "structure_optimization"
)

// TargetKind identifies which graph element an update or sync operation
// addresses.
type TargetKind string

const (
	TargetEntity       TargetKind = "entity"
	TargetRelationship TargetKind = "relationship"
	TargetClaim        TargetKind = "claim"
	TargetFullGraph    TargetKind = "full_graph"
)

// Priority orders suggested updates for application.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns a sortable rank, lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// GraphUpdate is a single proposed change to a knowledge graph. Ephemeral:
// produced by analysis, consumed by apply.
type GraphUpdate struct {
	ID         string     `json:"id"`
	Type       UpdateType `json:"type"`
	Priority   Priority   `json:"priority"`
	TargetKind TargetKind `json:"target_kind"`
	TargetID   string     `json:"target_id,omitempty"` // entity/claim id, or relationship key

	// Fields carries field overwrites for entity_fields / claim_fields.
	Fields map[string]any `json:"fields,omitempty"`
	// NewConfidence is the overwrite value for confidence_adjustment.
	NewConfidence float64 `json:"new_confidence,omitempty"`
	// Entity is the payload for new_entity.
	Entity *Entity `json:"entity,omitempty"`
	// Relationship is the payload for relationship_upsert.
	Relationship *Relationship `json:"relationship,omitempty"`

	ExpectedLift       float64   `json:"expected_lift"` // expected citation lift, percentage points
	CitationIDs        []string  `json:"citation_ids,omitempty"`
	LearningConfidence float64   `json:"learning_confidence"`
	CreatedAt          time.Time `json:"created_at"`
}
