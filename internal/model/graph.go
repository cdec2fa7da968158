package model

import "time"

// EntityType classifies the kind of entity in a knowledge graph.
type EntityType string

const (
	EntityTypeOrganization EntityType = "organization"
	EntityTypePerson       EntityType = "person"
	EntityTypeProduct      EntityType = "product"
	EntityTypeService      EntityType = "service"
	EntityTypeConcept      EntityType = "concept"
	EntityTypeLocation     EntityType = "location"
)

// Provenance records where a graph element was extracted from.
type Provenance struct {
	SourceURL   string    `json:"source_url,omitempty"`
	ExtractedAt time.Time `json:"extracted_at,omitempty"`
}

// Entity is a typed, named node in a domain's knowledge graph.
// Confidence is 0..1 and only ever increases in this core.
type Entity struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Provenance Provenance     `json:"provenance,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relationship is a typed edge between two entities. Uniqueness key is
// (source, target, type), see Key.
type Relationship struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Key returns the upsert key for the relationship.
func (r Relationship) Key() string {
	return r.SourceID + "|" + r.Type + "|" + r.TargetID
}

// Claim is a factual statement about the domain. Claim confidence only
// increases via citation validation; claims are never created by learning.
type Claim struct {
	ID         string  `json:"id"`
	Statement  string  `json:"statement"`
	Confidence float64 `json:"confidence"`
}

// GraphMetadata tracks versioning for a domain's graph. Every apply bumps
// Version and UpdateCount, even for an empty update list.
type GraphMetadata struct {
	Version     int64     `json:"version"`
	UpdateCount int64     `json:"update_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KnowledgeGraph is the structured representation maintained per domain.
// A domain has exactly one current graph version.
type KnowledgeGraph struct {
	Domain        string         `json:"domain"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Claims        []Claim        `json:"claims"`
	Metadata      GraphMetadata  `json:"metadata"`
}

// Clone returns a structural deep copy sharing no mutable state with the
// receiver. Apply operates on a clone so the prior version stays intact.
func (g *KnowledgeGraph) Clone() *KnowledgeGraph {
	out := &KnowledgeGraph{
		Domain:        g.Domain,
		Entities:      make([]Entity, len(g.Entities)),
		Relationships: make([]Relationship, len(g.Relationships)),
		Claims:        make([]Claim, len(g.Claims)),
		Metadata:      g.Metadata,
	}
	for i, e := range g.Entities {
		ce := e
		if e.Properties != nil {
			ce.Properties = make(map[string]any, len(e.Properties))
			for k, v := range e.Properties {
				ce.Properties[k] = v
			}
		}
		out.Entities[i] = ce
	}
	copy(out.Relationships, g.Relationships)
	copy(out.Claims, g.Claims)
	return out
}

// EntityByID returns a pointer into the graph's entity slice, or nil.
func (g *KnowledgeGraph) EntityByID(id string) *Entity {
	for i := range g.Entities {
		if g.Entities[i].ID == id {
			return &g.Entities[i]
		}
	}
	return nil
}

// ClaimByID returns a pointer into the graph's claim slice, or nil.
func (g *KnowledgeGraph) ClaimByID(id string) *Claim {
	for i := range g.Claims {
		if g.Claims[i].ID == id {
			return &g.Claims[i]
		}
	}
	return nil
}

// RelationshipByKey returns a pointer into the graph's relationship slice
// matching the (source, target, type) key, or nil.
func (g *KnowledgeGraph) RelationshipByKey(key string) *Relationship {
	for i := range g.Relationships {
		if g.Relationships[i].Key() == key {
			return &g.Relationships[i]
		}
	}
	return nil
}
