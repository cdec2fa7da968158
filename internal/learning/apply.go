package learning

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/model"
)

// defaultEntityConfidence is assigned to new entities created without an
// explicit confidence.
const defaultEntityConfidence = 0.70

// Apply produces a new graph version with the updates applied. The input
// graph is never mutated. Updates referencing a missing entity, claim, or
// relationship are skipped. Metadata version, update count, and timestamp
// advance on every call, including an empty update list.
func (e *Engine) Apply(graph *model.KnowledgeGraph, updates []model.GraphUpdate) (*model.KnowledgeGraph, error) {
	if graph == nil {
		return nil, eris.New("learning: apply: nil graph")
	}

	out := graph.Clone()
	applied := 0
	for _, u := range updates {
		if e.applyOne(out, u) {
			applied++
		}
	}

	out.Metadata.Version++
	out.Metadata.UpdateCount++
	out.Metadata.UpdatedAt = time.Now().UTC()

	e.log.Debug("updates applied",
		zap.String("domain", out.Domain),
		zap.Int("requested", len(updates)),
		zap.Int("applied", applied),
		zap.Int64("version", out.Metadata.Version))
	return out, nil
}

func (e *Engine) applyOne(g *model.KnowledgeGraph, u model.GraphUpdate) bool {
	switch u.Type {
	case model.UpdateTypeEntityFields:
		ent := g.EntityByID(u.TargetID)
		if ent == nil {
			return false
		}
		applyEntityFields(ent, u.Fields)
		return true

	case model.UpdateTypeClaimFields:
		claim := g.ClaimByID(u.TargetID)
		if claim == nil {
			return false
		}
		applyClaimFields(claim, u.Fields)
		return true

	case model.UpdateTypeRelationshipUpsert:
		if u.Relationship == nil {
			return false
		}
		if rel := g.RelationshipByKey(u.Relationship.Key()); rel != nil {
			rel.Confidence = u.Relationship.Confidence
		} else {
			g.Relationships = append(g.Relationships, *u.Relationship)
		}
		return true

	case model.UpdateTypeConfidence:
		return applyConfidence(g, u)

	case model.UpdateTypeNewEntity:
		if u.Entity == nil {
			return false
		}
		ent := *u.Entity
		if ent.ID == "" {
			ent.ID = uuid.New().String()
		}
		if ent.Confidence == 0 {
			ent.Confidence = defaultEntityConfidence
		}
		g.Entities = append(g.Entities, ent)
		return true

	case model.UpdateTypeStructure:
		// Reserved for dedup/merge. Metadata still bumps via Apply.
		return true
	}
	return false
}

func applyConfidence(g *model.KnowledgeGraph, u model.GraphUpdate) bool {
	switch u.TargetKind {
	case model.TargetEntity:
		if ent := g.EntityByID(u.TargetID); ent != nil {
			ent.Confidence = u.NewConfidence
			return true
		}
	case model.TargetClaim:
		if claim := g.ClaimByID(u.TargetID); claim != nil {
			claim.Confidence = u.NewConfidence
			return true
		}
	case model.TargetRelationship:
		if rel := g.RelationshipByKey(u.TargetID); rel != nil {
			rel.Confidence = u.NewConfidence
			return true
		}
	}
	return false
}

func applyEntityFields(ent *model.Entity, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				ent.Name = s
			}
		case "type":
			if s, ok := v.(string); ok {
				ent.Type = model.EntityType(s)
			}
		case "confidence":
			if f, ok := toFloat(v); ok {
				ent.Confidence = f
			}
		default:
			if ent.Properties == nil {
				ent.Properties = make(map[string]any)
			}
			ent.Properties[k] = v
		}
	}
}

func applyClaimFields(claim *model.Claim, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "statement":
			if s, ok := v.(string); ok {
				claim.Statement = s
			}
		case "confidence":
			if f, ok := toFloat(v); ok {
				claim.Confidence = f
			}
		}
	}
}

// toFloat accepts float64 and the integer types JSON round-trips produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
