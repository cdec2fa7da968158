// Package learning turns citation evidence into knowledge graph updates. The
// engine is pure: it takes a graph plus the domain's citations and returns an
// analysis, leaving persistence and delivery to the caller.
package learning

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/pkg/terms"
)

const (
	maxEntityBoost     = 0.20
	entityBoostPerCite = 0.02
	maxClaimBoost      = 0.25
	claimBoostPerMatch = 0.05
	claimMatchRatio    = 0.5
	relationshipBump   = 0.15

	topEntities      = 10
	topClaims        = 10
	topRelationships = 5

	minEntityBoost = 0.05
	minClaimDelta  = 0.05
)

// Engine analyzes citation evidence against a domain's knowledge graph.
type Engine struct {
	log *zap.Logger
}

// NewEngine creates a learning engine.
func NewEngine() *Engine {
	return &Engine{log: zap.L().Named("learning")}
}

// Analyze scores the graph against citation evidence and suggests updates.
// Sparse or empty input yields a zero-valued analysis, never an error.
func (e *Engine) Analyze(graph *model.KnowledgeGraph, citations []model.Citation) *model.LearningAnalysis {
	analysis := &model.LearningAnalysis{
		ID:         uuid.New().String(),
		AnalyzedAt: time.Now().UTC(),
	}
	if graph == nil {
		return analysis
	}
	analysis.Domain = graph.Domain
	citations = domainCitations(graph.Domain, citations)
	analysis.TotalCitationsAnalyzed = len(citations)

	analysis.HighValueEntities = e.entityInsights(graph, citations)
	analysis.HighValueRelationships = e.relationshipInsights(graph, citations)
	analysis.ValidatedClaims = e.claimValidations(graph, citations)
	analysis.SuggestedUpdates = e.generateUpdates(graph, analysis)

	analysis.CurrentScore = visibilityScore(graph, len(citations))
	analysis.PredictedScore = predictedScore(analysis.CurrentScore, analysis.SuggestedUpdates)

	e.log.Debug("analysis complete",
		zap.String("domain", graph.Domain),
		zap.Int("citations", len(citations)),
		zap.Int("updates", len(analysis.SuggestedUpdates)),
		zap.Float64("current_score", analysis.CurrentScore),
		zap.Float64("predicted_score", analysis.PredictedScore))
	return analysis
}

// domainCitations keeps only citations whose URL references the domain.
// Evidence gathered for other domains must not shift this graph.
func domainCitations(domain string, citations []model.Citation) []model.Citation {
	if domain == "" {
		return citations
	}
	matched := citations[:0:0]
	for _, c := range citations {
		if terms.ContainsFold(c.URL, domain) {
			matched = append(matched, c)
		}
	}
	return matched
}

// entityInsights counts, per entity, the citations whose answer text mentions
// the entity's name. The citation rate spreads the count over the elapsed
// days between first and last mention, floored at one day.
func (e *Engine) entityInsights(graph *model.KnowledgeGraph, citations []model.Citation) []model.EntityInsight {
	var insights []model.EntityInsight
	for _, ent := range graph.Entities {
		var (
			count       int
			ids         []string
			first, last time.Time
		)
		for _, c := range citations {
			if !terms.ContainsFold(c.ResponseText, ent.Name) {
				continue
			}
			count++
			ids = append(ids, c.ID)
			if first.IsZero() || c.CitedAt.Before(first) {
				first = c.CitedAt
			}
			if c.CitedAt.After(last) {
				last = c.CitedAt
			}
		}
		if count == 0 {
			continue
		}

		days := last.Sub(first).Hours() / 24
		if days < 1 {
			days = 1
		}
		insights = append(insights, model.EntityInsight{
			EntityID:        ent.ID,
			Name:            ent.Name,
			CitationCount:   count,
			CitationRate:    float64(count) / days,
			ConfidenceBoost: min(maxEntityBoost, float64(count)*entityBoostPerCite),
			CitationIDs:     ids,
		})
	}
	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].ConfidenceBoost != insights[j].ConfidenceBoost {
			return insights[i].ConfidenceBoost > insights[j].ConfidenceBoost
		}
		return insights[i].CitationCount > insights[j].CitationCount
	})
	return insights
}

// relationshipInsights tracks co-citations: a citation co-cites a
// relationship when both endpoint names appear in the same answer text.
func (e *Engine) relationshipInsights(graph *model.KnowledgeGraph, citations []model.Citation) []model.RelationshipInsight {
	names := make(map[string]string, len(graph.Entities))
	for _, ent := range graph.Entities {
		names[ent.ID] = ent.Name
	}

	var insights []model.RelationshipInsight
	for _, rel := range graph.Relationships {
		srcName, srcOK := names[rel.SourceID]
		tgtName, tgtOK := names[rel.TargetID]
		if !srcOK || !tgtOK {
			continue
		}

		var (
			count int
			ids   []string
		)
		for _, c := range citations {
			if terms.ContainsFold(c.ResponseText, srcName) && terms.ContainsFold(c.ResponseText, tgtName) {
				count++
				ids = append(ids, c.ID)
			}
		}
		if count == 0 {
			continue
		}
		insights = append(insights, model.RelationshipInsight{
			Key:         rel.Key(),
			SourceID:    rel.SourceID,
			TargetID:    rel.TargetID,
			Type:        rel.Type,
			CoCitations: count,
			CitationIDs: ids,
		})
	}
	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].CoCitations > insights[j].CoCitations
	})
	return insights
}

// claimValidations treats a citation as corroborating a claim when at least
// half of the claim's keyword terms appear in the citation text.
func (e *Engine) claimValidations(graph *model.KnowledgeGraph, citations []model.Citation) []model.ClaimValidation {
	var validations []model.ClaimValidation
	for _, claim := range graph.Claims {
		keywords := terms.Extract(claim.Statement)
		if len(keywords) == 0 {
			continue
		}

		var (
			count int
			ids   []string
		)
		for _, c := range citations {
			if terms.MatchRatio(keywords, c.ResponseText) >= claimMatchRatio {
				count++
				ids = append(ids, c.ID)
			}
		}
		if count == 0 {
			continue
		}

		boost := min(maxClaimBoost, float64(count)*claimBoostPerMatch)
		validations = append(validations, model.ClaimValidation{
			ClaimID:           claim.ID,
			Validations:       count,
			CurrentConfidence: claim.Confidence,
			NewConfidence:     min(1.0, claim.Confidence+boost),
			CitationIDs:       ids,
		})
	}
	sort.SliceStable(validations, func(i, j int) bool {
		di := validations[i].NewConfidence - validations[i].CurrentConfidence
		dj := validations[j].NewConfidence - validations[j].CurrentConfidence
		return di > dj
	})
	return validations
}

// generateUpdates turns the strongest insights into concrete graph updates,
// ordered by priority then by descending expected lift. Confidence updates
// carry the absolute target value since apply overwrites rather than adds.
func (e *Engine) generateUpdates(graph *model.KnowledgeGraph, a *model.LearningAnalysis) []model.GraphUpdate {
	now := time.Now().UTC()
	var updates []model.GraphUpdate

	for i, ins := range a.HighValueEntities {
		if i >= topEntities {
			break
		}
		if ins.ConfidenceBoost <= minEntityBoost {
			continue
		}
		ent := graph.EntityByID(ins.EntityID)
		if ent == nil {
			continue
		}
		updates = append(updates, model.GraphUpdate{
			ID:                 uuid.New().String(),
			Type:               model.UpdateTypeConfidence,
			Priority:           model.PriorityHigh,
			TargetKind:         model.TargetEntity,
			TargetID:           ins.EntityID,
			NewConfidence:      min(1.0, ent.Confidence+ins.ConfidenceBoost),
			ExpectedLift:       ins.ConfidenceBoost * 100,
			CitationIDs:        ins.CitationIDs,
			LearningConfidence: min(1.0, float64(ins.CitationCount)*0.1),
			CreatedAt:          now,
		})
	}

	for i, v := range a.ValidatedClaims {
		if i >= topClaims {
			break
		}
		delta := v.NewConfidence - v.CurrentConfidence
		if delta <= minClaimDelta {
			continue
		}
		priority := model.PriorityMedium
		if delta >= 0.15 {
			priority = model.PriorityHigh
		}
		updates = append(updates, model.GraphUpdate{
			ID:                 uuid.New().String(),
			Type:               model.UpdateTypeClaimFields,
			Priority:           priority,
			TargetKind:         model.TargetClaim,
			TargetID:           v.ClaimID,
			Fields:             map[string]any{"confidence": v.NewConfidence},
			ExpectedLift:       delta * 100,
			CitationIDs:        v.CitationIDs,
			LearningConfidence: min(1.0, float64(v.Validations)*0.2),
			CreatedAt:          now,
		})
	}

	emitted := 0
	for _, ins := range a.HighValueRelationships {
		if emitted >= topRelationships {
			break
		}
		rel := graph.RelationshipByKey(ins.Key)
		if rel == nil || rel.Confidence >= 0.95 {
			continue
		}
		emitted++
		updates = append(updates, model.GraphUpdate{
			ID:                 uuid.New().String(),
			Type:               model.UpdateTypeConfidence,
			Priority:           model.PriorityMedium,
			TargetKind:         model.TargetRelationship,
			TargetID:           ins.Key,
			NewConfidence:      min(1.0, rel.Confidence+relationshipBump),
			ExpectedLift:       relationshipBump * 100,
			CitationIDs:        ins.CitationIDs,
			LearningConfidence: min(1.0, float64(ins.CoCitations)*0.2),
			CreatedAt:          now,
		})
	}

	sort.SliceStable(updates, func(i, j int) bool {
		if updates[i].Priority.Rank() != updates[j].Priority.Rank() {
			return updates[i].Priority.Rank() < updates[j].Priority.Rank()
		}
		return updates[i].ExpectedLift > updates[j].ExpectedLift
	})
	return updates
}

// visibilityScore caps each component independently so raw graph size cannot
// inflate the score without bound.
func visibilityScore(graph *model.KnowledgeGraph, citations int) float64 {
	return min(50, float64(len(graph.Entities))*2) +
		min(30, float64(len(graph.Relationships))*1.5) +
		min(20, float64(citations)*2)
}

func predictedScore(current float64, updates []model.GraphUpdate) float64 {
	var totalLift float64
	for _, u := range updates {
		totalLift += u.ExpectedLift
	}
	return min(100, current*(1+totalLift/1000))
}
