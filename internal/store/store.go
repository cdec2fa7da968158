// Package store persists knowledge graphs, citations, and derived learning
// artifacts, keyed by domain. Two backends implement the same interface:
// SQLite (default, embedded) and Postgres.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

// ErrNotFound signals an explicit absence (no graph for a domain). Callers
// check it with errors.Is.
var ErrNotFound = eris.New("store: not found")

// CitationFilter specifies criteria for listing citations.
type CitationFilter struct {
	Platform string `json:"platform,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Store is the persistence gateway for the learning and sync engines.
type Store interface {
	// Graphs. A domain has exactly one current graph; SaveGraph supersedes
	// the stored version (compare-and-swap discipline is the caller's
	// responsibility).
	GetGraph(ctx context.Context, domain string) (*model.KnowledgeGraph, error)
	SaveGraph(ctx context.Context, g *model.KnowledgeGraph) error
	ListDomains(ctx context.Context) ([]string, error)

	// Citations, immutable once recorded. ListCitations returns them in
	// cited_at order.
	InsertCitation(ctx context.Context, c model.Citation, domain string) error
	InsertCitations(ctx context.Context, cs []model.Citation, domain string) (int, error)
	ListCitations(ctx context.Context, domain string, filter CitationFilter) ([]model.Citation, error)

	// Derived learning artifacts.
	SaveAnalysis(ctx context.Context, a *model.LearningAnalysis) error
	SavePrediction(ctx context.Context, p model.CitationPrediction) error
	GetPrediction(ctx context.Context, domain string) (*model.CitationPrediction, error)
	SaveNetworkEffect(ctx context.Context, e model.NetworkEffect) error
	ListNetworkEffects(ctx context.Context, limit int) ([]model.NetworkEffect, error)
	SaveGlobalEntity(ctx context.Context, e model.GlobalEntity) error
	GetGlobalEntity(ctx context.Context, name string) (*model.GlobalEntity, error)

	// Sync dead letter queue.
	EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
