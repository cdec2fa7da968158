// Package network re-indexes cross-domain entity evidence: an entity cited
// from several independent domains is stronger signal than the same volume
// of citations inside one domain.
package network

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/store"
	"github.com/sightline-ai/visibility-cli/pkg/terms"
)

// Indexer scans every domain's graph and citations and maintains the
// global-entity rollup plus network-effect records.
type Indexer struct {
	store store.Store
	log   *zap.Logger
}

// NewIndexer creates a network-effect indexer.
func NewIndexer(st store.Store) *Indexer {
	return &Indexer{store: st, log: zap.L().Named("network")}
}

type entityEvidence struct {
	name      string
	domains   map[string]struct{}
	citations int
}

// Reindex rebuilds global entities from all domains and records a network
// effect for every entity corroborated by two or more domains. Returns the
// number of network effects written.
func (ix *Indexer) Reindex(ctx context.Context) (int, error) {
	domains, err := ix.store.ListDomains(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "network: list domains")
	}

	type domainScan struct {
		domain   string
		mentions map[string]*entityEvidence // keyed by folded name
	}

	scans := make([]domainScan, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, domain := range domains {
		g.Go(func() error {
			graph, err := ix.store.GetGraph(gctx, domain)
			if err != nil {
				if eris.Is(err, store.ErrNotFound) {
					return nil
				}
				return eris.Wrapf(err, "network: graph %s", domain)
			}
			citations, err := ix.store.ListCitations(gctx, domain, store.CitationFilter{})
			if err != nil {
				return eris.Wrapf(err, "network: citations %s", domain)
			}

			mentions := make(map[string]*entityEvidence)
			for _, ent := range graph.Entities {
				key := terms.Fold(ent.Name)
				if key == "" {
					continue
				}
				count := 0
				for _, c := range citations {
					if terms.ContainsFold(c.ResponseText, ent.Name) {
						count++
					}
				}
				ev, ok := mentions[key]
				if !ok {
					ev = &entityEvidence{name: ent.Name, domains: map[string]struct{}{}}
					mentions[key] = ev
				}
				ev.domains[domain] = struct{}{}
				ev.citations += count
			}
			scans[i] = domainScan{domain: domain, mentions: mentions}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Merge per-domain evidence into the global view.
	global := make(map[string]*entityEvidence)
	for _, scan := range scans {
		for key, ev := range scan.mentions {
			agg, ok := global[key]
			if !ok {
				agg = &entityEvidence{name: ev.name, domains: map[string]struct{}{}}
				global[key] = agg
			}
			for d := range ev.domains {
				agg.domains[d] = struct{}{}
			}
			agg.citations += ev.citations
		}
	}

	now := time.Now().UTC()
	effects := 0
	for key, ev := range global {
		domainList := make([]string, 0, len(ev.domains))
		for d := range ev.domains {
			domainList = append(domainList, d)
		}
		sort.Strings(domainList)

		if err := ix.store.SaveGlobalEntity(ctx, model.GlobalEntity{
			Name:      key,
			Domains:   domainList,
			Citations: ev.citations,
			UpdatedAt: now,
		}); err != nil {
			return effects, eris.Wrapf(err, "network: save global entity %s", key)
		}

		if len(domainList) < 2 {
			continue
		}
		if err := ix.store.SaveNetworkEffect(ctx, model.NetworkEffect{
			EntityName:    ev.name,
			Domains:       domainList,
			CitationCount: ev.citations,
			Strength:      effectStrength(len(domainList), ev.citations),
			UpdatedAt:     now,
		}); err != nil {
			return effects, eris.Wrapf(err, "network: save effect %s", key)
		}
		effects++
	}

	ix.log.Info("network effects reindexed",
		zap.Int("domains", len(domains)),
		zap.Int("global_entities", len(global)),
		zap.Int("effects", effects))
	return effects, nil
}

// effectStrength grows with corroborating domains, with a small citation
// volume component, capped at 1.0.
func effectStrength(domains, citations int) float64 {
	s := float64(domains-1)*0.25 + float64(citations)*0.01
	return min(1.0, s)
}
