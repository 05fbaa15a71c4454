// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/intelbridge/intelbridge/internal/graph"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

const (
	searchDefaultLimit = 10
	searchMaxLimit     = 20
)

type searchArgs struct {
	SearchTerm string `json:"search_term"`
	Limit      int    `json:"limit"`
}

// SearchHit is one search result, optionally enriched with one level of
// relationship resolution.
type SearchHit struct {
	EntityRef
	Aliases           []string `json:"aliases,omitempty"`
	LastSeen          string   `json:"last_seen,omitempty"`
	TargetedSectors   []string `json:"targeted_sectors,omitempty"`
	TargetedCountries []string `json:"targeted_countries,omitempty"`
	UsedBy            []string `json:"used_by,omitempty"`
}

// SearchResult is the payload every search tool returns. An empty query is a
// valid result with zero hits, never an error.
type SearchResult struct {
	Query   string      `json:"query"`
	Count   int         `json:"count"`
	Results []SearchHit `json:"results"`
}

func searchSchema() map[string]any {
	return objectSchema(map[string]any{
		"search_term": stringProp("Name or alias fragment to match, case-insensitive."),
		"limit":       intProp("Maximum results to return (default 10, max 20)."),
	}, "search_term")
}

// searchEntities runs the shared substring search: ILIKE on name plus the
// given attribute columns, most recently updated first.
func searchEntities(ctx context.Context, deps Deps, et graph.EntityType, term string, limit int, extraCols ...graph.ColumnRef) ([]graph.Entity, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ibrerr.New(ibrerr.CodeIntelToolInvalidInput, "search_term is required")
	}

	match := []graph.Predicate{graph.Match(graph.Col("name"), term)}
	for _, col := range extraCols {
		match = append(match, graph.Match(col, term))
	}

	ents, _, err := deps.Graph.QueryEntities(ctx, graph.QuerySpec{
		Filters: []graph.Predicate{
			graph.Eq(graph.Col("entity_type"), string(et)),
			graph.Or(match...),
		},
		Order: []graph.OrderClause{graph.Desc(graph.Col("source_updated_at"))},
		Limit: limit,
	})
	return ents, err
}

// enrichHits fans per-result enrichment out under the worker cap. enrich
// fills hits[i] in place; results keep query order regardless of completion
// order.
func enrichHits(ctx context.Context, deps Deps, n int, enrich func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deps.workers())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			enrich(gctx, i)
			return nil
		})
	}
	_ = g.Wait() // enrichment is best-effort
}

func baseHits(ents []graph.Entity) []SearchHit {
	hits := make([]SearchHit, len(ents))
	for i, ent := range ents {
		hits[i] = SearchHit{
			EntityRef: refOf(ent),
			Aliases:   ent.AttrStrings("aliases"),
		}
		if !ent.SourceUpdatedAt.IsZero() {
			hits[i].LastSeen = ent.SourceUpdatedAt.UTC().Format("2006-01-02")
		}
	}
	return hits
}

func searchTools() []Tool {
	return []Tool{
		{
			Name:        "search_threat_actors",
			Description: "Search threat actors (intrusion sets) by name or alias. Each hit includes the sectors and countries the actor targets.",
			InputSchema: searchSchema(),
			Run:         runSearchThreatActors,
		},
		{
			Name:        "search_malware",
			Description: "Search malware families by name or alias. Each hit includes the threat actors known to use it.",
			InputSchema: searchSchema(),
			Run:         runSearchMalware,
		},
		{
			Name:        "search_tools",
			Description: "Search attacker tools (legitimate or dual-use software abused by threat actors) by name or alias.",
			InputSchema: searchSchema(),
			Run:         runSearchTools,
		},
		{
			Name:        "search_indicators",
			Description: "Search indicators of compromise by name or detection pattern content.",
			InputSchema: searchSchema(),
			Run:         runSearchIndicators,
		},
		{
			Name:        "search_mitigations",
			Description: "Search mitigations and courses of action by name.",
			InputSchema: searchSchema(),
			Run:         runSearchMitigations,
		},
	}
}

func runSearchThreatActors(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, searchDefaultLimit, searchMaxLimit)

	ents, err := searchEntities(ctx, deps, graph.TypeIntrusionSet, a.SearchTerm, limit, graph.Attr("aliases"))
	if err != nil {
		return nil, err
	}

	hits := baseHits(ents)
	enrichHits(ctx, deps, len(hits), func(ctx context.Context, i int) {
		buckets, _ := deps.Resolver.ResolveForward(ctx, ents[i].InternalID, graph.RelTargets)
		hits[i].TargetedSectors = namesOf(buckets.Sectors)
		hits[i].TargetedCountries = namesOf(buckets.Countries)
	})

	return SearchResult{Query: a.SearchTerm, Count: len(hits), Results: hits}, nil
}

func runSearchMalware(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, searchDefaultLimit, searchMaxLimit)

	ents, err := searchEntities(ctx, deps, graph.TypeMalware, a.SearchTerm, limit, graph.Attr("aliases"))
	if err != nil {
		return nil, err
	}

	hits := baseHits(ents)
	enrichHits(ctx, deps, len(hits), func(ctx context.Context, i int) {
		buckets, _ := deps.Resolver.ResolveReverse(ctx, ents[i].InternalID, []graph.RelationshipType{graph.RelUses})
		hits[i].UsedBy = namesOf(filterByType(buckets.UsedBy, graph.TypeIntrusionSet))
	})

	return SearchResult{Query: a.SearchTerm, Count: len(hits), Results: hits}, nil
}

func runSearchTools(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, searchDefaultLimit, searchMaxLimit)

	ents, err := searchEntities(ctx, deps, graph.TypeTool, a.SearchTerm, limit, graph.Attr("aliases"))
	if err != nil {
		return nil, err
	}

	hits := baseHits(ents)
	enrichHits(ctx, deps, len(hits), func(ctx context.Context, i int) {
		buckets, _ := deps.Resolver.ResolveReverse(ctx, ents[i].InternalID, []graph.RelationshipType{graph.RelUses})
		hits[i].UsedBy = namesOf(filterByType(buckets.UsedBy, graph.TypeIntrusionSet))
	})

	return SearchResult{Query: a.SearchTerm, Count: len(hits), Results: hits}, nil
}

func runSearchIndicators(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, searchDefaultLimit, searchMaxLimit)

	ents, err := searchEntities(ctx, deps, graph.TypeIndicator, a.SearchTerm, limit, graph.Attr("pattern"))
	if err != nil {
		return nil, err
	}

	hits := baseHits(ents)
	for i, ent := range ents {
		if pattern := ent.AttrString("pattern"); pattern != "" {
			hits[i].Description = truncateText(pattern, 200)
		}
	}

	return SearchResult{Query: a.SearchTerm, Count: len(hits), Results: hits}, nil
}

func runSearchMitigations(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, searchDefaultLimit, searchMaxLimit)

	ents, err := searchEntities(ctx, deps, graph.TypeCourseOfAction, a.SearchTerm, limit)
	if err != nil {
		return nil, err
	}

	return SearchResult{Query: a.SearchTerm, Count: len(ents), Results: baseHits(ents)}, nil
}
