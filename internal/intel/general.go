// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/intelbridge/intelbridge/internal/graph"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// generalSearchTypes are the entity types the fallback search spans.
var generalSearchTypes = []graph.EntityType{
	graph.TypeIntrusionSet,
	graph.TypeMalware,
	graph.TypeVulnerability,
	graph.TypeTool,
	graph.TypeCampaign,
	graph.TypeAttackPattern,
	graph.TypeReport,
}

// GeneralSearchResult groups the unscoped search's hits by entity type.
type GeneralSearchResult struct {
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
	Results map[string][]EntityRef `json:"results"`
}

func generalSearchTool() Tool {
	return Tool{
		Name:        "general_search",
		Description: "Unscoped search across all major entity types (actors, malware, vulnerabilities, tools, campaigns, attack patterns, reports). Use when no specific tool matches the question.",
		InputSchema: objectSchema(map[string]any{
			"search_term": stringProp("Name fragment to match across all entity types, case-insensitive."),
			"limit":       intProp("Maximum results to return (default 20, max 50)."),
		}, "search_term"),
		Run: runGeneralSearch,
	}
}

func runGeneralSearch(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	term := strings.TrimSpace(a.SearchTerm)
	if term == "" {
		return nil, ibrerr.New(ibrerr.CodeIntelToolInvalidInput, "search_term is required")
	}
	limit := clampLimit(a.Limit, listingDefaultLimit, listingMaxLimit)

	types := make([]string, 0, len(generalSearchTypes))
	for _, et := range generalSearchTypes {
		types = append(types, string(et))
	}

	ents, _, err := deps.Graph.QueryEntities(ctx, graph.QuerySpec{
		Filters: []graph.Predicate{
			graph.In(graph.Col("entity_type"), types...),
			graph.Or(
				graph.Match(graph.Col("name"), term),
				graph.Match(graph.Attr("aliases"), term),
			),
		},
		Order: []graph.OrderClause{graph.Desc(graph.Col("source_updated_at"))},
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]EntityRef)
	for _, ent := range ents {
		key := string(ent.EntityType)
		grouped[key] = append(grouped[key], refOf(ent))
	}

	return GeneralSearchResult{Query: term, Count: len(ents), Results: grouped}, nil
}
