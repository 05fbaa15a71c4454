// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"fmt"

	"github.com/intelbridge/intelbridge/internal/graph"
)

// EntityRef is the compact entity view embedded in tool results. Link is an
// in-app path the model may quote verbatim; it never invents its own.
type EntityRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
}

// linkBase maps entity types to the dashboard route each detail page lives
// under. Types without a detail page get no link.
var linkBase = map[graph.EntityType]string{
	graph.TypeIntrusionSet:  "/threat-actors",
	graph.TypeMalware:       "/malware",
	graph.TypeVulnerability: "/vulnerabilities",
	graph.TypeReport:        "/reports",
	graph.TypeIndicator:     "/indicators",
	graph.TypeAttackPattern: "/attack-patterns",
	graph.TypeCampaign:      "/campaigns",
	graph.TypeTool:          "/tools",
}

// LinkPath returns the in-app detail path for an entity, or "" when its type
// has no detail page.
func LinkPath(ent graph.Entity) string {
	base, ok := linkBase[ent.EntityType]
	if !ok {
		return ""
	}
	return base + "/" + ent.InternalID
}

func refOf(ent graph.Entity) EntityRef {
	return EntityRef{
		ID:          ent.InternalID,
		Name:        ent.Name,
		Type:        string(ent.EntityType),
		Link:        LinkPath(ent),
		Description: truncateText(ent.AttrString("description"), 400),
	}
}

func refsOf(ents []graph.Entity) []EntityRef {
	refs := make([]EntityRef, 0, len(ents))
	for _, ent := range ents {
		refs = append(refs, refOf(ent))
	}
	return refs
}

func namesOf(ents []graph.Entity) []string {
	names := make([]string, 0, len(ents))
	for _, ent := range ents {
		names = append(names, ent.Name)
	}
	return names
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// notFound is the structured empty-lookup result the model reacts to by
// clarifying or broadening its query.
func notFound(kind, term string) map[string]string {
	return map[string]string{"error": fmt.Sprintf("No %s found matching %q", kind, term)}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// findOne resolves a single entity of the given type by fuzzy name match,
// preferring the most recently updated hit. Returns nil when no row matches.
func findOne(ctx context.Context, deps Deps, et graph.EntityType, name string) (*graph.Entity, error) {
	ents, _, err := deps.Graph.QueryEntities(ctx, graph.QuerySpec{
		Filters: []graph.Predicate{
			graph.Eq(graph.Col("entity_type"), string(et)),
			graph.Or(
				graph.Match(graph.Col("name"), name),
				graph.Match(graph.Attr("aliases"), name),
			),
		},
		Order: []graph.OrderClause{graph.Desc(graph.Col("source_updated_at"))},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return nil, nil
	}
	return &ents[0], nil
}

// fetchNeighbors walks one edge type in the given direction with the usual
// two-query shape: one relationship page, one batched entity fetch. Used by
// cross-reference tools for edge types the resolver's fixed buckets do not
// cover.
func fetchNeighbors(ctx context.Context, deps Deps, entityID string, rel graph.RelationshipType, reverse bool) ([]graph.Entity, error) {
	matchCol, pickCol := "source_id", func(r graph.Relationship) string { return r.TargetID }
	if reverse {
		matchCol, pickCol = "target_id", func(r graph.Relationship) string { return r.SourceID }
	}

	rels, _, err := deps.Graph.QueryRelationships(ctx, graph.QuerySpec{
		Filters: []graph.Predicate{
			graph.Eq(graph.Col(matchCol), entityID),
			graph.Eq(graph.Col("relationship_type"), string(rel)),
		},
		Limit: 200,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rels))
	ids := make([]string, 0, len(rels))
	for _, r := range rels {
		id := pickCol(r)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ents, _, err := deps.Graph.QueryEntities(ctx, graph.QuerySpec{
		Filters: []graph.Predicate{graph.In(graph.Col("internal_id"), ids...)},
		Limit:   200,
	})
	return ents, err
}

func filterByType(ents []graph.Entity, et graph.EntityType) []graph.Entity {
	out := make([]graph.Entity, 0, len(ents))
	for _, ent := range ents {
		if ent.EntityType == et {
			out = append(out, ent)
		}
	}
	return out
}
