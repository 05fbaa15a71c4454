// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"encoding/json"

	"github.com/intelbridge/intelbridge/internal/graph"
)

// CrossRefResult is the payload every cross-reference tool returns: the
// resolved anchor entity plus the far side of the requested edge.
type CrossRefResult struct {
	Entity  EntityRef   `json:"entity"`
	Count   int         `json:"count"`
	Results []EntityRef `json:"results"`
}

func crossRefSchema(what string) map[string]any {
	return objectSchema(map[string]any{
		"name": stringProp("Name or alias of the " + what + ". Fuzzy-matched."),
	}, "name")
}

func crossRefTools() []Tool {
	return []Tool{
		{
			Name:        "get_ttps_for_actor",
			Description: "List the attack patterns (TTPs) a named threat actor is known to use.",
			InputSchema: crossRefSchema("threat actor"),
			Run:         runTTPsForActor,
		},
		{
			Name:        "get_malware_of_actor",
			Description: "List the malware families a named threat actor is known to use.",
			InputSchema: crossRefSchema("threat actor"),
			Run:         runMalwareOfActor,
		},
		{
			Name:        "get_actors_targeting_sector",
			Description: "List the threat actors known to target a named industry sector.",
			InputSchema: crossRefSchema("industry sector"),
			Run:         runActorsTargetingSector,
		},
		{
			Name:        "get_actors_targeting_country",
			Description: "List the threat actors known to target a named country.",
			InputSchema: crossRefSchema("country"),
			Run:         runActorsTargetingCountry,
		},
		{
			Name:        "get_actors_using_malware",
			Description: "List the threat actors known to use a named malware family.",
			InputSchema: crossRefSchema("malware family"),
			Run:         runActorsUsingMalware,
		},
		{
			Name:        "get_actors_exploiting_vulnerability",
			Description: "List the threat actors and malware known to exploit a named vulnerability (CVE).",
			InputSchema: crossRefSchema("vulnerability"),
			Run:         runActorsExploitingVuln,
		},
	}
}

func runTTPsForActor(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, graph.TypeIntrusionSet, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound("threat actor", a.Name), nil
	}

	uses, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelUses)
	refs := refsOf(uses.AttackPatterns)
	return CrossRefResult{Entity: refOf(*ent), Count: len(refs), Results: refs}, nil
}

func runMalwareOfActor(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, graph.TypeIntrusionSet, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound("threat actor", a.Name), nil
	}

	uses, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelUses)
	refs := refsOf(uses.Malware)
	return CrossRefResult{Entity: refOf(*ent), Count: len(refs), Results: refs}, nil
}

func runActorsTargetingSector(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	return runActorsTargeting(ctx, deps, args, graph.TypeSector, "sector")
}

func runActorsTargetingCountry(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	return runActorsTargeting(ctx, deps, args, graph.TypeCountry, "country")
}

func runActorsTargeting(ctx context.Context, deps Deps, args json.RawMessage, et graph.EntityType, kind string) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, et, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound(kind, a.Name), nil
	}

	reverse, _ := deps.Resolver.ResolveReverse(ctx, ent.InternalID, []graph.RelationshipType{graph.RelTargets})
	refs := refsOf(filterByType(reverse.TargetedBy, graph.TypeIntrusionSet))
	return CrossRefResult{Entity: refOf(*ent), Count: len(refs), Results: refs}, nil
}

func runActorsUsingMalware(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, graph.TypeMalware, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound("malware", a.Name), nil
	}

	reverse, _ := deps.Resolver.ResolveReverse(ctx, ent.InternalID, []graph.RelationshipType{graph.RelUses})
	refs := refsOf(filterByType(reverse.UsedBy, graph.TypeIntrusionSet))
	return CrossRefResult{Entity: refOf(*ent), Count: len(refs), Results: refs}, nil
}

func runActorsExploitingVuln(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, graph.TypeVulnerability, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound("vulnerability", a.Name), nil
	}

	// The exploits edge has no resolver bucket; walk it directly.
	exploiters, err := fetchNeighbors(ctx, deps, ent.InternalID, graph.RelExploits, true)
	if err != nil {
		return nil, err
	}

	refs := append(
		refsOf(filterByType(exploiters, graph.TypeIntrusionSet)),
		refsOf(filterByType(exploiters, graph.TypeMalware))...)
	return CrossRefResult{Entity: refOf(*ent), Count: len(refs), Results: refs}, nil
}
