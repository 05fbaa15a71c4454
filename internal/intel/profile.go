// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"encoding/json"

	"github.com/intelbridge/intelbridge/internal/graph"
)

type profileArgs struct {
	Name string `json:"name"`
}

func profileSchema(what string) map[string]any {
	return objectSchema(map[string]any{
		"name": stringProp("Name or alias of the " + what + " to profile. Fuzzy-matched; the closest, most recently updated entity wins."),
	}, "name")
}

// ActorProfile is the full dossier for one threat actor.
type ActorProfile struct {
	EntityRef
	Aliases           []string `json:"aliases,omitempty"`
	Motivations       []string `json:"motivations,omitempty"`
	Goals             []string `json:"goals,omitempty"`
	FirstSeen         string   `json:"first_seen,omitempty"`
	LastSeen          string   `json:"last_seen,omitempty"`
	UsedMalware       []string `json:"used_malware,omitempty"`
	UsedTools         []string `json:"used_tools,omitempty"`
	TTPs              []string `json:"ttps,omitempty"`
	TargetedSectors   []string `json:"targeted_sectors,omitempty"`
	TargetedCountries []string `json:"targeted_countries,omitempty"`
	Campaigns         []string `json:"campaigns,omitempty"`
}

// MalwareProfile describes one malware family and who uses it.
type MalwareProfile struct {
	EntityRef
	Aliases      []string `json:"aliases,omitempty"`
	MalwareTypes []string `json:"malware_types,omitempty"`
	IsFamily     bool     `json:"is_family"`
	UsedBy       []string `json:"used_by,omitempty"`
	TTPs         []string `json:"ttps,omitempty"`
	Targets      []string `json:"targets,omitempty"`
}

// VulnerabilityProfile describes one CVE and its known exploiters.
type VulnerabilityProfile struct {
	EntityRef
	CVSSScore   float64  `json:"cvss_score,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Published   string   `json:"published,omitempty"`
	ExploitedBy []string `json:"exploited_by,omitempty"`
	Mitigations []string `json:"mitigations,omitempty"`
}

// ToolProfile describes one attacker tool.
type ToolProfile struct {
	EntityRef
	Aliases []string `json:"aliases,omitempty"`
	UsedBy  []string `json:"used_by,omitempty"`
	TTPs    []string `json:"ttps,omitempty"`
}

// CampaignProfile describes one campaign: who ran it, with what, against whom.
type CampaignProfile struct {
	EntityRef
	Aliases           []string `json:"aliases,omitempty"`
	FirstSeen         string   `json:"first_seen,omitempty"`
	LastSeen          string   `json:"last_seen,omitempty"`
	AttributedActors  []string `json:"attributed_actors,omitempty"`
	UsedMalware       []string `json:"used_malware,omitempty"`
	TargetedSectors   []string `json:"targeted_sectors,omitempty"`
	TargetedCountries []string `json:"targeted_countries,omitempty"`
}

func profileTools() []Tool {
	return []Tool{
		{
			Name:        "get_threat_actor_profile",
			Description: "Full profile for one threat actor: motivations, goals, malware and tools used, TTPs, targeted sectors and countries.",
			InputSchema: profileSchema("threat actor"),
			Run:         runActorProfile,
		},
		{
			Name:        "get_malware_profile",
			Description: "Full profile for one malware family: types, aliases, the actors using it, its TTPs and targets.",
			InputSchema: profileSchema("malware family"),
			Run:         runMalwareProfile,
		},
		{
			Name:        "get_vulnerability_profile",
			Description: "Full profile for one vulnerability (CVE): severity, CVSS score, known exploiters, available mitigations.",
			InputSchema: profileSchema("vulnerability"),
			Run:         runVulnerabilityProfile,
		},
		{
			Name:        "get_tool_profile",
			Description: "Full profile for one attacker tool: aliases, the actors using it, associated TTPs.",
			InputSchema: profileSchema("tool"),
			Run:         runToolProfile,
		},
		{
			Name:        "get_campaign_profile",
			Description: "Full profile for one campaign: attributed actors, malware used, targeted sectors and countries.",
			InputSchema: profileSchema("campaign"),
			Run:         runCampaignProfile,
		},
	}
}

func runActorProfile(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
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
	targets, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelTargets)
	attributed, _ := fetchNeighbors(ctx, deps, ent.InternalID, graph.RelAttributedTo, true)

	p := ActorProfile{
		EntityRef:         refOf(*ent),
		Aliases:           ent.AttrStrings("aliases"),
		Motivations:       ent.AttrStrings("motivations"),
		Goals:             ent.AttrStrings("goals"),
		FirstSeen:         ent.AttrString("first_seen"),
		LastSeen:          ent.AttrString("last_seen"),
		UsedMalware:       namesOf(uses.Malware),
		UsedTools:         namesOf(uses.Tools),
		TTPs:              namesOf(uses.AttackPatterns),
		TargetedSectors:   namesOf(targets.Sectors),
		TargetedCountries: namesOf(targets.Countries),
		Campaigns:         namesOf(filterByType(attributed, graph.TypeCampaign)),
	}
	p.Description = ent.AttrString("description")
	return p, nil
}

func runMalwareProfile(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
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

	uses, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelUses)
	targets, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelTargets)
	reverse, _ := deps.Resolver.ResolveReverse(ctx, ent.InternalID, []graph.RelationshipType{graph.RelUses})

	p := MalwareProfile{
		EntityRef:    refOf(*ent),
		Aliases:      ent.AttrStrings("aliases"),
		MalwareTypes: ent.AttrStrings("malware_types"),
		IsFamily:     boolAttr(ent, "is_family"),
		UsedBy:       namesOf(filterByType(reverse.UsedBy, graph.TypeIntrusionSet)),
		TTPs:         namesOf(uses.AttackPatterns),
		Targets:      append(namesOf(targets.Sectors), namesOf(targets.Countries)...),
	}
	p.Description = ent.AttrString("description")
	return p, nil
}

func runVulnerabilityProfile(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
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

	exploiters, _ := fetchNeighbors(ctx, deps, ent.InternalID, graph.RelExploits, true)
	mitigations, _ := fetchNeighbors(ctx, deps, ent.InternalID, graph.RelMitigates, true)

	exploitedBy := append(
		namesOf(filterByType(exploiters, graph.TypeIntrusionSet)),
		namesOf(filterByType(exploiters, graph.TypeMalware))...)

	p := VulnerabilityProfile{
		EntityRef:   refOf(*ent),
		CVSSScore:   ent.AttrFloat("cvss_score"),
		Severity:    ent.AttrString("severity"),
		Published:   ent.AttrString("published"),
		ExploitedBy: exploitedBy,
		Mitigations: namesOf(filterByType(mitigations, graph.TypeCourseOfAction)),
	}
	p.Description = ent.AttrString("description")
	return p, nil
}

func runToolProfile(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, graph.TypeTool, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound("tool", a.Name), nil
	}

	uses, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelUses)
	reverse, _ := deps.Resolver.ResolveReverse(ctx, ent.InternalID, []graph.RelationshipType{graph.RelUses})

	p := ToolProfile{
		EntityRef: refOf(*ent),
		Aliases:   ent.AttrStrings("aliases"),
		UsedBy:    namesOf(filterByType(reverse.UsedBy, graph.TypeIntrusionSet)),
		TTPs:      namesOf(uses.AttackPatterns),
	}
	p.Description = ent.AttrString("description")
	return p, nil
}

func runCampaignProfile(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a profileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ent, err := findOne(ctx, deps, graph.TypeCampaign, a.Name)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return notFound("campaign", a.Name), nil
	}

	uses, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelUses)
	targets, _ := deps.Resolver.ResolveForward(ctx, ent.InternalID, graph.RelTargets)
	actors, _ := fetchNeighbors(ctx, deps, ent.InternalID, graph.RelAttributedTo, false)

	p := CampaignProfile{
		EntityRef:         refOf(*ent),
		Aliases:           ent.AttrStrings("aliases"),
		FirstSeen:         ent.AttrString("first_seen"),
		LastSeen:          ent.AttrString("last_seen"),
		AttributedActors:  namesOf(filterByType(actors, graph.TypeIntrusionSet)),
		UsedMalware:       namesOf(uses.Malware),
		TargetedSectors:   namesOf(targets.Sectors),
		TargetedCountries: namesOf(targets.Countries),
	}
	p.Description = ent.AttrString("description")
	return p, nil
}

func boolAttr(ent *graph.Entity, key string) bool {
	if ent.Attributes == nil {
		return false
	}
	b, _ := ent.Attributes[key].(bool)
	return b
}
