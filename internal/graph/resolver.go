// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package graph

import (
	"context"
	"log/slog"
)

// ForwardBuckets partitions an entity's forward neighbors by type.
// RawNeighborCount includes relationship rows whose target was missing or
// unbucketed, so callers can see the unpartitioned edge total.
type ForwardBuckets struct {
	Sectors          []Entity `json:"sectors,omitempty"`
	Countries        []Entity `json:"countries,omitempty"`
	ThreatActors     []Entity `json:"threat_actors,omitempty"`
	Malware          []Entity `json:"malware,omitempty"`
	Vulnerabilities  []Entity `json:"vulnerabilities,omitempty"`
	AttackPatterns   []Entity `json:"attack_patterns,omitempty"`
	Tools            []Entity `json:"tools,omitempty"`
	Campaigns        []Entity `json:"campaigns,omitempty"`
	RawNeighborCount int      `json:"raw_neighbor_count"`
}

// ReverseBuckets partitions an entity's reverse neighbors by the role the
// inbound edge implies.
type ReverseBuckets struct {
	UsedBy           []Entity `json:"used_by,omitempty"`
	TargetedBy       []Entity `json:"targeted_by,omitempty"`
	RawNeighborCount int      `json:"raw_neighbor_count"`
}

// WarningKind classifies an enrichment warning.
type WarningKind string

const (
	// WarnStoreError means the store query failed and the buckets are empty.
	WarnStoreError WarningKind = "store_error"
	// WarnMissingTarget means a relationship row referenced an entity that
	// the batched fetch did not return; the mirror may be lagging. Counted
	// per resolution rather than swallowed, so callers can surface it as a
	// data-quality signal.
	WarnMissingTarget WarningKind = "missing_target"
)

// Warning reports a degraded resolution. Enrichment is best-effort: the
// resolver never fails the enclosing tool call, it reports what it dropped.
type Warning struct {
	Kind   WarningKind
	Detail string
	Err    error
}

// forwardBucketFor is the explicit type-tag → bucket mapping table.
// Types without a bucket (Report, Indicator, Region, CourseOfAction,
// Organization) resolve to nil and stay out of the partition while still
// counting toward RawNeighborCount.
func forwardBucketFor(b *ForwardBuckets, t EntityType) *[]Entity {
	switch t {
	case TypeSector:
		return &b.Sectors
	case TypeCountry:
		return &b.Countries
	case TypeIntrusionSet:
		return &b.ThreatActors
	case TypeMalware:
		return &b.Malware
	case TypeVulnerability:
		return &b.Vulnerabilities
	case TypeAttackPattern:
		return &b.AttackPatterns
	case TypeTool:
		return &b.Tools
	case TypeCampaign:
		return &b.Campaigns
	default:
		return nil
	}
}

// Resolver expands an entity's neighborhood into typed buckets. Every
// resolution issues exactly one relationship query and one batched entity
// query, regardless of neighbor count.
type Resolver struct {
	store Store
	log   *slog.Logger
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log}
}

// resolverFetchLimit bounds both the relationship page and the batched
// entity fetch for a single resolution.
const resolverFetchLimit = 200

// ResolveForward fetches relationships where entityID is the source and
// partitions the target entities by type.
func (r *Resolver) ResolveForward(ctx context.Context, entityID string, relType RelationshipType) (ForwardBuckets, []Warning) {
	var buckets ForwardBuckets

	rels, _, err := r.store.QueryRelationships(ctx, QuerySpec{
		Filters: []Predicate{
			Eq(Col("source_id"), entityID),
			Eq(Col("relationship_type"), string(relType)),
		},
		Limit: resolverFetchLimit,
	})
	if err != nil {
		return buckets, r.storeWarning(entityID, "forward relationship query", err)
	}

	ids := dedupe(rels, func(rel Relationship) string { return rel.TargetID })
	buckets.RawNeighborCount = len(ids)
	if len(ids) == 0 {
		return buckets, nil
	}

	ents, _, err := r.store.QueryEntities(ctx, QuerySpec{
		Filters: []Predicate{In(Col("internal_id"), ids...)},
		Limit:   resolverFetchLimit,
	})
	if err != nil {
		return ForwardBuckets{RawNeighborCount: buckets.RawNeighborCount},
			r.storeWarning(entityID, "forward entity batch fetch", err)
	}

	byID := make(map[string]Entity, len(ents))
	for _, ent := range ents {
		byID[ent.InternalID] = ent
	}

	var warnings []Warning
	for _, id := range ids {
		ent, ok := byID[id]
		if !ok {
			warnings = append(warnings, r.missingTarget(entityID, id))
			continue
		}
		if bucket := forwardBucketFor(&buckets, ent.EntityType); bucket != nil {
			*bucket = append(*bucket, ent)
		}
	}

	return buckets, warnings
}

// ResolveReverse fetches relationships where entityID is the target across
// all requested types in a single or-predicate query, then partitions the
// source entities by the role each edge implies: usedBy for "uses",
// targetedBy for "targets".
func (r *Resolver) ResolveReverse(ctx context.Context, entityID string, relTypes []RelationshipType) (ReverseBuckets, []Warning) {
	var buckets ReverseBuckets
	if len(relTypes) == 0 {
		return buckets, nil
	}

	typePreds := make([]Predicate, 0, len(relTypes))
	for _, rt := range relTypes {
		typePreds = append(typePreds, Eq(Col("relationship_type"), string(rt)))
	}

	rels, _, err := r.store.QueryRelationships(ctx, QuerySpec{
		Filters: []Predicate{
			Eq(Col("target_id"), entityID),
			Or(typePreds...),
		},
		Limit: resolverFetchLimit,
	})
	if err != nil {
		return buckets, r.storeWarning(entityID, "reverse relationship query", err)
	}

	ids := dedupe(rels, func(rel Relationship) string { return rel.SourceID })
	buckets.RawNeighborCount = len(ids)
	if len(ids) == 0 {
		return buckets, nil
	}

	ents, _, err := r.store.QueryEntities(ctx, QuerySpec{
		Filters: []Predicate{In(Col("internal_id"), ids...)},
		Limit:   resolverFetchLimit,
	})
	if err != nil {
		return ReverseBuckets{RawNeighborCount: buckets.RawNeighborCount},
			r.storeWarning(entityID, "reverse entity batch fetch", err)
	}

	byID := make(map[string]Entity, len(ents))
	for _, ent := range ents {
		byID[ent.InternalID] = ent
	}

	var warnings []Warning
	seen := make(map[string]bool, len(rels))
	for _, rel := range rels {
		// Duplicate (source, target, type) rows are possible in the mirror;
		// partition each source once per role.
		key := rel.SourceID + "|" + string(rel.RelationshipType)
		if seen[key] {
			continue
		}
		seen[key] = true

		ent, ok := byID[rel.SourceID]
		if !ok {
			warnings = append(warnings, r.missingTarget(entityID, rel.SourceID))
			continue
		}
		switch rel.RelationshipType {
		case RelUses:
			buckets.UsedBy = append(buckets.UsedBy, ent)
		case RelTargets:
			buckets.TargetedBy = append(buckets.TargetedBy, ent)
		}
	}

	return buckets, warnings
}

func (r *Resolver) storeWarning(entityID, op string, err error) []Warning {
	r.log.Warn("relationship enrichment degraded",
		"entity_id", entityID,
		"op", op,
		"error", err)
	return []Warning{{Kind: WarnStoreError, Detail: op, Err: err}}
}

func (r *Resolver) missingTarget(entityID, neighborID string) Warning {
	r.log.Debug("relationship references entity missing from mirror",
		"entity_id", entityID,
		"neighbor_id", neighborID)
	return Warning{Kind: WarnMissingTarget, Detail: neighborID}
}

// dedupe collects the distinct ids produced by pick, preserving first-seen
// order.
func dedupe(rels []Relationship, pick func(Relationship) string) []string {
	seen := make(map[string]bool, len(rels))
	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		id := pick(rel)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
