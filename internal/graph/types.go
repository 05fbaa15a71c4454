// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

// Package graph reads the intelligence graph mirror: typed entities and the
// directed relationships between them, exposed by the upstream CTI platform
// as two tabular collections behind a PostgREST-style endpoint. The package
// has no domain semantics beyond the closed type vocabularies; everything
// above it (tool library, orchestrator) composes these reads.
package graph

import (
	"time"

	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// EntityType is the closed vocabulary of node types mirrored from the
// upstream platform. Unrecognized tags are rejected at the boundary by
// ParseEntityType rather than carried into business logic.
type EntityType string

const (
	TypeIntrusionSet   EntityType = "IntrusionSet"
	TypeMalware        EntityType = "Malware"
	TypeVulnerability  EntityType = "Vulnerability"
	TypeReport         EntityType = "Report"
	TypeIndicator      EntityType = "Indicator"
	TypeAttackPattern  EntityType = "AttackPattern"
	TypeCampaign       EntityType = "Campaign"
	TypeTool           EntityType = "Tool"
	TypeSector         EntityType = "Sector"
	TypeCountry        EntityType = "Country"
	TypeRegion         EntityType = "Region"
	TypeCourseOfAction EntityType = "CourseOfAction"
	TypeOrganization   EntityType = "Organization"
)

var entityTypes = map[EntityType]bool{
	TypeIntrusionSet:   true,
	TypeMalware:        true,
	TypeVulnerability:  true,
	TypeReport:         true,
	TypeIndicator:      true,
	TypeAttackPattern:  true,
	TypeCampaign:       true,
	TypeTool:           true,
	TypeSector:         true,
	TypeCountry:        true,
	TypeRegion:         true,
	TypeCourseOfAction: true,
	TypeOrganization:   true,
}

// ParseEntityType validates a raw type tag from the mirror.
func ParseEntityType(raw string) (EntityType, error) {
	et := EntityType(raw)
	if !entityTypes[et] {
		return "", ibrerr.Errorf(ibrerr.CodeGraphQueryInvalidInput, "unknown entity type %q", raw)
	}
	return et, nil
}

// IsValid reports whether the type is part of the closed vocabulary.
func (t EntityType) IsValid() bool {
	return entityTypes[t]
}

// RelationshipType is the edge vocabulary. The upstream vocabulary is open;
// these are the types this subsystem queries by.
type RelationshipType string

const (
	RelUses         RelationshipType = "uses"
	RelTargets      RelationshipType = "targets"
	RelIndicates    RelationshipType = "indicates"
	RelAttributedTo RelationshipType = "attributed-to"
	RelLocatedAt    RelationshipType = "located-at"
	RelMitigates    RelationshipType = "mitigates"
	RelExploits     RelationshipType = "exploits"
)

// Entity is a typed node in the intelligence graph. InternalID is globally
// unique and stable across re-ingestion; the type never changes for an id.
type Entity struct {
	InternalID      string         `json:"internal_id"`
	Name            string         `json:"name"`
	EntityType      EntityType     `json:"entity_type"`
	Attributes      map[string]any `json:"attributes"`
	SourceCreatedAt time.Time      `json:"source_created_at"`
	SourceUpdatedAt time.Time      `json:"source_updated_at"`
}

// Relationship is a typed directed edge. Referential integrity against the
// entity collection is eventually consistent; duplicate (source, target,
// type) rows are possible and callers must tolerate them.
type Relationship struct {
	SourceID         string           `json:"source_id"`
	TargetID         string           `json:"target_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
}

// AttrString returns a string attribute from the entity's attribute bag,
// or "" when absent or not a string.
func (e *Entity) AttrString(key string) string {
	if e.Attributes == nil {
		return ""
	}
	s, _ := e.Attributes[key].(string)
	return s
}

// AttrStrings returns a string-array attribute from the attribute bag.
// Scalars and non-string elements are dropped.
func (e *Entity) AttrStrings(key string) []string {
	if e.Attributes == nil {
		return nil
	}
	raw, ok := e.Attributes[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AttrFloat returns a numeric attribute, or 0 when absent or non-numeric.
func (e *Entity) AttrFloat(key string) float64 {
	if e.Attributes == nil {
		return 0
	}
	f, _ := e.Attributes[key].(float64)
	return f
}
