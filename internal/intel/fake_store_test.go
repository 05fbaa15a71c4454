// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/intelbridge/intelbridge/internal/graph"
)

// fakeStore is an in-memory graph.Store that evaluates the predicate tree
// against seeded rows, so tools run against realistic filter semantics
// without a transport.
type fakeStore struct {
	mu       sync.Mutex
	entities []graph.Entity
	rels     []graph.Relationship

	entityCalls int
	relCalls    int
	failWith    error
	failRels    error
}

func (s *fakeStore) QueryEntities(_ context.Context, spec graph.QuerySpec) ([]graph.Entity, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityCalls++
	if s.failWith != nil {
		return nil, -1, s.failWith
	}

	var out []graph.Entity
	for _, ent := range s.entities {
		if matchAll(spec.Filters, func(p graph.Predicate) bool { return matchEntity(p, ent) }) {
			out = append(out, ent)
		}
	}
	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out, -1, nil
}

func (s *fakeStore) QueryRelationships(_ context.Context, spec graph.QuerySpec) ([]graph.Relationship, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relCalls++
	if s.failWith != nil {
		return nil, -1, s.failWith
	}
	if s.failRels != nil {
		return nil, -1, s.failRels
	}

	var out []graph.Relationship
	for _, rel := range s.rels {
		if matchAll(spec.Filters, func(p graph.Predicate) bool { return matchRel(p, rel) }) {
			out = append(out, rel)
		}
	}
	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out, -1, nil
}

func matchAll(preds []graph.Predicate, match func(graph.Predicate) bool) bool {
	for _, p := range preds {
		if !match(p) {
			return false
		}
	}
	return true
}

func matchEntity(p graph.Predicate, ent graph.Entity) bool {
	switch p.Kind {
	case graph.KindOr:
		for _, sub := range p.Nested {
			if matchEntity(sub, ent) {
				return true
			}
		}
		return false
	case graph.KindEq:
		return entityColumn(ent, p.Column) == p.Value
	case graph.KindIn:
		got := entityColumn(ent, p.Column)
		for _, v := range p.Values {
			if got == v {
				return true
			}
		}
		return false
	case graph.KindILike:
		term := strings.ToLower(strings.Trim(p.Value, "*"))
		return strings.Contains(strings.ToLower(entityColumn(ent, p.Column)), term)
	case graph.KindGte:
		cutoff, err := time.Parse(time.RFC3339, p.Value)
		if err != nil {
			return false
		}
		ts, err := time.Parse(time.RFC3339Nano, entityColumn(ent, p.Column))
		if err != nil {
			return false
		}
		return !ts.Before(cutoff)
	case graph.KindContains:
		path := p.Column.Path()
		if len(path) == 0 {
			return false
		}
		have := ent.AttrStrings(path[0])
		for _, want := range p.Values {
			found := false
			for _, v := range have {
				if v == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func entityColumn(ent graph.Entity, col graph.ColumnRef) string {
	if path := col.Path(); len(path) > 0 {
		// Text-extraction of an array attribute sees its JSON rendering;
		// joining is close enough for substring matching in tests.
		if ss := ent.AttrStrings(path[0]); ss != nil {
			return strings.Join(ss, ",")
		}
		return ent.AttrString(path[0])
	}
	switch col.Name() {
	case "internal_id":
		return ent.InternalID
	case "name":
		return ent.Name
	case "entity_type":
		return string(ent.EntityType)
	case "source_created_at":
		return ent.SourceCreatedAt.UTC().Format(time.RFC3339Nano)
	case "source_updated_at":
		return ent.SourceUpdatedAt.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func matchRel(p graph.Predicate, rel graph.Relationship) bool {
	switch p.Kind {
	case graph.KindOr:
		for _, sub := range p.Nested {
			if matchRel(sub, rel) {
				return true
			}
		}
		return false
	case graph.KindEq:
		switch p.Column.Name() {
		case "source_id":
			return rel.SourceID == p.Value
		case "target_id":
			return rel.TargetID == p.Value
		case "relationship_type":
			return string(rel.RelationshipType) == p.Value
		}
		return false
	default:
		return false
	}
}
