// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package graph_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/intelbridge/intelbridge/internal/graph"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore is a fake graph.Store that records how many queries each
// resolution issues.
type countingStore struct {
	entities      []graph.Entity
	relationships []graph.Relationship

	entityCalls       int
	relationshipCalls int

	entityErr       error
	relationshipErr error

	lastEntitySpec       graph.QuerySpec
	lastRelationshipSpec graph.QuerySpec
}

func (s *countingStore) QueryEntities(_ context.Context, spec graph.QuerySpec) ([]graph.Entity, int, error) {
	s.entityCalls++
	s.lastEntitySpec = spec
	if s.entityErr != nil {
		return nil, -1, s.entityErr
	}

	// Honor in-predicates on internal_id the way the real store would.
	want := map[string]bool{}
	for _, pred := range spec.Filters {
		if pred.Kind == graph.KindIn {
			for _, v := range pred.Values {
				want[v] = true
			}
		}
	}
	var out []graph.Entity
	for _, ent := range s.entities {
		if len(want) == 0 || want[ent.InternalID] {
			out = append(out, ent)
		}
	}
	return out, -1, nil
}

func (s *countingStore) QueryRelationships(_ context.Context, spec graph.QuerySpec) ([]graph.Relationship, int, error) {
	s.relationshipCalls++
	s.lastRelationshipSpec = spec
	if s.relationshipErr != nil {
		return nil, -1, s.relationshipErr
	}
	return s.relationships, -1, nil
}

func entity(id, name string, t graph.EntityType) graph.Entity {
	return graph.Entity{InternalID: id, Name: name, EntityType: t}
}

func TestResolveForwardBuckets(t *testing.T) {
	store := &countingStore{
		relationships: []graph.Relationship{
			{SourceID: "actor-1", TargetID: "c-1", RelationshipType: graph.RelTargets},
			{SourceID: "actor-1", TargetID: "s-1", RelationshipType: graph.RelTargets},
			{SourceID: "actor-1", TargetID: "s-2", RelationshipType: graph.RelTargets},
		},
		entities: []graph.Entity{
			entity("c-1", "Germany", graph.TypeCountry),
			entity("s-1", "Finance", graph.TypeSector),
			entity("s-2", "Healthcare", graph.TypeSector),
		},
	}
	resolver := graph.NewResolver(store, nil)

	buckets, warnings := resolver.ResolveForward(context.Background(), "actor-1", graph.RelTargets)
	assert.Empty(t, warnings)
	assert.Equal(t, 3, buckets.RawNeighborCount)
	require.Len(t, buckets.Countries, 1)
	assert.Equal(t, "Germany", buckets.Countries[0].Name)
	require.Len(t, buckets.Sectors, 2)
}

// For N forward neighbors the resolver issues exactly one relationship query
// and one entity query, never a per-edge fetch.
func TestResolveForwardBatchingInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := &countingStore{}
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("m-%d", i)
				store.relationships = append(store.relationships, graph.Relationship{
					SourceID: "actor-1", TargetID: id, RelationshipType: graph.RelUses,
				})
				store.entities = append(store.entities, entity(id, id, graph.TypeMalware))
			}
			resolver := graph.NewResolver(store, nil)

			buckets, warnings := resolver.ResolveForward(context.Background(), "actor-1", graph.RelUses)
			assert.Empty(t, warnings)
			assert.Len(t, buckets.Malware, n)
			assert.Equal(t, 1, store.relationshipCalls)
			if n == 0 {
				// No neighbors means the batched entity fetch is skipped too.
				assert.Equal(t, 0, store.entityCalls)
			} else {
				assert.Equal(t, 1, store.entityCalls)
			}
		})
	}
}

func TestResolveForwardUnbucketedTypesCountRaw(t *testing.T) {
	store := &countingStore{
		relationships: []graph.Relationship{
			{SourceID: "a", TargetID: "r-1", RelationshipType: graph.RelUses},
			{SourceID: "a", TargetID: "m-1", RelationshipType: graph.RelUses},
		},
		entities: []graph.Entity{
			entity("r-1", "Quarterly report", graph.TypeReport),
			entity("m-1", "Emotet", graph.TypeMalware),
		},
	}
	resolver := graph.NewResolver(store, nil)

	buckets, warnings := resolver.ResolveForward(context.Background(), "a", graph.RelUses)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, buckets.RawNeighborCount)
	assert.Len(t, buckets.Malware, 1)
	// Report has no bucket and silently stays out of the partition.
	assert.Empty(t, buckets.Sectors)
}

func TestResolveForwardMissingTargetWarns(t *testing.T) {
	store := &countingStore{
		relationships: []graph.Relationship{
			{SourceID: "a", TargetID: "gone", RelationshipType: graph.RelUses},
			{SourceID: "a", TargetID: "m-1", RelationshipType: graph.RelUses},
		},
		entities: []graph.Entity{entity("m-1", "Emotet", graph.TypeMalware)},
	}
	resolver := graph.NewResolver(store, nil)

	buckets, warnings := resolver.ResolveForward(context.Background(), "a", graph.RelUses)
	require.Len(t, warnings, 1)
	assert.Equal(t, graph.WarnMissingTarget, warnings[0].Kind)
	assert.Equal(t, "gone", warnings[0].Detail)
	assert.Equal(t, 2, buckets.RawNeighborCount)
	assert.Len(t, buckets.Malware, 1)
}

func TestResolveForwardStoreErrorDegrades(t *testing.T) {
	store := &countingStore{
		relationshipErr: ibrerr.New(ibrerr.CodeGraphQueryFailure, "store down"),
	}
	resolver := graph.NewResolver(store, nil)

	buckets, warnings := resolver.ResolveForward(context.Background(), "a", graph.RelUses)
	require.Len(t, warnings, 1)
	assert.Equal(t, graph.WarnStoreError, warnings[0].Kind)
	assert.Zero(t, buckets.RawNeighborCount)
	assert.Empty(t, buckets.Malware)
}

func TestResolveReverseSingleOrQuery(t *testing.T) {
	store := &countingStore{
		relationships: []graph.Relationship{
			{SourceID: "actor-1", TargetID: "mal-1", RelationshipType: graph.RelUses},
			{SourceID: "actor-2", TargetID: "mal-1", RelationshipType: graph.RelTargets},
			// Duplicate edge row; the resolver must tolerate it.
			{SourceID: "actor-1", TargetID: "mal-1", RelationshipType: graph.RelUses},
		},
		entities: []graph.Entity{
			entity("actor-1", "APT29", graph.TypeIntrusionSet),
			entity("actor-2", "FIN7", graph.TypeIntrusionSet),
		},
	}
	resolver := graph.NewResolver(store, nil)

	buckets, warnings := resolver.ResolveReverse(context.Background(), "mal-1",
		[]graph.RelationshipType{graph.RelUses, graph.RelTargets})
	assert.Empty(t, warnings)

	require.Len(t, buckets.UsedBy, 1)
	assert.Equal(t, "APT29", buckets.UsedBy[0].Name)
	require.Len(t, buckets.TargetedBy, 1)
	assert.Equal(t, "FIN7", buckets.TargetedBy[0].Name)

	// One relationship query with an or-predicate, one batched entity query.
	assert.Equal(t, 1, store.relationshipCalls)
	assert.Equal(t, 1, store.entityCalls)

	var hasOr bool
	for _, pred := range store.lastRelationshipSpec.Filters {
		if pred.Kind == graph.KindOr {
			hasOr = true
		}
	}
	assert.True(t, hasOr, "reverse resolution must use a single or-predicate across relationship types")
}

func TestResolveReverseEmptyTypes(t *testing.T) {
	store := &countingStore{}
	resolver := graph.NewResolver(store, nil)

	buckets, warnings := resolver.ResolveReverse(context.Background(), "x", nil)
	assert.Empty(t, warnings)
	assert.Zero(t, buckets.RawNeighborCount)
	assert.Equal(t, 0, store.relationshipCalls)
}
