// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"testing"

	"github.com/intelbridge/intelbridge/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTPsForActor(t *testing.T) {
	s := &fakeStore{
		entities: []graph.Entity{
			ent("actor-1", "Sandworm", graph.TypeIntrusionSet, nil),
			ent("ttp-1", "Valid Accounts", graph.TypeAttackPattern, nil),
			ent("ttp-2", "Data Destruction", graph.TypeAttackPattern, nil),
			ent("mal-1", "NotPetya", graph.TypeMalware, nil),
		},
		rels: []graph.Relationship{
			{SourceID: "actor-1", TargetID: "ttp-1", RelationshipType: graph.RelUses},
			{SourceID: "actor-1", TargetID: "ttp-2", RelationshipType: graph.RelUses},
			{SourceID: "actor-1", TargetID: "mal-1", RelationshipType: graph.RelUses},
		},
	}

	out := run(t, testDeps(s), "get_ttps_for_actor", `{"name":"sandworm"}`)
	res := out.(CrossRefResult)
	assert.Equal(t, "Sandworm", res.Entity.Name)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "Valid Accounts", res.Results[0].Name)
	assert.Equal(t, "/attack-patterns/ttp-1", res.Results[0].Link)
}

func TestActorsTargetingSector(t *testing.T) {
	s := &fakeStore{
		entities: []graph.Entity{
			ent("sector-1", "Healthcare", graph.TypeSector, nil),
			ent("actor-1", "FIN12", graph.TypeIntrusionSet, nil),
			ent("mal-1", "Ryuk", graph.TypeMalware, nil),
		},
		rels: []graph.Relationship{
			{SourceID: "actor-1", TargetID: "sector-1", RelationshipType: graph.RelTargets},
			{SourceID: "mal-1", TargetID: "sector-1", RelationshipType: graph.RelTargets},
		},
	}

	out := run(t, testDeps(s), "get_actors_targeting_sector", `{"name":"healthcare"}`)
	res := out.(CrossRefResult)
	// Only intrusion sets survive the type filter; the malware edge does not.
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "FIN12", res.Results[0].Name)
}

func TestActorsUsingMalware(t *testing.T) {
	s := &fakeStore{
		entities: []graph.Entity{
			ent("mal-1", "QakBot", graph.TypeMalware, nil),
			ent("actor-1", "TA570", graph.TypeIntrusionSet, nil),
			ent("actor-2", "TA577", graph.TypeIntrusionSet, nil),
		},
		rels: []graph.Relationship{
			{SourceID: "actor-1", TargetID: "mal-1", RelationshipType: graph.RelUses},
			{SourceID: "actor-2", TargetID: "mal-1", RelationshipType: graph.RelUses},
			// Duplicate rows are possible in the mirror and must not double-count.
			{SourceID: "actor-2", TargetID: "mal-1", RelationshipType: graph.RelUses},
		},
	}

	out := run(t, testDeps(s), "get_actors_using_malware", `{"name":"qakbot"}`)
	res := out.(CrossRefResult)
	require.Equal(t, 2, res.Count)
}

func TestActorsExploitingVulnerability(t *testing.T) {
	s := &fakeStore{
		entities: []graph.Entity{
			ent("vuln-1", "CVE-2023-34362", graph.TypeVulnerability, nil),
			ent("actor-1", "Cl0p", graph.TypeIntrusionSet, nil),
		},
		rels: []graph.Relationship{
			{SourceID: "actor-1", TargetID: "vuln-1", RelationshipType: graph.RelExploits},
		},
	}

	out := run(t, testDeps(s), "get_actors_exploiting_vulnerability", `{"name":"CVE-2023-34362"}`)
	res := out.(CrossRefResult)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "Cl0p", res.Results[0].Name)
}

func TestCrossRefNotFound(t *testing.T) {
	out := run(t, testDeps(&fakeStore{}), "get_actors_targeting_country", `{"name":"Atlantis"}`)
	res, ok := out.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, res["error"], "No country found")
}

func TestCrossRefBatchingShape(t *testing.T) {
	// One relationship query plus one batched entity fetch, never per-edge.
	s := &fakeStore{
		entities: []graph.Entity{
			ent("vuln-1", "CVE-2023-34362", graph.TypeVulnerability, nil),
		},
		rels: []graph.Relationship{},
	}
	for i := 0; i < 50; i++ {
		id := string(rune('a' + i%26))
		s.entities = append(s.entities, ent("actor-"+id+string(rune('0'+i/26)), "Actor "+id, graph.TypeIntrusionSet, nil))
	}
	for _, e := range s.entities[1:] {
		s.rels = append(s.rels, graph.Relationship{SourceID: e.InternalID, TargetID: "vuln-1", RelationshipType: graph.RelExploits})
	}

	run(t, testDeps(s), "get_actors_exploiting_vulnerability", `{"name":"CVE-2023-34362"}`)

	// findOne + batch fetch = 2 entity queries; edge walk = 1 relationship query.
	assert.Equal(t, 2, s.entityCalls)
	assert.Equal(t, 1, s.relCalls)
}
