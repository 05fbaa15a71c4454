// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package graph_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/intelbridge/intelbridge/internal/graph"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *graph.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := graph.NewClient(graph.ClientConfig{
		Endpoint:   srv.URL,
		ServiceKey: "test-key",
	})
	require.NoError(t, err)
	return client
}

func TestClientQueryEntities(t *testing.T) {
	var gotURL *url.URL
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"internal_id":"e1","name":"Emotet","entity_type":"Malware","attributes":{"aliases":["Heodo"]}},
			{"internal_id":"e2","name":"Mystery","entity_type":"SomethingNew"},
			{"internal_id":"e3","name":"APT29","entity_type":"IntrusionSet"}
		]`))
	})

	ents, count, err := client.QueryEntities(context.Background(), graph.QuerySpec{
		Filters: []graph.Predicate{graph.Match(graph.Col("name"), "emotet")},
		Order:   []graph.OrderClause{graph.Desc(graph.Col("source_updated_at"))},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, -1, count)

	// The unrecognized type tag is rejected at the boundary.
	require.Len(t, ents, 2)
	assert.Equal(t, "Emotet", ents[0].Name)
	assert.Equal(t, graph.TypeIntrusionSet, ents[1].EntityType)

	assert.Equal(t, "Bearer test-key", gotAuth)
	q := gotURL.Query()
	assert.Equal(t, "ilike.*emotet*", q.Get("name"))
	assert.Equal(t, "source_updated_at.desc", q.Get("order"))
	assert.Equal(t, "10", q.Get("limit"))
}

func TestClientExactCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "0-1/42")
		w.Write([]byte(`[{"internal_id":"e1","name":"A","entity_type":"Malware"},{"internal_id":"e2","name":"B","entity_type":"Malware"}]`))
	})

	ents, count, err := client.QueryEntities(context.Background(), graph.QuerySpec{Count: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, ents, 2)
	assert.Equal(t, 42, count)
}

func TestClientNon2xxIsQueryFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"upstream down"}`))
	})

	_, _, err := client.QueryEntities(context.Background(), graph.QuerySpec{})
	require.Error(t, err)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeGraphQueryFailure))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestClientMalformedBodyIsQueryFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array`))
	})

	_, _, err := client.QueryEntities(context.Background(), graph.QuerySpec{})
	require.Error(t, err)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeGraphQueryFailure))
}

func TestClientTransportFailureIsQueryFailure(t *testing.T) {
	client, err := graph.NewClient(graph.ClientConfig{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, _, err = client.QueryRelationships(context.Background(), graph.QuerySpec{})
	require.Error(t, err)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeGraphQueryFailure))
}

func TestClientSingleObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		w.Write([]byte(`{"internal_id":"e1","name":"APT29","entity_type":"IntrusionSet"}`))
	})

	ents, _, err := client.QueryEntities(context.Background(), graph.QuerySpec{Single: true})
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "APT29", ents[0].Name)
}

func TestClientInvalidCollection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})

	_, _, err := client.Query(context.Background(), "entities?x=1", graph.QuerySpec{})
	require.Error(t, err)
	assert.True(t, ibrerr.HasCode(err, ibrerr.CodeGraphQueryInvalidInput))
}

// Repeating an identical query against an unchanged store returns identical
// rows.
func TestClientReadIdempotence(t *testing.T) {
	const body = `[{"internal_id":"e1","name":"Emotet","entity_type":"Malware"},{"internal_id":"e2","name":"TrickBot","entity_type":"Malware"}]`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	spec := graph.QuerySpec{Filters: []graph.Predicate{graph.Eq(graph.Col("entity_type"), "Malware")}}
	first, _, err := client.QueryEntities(context.Background(), spec)
	require.NoError(t, err)
	second, _, err := client.QueryEntities(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
