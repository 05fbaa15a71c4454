// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/intelbridge/intelbridge/internal/chat"
	"github.com/intelbridge/intelbridge/internal/intel"
	"github.com/intelbridge/intelbridge/internal/provider"
	"github.com/intelbridge/intelbridge/internal/server"
	"github.com/intelbridge/intelbridge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedProvider always answers with one text round.
type cannedProvider struct {
	text string
}

func (p *cannedProvider) Name() string { return "canned" }
func (p *cannedProvider) Close() error { return nil }

func (p *cannedProvider) Chat(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 3)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p.text}
	ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	reg := provider.NewRegistry()
	reg.Register(&cannedProvider{text: "canned answer"})

	orch := chat.New(chat.Config{
		Providers: reg,
		Catalog:   intel.NewCatalog(),
		Tools:     intel.Deps{Log: slog.Default()},
		Store:     store.NewMemoryStore(),
		Model:     "test-model",
	})

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, orch, slog.Default())
	require.NoError(t, err)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doJSON(t, newTestServer(t), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created server.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sessions []server.SessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)

	// Other users do not see it and cannot delete it.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions", "user-2", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed.Sessions)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+created.ID, "user-2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+created.ID, "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+created.ID+"/messages", "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatCreatesSessionLazily(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/chat", "user-1", `{"message":"What TTPs does APT29 use?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Message server.MessageView `json:"message"`
		Usage   store.TokenUsage   `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "canned answer", out.Message.Content)
	assert.Equal(t, "assistant", out.Message.Role)
	assert.Equal(t, 15, out.Usage.TotalTokens)
	require.NotEmpty(t, out.Message.SessionID)

	// The transcript holds both turns.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+out.Message.SessionID+"/messages", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs struct {
		Messages []server.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "user", msgs.Messages[0].Role)
}

func TestChatInExistingSession(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", "user-1", "")
	var created server.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+created.ID+"/chat", "user-1", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Wrong owner is rejected.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+created.ID+"/chat", "user-2", `{"message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMissingUserHeader(t *testing.T) {
	rec := doJSON(t, newTestServer(t), http.MethodPost, "/api/v1/sessions", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChatRejectsEmptyBody(t *testing.T) {
	rec := doJSON(t, newTestServer(t), http.MethodPost, "/api/v1/chat", "user-1", `{"message":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
