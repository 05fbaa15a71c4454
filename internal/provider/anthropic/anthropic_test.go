// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package anthropic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelbridge/intelbridge/internal/provider"
	"github.com/intelbridge/intelbridge/internal/provider/anthropic"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*anthropic.Provider)(nil)

func TestAnthropicProvider_Name(t *testing.T) {
	p := mustNewProvider(t)
	assert.Equal(t, "anthropic", p.Name())
}

func TestAnthropicProvider_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestAnthropicProvider_Close(t *testing.T) {
	p := mustNewProvider(t)
	assert.NoError(t, p.Close())
}

func TestBuildParams(t *testing.T) {
	req := provider.ChatRequest{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "You answer threat intel questions.",
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "What is LockBit?"},
		},
		Tools: []provider.ToolDefinition{
			{
				Name:        "search_malware",
				Description: "Search malware families.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"search_term": map[string]any{"type": "string"},
					},
					"required": []any{"search_term"},
				},
			},
		},
		Options: provider.ChatOptions{Temperature: 0.2, MaxTokens: 2048},
	}

	params, err := anthropic.BuildParams(req)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", string(params.Model))
	assert.Equal(t, int64(2048), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You answer threat intel questions.", params.System[0].Text)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "search_malware", params.Tools[0].OfTool.Name)
	assert.InDelta(t, 0.2, params.Temperature.Value, 1e-9)
}

func TestBuildParams_DefaultMaxTokens(t *testing.T) {
	req := provider.ChatRequest{
		Model: "claude-sonnet-4-5",
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "hi"},
		},
	}

	params, err := anthropic.BuildParams(req)
	require.NoError(t, err)
	// The Messages API requires max_tokens; an unset option falls back.
	assert.Equal(t, int64(4096), params.MaxTokens)
}

func TestConvertMessages(t *testing.T) {
	tests := []struct {
		name    string
		msgs    []provider.Message
		wantLen int
		wantErr bool
	}{
		{
			name: "tool result becomes user tool_result block",
			msgs: []provider.Message{
				{Role: provider.RoleUser, Content: "search"},
				{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{
					{ID: "toolu-1", Name: "search_indicators", Arguments: `{"search_term":"evil.example"}`},
				}},
				{Role: provider.RoleTool, Content: `{"count":0}`, ToolCallID: "toolu-1"},
			},
			wantLen: 3,
		},
		{
			name: "system messages skipped in message list",
			msgs: []provider.Message{
				{Role: provider.RoleSystem, Content: "ignored here"},
				{Role: provider.RoleUser, Content: "hi"},
			},
			wantLen: 1,
		},
		{
			name: "unknown role rejected",
			msgs: []provider.Message{
				{Role: provider.MessageRole("oracle"), Content: "?"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := anthropic.ConvertMessages(tt.msgs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestExtractSchema(t *testing.T) {
	schema := anthropic.ExtractSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"days_back": map[string]any{"type": "integer"},
		},
		"required": []any{"days_back"},
	})

	assert.NotNil(t, schema.Properties)
	assert.Equal(t, []string{"days_back"}, schema.Required)
}

// mustNewProvider creates a provider with a dummy API key for unit tests.
func mustNewProvider(t *testing.T) *anthropic.Provider {
	t.Helper()
	p, err := anthropic.New(anthropic.Config{
		APIKey: "test-key-not-real",
	})
	require.NoError(t, err)
	return p
}
