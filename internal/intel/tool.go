// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

// Package intel is the tool library: a fixed catalog of named, schema-typed
// query tools composed from the graph client and relationship resolver. The
// orchestrator addresses tools by name and JSON arguments only; every tool is
// independently callable without it.
package intel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/intelbridge/intelbridge/internal/graph"
	"github.com/intelbridge/intelbridge/internal/provider"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// Deps carries the read-side dependencies a tool handler needs. It holds no
// session state.
type Deps struct {
	Graph    graph.Store
	Resolver *graph.Resolver
	Log      *slog.Logger

	// EnrichmentWorkers bounds concurrent per-result relationship
	// enrichment inside a single tool call. Zero means defaultWorkers.
	EnrichmentWorkers int
}

const defaultWorkers = 4

func (d Deps) workers() int {
	if d.EnrichmentWorkers > 0 {
		return d.EnrichmentWorkers
	}
	return defaultWorkers
}

func (d Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Handler executes one tool call. The result is marshalled to JSON before it
// is fed back to the model; a returned error is converted to an error payload
// at the orchestrator's per-call boundary.
type Handler func(ctx context.Context, deps Deps, args json.RawMessage) (any, error)

// Tool is one catalog entry: the definition the model sees plus the handler
// that serves it.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Run         Handler
}

// Definition renders the provider-facing view of the tool.
func (t Tool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// Catalog is a thread-safe registry of tools keyed by name.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (c *Catalog) Register(t Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[t.Name] = t
}

// Lookup returns the named tool.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// Definitions returns every registered tool definition, sorted by name so
// the catalog sent to the model is deterministic across rounds.
func (c *Catalog) Definitions() []provider.ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	defs := make([]provider.ToolDefinition, 0, len(c.tools))
	for _, t := range c.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute looks up and runs the named tool. Unknown names and malformed
// arguments come back as coded errors; the orchestrator turns both into
// error payloads for the model.
func (c *Catalog) Execute(ctx context.Context, deps Deps, name string, args json.RawMessage) (any, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return nil, ibrerr.With(ibrerr.Errorf(ibrerr.CodeIntelToolNotFound, "unknown tool %q", name), ibrerr.FieldTool(name))
	}
	return t.Run(ctx, deps, args)
}

// DefaultCatalog registers the full tool library.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, t := range searchTools() {
		c.Register(t)
	}
	for _, t := range profileTools() {
		c.Register(t)
	}
	for _, t := range listingTools() {
		c.Register(t)
	}
	for _, t := range crossRefTools() {
		c.Register(t)
	}
	c.Register(generalSearchTool())
	return c
}

// decodeArgs unmarshals the model-supplied JSON arguments into dst. An empty
// payload means "all defaults".
func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return ibrerr.Wrap(err, ibrerr.CodeIntelToolInvalidInput, "malformed tool arguments")
	}
	return nil
}

// Schema builders for the tool parameter specifications.

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
