// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

// Package chat drives the conversational intelligence-query loop: it seeds a
// transcript from session history, lets the model request tools from the
// catalog across bounded rounds, and persists the turn's messages.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intelbridge/intelbridge/internal/intel"
	"github.com/intelbridge/intelbridge/internal/provider"
	"github.com/intelbridge/intelbridge/internal/store"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// maxRounds caps model invocations per turn. The final round's output is
// treated as the answer even if it still requests tools.
const maxRounds = 5

const (
	defaultHistoryWindow = 10
	defaultRoundTimeout  = 60 * time.Second
	defaultTurnTimeout   = 5 * time.Minute
)

// capExhaustedFallback is returned when the model spent every round asking
// for more tools and produced no text at all.
const capExhaustedFallback = "I could not finish researching that within the allotted steps. Try narrowing the question to a specific actor, malware family, or CVE."

// systemPrompt constrains the model to the tool results it actually saw.
// The linking rule is a correctness invariant: cited paths must appear
// verbatim in a tool result, never be synthesized.
const systemPrompt = `You are an intelligence analyst assistant for a threat-intelligence platform. Answer questions about threat actors, malware, vulnerabilities, campaigns, and attack patterns using the provided tools.

Rules:
- Base every factual claim on tool results from this conversation. If the tools return nothing relevant, say so and suggest how to rephrase.
- When citing an entity, use only the "link" path returned by a tool result, exactly as given. Never invent URLs, never link external sites, and never turn a bare identifier (such as a MITRE technique id) into a link.
- Format answers in concise markdown. Prefer short bullet lists over prose for enumerations.
- If a tool result contains {"error": ...}, adjust your approach: broaden the search, try another tool, or ask the user to clarify.`

// Config holds the orchestrator's dependencies and tuning.
type Config struct {
	Providers *provider.Registry
	Catalog   *intel.Catalog
	Tools     intel.Deps
	Store     store.SessionStore
	Log       *slog.Logger

	Provider    string // registry name, "" = default
	Model       string
	Temperature float64
	MaxTokens   int

	HistoryWindow int
	RoundTimeout  time.Duration
	TurnTimeout   time.Duration
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	Message   *store.Message `json:"message"`
	Usage     provider.Usage `json:"usage"`
	ToolCalls []string       `json:"tool_calls"`
}

// Orchestrator mediates between the user, the model, and the tool catalog.
type Orchestrator struct {
	providers *provider.Registry
	catalog   *intel.Catalog
	tools     intel.Deps
	store     store.SessionStore
	log       *slog.Logger

	providerName string
	model        string
	temperature  float64
	maxTokens    int

	historyWindow int
	roundTimeout  time.Duration
	turnTimeout   time.Duration
}

// New creates an Orchestrator, applying defaults for unset tuning knobs.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		providers:     cfg.Providers,
		catalog:       cfg.Catalog,
		tools:         cfg.Tools,
		store:         cfg.Store,
		log:           cfg.Log,
		providerName:  cfg.Provider,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		historyWindow: cfg.HistoryWindow,
		roundTimeout:  cfg.RoundTimeout,
		turnTimeout:   cfg.TurnTimeout,
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.historyWindow <= 0 {
		o.historyWindow = defaultHistoryWindow
	}
	if o.roundTimeout <= 0 {
		o.roundTimeout = defaultRoundTimeout
	}
	if o.turnTimeout <= 0 {
		o.turnTimeout = defaultTurnTimeout
	}
	return o
}

// CreateSession creates an empty session owned by userID.
func (o *Orchestrator) CreateSession(ctx context.Context, userID string) (*store.Session, error) {
	if userID == "" {
		return nil, ibrerr.New(ibrerr.CodeChatInvalidInput, "user id is required")
	}
	now := time.Now()
	sess := &store.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (o *Orchestrator) ListSessions(ctx context.Context, userID string, opts store.ListOpts) ([]*store.Session, error) {
	if userID == "" {
		return nil, ibrerr.New(ibrerr.CodeChatInvalidInput, "user id is required")
	}
	return o.store.ListSessions(ctx, userID, opts)
}

// GetMessages returns the full transcript of a session the user owns.
func (o *Orchestrator) GetMessages(ctx context.Context, sessionID, userID string) ([]*store.Message, error) {
	if _, err := o.ownedSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return o.store.ListMessages(ctx, sessionID)
}

// DeleteSession removes a session the user owns, along with its messages.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if _, err := o.ownedSession(ctx, sessionID, userID); err != nil {
		return err
	}
	return o.store.DeleteSession(ctx, sessionID)
}

func (o *Orchestrator) ownedSession(ctx context.Context, sessionID, userID string) (*store.Session, error) {
	if sessionID == "" || userID == "" {
		return nil, ibrerr.New(ibrerr.CodeChatInvalidInput, "session id and user id are required")
	}
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ibrerr.New(ibrerr.CodeChatSessionOwnership,
			"session belongs to another user",
			ibrerr.FieldSessionID(sessionID), ibrerr.FieldUserID(userID))
	}
	return sess, nil
}

// Chat runs one conversation turn. An empty sessionID creates a session
// lazily. The user message is persisted before the first model round; the
// assistant message is persisted only when the turn completes.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, userID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ibrerr.New(ibrerr.CodeChatInvalidInput, "message text is required")
	}

	var sess *store.Session
	var err error
	if sessionID == "" {
		sess, err = o.CreateSession(ctx, userID)
	} else {
		sess, err = o.ownedSession(ctx, sessionID, userID)
	}
	if err != nil {
		return nil, err
	}

	// History is read before the user message is appended so the window
	// holds only prior turns.
	history, err := o.store.RecentMessages(ctx, sess.ID, o.historyWindow)
	if err != nil {
		return nil, err
	}

	userMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Role:      store.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	if err := o.store.AppendMessage(ctx, sess.ID, userMsg); err != nil {
		return nil, err
	}

	transcript := make([]provider.Message, 0, len(history)+1)
	for _, m := range history {
		transcript = append(transcript, provider.Message{
			Role:    provider.MessageRole(m.Role),
			Content: m.Content,
		})
	}
	transcript = append(transcript, provider.Message{Role: provider.RoleUser, Content: text})

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	finalText, usage, toolLog, err := o.runRounds(turnCtx, ctx, sess.ID, transcript)
	if err != nil {
		return nil, err
	}

	assistantMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Role:      store.RoleAssistant,
		Content:   finalText,
		Usage: store.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		ToolCalls: toolLog,
		CreatedAt: time.Now(),
	}
	if err := o.store.AppendMessage(ctx, sess.ID, assistantMsg); err != nil {
		return nil, err
	}

	o.maybeSetTitle(ctx, sess, text)

	return &TurnResult{Message: assistantMsg, Usage: usage, ToolCalls: toolLog}, nil
}

// runRounds executes the bounded model/tool loop. turnCtx bounds model
// rounds; callerCtx is the undecorated request context used to detect
// caller disconnect and to derive the detached tool-execution context.
func (o *Orchestrator) runRounds(turnCtx, callerCtx context.Context, sessionID string, transcript []provider.Message) (string, provider.Usage, []string, error) {
	prov, err := o.providers.Get(o.providerName)
	if err != nil {
		return "", provider.Usage{}, nil, err
	}

	var total provider.Usage
	var toolLog []string
	var lastText string

	for round := 1; round <= maxRounds; round++ {
		if err := turnCtx.Err(); err != nil {
			return "", total, toolLog, o.timeoutError(turnCtx, callerCtx, sessionID)
		}

		text, calls, usage, err := o.modelRound(turnCtx, prov, transcript)
		if err != nil {
			if turnCtx.Err() != nil || callerCtx.Err() != nil {
				return "", total, toolLog, o.timeoutError(turnCtx, callerCtx, sessionID)
			}
			return "", total, toolLog, err
		}
		total.Add(usage)
		if text != "" {
			lastText = text
		}

		if len(calls) == 0 {
			return text, total, toolLog, nil
		}
		if round == maxRounds {
			// Cap exhausted: degrade to the best text we have.
			o.log.Warn("round cap reached with tool calls outstanding",
				"session_id", sessionID,
				"pending_calls", len(calls))
			if lastText == "" {
				lastText = capExhaustedFallback
			}
			return lastText, total, toolLog, nil
		}

		transcript = append(transcript, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})

		results := o.executeCalls(callerCtx, sessionID, calls)
		for i, tc := range calls {
			toolLog = append(toolLog, tc.Name)
			transcript = append(transcript, provider.Message{
				Role:       provider.RoleTool,
				Content:    results[i],
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}

		// Caller gone: in-flight tools were allowed to finish, but no
		// further rounds are issued.
		if callerCtx.Err() != nil {
			return "", total, toolLog, o.timeoutError(turnCtx, callerCtx, sessionID)
		}
	}

	return lastText, total, toolLog, nil
}

// modelRound issues one model invocation under the round timeout and drains
// its event stream.
func (o *Orchestrator) modelRound(ctx context.Context, prov provider.Provider, transcript []provider.Message) (string, []provider.ToolCall, provider.Usage, error) {
	roundCtx, cancel := context.WithTimeout(ctx, o.roundTimeout)
	defer cancel()

	eventCh, err := prov.Chat(roundCtx, provider.ChatRequest{
		Model:        o.model,
		SystemPrompt: systemPrompt,
		Messages:     transcript,
		Tools:        o.catalog.Definitions(),
		Options: provider.ChatOptions{
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		},
	})
	if err != nil {
		return "", nil, provider.Usage{}, ibrerr.Wrap(err, ibrerr.CodeProviderUpstreamFailure, "model call failed")
	}

	var buf strings.Builder
	var calls []provider.ToolCall
	var usage provider.Usage
	var streamErr error

	for ev := range eventCh {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
		case provider.EventTypeToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, *ev.ToolCall)
			}
		case provider.EventTypeUsage:
			if ev.Usage != nil {
				usage.Add(*ev.Usage)
			}
		case provider.EventTypeError:
			streamErr = ibrerr.New(ibrerr.CodeProviderUpstreamFailure, ev.Error)
		case provider.EventTypeDone:
		}
	}
	if streamErr != nil {
		if roundCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", nil, usage, ibrerr.New(ibrerr.CodeChatRoundTimeout, "model round timed out")
		}
		return "", nil, usage, streamErr
	}

	return buf.String(), calls, usage, nil
}

// executeCalls fans the round's tool calls out concurrently and returns
// their JSON results in request order. The execution context is detached
// from the caller so a disconnect lets cheap idempotent reads finish.
func (o *Orchestrator) executeCalls(callerCtx context.Context, sessionID string, calls []provider.ToolCall) []string {
	toolCtx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), o.roundTimeout)
	defer cancel()

	results := make([]string, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.executeCall(toolCtx, sessionID, tc)
		}()
	}
	wg.Wait()
	return results
}

// executeCall runs one tool call with per-call isolation: unknown tools,
// malformed arguments, handler errors, and panics all become an error
// payload the model can reason about, never a turn failure.
func (o *Orchestrator) executeCall(ctx context.Context, sessionID string, tc provider.ToolCall) (result string) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("tool handler panicked",
				"session_id", sessionID,
				"tool", tc.Name,
				"panic", r)
			result = errorPayload(fmt.Sprintf("tool %s failed unexpectedly", tc.Name))
		}
	}()

	args := json.RawMessage(tc.Arguments)
	if len(args) > 0 && !json.Valid(args) {
		return errorPayload(fmt.Sprintf("malformed JSON arguments for tool %s", tc.Name))
	}

	out, err := o.catalog.Execute(ctx, o.tools, tc.Name, args)
	if err != nil {
		o.log.Warn("tool call failed",
			"session_id", sessionID,
			"tool", tc.Name,
			"error", err)
		return errorPayload(err.Error())
	}

	body, err := json.Marshal(out)
	if err != nil {
		return errorPayload(fmt.Sprintf("tool %s returned an unserializable result", tc.Name))
	}
	return string(body)
}

func errorPayload(msg string) string {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(body)
}

func (o *Orchestrator) timeoutError(turnCtx, callerCtx context.Context, sessionID string) error {
	if callerCtx.Err() != nil {
		return ibrerr.Wrap(callerCtx.Err(), ibrerr.CodeChatTurnFailure, "caller gone mid-turn",
			ibrerr.FieldSessionID(sessionID))
	}
	return ibrerr.New(ibrerr.CodeChatTurnTimeout, "turn timed out",
		ibrerr.FieldSessionID(sessionID))
}

// maybeSetTitle derives a session title once the assistant reply became the
// session's second stored message.
func (o *Orchestrator) maybeSetTitle(ctx context.Context, sess *store.Session, firstUserText string) {
	count, err := o.store.CountMessages(ctx, sess.ID)
	if err != nil || count != 2 {
		return
	}
	sess.Title = DeriveTitle(firstUserText)
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		o.log.Warn("failed to set session title",
			"session_id", sess.ID,
			"error", err)
	}
}
