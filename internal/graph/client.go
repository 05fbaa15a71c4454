// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// Collection names under the mirror endpoint.
const (
	CollectionEntities      = "entities"
	CollectionRelationships = "relationships"
)

// QuerySpec describes one filtered read against a collection.
type QuerySpec struct {
	Select  string
	Filters []Predicate
	Order   []OrderClause
	Limit   int
	// Single requests exactly one row; zero or multiple rows is a query
	// failure at the transport.
	Single bool
	// Count requests the exact total row count alongside the page.
	Count bool
}

// Store is the read surface the resolver and tool library depend on.
// Client is the production implementation; tests substitute fakes.
type Store interface {
	QueryEntities(ctx context.Context, spec QuerySpec) ([]Entity, int, error)
	QueryRelationships(ctx context.Context, spec QuerySpec) ([]Relationship, int, error)
}

// ClientConfig holds the mirror endpoint and service credential supplied by
// the hosting application.
type ClientConfig struct {
	Endpoint   string
	ServiceKey string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client executes filtered reads against the graph mirror. It carries no
// retry policy; retries, if any, belong to callers.
type Client struct {
	endpoint   string
	serviceKey string
	httpc      *http.Client
	log        *slog.Logger
}

var _ Store = (*Client)(nil)

// NewClient validates the configuration and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ibrerr.New(ibrerr.CodeGraphQueryInvalidInput, "graph endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, ibrerr.Wrapf(err, ibrerr.CodeGraphQueryInvalidInput, "parsing graph endpoint %q", cfg.Endpoint)
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		serviceKey: cfg.ServiceKey,
		httpc:      httpc,
		log:        log,
	}, nil
}

// Query runs the spec against a collection and returns the raw rows, plus
// the exact total count when spec.Count is set (-1 otherwise).
func (c *Client) Query(ctx context.Context, collection string, spec QuerySpec) ([]json.RawMessage, int, error) {
	if !identRe.MatchString(collection) {
		return nil, -1, ibrerr.Errorf(ibrerr.CodeGraphQueryInvalidInput, "invalid collection name %q", collection)
	}

	q := url.Values{}
	if spec.Select != "" {
		q.Set("select", spec.Select)
	}
	for _, pred := range spec.Filters {
		if err := pred.appendQuery(q); err != nil {
			return nil, -1, err
		}
	}
	if len(spec.Order) > 0 {
		exprs := make([]string, 0, len(spec.Order))
		for _, ord := range spec.Order {
			expr, err := ord.expr()
			if err != nil {
				return nil, -1, err
			}
			exprs = append(exprs, expr)
		}
		q.Set("order", strings.Join(exprs, ","))
	}
	if spec.Limit > 0 {
		q.Set("limit", strconv.Itoa(spec.Limit))
	}

	reqURL := c.endpoint + "/" + collection + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, -1, ibrerr.Wrapf(err, ibrerr.CodeGraphQueryInvalidInput, "building request for %s", collection)
	}
	if c.serviceKey != "" {
		req.Header.Set("apikey", c.serviceKey)
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}
	if spec.Single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if spec.Count {
		req.Header.Set("Prefer", "count=exact")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, -1, ibrerr.Wrap(err, ibrerr.CodeGraphQueryFailure, "graph store request failed",
			ibrerr.FieldCollection(collection))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, -1, ibrerr.Wrap(err, ibrerr.CodeGraphQueryFailure, "reading graph store response",
			ibrerr.FieldCollection(collection))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("graph store returned non-2xx",
			"collection", collection,
			"status", resp.StatusCode)
		return nil, -1, ibrerr.New(ibrerr.CodeGraphQueryFailure,
			fmt.Sprintf("graph store returned %d: %s", resp.StatusCode, truncate(string(body), 512)),
			ibrerr.FieldCollection(collection),
			ibrerr.Field("status", resp.StatusCode))
	}

	var rows []json.RawMessage
	if spec.Single {
		var row json.RawMessage
		if err := json.Unmarshal(body, &row); err != nil {
			return nil, -1, c.malformed(collection, body, err)
		}
		rows = []json.RawMessage{row}
	} else if err := json.Unmarshal(body, &rows); err != nil {
		return nil, -1, c.malformed(collection, body, err)
	}

	count := -1
	if spec.Count {
		count = parseContentRange(resp.Header.Get("Content-Range"))
	}

	return rows, count, nil
}

// QueryEntities runs the spec against the entity collection. Rows whose
// entity_type falls outside the closed vocabulary are dropped here, at the
// boundary.
func (c *Client) QueryEntities(ctx context.Context, spec QuerySpec) ([]Entity, int, error) {
	rows, count, err := c.Query(ctx, CollectionEntities, spec)
	if err != nil {
		return nil, count, err
	}

	ents := make([]Entity, 0, len(rows))
	for _, row := range rows {
		var ent Entity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, count, c.malformed(CollectionEntities, row, err)
		}
		if !ent.EntityType.IsValid() {
			c.log.Debug("dropping entity with unrecognized type",
				"internal_id", ent.InternalID,
				"entity_type", string(ent.EntityType))
			continue
		}
		ents = append(ents, ent)
	}
	return ents, count, nil
}

// QueryRelationships runs the spec against the relationship collection.
func (c *Client) QueryRelationships(ctx context.Context, spec QuerySpec) ([]Relationship, int, error) {
	rows, count, err := c.Query(ctx, CollectionRelationships, spec)
	if err != nil {
		return nil, count, err
	}

	rels := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		var rel Relationship
		if err := json.Unmarshal(row, &rel); err != nil {
			return nil, count, c.malformed(CollectionRelationships, row, err)
		}
		rels = append(rels, rel)
	}
	return rels, count, nil
}

func (c *Client) malformed(collection string, body []byte, err error) error {
	return ibrerr.Wrap(err, ibrerr.CodeGraphQueryFailure,
		"malformed graph store response: "+truncate(string(body), 512),
		ibrerr.FieldCollection(collection))
}

// parseContentRange extracts the total from a "0-9/42" range header.
// Returns -1 when the header is absent or the total is unknown ("*").
func parseContentRange(h string) int {
	idx := strings.LastIndex(h, "/")
	if idx == -1 {
		return -1
	}
	total, err := strconv.Atoi(h[idx+1:])
	if err != nil {
		return -1
	}
	return total
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
