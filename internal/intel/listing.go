// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package intel

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/intelbridge/intelbridge/internal/graph"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

const (
	listingDefaultLimit = 20
	listingMaxLimit     = 50
)

// timeNow is swapped out by the window-boundary tests.
var timeNow = time.Now

// daysBackCutoff translates the days_back parameter into the window's lower
// bound: 0 means the start of today (UTC), n > 0 means now minus n full days.
func daysBackCutoff(daysBack int) (time.Time, error) {
	if daysBack < 0 {
		return time.Time{}, ibrerr.Errorf(ibrerr.CodeIntelToolInvalidInput, "days_back must be >= 0, got %d", daysBack)
	}
	now := timeNow().UTC()
	if daysBack == 0 {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return now.Add(-time.Duration(daysBack) * 24 * time.Hour), nil
}

type listingArgs struct {
	DaysBack int `json:"days_back"`
	Limit    int `json:"limit"`
}

type victimsArgs struct {
	DaysBack    int    `json:"days_back"`
	Limit       int    `json:"limit"`
	ThreatGroup string `json:"threat_group"`
}

type vulnListArgs struct {
	DaysBack int     `json:"days_back"`
	Limit    int     `json:"limit"`
	MinCVSS  float64 `json:"min_cvss"`
}

// ListingItem is one row of a time-windowed listing.
type ListingItem struct {
	EntityRef
	Date string `json:"date,omitempty"`
}

// ListingResult is the payload every listing tool returns.
type ListingResult struct {
	Since   string        `json:"since"`
	Count   int           `json:"count"`
	Results []ListingItem `json:"results"`
}

// VictimItem is one ransomware victim derived from a leak-site report whose
// name follows the "<Group>: <Victim>" convention.
type VictimItem struct {
	Victim      string `json:"victim"`
	ThreatGroup string `json:"threat_group,omitempty"`
	Date        string `json:"date,omitempty"`
	Link        string `json:"link,omitempty"`
}

// VictimsResult is the get_ransomware_victims payload.
type VictimsResult struct {
	Since   string       `json:"since"`
	Count   int          `json:"count"`
	Results []VictimItem `json:"results"`
}

// VulnItem is one row of the vulnerability listing.
type VulnItem struct {
	EntityRef
	CVSSScore float64 `json:"cvss_score,omitempty"`
	Severity  string  `json:"severity,omitempty"`
	Date      string  `json:"date,omitempty"`
}

// VulnListResult is the get_vulnerabilities payload.
type VulnListResult struct {
	Since   string     `json:"since"`
	Count   int        `json:"count"`
	Results []VulnItem `json:"results"`
}

func listingSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"days_back": intProp("How far back to look in days. 0 means today only."),
		"limit":     intProp("Maximum results to return (default 20, max 50)."),
	}
	for k, v := range extra {
		props[k] = v
	}
	return objectSchema(props)
}

// listEntities runs the shared windowed listing: one entity type, optional
// extra filters, newest first by tsCol.
func listEntities(ctx context.Context, deps Deps, et graph.EntityType, tsCol string, cutoff time.Time, limit int, extra ...graph.Predicate) ([]graph.Entity, error) {
	filters := []graph.Predicate{
		graph.Eq(graph.Col("entity_type"), string(et)),
		graph.Gte(graph.Col(tsCol), cutoff.Format(time.RFC3339)),
	}
	filters = append(filters, extra...)

	ents, _, err := deps.Graph.QueryEntities(ctx, graph.QuerySpec{
		Filters: filters,
		Order:   []graph.OrderClause{graph.Desc(graph.Col(tsCol))},
		Limit:   limit,
	})
	return ents, err
}

func listingItems(ents []graph.Entity, ts func(graph.Entity) time.Time) []ListingItem {
	items := make([]ListingItem, 0, len(ents))
	for _, ent := range ents {
		item := ListingItem{EntityRef: refOf(ent)}
		if t := ts(ent); !t.IsZero() {
			item.Date = t.UTC().Format("2006-01-02")
		}
		items = append(items, item)
	}
	return items
}

func createdAt(ent graph.Entity) time.Time { return ent.SourceCreatedAt }
func updatedAt(ent graph.Entity) time.Time { return ent.SourceUpdatedAt }

func listingTools() []Tool {
	return []Tool{
		{
			Name:        "get_ransomware_victims",
			Description: "List recent ransomware victims from leak-site reports, optionally filtered by the threat group claiming them.",
			InputSchema: listingSchema(map[string]any{
				"threat_group": stringProp("Only return victims claimed by this group (case-insensitive substring match)."),
			}),
			Run: runRansomwareVictims,
		},
		{
			Name:        "get_vulnerabilities",
			Description: "List recently published vulnerabilities, optionally restricted to a minimum CVSS score.",
			InputSchema: listingSchema(map[string]any{
				"min_cvss": map[string]any{"type": "number", "description": "Only return vulnerabilities scoring at least this CVSS value."},
			}),
			Run: runVulnerabilities,
		},
		{
			Name:        "get_advisories",
			Description: "List recent security advisories.",
			InputSchema: listingSchema(nil),
			Run:         runAdvisories,
		},
		{
			Name:        "get_media_reports",
			Description: "List recent media and news reports in the intelligence feed.",
			InputSchema: listingSchema(nil),
			Run:         runMediaReports,
		},
		{
			Name:        "get_campaigns",
			Description: "List recently observed campaigns.",
			InputSchema: listingSchema(nil),
			Run:         runCampaigns,
		},
		{
			Name:        "get_attack_patterns",
			Description: "List recently added or updated attack patterns (TTPs).",
			InputSchema: listingSchema(nil),
			Run:         runAttackPatterns,
		},
	}
}

// splitVictimName applies the "<Group>: <Victim>" leak-site report naming
// convention. Reports without the prefix keep the full name as victim.
func splitVictimName(name string) (group, victim string) {
	if idx := strings.Index(name, ": "); idx > 0 {
		return name[:idx], name[idx+2:]
	}
	return "", name
}

func runRansomwareVictims(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a victimsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cutoff, err := daysBackCutoff(a.DaysBack)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, listingDefaultLimit, listingMaxLimit)

	ents, err := listEntities(ctx, deps, graph.TypeReport, "source_created_at", cutoff, limit,
		graph.Contains(graph.Attr("report_types"), "ransomware-report"))
	if err != nil {
		return nil, err
	}

	wantGroup := strings.ToLower(strings.TrimSpace(a.ThreatGroup))
	victims := make([]VictimItem, 0, len(ents))
	for _, ent := range ents {
		group, victim := splitVictimName(ent.Name)
		if wantGroup != "" &&
			!strings.Contains(strings.ToLower(group), wantGroup) &&
			!strings.Contains(strings.ToLower(ent.Name), wantGroup) {
			continue
		}
		item := VictimItem{Victim: victim, ThreatGroup: group, Link: LinkPath(ent)}
		if !ent.SourceCreatedAt.IsZero() {
			item.Date = ent.SourceCreatedAt.UTC().Format("2006-01-02")
		}
		victims = append(victims, item)
	}

	return VictimsResult{Since: cutoff.Format(time.RFC3339), Count: len(victims), Results: victims}, nil
}

func runVulnerabilities(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a vulnListArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cutoff, err := daysBackCutoff(a.DaysBack)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, listingDefaultLimit, listingMaxLimit)

	ents, err := listEntities(ctx, deps, graph.TypeVulnerability, "source_created_at", cutoff, limit)
	if err != nil {
		return nil, err
	}

	items := make([]VulnItem, 0, len(ents))
	for _, ent := range ents {
		score := ent.AttrFloat("cvss_score")
		if a.MinCVSS > 0 && score < a.MinCVSS {
			continue
		}
		item := VulnItem{
			EntityRef: refOf(ent),
			CVSSScore: score,
			Severity:  ent.AttrString("severity"),
		}
		if !ent.SourceCreatedAt.IsZero() {
			item.Date = ent.SourceCreatedAt.UTC().Format("2006-01-02")
		}
		items = append(items, item)
	}

	return VulnListResult{Since: cutoff.Format(time.RFC3339), Count: len(items), Results: items}, nil
}

func runAdvisories(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	return runReportListing(ctx, deps, args, "advisory")
}

func runMediaReports(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	return runReportListing(ctx, deps, args, "media")
}

func runReportListing(ctx context.Context, deps Deps, args json.RawMessage, reportType string) (any, error) {
	var a listingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cutoff, err := daysBackCutoff(a.DaysBack)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, listingDefaultLimit, listingMaxLimit)

	ents, err := listEntities(ctx, deps, graph.TypeReport, "source_created_at", cutoff, limit,
		graph.Contains(graph.Attr("report_types"), reportType))
	if err != nil {
		return nil, err
	}

	return ListingResult{
		Since:   cutoff.Format(time.RFC3339),
		Count:   len(ents),
		Results: listingItems(ents, createdAt),
	}, nil
}

func runCampaigns(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a listingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cutoff, err := daysBackCutoff(a.DaysBack)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, listingDefaultLimit, listingMaxLimit)

	ents, err := listEntities(ctx, deps, graph.TypeCampaign, "source_created_at", cutoff, limit)
	if err != nil {
		return nil, err
	}

	return ListingResult{
		Since:   cutoff.Format(time.RFC3339),
		Count:   len(ents),
		Results: listingItems(ents, createdAt),
	}, nil
}

func runAttackPatterns(ctx context.Context, deps Deps, args json.RawMessage) (any, error) {
	var a listingArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cutoff, err := daysBackCutoff(a.DaysBack)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(a.Limit, listingDefaultLimit, listingMaxLimit)

	ents, err := listEntities(ctx, deps, graph.TypeAttackPattern, "source_updated_at", cutoff, limit)
	if err != nil {
		return nil, err
	}

	return ListingResult{
		Since:   cutoff.Format(time.RFC3339),
		Count:   len(ents),
		Results: listingItems(ents, updatedAt),
	}, nil
}
