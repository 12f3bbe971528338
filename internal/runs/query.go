package runs

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// Listing limits.
const (
	DefaultListLimit = 25
	MaxListLimit     = 100
)

// ListParams are the raw query parameters of a listing.
type ListParams struct {
	Brand     string
	Status    string
	StartDate string
	EndDate   string
	Limit     string
	Cursor    string
}

// Filters echoes the filters a listing applied. Absent filters render null.
type Filters struct {
	Brand     *string `json:"brand"`
	Status    *string `json:"status"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
}

// Pagination tells the caller how to fetch the next page.
type Pagination struct {
	HasMore          bool   `json:"hasMore"`
	LastEvaluatedKey string `json:"lastEvaluatedKey,omitempty"`
}

// ListResponse is one page of runs.
type ListResponse struct {
	Items      []types.Run `json:"items"`
	Count      int         `json:"count"`
	Limit      int         `json:"limit"`
	Filters    Filters     `json:"filters"`
	Pagination Pagination  `json:"pagination"`
}

type listQuery struct {
	brand  types.Brand
	status types.RunStatus
	query  types.RunQuery
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseDate reads an RFC 3339 timestamp or a YYYY-MM-DD date. A date-only
// end bound covers the whole day.
func parseDate(field, raw string, endOfDay bool) (time.Time, error) {
	if t, err := types.ParseTimestamp(raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, types.Validation(field, "Invalid "+field+". Use ISO-8601 (YYYY-MM-DD or RFC 3339)")
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Microsecond)
	}
	return d.UTC(), nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.Validation("limit", "limit must be an integer")
	}
	return min(max(n, 1), MaxListLimit), nil
}

// normalizeCursor accepts an opaque cursor or a raw JSON key object and
// returns the opaque form.
func normalizeCursor(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var pos map[string]string
		if err := json.Unmarshal([]byte(raw), &pos); err != nil || len(pos) == 0 {
			return "", types.Validation("lastEvaluatedKey", "Invalid pagination cursor")
		}
		return provider.EncodeCursor(pos), nil
	}
	if _, err := provider.DecodeCursor(raw); err != nil {
		return "", types.Validation("lastEvaluatedKey", "Invalid pagination cursor")
	}
	return raw, nil
}

func parseListParams(p ListParams) (*listQuery, error) {
	lq := &listQuery{}
	if p.Brand == "" && p.Status == "" {
		lq.brand = types.BrandMWeb
	}
	if p.Brand != "" {
		lq.brand = types.Brand(p.Brand)
		if !lq.brand.Valid() {
			return nil, types.Validation("brand", "Invalid brand. Must be one of: mweb, webafrica", types.Strings(types.Brands)...)
		}
	}
	if p.Status != "" {
		lq.status = types.RunStatus(p.Status)
		if !lq.status.Valid() {
			return nil, types.Validation("status", "Invalid status. Must be one of: "+strings.Join(types.Strings(types.RunStatuses), ", "), types.Strings(types.RunStatuses)...)
		}
	}

	var err error
	if p.StartDate != "" {
		if lq.query.Start, err = parseDate("startDate", p.StartDate, false); err != nil {
			return nil, err
		}
	}
	if p.EndDate != "" {
		if lq.query.End, err = parseDate("endDate", p.EndDate, true); err != nil {
			return nil, err
		}
	}
	if !lq.query.Start.IsZero() && !lq.query.End.IsZero() && lq.query.Start.After(lq.query.End) {
		return nil, types.Validation("startDate", "startDate must not be after endDate")
	}
	if lq.query.Limit, err = parseLimit(p.Limit); err != nil {
		return nil, err
	}
	if lq.query.Cursor, err = normalizeCursor(p.Cursor); err != nil {
		return nil, err
	}
	return lq, nil
}

// List returns one page of runs, newest first. A status filter queries the
// status index across all brands unless a brand is also given; otherwise the
// brand's partition is read, defaulting to mweb.
func (s *Service) List(ctx context.Context, p ListParams) (resp *ListResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.List")
	defer func() { endSpan(span, err) }()

	lq, err := parseListParams(p)
	if err != nil {
		return nil, err
	}

	var page *types.RunPage
	if lq.status != "" {
		q := lq.query
		q.Brand = lq.brand
		page, err = s.store.ListRunsByStatus(ctx, lq.status, q)
	} else {
		page, err = s.store.ListRunsByBrand(ctx, lq.brand, lq.query)
	}
	if err != nil {
		if errors.Is(err, provider.ErrInvalidCursor) {
			return nil, types.Validation("lastEvaluatedKey", "Invalid pagination cursor")
		}
		return nil, types.Upstream("failed to list test runs", err)
	}

	items := page.Runs
	if items == nil {
		items = []types.Run{}
	}
	return &ListResponse{
		Items: items,
		Count: len(items),
		Limit: lq.query.Limit,
		Filters: Filters{
			Brand:     strPtr(string(lq.brand)),
			Status:    strPtr(string(lq.status)),
			StartDate: strPtr(p.StartDate),
			EndDate:   strPtr(p.EndDate),
		},
		Pagination: Pagination{
			HasMore:          page.Cursor != "",
			LastEvaluatedKey: page.Cursor,
		},
	}, nil
}
