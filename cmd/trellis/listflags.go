package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/types"
)

// listFlags are the paging and filter flags shared by the list commands.
type listFlags struct {
	limit     int
	orderBy   string
	asc       bool
	pageToken string
	since     string
	until     string
}

// register adds the shared flags to cmd. Time filters apply to artifacts and
// executions; contexts and types list without them.
func (f *listFlags) register(cmd *cobra.Command, withTimeFilters bool) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum entities per page (0 lists everything)")
	cmd.Flags().StringVar(&f.orderBy, "order-by", "", "Sort field: id, create-time, or update-time")
	cmd.Flags().BoolVar(&f.asc, "asc", false, "Sort ascending (default: descending)")
	cmd.Flags().StringVar(&f.pageToken, "page-token", "", "Resume a previous listing from its next_page_token")
	if withTimeFilters {
		cmd.Flags().StringVar(&f.since, "since", "", "Only entities created at or after this time (e.g. -1d, 2025-01-01, \"last monday\")")
		cmd.Flags().StringVar(&f.until, "until", "", "Only entities created before this time")
	}
}

// listOptions builds the paging options, or nil when no paging was asked for.
func (f *listFlags) listOptions() (*types.ListOptions, error) {
	if f.limit == 0 && f.orderBy == "" && f.pageToken == "" {
		return nil, nil
	}
	opts := &types.ListOptions{
		MaxResultSize: f.limit,
		NextPageToken: f.pageToken,
	}
	if f.orderBy != "" {
		var field types.OrderField
		switch f.orderBy {
		case "id":
			field = types.OrderByID
		case "create-time":
			field = types.OrderByCreateTime
		case "update-time":
			field = types.OrderByLastUpdateTime
		default:
			return nil, fmt.Errorf("unknown --order-by %q (use id, create-time, or update-time)", f.orderBy)
		}
		opts.OrderBy = &types.OrderByField{Field: field, IsAsc: f.asc}
	}
	return opts, nil
}

// timeWindow resolves --since/--until into an epoch-millis window. A zero
// bound is unbounded.
func (f *listFlags) timeWindow() (lo, hi int64, err error) {
	if f.since != "" {
		lo, err = parseTimeBound(f.since)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if f.until != "" {
		hi, err = parseTimeBound(f.until)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}
	return lo, hi, nil
}

// inWindow reports whether a create timestamp falls in [lo, hi).
func inWindow(createMs, lo, hi int64) bool {
	if lo != 0 && createMs < lo {
		return false
	}
	if hi != 0 && createMs >= hi {
		return false
	}
	return true
}

// filterByCreateTime drops items created outside [lo, hi). The window is
// applied client-side after the page is fetched, so a filtered page may hold
// fewer entries than --limit.
func filterByCreateTime[T any](items []T, createMs func(T) int64, lo, hi int64) []T {
	if lo == 0 && hi == 0 {
		return items
	}
	filtered := make([]T, 0, len(items))
	for _, it := range items {
		if inWindow(createMs(it), lo, hi) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}
