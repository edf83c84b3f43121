package rdbms

import (
	"testing"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

func TestResolveListOptionsNil(t *testing.T) {
	sp, err := resolveListOptions(nil)
	if err != nil {
		t.Fatalf("resolveListOptions(nil) error = %v", err)
	}
	if sp != nil {
		t.Fatalf("nil options should resolve to a nil spec, got %+v", sp)
	}
}

func TestResolveListOptionsDefaults(t *testing.T) {
	sp, err := resolveListOptions(&types.ListOptions{})
	if err != nil {
		t.Fatalf("resolveListOptions error = %v", err)
	}
	if sp.field != types.OrderByID || !sp.ascending {
		t.Errorf("default order = %s %s, want ID ASC", sp.field, direction(sp.ascending))
	}
	if sp.column != "id" {
		t.Errorf("default column = %q, want id", sp.column)
	}
	if sp.limit != defaultPageSize {
		t.Errorf("default limit = %d, want %d", sp.limit, defaultPageSize)
	}
}

func TestResolveListOptionsLimit(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{"zero uses default", 0, defaultPageSize},
		{"negative uses default", -3, defaultPageSize},
		{"explicit size kept", 7, 7},
		{"clamped to max", 1000, maxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := resolveListOptions(&types.ListOptions{MaxResultSize: tt.size})
			if err != nil {
				t.Fatalf("resolveListOptions error = %v", err)
			}
			if sp.limit != tt.want {
				t.Errorf("limit = %d, want %d", sp.limit, tt.want)
			}
		})
	}
}

func TestResolveListOptionsUnknownField(t *testing.T) {
	_, err := resolveListOptions(&types.ListOptions{
		OrderBy: &types.OrderByField{Field: "URI", IsAsc: true},
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("unknown field error = %v, want InvalidArgument", err)
	}
}

func TestPageTokenRoundTrip(t *testing.T) {
	opts := &types.ListOptions{
		MaxResultSize: 2,
		OrderBy:       &types.OrderByField{Field: types.OrderByCreateTime, IsAsc: false},
	}
	sp, err := resolveListOptions(opts)
	if err != nil {
		t.Fatalf("resolveListOptions error = %v", err)
	}
	token := sp.tokenAfter(1234, 56)

	next, err := resolveListOptions(&types.ListOptions{
		MaxResultSize: 2,
		OrderBy:       &types.OrderByField{Field: types.OrderByCreateTime, IsAsc: false},
		NextPageToken: token,
	})
	if err != nil {
		t.Fatalf("resolveListOptions with token error = %v", err)
	}
	if next.token == nil {
		t.Fatal("spec has no token after replay")
	}
	if next.token.LastValue != 1234 || next.token.LastID != 56 {
		t.Errorf("token cursor = (%d, %d), want (1234, 56)", next.token.LastValue, next.token.LastID)
	}
}

func TestPageTokenOptionsMismatch(t *testing.T) {
	sp, err := resolveListOptions(&types.ListOptions{
		OrderBy: &types.OrderByField{Field: types.OrderByCreateTime, IsAsc: false},
	})
	if err != nil {
		t.Fatalf("resolveListOptions error = %v", err)
	}
	token := sp.tokenAfter(1, 1)

	_, err = resolveListOptions(&types.ListOptions{
		OrderBy:       &types.OrderByField{Field: types.OrderByID, IsAsc: true},
		NextPageToken: token,
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("replay with different options error = %v, want InvalidArgument", err)
	}
}

func TestPageTokenMalformed(t *testing.T) {
	_, err := resolveListOptions(&types.ListOptions{NextPageToken: "not-a-token"})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("malformed token error = %v, want InvalidArgument", err)
	}
}

func TestKeysetCondition(t *testing.T) {
	tests := []struct {
		name     string
		asc      bool
		wantCond string
	}{
		{
			name:     "ascending",
			asc:      true,
			wantCond: "(create_time_since_epoch > ? OR (create_time_since_epoch = ? AND id > ?))",
		},
		{
			name:     "descending",
			asc:      false,
			wantCond: "(create_time_since_epoch < ? OR (create_time_since_epoch = ? AND id < ?))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &listSpec{
				field:     types.OrderByCreateTime,
				column:    "create_time_since_epoch",
				ascending: tt.asc,
				limit:     10,
				token:     &pageToken{LastValue: 42, LastID: 7},
			}
			cond, args := sp.keysetCondition()
			if cond != tt.wantCond {
				t.Errorf("condition = %q, want %q", cond, tt.wantCond)
			}
			if len(args) != 3 || args[0] != int64(42) || args[1] != int64(42) || args[2] != int64(7) {
				t.Errorf("args = %v, want [42 42 7]", args)
			}
		})
	}
}

func TestOrderLimit(t *testing.T) {
	sp := &listSpec{field: types.OrderByLastUpdateTime, column: "last_update_time_since_epoch", ascending: false, limit: 10}
	got := sp.orderLimit()
	want := " ORDER BY last_update_time_since_epoch DESC, id DESC LIMIT 11"
	if got != want {
		t.Errorf("orderLimit = %q, want %q", got, want)
	}
}
