package rdbms

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

// List sizing. Callers that want everything pass nil options instead of a
// large page.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageToken is the opaque cursor carried between list calls. All sortable
// columns hold int64 values, so one shape serves every field.
type pageToken struct {
	Field     types.OrderField `json:"field"`
	Ascending bool             `json:"ascending"`
	LastValue int64            `json:"last_value"`
	LastID    int64            `json:"last_id"`
}

func encodePageToken(t pageToken) string {
	raw, err := json.Marshal(t)
	if err != nil {
		// The token struct is all value types; this cannot fail.
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(raw)
}

func decodePageToken(s string) (pageToken, error) {
	var t pageToken
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return t, status.InvalidArgumentf("malformed page token: %v", err)
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, status.InvalidArgumentf("malformed page token: %v", err)
	}
	return t, nil
}

// listSpec is the resolved form of ListOptions: a validated sort column,
// page size, and optional resume cursor.
type listSpec struct {
	field     types.OrderField
	column    string
	ascending bool
	limit     int
	token     *pageToken
}

var orderColumns = map[types.OrderField]string{
	types.OrderByID:             "id",
	types.OrderByCreateTime:     "create_time_since_epoch",
	types.OrderByLastUpdateTime: "last_update_time_since_epoch",
}

// resolveListOptions validates opts into a listSpec. Nil options mean an
// unpaged listing and resolve to a nil spec. A page token must have been
// produced with the same field and direction it is replayed with.
func resolveListOptions(opts *types.ListOptions) (*listSpec, error) {
	if opts == nil {
		return nil, nil
	}
	sp := &listSpec{field: types.OrderByID, ascending: true, limit: opts.MaxResultSize}
	if opts.OrderBy != nil {
		sp.field = opts.OrderBy.Field
		sp.ascending = opts.OrderBy.IsAsc
	}
	column, ok := orderColumns[sp.field]
	if !ok {
		return nil, status.InvalidArgumentf("unknown order-by field %q", sp.field)
	}
	sp.column = column
	if sp.limit <= 0 {
		sp.limit = defaultPageSize
	}
	if sp.limit > maxPageSize {
		sp.limit = maxPageSize
	}
	if opts.NextPageToken != "" {
		token, err := decodePageToken(opts.NextPageToken)
		if err != nil {
			return nil, err
		}
		if token.Field != sp.field || token.Ascending != sp.ascending {
			return nil, status.InvalidArgumentf(
				"page token was produced with different list options (token: %s %s)",
				token.Field, direction(token.Ascending))
		}
		sp.token = &token
	}
	return sp, nil
}

func direction(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}

// keysetCondition returns the WHERE fragment resuming after the cursor, and
// its arguments. Written as an OR pair rather than a row-value comparison so
// the same text runs on every engine.
func (sp *listSpec) keysetCondition() (string, []any) {
	op := ">"
	if !sp.ascending {
		op = "<"
	}
	cond := fmt.Sprintf("(%s %s ? OR (%s = ? AND id %s ?))", sp.column, op, sp.column, op)
	return cond, []any{sp.token.LastValue, sp.token.LastValue, sp.token.LastID}
}

// orderLimit returns the ORDER BY/LIMIT tail. One extra row is fetched to
// learn whether another page exists.
func (sp *listSpec) orderLimit() string {
	dir := direction(sp.ascending)
	return fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d", sp.column, dir, dir, sp.limit+1)
}

// tokenAfter encodes the cursor for the page following the row with the
// given sort value and id.
func (sp *listSpec) tokenAfter(lastValue, lastID int64) string {
	return encodePageToken(pageToken{
		Field:     sp.field,
		Ascending: sp.ascending,
		LastValue: lastValue,
		LastID:    lastID,
	})
}
