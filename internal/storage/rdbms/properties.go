package rdbms

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// stateArg maps an empty state string to NULL so unset states round-trip as
// unset rather than as an empty enum label.
func stateArg(state string) any {
	if state == "" {
		return nil
	}
	return state
}

// missingIDs returns the requested ids absent from found, in request order.
func missingIDs(requested, found []int64) []int64 {
	have := make(map[int64]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []int64
	for _, id := range requested {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// validatePropertiesWithType checks that every declared property of an
// entity matches the name and primitive type its type declares. Custom
// properties are not checked; they live outside the type contract.
func validatePropertiesWithType(kind string, props map[string]*types.Value, typ *types.Type) error {
	for name, value := range props {
		declared, ok := typ.Properties[name]
		if !ok {
			return status.InvalidArgumentf(
				"%s property %q is not declared in type %q", kind, name, typ.Name)
		}
		if got := value.Type(); got != declared {
			return status.InvalidArgumentf(
				"%s property %q holds a %s value, but type %q declares %s",
				kind, name, got, typ.Name, declared)
		}
	}
	return nil
}

// inPlaceholders returns the "?, ?, ?" list for an IN clause of n values.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// dedupeInt64s returns ids with duplicates removed, preserving first-seen
// order.
func dedupeInt64s(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// insertProperties writes one owner's property rows into a *_properties
// table. Declared and custom properties share the table, discriminated by
// is_custom_property.
func (t *txn) insertProperties(ctx context.Context, table, ownerColumn string, ownerID int64, props map[string]*types.Value, isCustom bool) error {
	custom := 0
	if isCustom {
		custom = 1
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, name, is_custom_property, int_value, double_value, string_value, struct_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, table, ownerColumn)
	for name, v := range props {
		var structValue any
		if len(v.StructValue) > 0 {
			structValue = string(v.StructValue)
		}
		if _, err := t.conn.ExecContext(ctx, query,
			ownerID, name, custom, v.IntValue, v.DoubleValue, v.StringValue, structValue); err != nil {
			return err
		}
	}
	return nil
}

// replaceProperties rewrites all property rows for one owner. Updates
// replace the whole set, so removed properties disappear.
func (t *txn) replaceProperties(ctx context.Context, table, ownerColumn string, ownerID int64, props, customProps map[string]*types.Value) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, ownerColumn)
	if _, err := t.conn.ExecContext(ctx, query, ownerID); err != nil {
		return err
	}
	if err := t.insertProperties(ctx, table, ownerColumn, ownerID, props, false); err != nil {
		return err
	}
	return t.insertProperties(ctx, table, ownerColumn, ownerID, customProps, true)
}

// loadProperties reads the property rows for a batch of owners, returning
// declared and custom maps keyed by owner id. Owners without properties are
// simply absent.
func (t *txn) loadProperties(ctx context.Context, table, ownerColumn string, ids []int64) (map[int64]map[string]*types.Value, map[int64]map[string]*types.Value, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	query := fmt.Sprintf(
		`SELECT %s, name, is_custom_property, int_value, double_value, string_value, struct_value
		 FROM %s WHERE %s IN (%s)`, ownerColumn, table, ownerColumn, inPlaceholders(len(ids)))
	rows, err := t.conn.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	declared := make(map[int64]map[string]*types.Value)
	custom := make(map[int64]map[string]*types.Value)
	for rows.Next() {
		var (
			ownerID     int64
			name        string
			isCustom    int64
			intValue    sql.NullInt64
			doubleValue sql.NullFloat64
			stringValue sql.NullString
			structValue sql.NullString
		)
		if err := rows.Scan(&ownerID, &name, &isCustom, &intValue, &doubleValue, &stringValue, &structValue); err != nil {
			return nil, nil, err
		}
		v := &types.Value{}
		switch {
		case intValue.Valid:
			v.IntValue = &intValue.Int64
		case doubleValue.Valid:
			v.DoubleValue = &doubleValue.Float64
		case stringValue.Valid:
			v.StringValue = &stringValue.String
		case structValue.Valid:
			v.StructValue = json.RawMessage(structValue.String)
		}
		target := declared
		if isCustom != 0 {
			target = custom
		}
		if target[ownerID] == nil {
			target[ownerID] = make(map[string]*types.Value)
		}
		target[ownerID][name] = v
	}
	return declared, custom, rows.Err()
}
