package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trellisml/trellis/internal/timeparsing"
	"github.com/trellisml/trellis/internal/types"
)

// parseTypeProperty parses a type schema property declaration of the form
// NAME:PRIMITIVE, e.g. "epochs:INT" or "accuracy:DOUBLE".
func parseTypeProperty(s string) (string, types.PropertyType, error) {
	name, prim, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return "", "", fmt.Errorf("property %q must be NAME:TYPE (e.g. epochs:INT)", s)
	}
	pt := types.PropertyType(strings.ToUpper(prim))
	if !pt.Valid() {
		return "", "", fmt.Errorf("property %q has unknown type %q (use INT, DOUBLE, STRING, or STRUCT)", s, prim)
	}
	return name, pt, nil
}

// parseTypeProperties folds NAME:PRIMITIVE declarations into a schema map.
func parseTypeProperties(decls []string) (map[string]types.PropertyType, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	props := make(map[string]types.PropertyType, len(decls))
	for _, d := range decls {
		name, pt, err := parseTypeProperty(d)
		if err != nil {
			return nil, err
		}
		props[name] = pt
	}
	return props, nil
}

// parseValueProperty parses a property assignment of the form KEY=VALUE.
// The value may carry a type prefix: int:42, float:0.5, str:hello, or
// json:{...} for STRUCT properties. A bare value is a string.
func parseValueProperty(s string) (string, *types.Value, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("property %q must be KEY=VALUE", s)
	}

	kind, rest, hasKind := strings.Cut(raw, ":")
	if !hasKind {
		return key, types.StringValue(raw), nil
	}
	switch kind {
	case "int":
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("property %q: %q is not an integer", key, rest)
		}
		return key, types.IntValue(n), nil
	case "float", "double":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return "", nil, fmt.Errorf("property %q: %q is not a number", key, rest)
		}
		return key, types.DoubleValue(f), nil
	case "str", "string":
		return key, types.StringValue(rest), nil
	case "json", "struct":
		if !json.Valid([]byte(rest)) {
			return "", nil, fmt.Errorf("property %q: invalid JSON", key)
		}
		return key, types.StructValue(json.RawMessage(rest)), nil
	default:
		// Not a recognized prefix: the colon belongs to the value
		// (e.g. uri=s3://bucket).
		return key, types.StringValue(raw), nil
	}
}

// parseValueProperties folds KEY=VALUE assignments into a property map.
func parseValueProperties(assigns []string) (map[string]*types.Value, error) {
	if len(assigns) == 0 {
		return nil, nil
	}
	props := make(map[string]*types.Value, len(assigns))
	for _, a := range assigns {
		key, v, err := parseValueProperty(a)
		if err != nil {
			return nil, err
		}
		props[key] = v
	}
	return props, nil
}

// parseIDArgs parses positional arguments as entity ids.
func parseIDArgs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not an id", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseTimeBound resolves a time expression (compact offset, timestamp, or
// natural language) to epoch milliseconds.
func parseTimeBound(expr string) (int64, error) {
	t, err := timeparsing.Parse(expr, time.Now())
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// parseContextRef parses a context reference of the form TYPE:NAME.
func parseContextRef(s string) (typeName, contextName string, err error) {
	typeName, contextName, ok := strings.Cut(s, ":")
	if !ok || typeName == "" || contextName == "" {
		return "", "", fmt.Errorf("context %q must be TYPE:NAME (e.g. Experiment:mnist-v2)", s)
	}
	return typeName, contextName, nil
}

// millisToString renders an epoch-milliseconds timestamp for table output.
func millisToString(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// derefID renders a *int64 id for table output.
func derefID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

// derefString renders an optional string for table output.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
