package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/trellisml/trellis/internal/types"
	"github.com/trellisml/trellis/internal/ui"
)

const uriColumnWidth = 48

// typeNameIndex maps type ids to names for display. Lookups fall back to the
// numeric id when the type was not fetched.
type typeNameIndex map[int64]string

func indexTypes(lists ...[]*types.Type) typeNameIndex {
	idx := make(typeNameIndex)
	for _, list := range lists {
		for _, t := range list {
			if t.ID != nil {
				idx[*t.ID] = t.Name
			}
		}
	}
	return idx
}

func (idx typeNameIndex) name(typeID int64) string {
	if name, ok := idx[typeID]; ok {
		return name
	}
	return strconv.FormatInt(typeID, 10)
}

func renderArtifactTable(artifacts []*types.Artifact, idx typeNameIndex) string {
	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, []string{
			ui.RenderHeader(derefID(a.ID)),
			idx.name(a.TypeID),
			derefString(a.Name),
			ui.Truncate(derefString(a.URI), uriColumnWidth),
			ui.RenderState(string(a.State)),
			millisToString(a.LastUpdateTimeSinceEpoch),
		})
	}
	return ui.RenderTable([]string{"ID", "TYPE", "NAME", "URI", "STATE", "UPDATED"}, rows)
}

func renderExecutionTable(executions []*types.Execution, idx typeNameIndex) string {
	rows := make([][]string, 0, len(executions))
	for _, e := range executions {
		rows = append(rows, []string{
			ui.RenderHeader(derefID(e.ID)),
			idx.name(e.TypeID),
			derefString(e.Name),
			ui.RenderState(string(e.LastKnownState)),
			millisToString(e.LastUpdateTimeSinceEpoch),
		})
	}
	return ui.RenderTable([]string{"ID", "TYPE", "NAME", "STATE", "UPDATED"}, rows)
}

func renderContextTable(contexts []*types.Context, idx typeNameIndex) string {
	rows := make([][]string, 0, len(contexts))
	for _, c := range contexts {
		rows = append(rows, []string{
			ui.RenderHeader(derefID(c.ID)),
			idx.name(c.TypeID),
			c.Name,
			millisToString(c.CreateTimeSinceEpoch),
		})
	}
	return ui.RenderTable([]string{"ID", "TYPE", "NAME", "CREATED"}, rows)
}

func renderEventTable(events []*types.Event) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			strconv.FormatInt(e.ExecutionID, 10),
			string(e.Type),
			strconv.FormatInt(e.ArtifactID, 10),
			pathToString(e.Path),
			millisToString(e.MillisSinceEpoch),
		})
	}
	return ui.RenderTable([]string{"EXECUTION", "EVENT", "ARTIFACT", "PATH", "TIME"}, rows)
}

// pathToString renders an event path as slash-separated steps.
func pathToString(path []types.PathStep) string {
	if len(path) == 0 {
		return ""
	}
	parts := make([]string, 0, len(path))
	for _, step := range path {
		switch {
		case step.Index != nil:
			parts = append(parts, strconv.FormatInt(*step.Index, 10))
		case step.Key != nil:
			parts = append(parts, *step.Key)
		}
	}
	return strings.Join(parts, "/")
}

// valueToString renders a property value for detail output.
func valueToString(v *types.Value) string {
	switch v.Type() {
	case types.IntType:
		return strconv.FormatInt(*v.IntValue, 10)
	case types.DoubleType:
		return strconv.FormatFloat(*v.DoubleValue, 'g', -1, 64)
	case types.StringType:
		return *v.StringValue
	case types.StructType:
		return string(v.StructValue)
	}
	return ""
}

// printProperties prints a property map sorted by key, indented under a
// heading. Nothing is printed for an empty map.
func printProperties(heading string, props map[string]*types.Value) {
	if len(props) == 0 {
		return
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("  %s\n", ui.RenderMuted(heading))
	for _, k := range keys {
		fmt.Printf("    %s: %s\n", k, valueToString(props[k]))
	}
}

func printArtifactDetail(a *types.Artifact, idx typeNameIndex) {
	fmt.Printf("%s %s\n", ui.RenderHeader("Artifact"), ui.RenderHeader(derefID(a.ID)))
	fmt.Printf("  type:    %s\n", idx.name(a.TypeID))
	if a.Name != nil {
		fmt.Printf("  name:    %s\n", *a.Name)
	}
	if a.URI != nil {
		fmt.Printf("  uri:     %s\n", *a.URI)
	}
	if a.State != "" {
		fmt.Printf("  state:   %s\n", ui.RenderState(string(a.State)))
	}
	fmt.Printf("  created: %s\n", millisToString(a.CreateTimeSinceEpoch))
	fmt.Printf("  updated: %s\n", millisToString(a.LastUpdateTimeSinceEpoch))
	printProperties("properties:", a.Properties)
	printProperties("custom properties:", a.CustomProperties)
}

func printExecutionDetail(e *types.Execution, idx typeNameIndex) {
	fmt.Printf("%s %s\n", ui.RenderHeader("Execution"), ui.RenderHeader(derefID(e.ID)))
	fmt.Printf("  type:    %s\n", idx.name(e.TypeID))
	if e.Name != nil {
		fmt.Printf("  name:    %s\n", *e.Name)
	}
	if e.LastKnownState != "" {
		fmt.Printf("  state:   %s\n", ui.RenderState(string(e.LastKnownState)))
	}
	fmt.Printf("  created: %s\n", millisToString(e.CreateTimeSinceEpoch))
	fmt.Printf("  updated: %s\n", millisToString(e.LastUpdateTimeSinceEpoch))
	printProperties("properties:", e.Properties)
	printProperties("custom properties:", e.CustomProperties)
}

func printContextDetail(c *types.Context, idx typeNameIndex) {
	fmt.Printf("%s %s\n", ui.RenderHeader("Context"), ui.RenderHeader(derefID(c.ID)))
	fmt.Printf("  type:    %s\n", idx.name(c.TypeID))
	fmt.Printf("  name:    %s\n", c.Name)
	fmt.Printf("  created: %s\n", millisToString(c.CreateTimeSinceEpoch))
	fmt.Printf("  updated: %s\n", millisToString(c.LastUpdateTimeSinceEpoch))
	printProperties("properties:", c.Properties)
	printProperties("custom properties:", c.CustomProperties)
}

// printNextPageHint tells the user how to continue a paged listing.
func printNextPageHint(token string) {
	if token == "" {
		return
	}
	fmt.Println(ui.RenderMuted(fmt.Sprintf("more results: --page-token %s", token)))
}
