package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
	"github.com/trellisml/trellis/internal/ui"
)

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "Manage the type catalog",
	Long: `Register, evolve, and inspect the types that artifacts, executions,
and contexts are instances of.`,
}

var (
	typePutKind        string
	typePutVersion     string
	typePutDescription string
	typePutProps       []string
	typePutBaseType    string
	typePutCanAdd      bool
	typePutCanOmit     bool
)

var typePutCmd = &cobra.Command{
	Use:   "put NAME",
	Short: "Register a type or evolve its schema",
	Long: `Register a type, or evolve the stored type with the same name and
version. Without evolution flags the properties must match the stored
schema exactly; --can-add-fields admits new properties, --can-omit-fields
tolerates missing ones.

Examples:
  trellis type put Model --kind artifact --property framework:STRING
  trellis type put Trainer --kind execution --base-type TRAIN
  trellis type put Experiment --kind context
  trellis type put Model --kind artifact --property framework:STRING \
      --property quantized:INT --can-add-fields`,
	Args: cobra.ExactArgs(1),
	Run:  runTypePut,
}

var (
	typeGetKind    string
	typeGetVersion string
)

var typeGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show one type",
	Args:  cobra.ExactArgs(1),
	Run:   runTypeGet,
}

var typeListKind string

var typeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered types",
	Run:   runTypeList,
}

func init() {
	typePutCmd.Flags().StringVar(&typePutKind, "kind", "artifact", "Type kind: artifact, execution, or context")
	typePutCmd.Flags().StringVar(&typePutVersion, "version", "", "Type version (empty = unversioned)")
	typePutCmd.Flags().StringVar(&typePutDescription, "description", "", "Human-readable description (markdown)")
	typePutCmd.Flags().StringArrayVar(&typePutProps, "property", nil, "Property declaration NAME:TYPE (repeatable)")
	typePutCmd.Flags().StringVar(&typePutBaseType, "base-type", "", "Built-in base type (e.g. DATASET, MODEL, TRAIN)")
	typePutCmd.Flags().BoolVar(&typePutCanAdd, "can-add-fields", false, "Allow new properties on an existing type")
	typePutCmd.Flags().BoolVar(&typePutCanOmit, "can-omit-fields", false, "Allow omitting stored properties")

	typeGetCmd.Flags().StringVar(&typeGetKind, "kind", "artifact", "Type kind: artifact, execution, or context")
	typeGetCmd.Flags().StringVar(&typeGetVersion, "version", "", "Type version (empty = unversioned)")

	typeListCmd.Flags().StringVar(&typeListKind, "kind", "all", "Type kind: all, artifact, execution, or context")

	typeCmd.AddCommand(typePutCmd)
	typeCmd.AddCommand(typeGetCmd)
	typeCmd.AddCommand(typeListCmd)
	rootCmd.AddCommand(typeCmd)
}

func runTypePut(cmd *cobra.Command, args []string) {
	props, err := parseTypeProperties(typePutProps)
	if err != nil {
		fail(err)
	}

	t := &types.Type{
		Name:        args[0],
		Version:     typePutVersion,
		Description: typePutDescription,
		Properties:  props,
	}
	if typePutBaseType != "" {
		bt := types.SystemType(strings.ToUpper(typePutBaseType))
		t.BaseType = &bt
	}

	var typeID int64
	switch typePutKind {
	case "artifact":
		req := &store.PutArtifactTypeRequest{ArtifactType: t, CanAddFields: typePutCanAdd, CanOmitFields: typePutCanOmit}
		resp, err := callStore(rpc.OpPutArtifactType, req, metaStore.PutArtifactType)
		if err != nil {
			fail(err)
		}
		typeID = resp.TypeID
	case "execution":
		req := &store.PutExecutionTypeRequest{ExecutionType: t, CanAddFields: typePutCanAdd, CanOmitFields: typePutCanOmit}
		resp, err := callStore(rpc.OpPutExecutionType, req, metaStore.PutExecutionType)
		if err != nil {
			fail(err)
		}
		typeID = resp.TypeID
	case "context":
		req := &store.PutContextTypeRequest{ContextType: t, CanAddFields: typePutCanAdd, CanOmitFields: typePutCanOmit}
		resp, err := callStore(rpc.OpPutContextType, req, metaStore.PutContextType)
		if err != nil {
			fail(err)
		}
		typeID = resp.TypeID
	default:
		failf("unknown --kind %q (use artifact, execution, or context)", typePutKind)
	}

	if jsonOutput {
		outputJSON(map[string]int64{"type_id": typeID})
		return
	}
	fmt.Printf("type %d\n", typeID)
}

func runTypeGet(cmd *cobra.Command, args []string) {
	var t *types.Type
	switch typeGetKind {
	case "artifact":
		req := &store.GetArtifactTypeRequest{TypeName: args[0], TypeVersion: typeGetVersion}
		resp, err := callStore(rpc.OpGetArtifactType, req, metaStore.GetArtifactType)
		if err != nil {
			fail(err)
		}
		t = resp.ArtifactType
	case "execution":
		req := &store.GetExecutionTypeRequest{TypeName: args[0], TypeVersion: typeGetVersion}
		resp, err := callStore(rpc.OpGetExecutionType, req, metaStore.GetExecutionType)
		if err != nil {
			fail(err)
		}
		t = resp.ExecutionType
	case "context":
		req := &store.GetContextTypeRequest{TypeName: args[0], TypeVersion: typeGetVersion}
		resp, err := callStore(rpc.OpGetContextType, req, metaStore.GetContextType)
		if err != nil {
			fail(err)
		}
		t = resp.ContextType
	default:
		failf("unknown --kind %q (use artifact, execution, or context)", typeGetKind)
	}

	if jsonOutput {
		outputJSON(t)
		return
	}
	printTypeDetail(typeGetKind, t)
}

func printTypeDetail(kind string, t *types.Type) {
	title := fmt.Sprintf("%s type %s", kind, t.Name)
	fmt.Printf("%s (id %s)\n", ui.RenderHeader(title), derefID(t.ID))
	if t.Version != "" {
		fmt.Printf("  version:   %s\n", t.Version)
	}
	if t.BaseType != nil {
		fmt.Printf("  base type: %s\n", string(*t.BaseType))
	}
	if len(t.Properties) > 0 {
		names := make([]string, 0, len(t.Properties))
		for name := range t.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("  %s\n", ui.RenderMuted("properties:"))
		for _, name := range names {
			fmt.Printf("    %s: %s\n", name, string(t.Properties[name]))
		}
	}
	if t.Description != "" {
		fmt.Println()
		fmt.Print(ui.RenderMarkdown(t.Description))
	}
}

func runTypeList(cmd *cobra.Command, args []string) {
	kind := typeListKind

	var artifactTypes, executionTypes, contextTypes []*types.Type
	if kind == "all" || kind == "artifact" {
		resp, err := callStore(rpc.OpGetArtifactTypes, &store.GetArtifactTypesRequest{}, metaStore.GetArtifactTypes)
		if err != nil {
			fail(err)
		}
		artifactTypes = resp.ArtifactTypes
	}
	if kind == "all" || kind == "execution" {
		resp, err := callStore(rpc.OpGetExecutionTypes, &store.GetExecutionTypesRequest{}, metaStore.GetExecutionTypes)
		if err != nil {
			fail(err)
		}
		executionTypes = resp.ExecutionTypes
	}
	if kind == "all" || kind == "context" {
		resp, err := callStore(rpc.OpGetContextTypes, &store.GetContextTypesRequest{}, metaStore.GetContextTypes)
		if err != nil {
			fail(err)
		}
		contextTypes = resp.ContextTypes
	}
	if kind != "all" && kind != "artifact" && kind != "execution" && kind != "context" {
		failf("unknown --kind %q (use all, artifact, execution, or context)", kind)
	}

	if jsonOutput {
		outputJSON(map[string][]*types.Type{
			"artifact_types":  artifactTypes,
			"execution_types": executionTypes,
			"context_types":   contextTypes,
		})
		return
	}

	total := len(artifactTypes) + len(executionTypes) + len(contextTypes)
	if total == 0 {
		fmt.Println("No types registered")
		return
	}
	rows := make([][]string, 0, total)
	appendKind := func(kind string, list []*types.Type) {
		for _, t := range list {
			rows = append(rows, []string{
				ui.RenderHeader(derefID(t.ID)),
				kind,
				t.Name,
				t.Version,
				fmt.Sprintf("%d", len(t.Properties)),
			})
		}
	}
	appendKind("artifact", artifactTypes)
	appendKind("execution", executionTypes)
	appendKind("context", contextTypes)
	fmt.Print(ui.RenderTable([]string{"ID", "KIND", "NAME", "VERSION", "PROPERTIES"}, rows))
}
