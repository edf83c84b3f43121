package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Work with contexts",
	Long: `Create and query contexts: the experiments, runs, and projects that
group artifacts and executions, optionally nested through parent links.`,
}

var (
	contextPutID      int64
	contextPutType    string
	contextPutTypeVer string
	contextPutName    string
	contextPutProps   []string
	contextPutCustom  []string
)

var contextPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a context",
	Long: `Create a context, or update the one named by --id. Context names are
required and unique within their type.

Examples:
  trellis context put --type Experiment --name mnist-v2
  trellis context put --id 3 --property owner=str:ml-infra`,
	Run: runContextPut,
}

var (
	contextGetType    string
	contextGetTypeVer string
	contextGetName    string
)

var contextGetCmd = &cobra.Command{
	Use:   "get [id...]",
	Short: "Show contexts by id or by type and name",
	Run:   runContextGet,
}

var (
	contextListType      string
	contextListTypeVer   string
	contextListArtifact  int64
	contextListExecution int64
	contextListFlags     listFlags
)

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	Long: `List contexts, optionally scoped to a type, or to the contexts an
artifact is attributed to or an execution is associated with.

Examples:
  trellis context list --type Experiment
  trellis context list --artifact 7
  trellis context list --execution 5`,
	Run: runContextList,
}

var (
	contextAttachArtifacts  []int64
	contextAttachExecutions []int64
)

var contextAttachCmd = &cobra.Command{
	Use:   "attach CONTEXT_ID",
	Short: "Attribute artifacts and associate executions to a context",
	Long: `Record membership links in one transaction: attributions for the
given artifacts and associations for the given executions. Links that
already exist are tolerated, so re-running is safe.

Examples:
  trellis context attach 3 --artifact 7 --artifact 8 --execution 5`,
	Args: cobra.ExactArgs(1),
	Run:  runContextAttach,
}

var contextLinkCmd = &cobra.Command{
	Use:   "link CHILD_ID PARENT_ID",
	Short: "Make one context a parent of another",
	Long: `Record a parent link between two contexts. A context may have many
parents and many children, but the graph stays acyclic: linking a
context under its own descendant is rejected.

Examples:
  trellis context link 4 3`,
	Args: cobra.ExactArgs(2),
	Run:  runContextLink,
}

var contextParentsCmd = &cobra.Command{
	Use:   "parents CONTEXT_ID",
	Short: "List a context's parents",
	Args:  cobra.ExactArgs(1),
	Run:   runContextParents,
}

var contextChildrenCmd = &cobra.Command{
	Use:   "children CONTEXT_ID",
	Short: "List a context's children",
	Args:  cobra.ExactArgs(1),
	Run:   runContextChildren,
}

func init() {
	contextPutCmd.Flags().Int64Var(&contextPutID, "id", 0, "Context id to update (omit to create)")
	contextPutCmd.Flags().StringVar(&contextPutType, "type", "", "Context type name (required to create)")
	contextPutCmd.Flags().StringVar(&contextPutTypeVer, "type-version", "", "Context type version")
	contextPutCmd.Flags().StringVar(&contextPutName, "name", "", "Context name, required and unique within its type")
	contextPutCmd.Flags().StringArrayVar(&contextPutProps, "property", nil, "Declared property KEY=VALUE (repeatable)")
	contextPutCmd.Flags().StringArrayVar(&contextPutCustom, "custom", nil, "Custom property KEY=VALUE (repeatable)")

	contextGetCmd.Flags().StringVar(&contextGetType, "type", "", "Look up by type name (with --name)")
	contextGetCmd.Flags().StringVar(&contextGetTypeVer, "type-version", "", "Type version for --type")
	contextGetCmd.Flags().StringVar(&contextGetName, "name", "", "Context name (with --type)")

	contextListCmd.Flags().StringVar(&contextListType, "type", "", "Only contexts of this type")
	contextListCmd.Flags().StringVar(&contextListTypeVer, "type-version", "", "Type version for --type")
	contextListCmd.Flags().Int64Var(&contextListArtifact, "artifact", 0, "Contexts this artifact is attributed to")
	contextListCmd.Flags().Int64Var(&contextListExecution, "execution", 0, "Contexts this execution is associated with")
	contextListFlags.register(contextListCmd, false)

	contextAttachCmd.Flags().Int64SliceVar(&contextAttachArtifacts, "artifact", nil, "Artifact id to attribute (repeatable)")
	contextAttachCmd.Flags().Int64SliceVar(&contextAttachExecutions, "execution", nil, "Execution id to associate (repeatable)")

	contextCmd.AddCommand(contextPutCmd)
	contextCmd.AddCommand(contextGetCmd)
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextAttachCmd)
	contextCmd.AddCommand(contextLinkCmd)
	contextCmd.AddCommand(contextParentsCmd)
	contextCmd.AddCommand(contextChildrenCmd)
	rootCmd.AddCommand(contextCmd)
}

func runContextPut(cmd *cobra.Command, args []string) {
	props, err := parseValueProperties(contextPutProps)
	if err != nil {
		fail(err)
	}
	custom, err := parseValueProperties(contextPutCustom)
	if err != nil {
		fail(err)
	}

	context := &types.Context{
		Name:             contextPutName,
		Properties:       props,
		CustomProperties: custom,
	}
	if contextPutID > 0 {
		context.ID = &contextPutID
		stored := storedContext(contextPutID)
		context.TypeID = stored.TypeID
		if contextPutType != "" {
			context.TypeID = contextTypeIDByName(contextPutType, contextPutTypeVer)
		}
		if context.Name == "" {
			// Updates may omit --name; carry the stored one forward.
			context.Name = stored.Name
		}
	} else {
		if contextPutType == "" {
			failf("--type is required to create a context")
		}
		if context.Name == "" {
			failf("--name is required to create a context")
		}
		context.TypeID = contextTypeIDByName(contextPutType, contextPutTypeVer)
	}

	req := &store.PutContextsRequest{Contexts: []*types.Context{context}}
	resp, err := callStore(rpc.OpPutContexts, req, metaStore.PutContexts)
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		outputJSON(resp)
		return
	}
	fmt.Printf("context %d\n", resp.ContextIDs[0])
}

func contextTypeIDByName(name, version string) int64 {
	req := &store.GetContextTypeRequest{TypeName: name, TypeVersion: version}
	resp, err := callStore(rpc.OpGetContextType, req, metaStore.GetContextType)
	if err != nil {
		fail(err)
	}
	return *resp.ContextType.ID
}

func storedContext(id int64) *types.Context {
	req := &store.GetContextsByIDRequest{ContextIDs: []int64{id}}
	resp, err := callStore(rpc.OpGetContextsByID, req, metaStore.GetContextsByID)
	if err != nil {
		fail(err)
	}
	if len(resp.Contexts) == 0 {
		failf("context %d not found", id)
	}
	return resp.Contexts[0]
}

func runContextGet(cmd *cobra.Command, args []string) {
	var contexts []*types.Context

	switch {
	case len(args) > 0:
		ids, err := parseIDArgs(args)
		if err != nil {
			fail(err)
		}
		req := &store.GetContextsByIDRequest{ContextIDs: ids}
		resp, err := callStore(rpc.OpGetContextsByID, req, metaStore.GetContextsByID)
		if err != nil {
			fail(err)
		}
		contexts = resp.Contexts
	case contextGetType != "" && contextGetName != "":
		req := &store.GetContextByTypeAndNameRequest{
			TypeName:    contextGetType,
			TypeVersion: contextGetTypeVer,
			ContextName: contextGetName,
		}
		resp, err := callStore(rpc.OpGetContextByTypeAndName, req, metaStore.GetContextByTypeAndName)
		if err != nil {
			fail(err)
		}
		if resp.Context != nil {
			contexts = []*types.Context{resp.Context}
		}
	default:
		failf("specify context ids or --type with --name")
	}

	if jsonOutput {
		outputJSON(&store.GetContextsByIDResponse{Contexts: contexts})
		return
	}
	if len(contexts) == 0 {
		fmt.Println("No contexts found")
		return
	}
	idx := contextTypeIndex()
	for i, c := range contexts {
		if i > 0 {
			fmt.Println()
		}
		printContextDetail(c, idx)
	}
}

func runContextList(cmd *cobra.Command, args []string) {
	if contextListArtifact > 0 && contextListExecution > 0 {
		failf("--artifact and --execution cannot be combined")
	}

	var contexts []*types.Context
	var next string

	switch {
	case contextListArtifact > 0:
		req := &store.GetContextsByArtifactRequest{ArtifactID: contextListArtifact}
		resp, err := callStore(rpc.OpGetContextsByArtifact, req, metaStore.GetContextsByArtifact)
		if err != nil {
			fail(err)
		}
		contexts = resp.Contexts
	case contextListExecution > 0:
		req := &store.GetContextsByExecutionRequest{ExecutionID: contextListExecution}
		resp, err := callStore(rpc.OpGetContextsByExecution, req, metaStore.GetContextsByExecution)
		if err != nil {
			fail(err)
		}
		contexts = resp.Contexts
	case contextListType != "":
		opts, err := contextListFlags.listOptions()
		if err != nil {
			fail(err)
		}
		req := &store.GetContextsByTypeRequest{TypeName: contextListType, TypeVersion: contextListTypeVer, Options: opts}
		resp, err := callStore(rpc.OpGetContextsByType, req, metaStore.GetContextsByType)
		if err != nil {
			fail(err)
		}
		contexts, next = resp.Contexts, resp.NextPageToken
	default:
		opts, err := contextListFlags.listOptions()
		if err != nil {
			fail(err)
		}
		req := &store.GetContextsRequest{Options: opts}
		resp, err := callStore(rpc.OpGetContexts, req, metaStore.GetContexts)
		if err != nil {
			fail(err)
		}
		contexts, next = resp.Contexts, resp.NextPageToken
	}

	if jsonOutput {
		outputJSON(&store.GetContextsResponse{Contexts: contexts, NextPageToken: next})
		return
	}
	if len(contexts) == 0 {
		fmt.Println("No contexts found")
		return
	}
	fmt.Print(renderContextTable(contexts, contextTypeIndex()))
	printNextPageHint(next)
}

func contextTypeIndex() typeNameIndex {
	resp, err := callStore(rpc.OpGetContextTypes, &store.GetContextTypesRequest{}, metaStore.GetContextTypes)
	if err != nil {
		return typeNameIndex{}
	}
	return indexTypes(resp.ContextTypes)
}

func runContextAttach(cmd *cobra.Command, args []string) {
	ids, err := parseIDArgs(args)
	if err != nil {
		fail(err)
	}
	contextID := ids[0]
	if len(contextAttachArtifacts) == 0 && len(contextAttachExecutions) == 0 {
		failf("nothing to attach: pass --artifact and/or --execution")
	}

	req := &store.PutAttributionsAndAssociationsRequest{}
	for _, id := range contextAttachArtifacts {
		req.Attributions = append(req.Attributions, &types.Attribution{ContextID: contextID, ArtifactID: id})
	}
	for _, id := range contextAttachExecutions {
		req.Associations = append(req.Associations, &types.Association{ContextID: contextID, ExecutionID: id})
	}

	if _, err := callStore(rpc.OpPutAttributionsAndAssociations, req, metaStore.PutAttributionsAndAssociations); err != nil {
		fail(err)
	}
	if jsonOutput {
		outputJSON(map[string]string{"status": "ok"})
		return
	}
	fmt.Printf("attached %d artifact(s) and %d execution(s) to context %d\n",
		len(contextAttachArtifacts), len(contextAttachExecutions), contextID)
}

func runContextLink(cmd *cobra.Command, args []string) {
	ids, err := parseIDArgs(args)
	if err != nil {
		fail(err)
	}

	req := &store.PutParentContextsRequest{
		ParentContexts: []*types.ParentContext{{ChildID: ids[0], ParentID: ids[1]}},
	}
	if _, err := callStore(rpc.OpPutParentContexts, req, metaStore.PutParentContexts); err != nil {
		fail(err)
	}
	if jsonOutput {
		outputJSON(map[string]string{"status": "ok"})
		return
	}
	fmt.Printf("context %d is now a child of %d\n", ids[0], ids[1])
}

func runContextParents(cmd *cobra.Command, args []string) {
	ids, err := parseIDArgs(args)
	if err != nil {
		fail(err)
	}
	req := &store.GetParentContextsByContextRequest{ContextID: ids[0]}
	resp, err := callStore(rpc.OpGetParentContextsByContext, req, metaStore.GetParentContextsByContext)
	if err != nil {
		fail(err)
	}
	printContextList(resp.Contexts)
}

func runContextChildren(cmd *cobra.Command, args []string) {
	ids, err := parseIDArgs(args)
	if err != nil {
		fail(err)
	}
	req := &store.GetChildrenContextsByContextRequest{ContextID: ids[0]}
	resp, err := callStore(rpc.OpGetChildrenContextsByContext, req, metaStore.GetChildrenContextsByContext)
	if err != nil {
		fail(err)
	}
	printContextList(resp.Contexts)
}

func printContextList(contexts []*types.Context) {
	if jsonOutput {
		outputJSON(map[string][]*types.Context{"contexts": contexts})
		return
	}
	if len(contexts) == 0 {
		fmt.Println("No contexts found")
		return
	}
	fmt.Print(renderContextTable(contexts, contextTypeIndex()))
}
