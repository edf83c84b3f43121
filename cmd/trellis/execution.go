package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
)

var executionCmd = &cobra.Command{
	Use:   "execution",
	Short: "Work with executions",
	Long: `Create, update, and query executions: the recorded runs of pipeline
steps.`,
}

var (
	executionPutID      int64
	executionPutType    string
	executionPutTypeVer string
	executionPutName    string
	executionPutState   string
	executionPutProps   []string
	executionPutCustom  []string
)

var executionPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update an execution",
	Long: `Create an execution, or update the one named by --id.

Examples:
  trellis execution put --type Trainer --name run-42 --state RUNNING
  trellis execution put --id 5 --state COMPLETE`,
	Run: runExecutionPut,
}

var (
	executionGetType    string
	executionGetTypeVer string
	executionGetName    string
)

var executionGetCmd = &cobra.Command{
	Use:   "get [id...]",
	Short: "Show executions by id or by type and name",
	Run:   runExecutionGet,
}

var (
	executionListType    string
	executionListTypeVer string
	executionListContext int64
	executionListFlags   listFlags
)

var executionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List executions",
	Long: `List executions, optionally scoped to a type or a context.

Examples:
  trellis execution list --type Trainer --limit 10
  trellis execution list --context 3
  trellis execution list --since "last monday"`,
	Run: runExecutionList,
}

var (
	executionRecordType     string
	executionRecordTypeVer  string
	executionRecordName     string
	executionRecordState    string
	executionRecordProps    []string
	executionRecordInputs   []int64
	executionRecordOutputs  []int64
	executionRecordContexts []string
	executionRecordReuse    bool
)

var executionRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a run with its inputs, outputs, and contexts atomically",
	Long: `Record one pipeline step run in a single transaction: the execution,
input and output events to existing artifacts, the contexts grouping the
run, and the attributions and associations tying everything together.
Nothing is written if any part fails.

Contexts are given as TYPE:NAME and created on the fly; with
--reuse-context an existing context with that type and name is adopted
instead of failing the insert.

Examples:
  trellis execution record --type Trainer --state COMPLETE \
      --input 3 --input 4 --output 7 \
      --context Experiment:mnist-v2 --reuse-context`,
	Run: runExecutionRecord,
}

func init() {
	executionPutCmd.Flags().Int64Var(&executionPutID, "id", 0, "Execution id to update (omit to create)")
	executionPutCmd.Flags().StringVar(&executionPutType, "type", "", "Execution type name (required to create)")
	executionPutCmd.Flags().StringVar(&executionPutTypeVer, "type-version", "", "Execution type version")
	executionPutCmd.Flags().StringVar(&executionPutName, "name", "", "Execution name, unique within its type")
	executionPutCmd.Flags().StringVar(&executionPutState, "state", "", "Last known state (NEW, RUNNING, COMPLETE, FAILED, CACHED, CANCELED)")
	executionPutCmd.Flags().StringArrayVar(&executionPutProps, "property", nil, "Declared property KEY=VALUE (repeatable)")
	executionPutCmd.Flags().StringArrayVar(&executionPutCustom, "custom", nil, "Custom property KEY=VALUE (repeatable)")

	executionGetCmd.Flags().StringVar(&executionGetType, "type", "", "Look up by type name (with --name)")
	executionGetCmd.Flags().StringVar(&executionGetTypeVer, "type-version", "", "Type version for --type")
	executionGetCmd.Flags().StringVar(&executionGetName, "name", "", "Execution name (with --type)")

	executionListCmd.Flags().StringVar(&executionListType, "type", "", "Only executions of this type")
	executionListCmd.Flags().StringVar(&executionListTypeVer, "type-version", "", "Type version for --type")
	executionListCmd.Flags().Int64Var(&executionListContext, "context", 0, "Only executions associated with this context id")
	executionListFlags.register(executionListCmd, true)

	executionRecordCmd.Flags().StringVar(&executionRecordType, "type", "", "Execution type name (required)")
	executionRecordCmd.Flags().StringVar(&executionRecordTypeVer, "type-version", "", "Execution type version")
	executionRecordCmd.Flags().StringVar(&executionRecordName, "name", "", "Execution name, unique within its type")
	executionRecordCmd.Flags().StringVar(&executionRecordState, "state", "", "Last known state")
	executionRecordCmd.Flags().StringArrayVar(&executionRecordProps, "property", nil, "Declared property KEY=VALUE (repeatable)")
	executionRecordCmd.Flags().Int64SliceVar(&executionRecordInputs, "input", nil, "Input artifact id (repeatable)")
	executionRecordCmd.Flags().Int64SliceVar(&executionRecordOutputs, "output", nil, "Output artifact id (repeatable)")
	executionRecordCmd.Flags().StringArrayVar(&executionRecordContexts, "context", nil, "Grouping context TYPE:NAME (repeatable)")
	executionRecordCmd.Flags().BoolVar(&executionRecordReuse, "reuse-context", false, "Adopt an existing context with the same type and name")
	_ = executionRecordCmd.MarkFlagRequired("type")

	executionCmd.AddCommand(executionPutCmd)
	executionCmd.AddCommand(executionGetCmd)
	executionCmd.AddCommand(executionListCmd)
	executionCmd.AddCommand(executionRecordCmd)
	rootCmd.AddCommand(executionCmd)
}

func runExecutionPut(cmd *cobra.Command, args []string) {
	props, err := parseValueProperties(executionPutProps)
	if err != nil {
		fail(err)
	}
	custom, err := parseValueProperties(executionPutCustom)
	if err != nil {
		fail(err)
	}

	execution := &types.Execution{
		TypeID:           resolveExecutionTypeID(),
		Properties:       props,
		CustomProperties: custom,
	}
	if executionPutID > 0 {
		execution.ID = &executionPutID
	}
	if cmd.Flags().Changed("name") {
		execution.Name = &executionPutName
	}
	if executionPutState != "" {
		execution.LastKnownState = types.ExecutionState(strings.ToUpper(executionPutState))
	}

	req := &store.PutExecutionsRequest{Executions: []*types.Execution{execution}}
	resp, err := callStore(rpc.OpPutExecutions, req, metaStore.PutExecutions)
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		outputJSON(resp)
		return
	}
	fmt.Printf("execution %d\n", resp.ExecutionIDs[0])
}

func resolveExecutionTypeID() int64 {
	if executionPutType != "" {
		return executionTypeIDByName(executionPutType, executionPutTypeVer)
	}
	if executionPutID > 0 {
		req := &store.GetExecutionsByIDRequest{ExecutionIDs: []int64{executionPutID}}
		resp, err := callStore(rpc.OpGetExecutionsByID, req, metaStore.GetExecutionsByID)
		if err != nil {
			fail(err)
		}
		if len(resp.Executions) == 0 {
			failf("execution %d not found", executionPutID)
		}
		return resp.Executions[0].TypeID
	}
	failf("--type is required to create an execution")
	return 0
}

func executionTypeIDByName(name, version string) int64 {
	req := &store.GetExecutionTypeRequest{TypeName: name, TypeVersion: version}
	resp, err := callStore(rpc.OpGetExecutionType, req, metaStore.GetExecutionType)
	if err != nil {
		fail(err)
	}
	return *resp.ExecutionType.ID
}

func runExecutionGet(cmd *cobra.Command, args []string) {
	var executions []*types.Execution

	switch {
	case len(args) > 0:
		ids, err := parseIDArgs(args)
		if err != nil {
			fail(err)
		}
		req := &store.GetExecutionsByIDRequest{ExecutionIDs: ids}
		resp, err := callStore(rpc.OpGetExecutionsByID, req, metaStore.GetExecutionsByID)
		if err != nil {
			fail(err)
		}
		executions = resp.Executions
	case executionGetType != "" && executionGetName != "":
		req := &store.GetExecutionByTypeAndNameRequest{
			TypeName:      executionGetType,
			TypeVersion:   executionGetTypeVer,
			ExecutionName: executionGetName,
		}
		resp, err := callStore(rpc.OpGetExecutionByTypeAndName, req, metaStore.GetExecutionByTypeAndName)
		if err != nil {
			fail(err)
		}
		if resp.Execution != nil {
			executions = []*types.Execution{resp.Execution}
		}
	default:
		failf("specify execution ids or --type with --name")
	}

	if jsonOutput {
		outputJSON(&store.GetExecutionsByIDResponse{Executions: executions})
		return
	}
	if len(executions) == 0 {
		fmt.Println("No executions found")
		return
	}
	idx := executionTypeIndex()
	for i, e := range executions {
		if i > 0 {
			fmt.Println()
		}
		printExecutionDetail(e, idx)
	}
}

func runExecutionList(cmd *cobra.Command, args []string) {
	if executionListType != "" && executionListContext > 0 {
		failf("--type and --context cannot be combined")
	}
	opts, err := executionListFlags.listOptions()
	if err != nil {
		fail(err)
	}
	lo, hi, err := executionListFlags.timeWindow()
	if err != nil {
		fail(err)
	}

	executions, next, err := fetchExecutions(opts)
	if err != nil {
		fail(err)
	}
	executions = filterByCreateTime(executions, func(e *types.Execution) int64 { return e.CreateTimeSinceEpoch }, lo, hi)

	if jsonOutput {
		outputJSON(&store.GetExecutionsResponse{Executions: executions, NextPageToken: next})
		return
	}
	if len(executions) == 0 {
		fmt.Println("No executions found")
		return
	}
	fmt.Print(renderExecutionTable(executions, executionTypeIndex()))
	printNextPageHint(next)
}

func fetchExecutions(opts *types.ListOptions) ([]*types.Execution, string, error) {
	switch {
	case executionListContext > 0:
		req := &store.GetExecutionsByContextRequest{ContextID: executionListContext, Options: opts}
		resp, err := callStore(rpc.OpGetExecutionsByContext, req, metaStore.GetExecutionsByContext)
		if err != nil {
			return nil, "", err
		}
		return resp.Executions, resp.NextPageToken, nil
	case executionListType != "":
		req := &store.GetExecutionsByTypeRequest{TypeName: executionListType, TypeVersion: executionListTypeVer, Options: opts}
		resp, err := callStore(rpc.OpGetExecutionsByType, req, metaStore.GetExecutionsByType)
		if err != nil {
			return nil, "", err
		}
		return resp.Executions, resp.NextPageToken, nil
	default:
		req := &store.GetExecutionsRequest{Options: opts}
		resp, err := callStore(rpc.OpGetExecutions, req, metaStore.GetExecutions)
		if err != nil {
			return nil, "", err
		}
		return resp.Executions, resp.NextPageToken, nil
	}
}

func executionTypeIndex() typeNameIndex {
	resp, err := callStore(rpc.OpGetExecutionTypes, &store.GetExecutionTypesRequest{}, metaStore.GetExecutionTypes)
	if err != nil {
		return typeNameIndex{}
	}
	return indexTypes(resp.ExecutionTypes)
}

func runExecutionRecord(cmd *cobra.Command, args []string) {
	props, err := parseValueProperties(executionRecordProps)
	if err != nil {
		fail(err)
	}

	execution := &types.Execution{
		TypeID:     executionTypeIDByName(executionRecordType, executionRecordTypeVer),
		Properties: props,
	}
	if cmd.Flags().Changed("name") {
		execution.Name = &executionRecordName
	}
	if executionRecordState != "" {
		execution.LastKnownState = types.ExecutionState(strings.ToUpper(executionRecordState))
	}

	pairs := make([]store.ArtifactAndEvent, 0, len(executionRecordInputs)+len(executionRecordOutputs))
	for _, id := range executionRecordInputs {
		pairs = append(pairs, store.ArtifactAndEvent{
			Event: &types.Event{ArtifactID: id, Type: types.EventTypeInput},
		})
	}
	for _, id := range executionRecordOutputs {
		pairs = append(pairs, store.ArtifactAndEvent{
			Event: &types.Event{ArtifactID: id, Type: types.EventTypeOutput},
		})
	}

	contexts := make([]*types.Context, 0, len(executionRecordContexts))
	for _, ref := range executionRecordContexts {
		typeName, contextName, err := parseContextRef(ref)
		if err != nil {
			fail(err)
		}
		contexts = append(contexts, &types.Context{
			TypeID: contextTypeIDByName(typeName, ""),
			Name:   contextName,
		})
	}

	req := &store.PutExecutionRequest{
		Execution:          execution,
		ArtifactEventPairs: pairs,
		Contexts:           contexts,
		Options:            store.PutExecutionOptions{ReuseContextIfAlreadyExist: executionRecordReuse},
	}
	resp, err := callStore(rpc.OpPutExecution, req, metaStore.PutExecution)
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		outputJSON(resp)
		return
	}
	fmt.Printf("execution %d\n", resp.ExecutionID)
	if len(resp.ContextIDs) > 0 {
		contextIDs := make([]string, 0, len(resp.ContextIDs))
		for _, id := range resp.ContextIDs {
			contextIDs = append(contextIDs, fmt.Sprintf("%d", id))
		}
		fmt.Printf("contexts %s\n", strings.Join(contextIDs, " "))
	}
}
