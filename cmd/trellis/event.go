package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Record and query artifact/execution events",
	Long: `Events are the directed links of the lineage graph: each one says an
execution consumed or produced an artifact, when, and under what path
in the step's signature.`,
}

var (
	eventPutArtifact  int64
	eventPutExecution int64
	eventPutType      string
	eventPutPath      string
	eventPutAt        string
)

var eventPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Record an event between an execution and an artifact",
	Long: `Record an event. Both endpoints must already exist. Events are
insert-only; recording the same (artifact, execution, type, time)
tuple twice is rejected.

The event time defaults to now; --at accepts the same expressions as
--since (RFC3339, YYYY-MM-DD, or phrases like "2 hours ago").

Examples:
  trellis event put --execution 5 --artifact 7 --type INPUT
  trellis event put --execution 5 --artifact 9 --type OUTPUT --path predictions/0`,
	Run: runEventPut,
}

var (
	eventListArtifacts  []int64
	eventListExecutions []int64
)

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events touching the given artifacts or executions",
	Long: `List events by their artifact or execution endpoints.

Examples:
  trellis event list --artifact 7
  trellis event list --execution 5 --execution 6`,
	Run: runEventList,
}

func init() {
	eventPutCmd.Flags().Int64Var(&eventPutArtifact, "artifact", 0, "Artifact endpoint id (required)")
	eventPutCmd.Flags().Int64Var(&eventPutExecution, "execution", 0, "Execution endpoint id (required)")
	eventPutCmd.Flags().StringVar(&eventPutType, "type", "", "Event type: INPUT, OUTPUT, DECLARED_INPUT, DECLARED_OUTPUT, INTERNAL_INPUT, INTERNAL_OUTPUT")
	eventPutCmd.Flags().StringVar(&eventPutPath, "path", "", "Slash-separated path steps; numeric steps are indexes, others keys")
	eventPutCmd.Flags().StringVar(&eventPutAt, "at", "", "Event time (defaults to now)")
	eventPutCmd.MarkFlagRequired("artifact")
	eventPutCmd.MarkFlagRequired("execution")
	eventPutCmd.MarkFlagRequired("type")

	eventListCmd.Flags().Int64SliceVar(&eventListArtifacts, "artifact", nil, "Artifact id to look up (repeatable)")
	eventListCmd.Flags().Int64SliceVar(&eventListExecutions, "execution", nil, "Execution id to look up (repeatable)")

	eventCmd.AddCommand(eventPutCmd)
	eventCmd.AddCommand(eventListCmd)
	rootCmd.AddCommand(eventCmd)
}

// parseEventPath turns "predictions/0" into key and index steps.
func parseEventPath(s string) []types.PathStep {
	if s == "" {
		return nil
	}
	var steps []types.PathStep
	for _, part := range strings.Split(s, "/") {
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			idx := n
			steps = append(steps, types.PathStep{Index: &idx})
			continue
		}
		key := part
		steps = append(steps, types.PathStep{Key: &key})
	}
	return steps
}

func runEventPut(cmd *cobra.Command, args []string) {
	millis := time.Now().UnixMilli()
	if eventPutAt != "" {
		at, err := parseTimeBound(eventPutAt)
		if err != nil {
			failf("invalid --at: %v", err)
		}
		millis = at
	}

	event := &types.Event{
		ArtifactID:       eventPutArtifact,
		ExecutionID:      eventPutExecution,
		Type:             types.EventType(strings.ToUpper(eventPutType)),
		Path:             parseEventPath(eventPutPath),
		MillisSinceEpoch: millis,
	}

	req := &store.PutEventsRequest{Events: []*types.Event{event}}
	if _, err := callStore(rpc.OpPutEvents, req, metaStore.PutEvents); err != nil {
		fail(err)
	}
	if jsonOutput {
		outputJSON(map[string]string{"status": "ok"})
		return
	}
	fmt.Printf("event recorded: execution %d %s artifact %d\n",
		eventPutExecution, event.Type, eventPutArtifact)
}

func runEventList(cmd *cobra.Command, args []string) {
	if len(eventListArtifacts) == 0 && len(eventListExecutions) == 0 {
		failf("pass --artifact and/or --execution ids")
	}

	var events []*types.Event
	if len(eventListArtifacts) > 0 {
		req := &store.GetEventsByArtifactIDsRequest{ArtifactIDs: eventListArtifacts}
		resp, err := callStore(rpc.OpGetEventsByArtifactIDs, req, metaStore.GetEventsByArtifactIDs)
		if err != nil {
			fail(err)
		}
		events = append(events, resp.Events...)
	}
	if len(eventListExecutions) > 0 {
		req := &store.GetEventsByExecutionIDsRequest{ExecutionIDs: eventListExecutions}
		resp, err := callStore(rpc.OpGetEventsByExecutionIDs, req, metaStore.GetEventsByExecutionIDs)
		if err != nil {
			fail(err)
		}
		events = append(events, resp.Events...)
	}

	if jsonOutput {
		outputJSON(map[string][]*types.Event{"events": events})
		return
	}
	if len(events) == 0 {
		fmt.Println("No events found")
		return
	}
	fmt.Print(renderEventTable(events))
}
