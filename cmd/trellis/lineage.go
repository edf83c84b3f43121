package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
	"github.com/trellisml/trellis/internal/ui"
)

var (
	lineageIDs          []int64
	lineageURIs         []string
	lineageType         string
	lineageTypeVer      string
	lineageMaxHops      int64
	lineageMaxNodes     int64
	lineageBoundaryArt  []string
	lineageBoundaryExec []string
)

var lineageCmd = &cobra.Command{
	Use:   "lineage [id|uri...]",
	Short: "Trace the provenance subgraph around artifacts",
	Long: `Walk the event graph outward from the artifacts matching the query
flags and print everything reached: artifacts, executions, and the
events connecting them. Positional arguments seed the walk too: a
number is an artifact id, anything else a URI.

The traversal alternates artifact and execution hops, so --max-hops 2
reaches the executions touching the seeds and the artifacts those
executions touched. Boundary types stop expansion at matching nodes;
the nodes themselves are still included.

Examples:
  trellis lineage 7
  trellis lineage s3://models/fraud-v3 --max-hops 4
  trellis lineage --type Model --boundary-execution-type Deploy`,
	Run: runLineage,
}

func init() {
	lineageCmd.Flags().Int64SliceVar(&lineageIDs, "id", nil, "Seed artifact id (repeatable)")
	lineageCmd.Flags().StringArrayVar(&lineageURIs, "uri", nil, "Seed artifact URI (repeatable)")
	lineageCmd.Flags().StringVar(&lineageType, "type", "", "Seed all artifacts of this type")
	lineageCmd.Flags().StringVar(&lineageTypeVer, "type-version", "", "Type version for --type")
	lineageCmd.Flags().Int64Var(&lineageMaxHops, "max-hops", -1, "Traversal radius in hops (-1 for unbounded)")
	lineageCmd.Flags().Int64Var(&lineageMaxNodes, "max-nodes", 0, "Cap on returned artifacts (0 for no cap)")
	lineageCmd.Flags().StringArrayVar(&lineageBoundaryArt, "boundary-artifact-type", nil, "Artifact type the walk must not expand through (repeatable)")
	lineageCmd.Flags().StringArrayVar(&lineageBoundaryExec, "boundary-execution-type", nil, "Execution type the walk must not expand through (repeatable)")
	rootCmd.AddCommand(lineageCmd)
}

func runLineage(cmd *cobra.Command, args []string) {
	query := &types.ArtifactQuery{
		IDs:         lineageIDs,
		URIs:        lineageURIs,
		TypeName:    lineageType,
		TypeVersion: lineageTypeVer,
	}
	for _, arg := range args {
		if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
			query.IDs = append(query.IDs, id)
			continue
		}
		query.URIs = append(query.URIs, arg)
	}
	if query.Empty() {
		failf("specify seed artifacts by id or uri, or with --id, --uri, or --type")
	}

	options := &types.LineageGraphQueryOptions{
		ArtifactsOptions: query,
		MaxNodeSize:      lineageMaxNodes,
	}
	if lineageMaxHops >= 0 || len(lineageBoundaryArt) > 0 || len(lineageBoundaryExec) > 0 {
		stop := &types.LineageBoundaryConstraint{
			BoundaryArtifactTypes:  lineageBoundaryArt,
			BoundaryExecutionTypes: lineageBoundaryExec,
		}
		if lineageMaxHops >= 0 {
			stop.MaxNumHops = &lineageMaxHops
		}
		options.StopConditions = stop
	}

	req := &store.GetLineageGraphRequest{Options: options}
	resp, err := callStore(rpc.OpGetLineageGraph, req, metaStore.GetLineageGraph)
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		outputJSON(resp)
		return
	}

	g := resp.Subgraph
	if g == nil || len(g.Artifacts) == 0 {
		fmt.Println("No lineage found")
		return
	}

	fmt.Printf("%d artifact(s), %d execution(s), %d event(s)\n",
		len(g.Artifacts), len(g.Executions), len(g.Events))

	fmt.Println()
	fmt.Println(ui.RenderHeader("ARTIFACTS"))
	fmt.Print(renderArtifactTable(g.Artifacts, indexTypes(g.ArtifactTypes)))

	if len(g.Executions) > 0 {
		fmt.Println()
		fmt.Println(ui.RenderHeader("EXECUTIONS"))
		fmt.Print(renderExecutionTable(g.Executions, indexTypes(g.ExecutionTypes)))
	}
	if len(g.Events) > 0 {
		fmt.Println()
		fmt.Println(ui.RenderHeader("EVENTS"))
		fmt.Print(renderEventTable(g.Events))
	}
}
