package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trellisml/trellis/internal/rpc"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Work with artifacts",
	Long: `Create, update, and query artifacts: the datasets, models, metrics,
and other data objects that pipeline steps produce and consume.`,
}

var (
	artifactPutID          int64
	artifactPutType        string
	artifactPutTypeVer     string
	artifactPutURI         string
	artifactPutName        string
	artifactPutState       string
	artifactPutProps       []string
	artifactPutCustom      []string
	artifactPutIfUnchanged bool
	artifactPutLastUpdate  int64
)

var artifactPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update an artifact",
	Long: `Create an artifact, or update the one named by --id.

Updates replace the stored properties with the given ones. Pass
--if-unchanged together with --last-update (the artifact's stored
last_update_time_since_epoch) to fail with FAILED_PRECONDITION when
someone else updated the artifact in between.

Examples:
  trellis artifact put --type Dataset --uri s3://bucket/train.tfrecord
  trellis artifact put --type Model --name mnist-v3 --state PENDING \
      --property framework=str:torch --property quantized=int:0
  trellis artifact put --id 7 --state LIVE
  trellis artifact put --id 7 --state DELETED --if-unchanged --last-update 1724576000000`,
	Run: runArtifactPut,
}

var (
	artifactGetURIs     []string
	artifactGetType     string
	artifactGetTypeVer  string
	artifactGetName     string
	artifactGetPopulate bool
)

var artifactGetCmd = &cobra.Command{
	Use:   "get [id...]",
	Short: "Show artifacts by id, uri, or type and name",
	Long: `Show artifacts. Address them by id, by --uri, or by --type with
--name (names are unique within a type).

Examples:
  trellis artifact get 7 8
  trellis artifact get 7 --populate-types
  trellis artifact get --uri s3://bucket/train.tfrecord
  trellis artifact get --type Model --name mnist-v3`,
	Run: runArtifactGet,
}

var (
	artifactListType    string
	artifactListTypeVer string
	artifactListContext int64
	artifactListFlags   listFlags
	artifactListWatch   bool
)

var artifactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts",
	Long: `List artifacts, optionally scoped to a type or a context and paged
with --limit/--page-token.

--since and --until filter on creation time after the page is fetched,
so a filtered page may hold fewer entries than --limit.

Examples:
  trellis artifact list
  trellis artifact list --type Model --limit 20 --order-by create-time
  trellis artifact list --context 3
  trellis artifact list --since -7d --until yesterday
  trellis artifact list --watch`,
	Run: runArtifactList,
}

func init() {
	artifactPutCmd.Flags().Int64Var(&artifactPutID, "id", 0, "Artifact id to update (omit to create)")
	artifactPutCmd.Flags().StringVar(&artifactPutType, "type", "", "Artifact type name (required to create)")
	artifactPutCmd.Flags().StringVar(&artifactPutTypeVer, "type-version", "", "Artifact type version")
	artifactPutCmd.Flags().StringVar(&artifactPutURI, "uri", "", "Artifact payload location")
	artifactPutCmd.Flags().StringVar(&artifactPutName, "name", "", "Artifact name, unique within its type")
	artifactPutCmd.Flags().StringVar(&artifactPutState, "state", "", "Lifecycle state (PENDING, LIVE, MARKED_FOR_DELETION, DELETED)")
	artifactPutCmd.Flags().StringArrayVar(&artifactPutProps, "property", nil, "Declared property KEY=VALUE (repeatable)")
	artifactPutCmd.Flags().StringArrayVar(&artifactPutCustom, "custom", nil, "Custom property KEY=VALUE (repeatable)")
	artifactPutCmd.Flags().BoolVar(&artifactPutIfUnchanged, "if-unchanged", false, "Fail the update when the stored artifact changed since --last-update")
	artifactPutCmd.Flags().Int64Var(&artifactPutLastUpdate, "last-update", 0, "Stored last_update_time_since_epoch the update is based on")

	artifactGetCmd.Flags().StringArrayVar(&artifactGetURIs, "uri", nil, "Look up by uri (repeatable)")
	artifactGetCmd.Flags().StringVar(&artifactGetType, "type", "", "Look up by type name (with --name)")
	artifactGetCmd.Flags().StringVar(&artifactGetTypeVer, "type-version", "", "Type version for --type")
	artifactGetCmd.Flags().StringVar(&artifactGetName, "name", "", "Artifact name (with --type)")
	artifactGetCmd.Flags().BoolVar(&artifactGetPopulate, "populate-types", false, "Also fetch the artifacts' types (id lookups only)")

	artifactListCmd.Flags().StringVar(&artifactListType, "type", "", "Only artifacts of this type")
	artifactListCmd.Flags().StringVar(&artifactListTypeVer, "type-version", "", "Type version for --type")
	artifactListCmd.Flags().Int64Var(&artifactListContext, "context", 0, "Only artifacts attributed to this context id")
	artifactListFlags.register(artifactListCmd, true)
	artifactListCmd.Flags().BoolVar(&artifactListWatch, "watch", false, "Re-display when the database changes")

	artifactCmd.AddCommand(artifactPutCmd)
	artifactCmd.AddCommand(artifactGetCmd)
	artifactCmd.AddCommand(artifactListCmd)
	rootCmd.AddCommand(artifactCmd)
}

func runArtifactPut(cmd *cobra.Command, args []string) {
	props, err := parseValueProperties(artifactPutProps)
	if err != nil {
		fail(err)
	}
	custom, err := parseValueProperties(artifactPutCustom)
	if err != nil {
		fail(err)
	}

	artifact := &types.Artifact{
		TypeID:           resolveArtifactTypeID(cmd),
		Properties:       props,
		CustomProperties: custom,
	}
	if artifactPutID > 0 {
		artifact.ID = &artifactPutID
	}
	if cmd.Flags().Changed("uri") {
		artifact.URI = &artifactPutURI
	}
	if cmd.Flags().Changed("name") {
		artifact.Name = &artifactPutName
	}
	if artifactPutState != "" {
		artifact.State = types.ArtifactState(strings.ToUpper(artifactPutState))
	}
	if artifactPutIfUnchanged {
		if !cmd.Flags().Changed("last-update") {
			failf("--if-unchanged requires --last-update")
		}
		artifact.LastUpdateTimeSinceEpoch = artifactPutLastUpdate
	}

	req := &store.PutArtifactsRequest{
		Artifacts: []*types.Artifact{artifact},
		Options: store.PutArtifactsOptions{
			AbortIfLatestUpdatedTimeChanged: artifactPutIfUnchanged,
		},
	}
	resp, err := callStore(rpc.OpPutArtifacts, req, metaStore.PutArtifacts)
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		outputJSON(resp)
		return
	}
	fmt.Printf("artifact %d\n", resp.ArtifactIDs[0])
}

// resolveArtifactTypeID turns --type into a type id, or recovers the type of
// the artifact being updated when --type was omitted.
func resolveArtifactTypeID(cmd *cobra.Command) int64 {
	if artifactPutType != "" {
		req := &store.GetArtifactTypeRequest{TypeName: artifactPutType, TypeVersion: artifactPutTypeVer}
		resp, err := callStore(rpc.OpGetArtifactType, req, metaStore.GetArtifactType)
		if err != nil {
			fail(err)
		}
		return *resp.ArtifactType.ID
	}
	if artifactPutID > 0 {
		req := &store.GetArtifactsByIDRequest{ArtifactIDs: []int64{artifactPutID}}
		resp, err := callStore(rpc.OpGetArtifactsByID, req, metaStore.GetArtifactsByID)
		if err != nil {
			fail(err)
		}
		if len(resp.Artifacts) == 0 {
			failf("artifact %d not found", artifactPutID)
		}
		return resp.Artifacts[0].TypeID
	}
	failf("--type is required to create an artifact")
	return 0
}

func runArtifactGet(cmd *cobra.Command, args []string) {
	var artifacts []*types.Artifact
	var artifactTypes []*types.Type

	switch {
	case len(args) > 0:
		ids, err := parseIDArgs(args)
		if err != nil {
			fail(err)
		}
		req := &store.GetArtifactsByIDRequest{ArtifactIDs: ids, PopulateArtifactTypes: artifactGetPopulate}
		resp, err := callStore(rpc.OpGetArtifactsByID, req, metaStore.GetArtifactsByID)
		if err != nil {
			fail(err)
		}
		artifacts, artifactTypes = resp.Artifacts, resp.ArtifactTypes
	case len(artifactGetURIs) > 0:
		req := &store.GetArtifactsByURIRequest{URIs: artifactGetURIs}
		resp, err := callStore(rpc.OpGetArtifactsByURI, req, metaStore.GetArtifactsByURI)
		if err != nil {
			fail(err)
		}
		artifacts = resp.Artifacts
	case artifactGetType != "" && artifactGetName != "":
		req := &store.GetArtifactByTypeAndNameRequest{
			TypeName:     artifactGetType,
			TypeVersion:  artifactGetTypeVer,
			ArtifactName: artifactGetName,
		}
		resp, err := callStore(rpc.OpGetArtifactByTypeAndName, req, metaStore.GetArtifactByTypeAndName)
		if err != nil {
			fail(err)
		}
		if resp.Artifact != nil {
			artifacts = []*types.Artifact{resp.Artifact}
		}
	default:
		failf("specify artifact ids, --uri, or --type with --name")
	}

	if jsonOutput {
		outputJSON(&store.GetArtifactsByIDResponse{Artifacts: artifacts, ArtifactTypes: artifactTypes})
		return
	}
	if len(artifacts) == 0 {
		fmt.Println("No artifacts found")
		return
	}
	idx := indexTypes(artifactTypes)
	for i, a := range artifacts {
		if i > 0 {
			fmt.Println()
		}
		printArtifactDetail(a, idx)
	}
}

func runArtifactList(cmd *cobra.Command, args []string) {
	if artifactListWatch && jsonOutput {
		failf("--watch and --json cannot be combined")
	}
	if artifactListType != "" && artifactListContext > 0 {
		failf("--type and --context cannot be combined")
	}
	opts, err := artifactListFlags.listOptions()
	if err != nil {
		fail(err)
	}
	lo, hi, err := artifactListFlags.timeWindow()
	if err != nil {
		fail(err)
	}

	display := func() error {
		artifacts, next, err := fetchArtifacts(opts)
		if err != nil {
			return err
		}
		artifacts = filterByCreateTime(artifacts, func(a *types.Artifact) int64 { return a.CreateTimeSinceEpoch }, lo, hi)

		if jsonOutput {
			outputJSON(&store.GetArtifactsResponse{Artifacts: artifacts, NextPageToken: next})
			return nil
		}
		if len(artifacts) == 0 {
			fmt.Println("No artifacts found")
			return nil
		}
		fmt.Print(renderArtifactTable(artifacts, artifactTypeIndex()))
		printNextPageHint(next)
		return nil
	}

	if err := display(); err != nil {
		fail(err)
	}
	if artifactListWatch {
		watchStore(display)
	}
}

func fetchArtifacts(opts *types.ListOptions) ([]*types.Artifact, string, error) {
	switch {
	case artifactListContext > 0:
		req := &store.GetArtifactsByContextRequest{ContextID: artifactListContext, Options: opts}
		resp, err := callStore(rpc.OpGetArtifactsByContext, req, metaStore.GetArtifactsByContext)
		if err != nil {
			return nil, "", err
		}
		return resp.Artifacts, resp.NextPageToken, nil
	case artifactListType != "":
		req := &store.GetArtifactsByTypeRequest{TypeName: artifactListType, TypeVersion: artifactListTypeVer, Options: opts}
		resp, err := callStore(rpc.OpGetArtifactsByType, req, metaStore.GetArtifactsByType)
		if err != nil {
			return nil, "", err
		}
		return resp.Artifacts, resp.NextPageToken, nil
	default:
		req := &store.GetArtifactsRequest{Options: opts}
		resp, err := callStore(rpc.OpGetArtifacts, req, metaStore.GetArtifacts)
		if err != nil {
			return nil, "", err
		}
		return resp.Artifacts, resp.NextPageToken, nil
	}
}

// artifactTypeIndex fetches the artifact type catalog for id-to-name display.
// Table output survives a failed lookup; the ids just show numerically.
func artifactTypeIndex() typeNameIndex {
	resp, err := callStore(rpc.OpGetArtifactTypes, &store.GetArtifactTypesRequest{}, metaStore.GetArtifactTypes)
	if err != nil {
		return typeNameIndex{}
	}
	return indexTypes(resp.ArtifactTypes)
}
