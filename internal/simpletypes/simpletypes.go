// Package simpletypes holds the catalog of built-in metadata types. The
// catalog is compiled into the binary and seeded into every store when it is
// created, so user-defined types can declare one of them as a base type from
// the first transaction onward.
package simpletypes

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/trellisml/trellis/internal/types"
)

//go:embed catalog.toml
var catalogTOML []byte

type catalogEntry struct {
	Name   string `toml:"name"`
	System string `toml:"system"`
}

type catalogFile struct {
	Artifact  []catalogEntry `toml:"artifact"`
	Execution []catalogEntry `toml:"execution"`
}

var (
	artifactTypes  []types.Type
	executionTypes []types.Type

	// Name sets per kind, used to hide built-ins from bulk type listings.
	simpleNames map[types.TypeKind]map[string]bool

	nameBySystem map[types.SystemType]string
	systemByName map[string]types.SystemType
)

func init() {
	var file catalogFile
	if err := toml.Unmarshal(catalogTOML, &file); err != nil {
		panic(fmt.Sprintf("simpletypes: malformed embedded catalog: %v", err))
	}

	simpleNames = map[types.TypeKind]map[string]bool{
		types.ArtifactTypeKind:  {},
		types.ExecutionTypeKind: {},
	}
	nameBySystem = map[types.SystemType]string{}
	systemByName = map[string]types.SystemType{}

	register := func(kind types.TypeKind, entries []catalogEntry) []types.Type {
		out := make([]types.Type, 0, len(entries))
		for _, e := range entries {
			if e.Name == "" || e.System == "" {
				panic(fmt.Sprintf("simpletypes: catalog entry missing name or system: %+v", e))
			}
			st := types.SystemType(e.System)
			if _, dup := nameBySystem[st]; dup {
				panic(fmt.Sprintf("simpletypes: duplicate system value %q", e.System))
			}
			// Catalog types are the roots of the base-type hierarchy; seeding
			// them with a base type of their own would ask the store to link
			// them to themselves.
			out = append(out, types.Type{Name: e.Name})
			simpleNames[kind][e.Name] = true
			nameBySystem[st] = e.Name
			systemByName[e.Name] = st
		}
		return out
	}

	artifactTypes = register(types.ArtifactTypeKind, file.Artifact)
	executionTypes = register(types.ExecutionTypeKind, file.Execution)
}

// ArtifactTypes returns the built-in artifact types, one fresh copy per call
// so callers can mutate the slice.
func ArtifactTypes() []types.Type {
	out := make([]types.Type, len(artifactTypes))
	copy(out, artifactTypes)
	return out
}

// ExecutionTypes returns the built-in execution types.
func ExecutionTypes() []types.Type {
	out := make([]types.Type, len(executionTypes))
	copy(out, executionTypes)
	return out
}

// IsSimpleTypeName reports whether name is a built-in type of the given
// kind. Context kinds always report false.
func IsSimpleTypeName(kind types.TypeKind, name string) bool {
	return simpleNames[kind][name]
}

// NameForSystemType resolves a system base-type value to the built-in type
// name that stores the inheritance link. UNSET and unknown values resolve to
// false.
func NameForSystemType(st types.SystemType) (string, bool) {
	name, ok := nameBySystem[st]
	return name, ok
}

// SystemTypeForName is the reverse lookup: the system base-type value a
// built-in type name stands for.
func SystemTypeForName(name string) (types.SystemType, bool) {
	st, ok := systemByName[name]
	return st, ok
}
