package store

import (
	"context"
	"sort"

	"github.com/trellisml/trellis/internal/simpletypes"
	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

// checkFieldsConsistent compares a type against the stored one sharing its
// name and version. Stored properties must reappear with the same value type
// unless canOmit allows them to be left out; extra properties are allowed
// only when canAdd is set. On success it returns the stored type widened
// with the new properties; nothing is ever removed.
func checkFieldsConsistent(stored, given *types.Type, canAdd, canOmit bool) (*types.Type, error) {
	if stored.Name != given.Name {
		return nil, status.FailedPreconditionf(
			"Conflicting type name found in stored and given types: stored type: %s; given type: %s",
			requestString(stored), requestString(given))
	}
	omitted := 0
	for _, name := range sortedPropertyNames(stored.Properties) {
		want := stored.Properties[name]
		got, ok := given.Properties[name]
		switch {
		case !ok:
			omitted++
		case got != want:
			return nil, status.FailedPreconditionf(
				"Conflicting property value type found in stored and given types: stored_type: %s; other_type: %s",
				requestString(stored), requestString(given))
		}
		if omitted > 0 && !canOmit {
			return nil, status.FailedPreconditionf(
				"can_omit_fields is false while stored type has more properties: stored type: %s; given type: %s",
				requestString(stored), requestString(given))
		}
	}
	if len(stored.Properties)-omitted == len(given.Properties) {
		return cloneType(stored), nil
	}
	if !canAdd {
		return nil, status.FailedPreconditionf(
			"can_add_fields is false while the given type has more properties: stored_type: %s; other_type: %s",
			requestString(stored), requestString(given))
	}
	merged := cloneType(stored)
	if merged.Properties == nil {
		merged.Properties = make(map[string]types.PropertyType, len(given.Properties))
	}
	for name, value := range given.Properties {
		if _, ok := merged.Properties[name]; !ok {
			merged.Properties[name] = value
		}
	}
	return merged, nil
}

func sortedPropertyNames(props map[string]types.PropertyType) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneType(t *types.Type) *types.Type {
	out := *t
	if t.ID != nil {
		id := *t.ID
		out.ID = &id
	}
	if t.Properties != nil {
		out.Properties = make(map[string]types.PropertyType, len(t.Properties))
		for name, value := range t.Properties {
			out.Properties[name] = value
		}
	}
	if t.BaseType != nil {
		base := *t.BaseType
		out.BaseType = &base
	}
	return &out
}

// upsertTypeInheritanceLink reconciles the stored parent-type link for
// typeID against the base type named on t. Links are written once and then
// frozen: a nil base type is a no-op, and unsetting or switching a stored
// link is not supported.
func upsertTypeInheritanceLink(ctx context.Context, tx storage.Transaction, kind types.TypeKind, t *types.Type, typeID int64) error {
	if t.BaseType == nil {
		return nil
	}
	if *t.BaseType == types.SystemTypeUnset {
		return status.Unimplementedf("base_type deletion is not supported yet")
	}
	baseName, ok := simpletypes.NameForSystemType(*t.BaseType)
	if !ok {
		return status.InvalidArgumentf("type %q names an unknown base_type %s", t.Name, *t.BaseType)
	}
	parents, err := tx.FindParentTypesByTypeIDs(ctx, []int64{typeID})
	if err != nil {
		return err
	}
	stored := parents[typeID]
	switch {
	case len(stored) == 0:
		base, err := tx.FindTypeByNameAndVersion(ctx, kind, baseName, "")
		if err != nil {
			return err
		}
		return tx.CreateParentTypeLink(ctx, typeID, *base.ID)
	case len(stored) > 1:
		return status.FailedPreconditionf("type %d has %d parent types; at most one base type is supported", typeID, len(stored))
	case stored[0].Name != baseName:
		return status.Unimplementedf("base_type update is not supported yet")
	}
	return nil
}

// upsertType writes one type and reconciles its base-type link, returning
// the stored id. A new (name, version) is created as given. An existing one
// is checked for compatibility: conflicts surface as AlreadyExists wrapping
// the precondition detail, and compatible puts widen the stored property
// set without ever narrowing it.
func upsertType(ctx context.Context, tx storage.Transaction, kind types.TypeKind, t *types.Type, canAdd, canOmit bool) (int64, error) {
	stored, err := tx.FindTypeByNameAndVersion(ctx, kind, t.Name, t.Version)
	if err != nil && !status.IsNotFound(err) {
		return 0, err
	}
	if status.IsNotFound(err) {
		id, cerr := tx.CreateType(ctx, kind, t)
		if cerr == nil {
			return id, upsertTypeInheritanceLink(ctx, tx, kind, t, id)
		}
		if !status.IsAlreadyExists(cerr) {
			return 0, cerr
		}
		// Lost a first-writer race on the (kind, name, version) constraint.
		// Re-read the winner's row and continue as an update.
		stored, err = tx.FindTypeByNameAndVersion(ctx, kind, t.Name, t.Version)
		if err != nil {
			return 0, err
		}
	}
	merged, err := checkFieldsConsistent(stored, t, canAdd, canOmit)
	if err != nil {
		return 0, status.AlreadyExistsf("Type already exists with different properties: %v", err)
	}
	if err := tx.UpdateType(ctx, kind, merged); err != nil {
		return 0, err
	}
	return *stored.ID, upsertTypeInheritanceLink(ctx, tx, kind, t, *stored.ID)
}

// upsertTypes writes the three kind groups in artifact, execution, context
// order and returns the ids grouped the same way.
func upsertTypes(ctx context.Context, tx storage.Transaction, artifactTypes, executionTypes, contextTypes []*types.Type, canAdd, canOmit bool) (artifactIDs, executionIDs, contextIDs []int64, err error) {
	for _, t := range artifactTypes {
		if t == nil {
			t = &types.Type{}
		}
		id, err := upsertType(ctx, tx, types.ArtifactTypeKind, t, canAdd, canOmit)
		if err != nil {
			return nil, nil, nil, err
		}
		artifactIDs = append(artifactIDs, id)
	}
	for _, t := range executionTypes {
		if t == nil {
			t = &types.Type{}
		}
		id, err := upsertType(ctx, tx, types.ExecutionTypeKind, t, canAdd, canOmit)
		if err != nil {
			return nil, nil, nil, err
		}
		executionIDs = append(executionIDs, id)
	}
	for _, t := range contextTypes {
		if t == nil {
			t = &types.Type{}
		}
		id, err := upsertType(ctx, tx, types.ContextTypeKind, t, canAdd, canOmit)
		if err != nil {
			return nil, nil, nil, err
		}
		contextIDs = append(contextIDs, id)
	}
	return artifactIDs, executionIDs, contextIDs, nil
}

// setBaseTypes fills BaseType on the given types from their stored
// parent-type links. Parent names outside the built-in catalog are left
// alone so reads stay usable on databases whose links were written through
// the storage layer directly.
func setBaseTypes(ctx context.Context, tx storage.Transaction, ts []*types.Type) error {
	if len(ts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(ts))
	for _, t := range ts {
		if t.ID != nil {
			ids = append(ids, *t.ID)
		}
	}
	parents, err := tx.FindParentTypesByTypeIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		return nil
	}
	for _, t := range ts {
		if t.ID == nil {
			continue
		}
		stored := parents[*t.ID]
		if len(stored) == 0 {
			continue
		}
		if len(stored) > 1 {
			return status.FailedPreconditionf("type %d has %d parent types; at most one base type is supported", *t.ID, len(stored))
		}
		if base, ok := simpletypes.SystemTypeForName(stored[0].Name); ok {
			t.BaseType = &base
		}
	}
	return nil
}

// PutArtifactType inserts or updates one artifact type and returns its id.
// Only the all-fields-match mode is implemented.
func (s *Store) PutArtifactType(ctx context.Context, req *PutArtifactTypeRequest) (*PutArtifactTypeResponse, error) {
	if !allFieldsMatch(req.AllFieldsMatch) {
		return nil, status.Unimplementedf("Must match all fields.")
	}
	t := req.ArtifactType
	if t == nil {
		t = &types.Type{}
	}
	resp := &PutArtifactTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		id, err := upsertType(ctx, tx, types.ArtifactTypeKind, t, req.CanAddFields, req.CanOmitFields)
		if err != nil {
			return err
		}
		resp.TypeID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PutExecutionType inserts or updates one execution type and returns its id.
func (s *Store) PutExecutionType(ctx context.Context, req *PutExecutionTypeRequest) (*PutExecutionTypeResponse, error) {
	if !allFieldsMatch(req.AllFieldsMatch) {
		return nil, status.Unimplementedf("Must match all fields.")
	}
	t := req.ExecutionType
	if t == nil {
		t = &types.Type{}
	}
	resp := &PutExecutionTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		id, err := upsertType(ctx, tx, types.ExecutionTypeKind, t, req.CanAddFields, req.CanOmitFields)
		if err != nil {
			return err
		}
		resp.TypeID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PutContextType inserts or updates one context type and returns its id.
func (s *Store) PutContextType(ctx context.Context, req *PutContextTypeRequest) (*PutContextTypeResponse, error) {
	if !allFieldsMatch(req.AllFieldsMatch) {
		return nil, status.Unimplementedf("Must match all fields.")
	}
	t := req.ContextType
	if t == nil {
		t = &types.Type{}
	}
	resp := &PutContextTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		id, err := upsertType(ctx, tx, types.ContextTypeKind, t, req.CanAddFields, req.CanOmitFields)
		if err != nil {
			return err
		}
		resp.TypeID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PutTypes inserts or updates a batch of types of all three kinds in one
// transaction.
func (s *Store) PutTypes(ctx context.Context, req *PutTypesRequest) (*PutTypesResponse, error) {
	if !allFieldsMatch(req.AllFieldsMatch) {
		return nil, status.Unimplementedf("Must match all fields.")
	}
	resp := &PutTypesResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		*resp = PutTypesResponse{}
		var err error
		resp.ArtifactTypeIDs, resp.ExecutionTypeIDs, resp.ContextTypeIDs, err = upsertTypes(
			ctx, tx, req.ArtifactTypes, req.ExecutionTypes, req.ContextTypes,
			req.CanAddFields, req.CanOmitFields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactType returns the artifact type with the given name and version,
// or NotFound.
func (s *Store) GetArtifactType(ctx context.Context, req *GetArtifactTypeRequest) (*GetArtifactTypeResponse, error) {
	resp := &GetArtifactTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ArtifactTypeKind, req.TypeName, req.TypeVersion)
		if err != nil {
			return err
		}
		if err := setBaseTypes(ctx, tx, []*types.Type{t}); err != nil {
			return err
		}
		resp.ArtifactType = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionType returns the execution type with the given name and
// version, or NotFound.
func (s *Store) GetExecutionType(ctx context.Context, req *GetExecutionTypeRequest) (*GetExecutionTypeResponse, error) {
	resp := &GetExecutionTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ExecutionTypeKind, req.TypeName, req.TypeVersion)
		if err != nil {
			return err
		}
		if err := setBaseTypes(ctx, tx, []*types.Type{t}); err != nil {
			return err
		}
		resp.ExecutionType = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextType returns the context type with the given name and version,
// or NotFound. Context types have no base types, so nothing is hydrated.
func (s *Store) GetContextType(ctx context.Context, req *GetContextTypeRequest) (*GetContextTypeResponse, error) {
	resp := &GetContextTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ContextTypeKind, req.TypeName, req.TypeVersion)
		if err != nil {
			return err
		}
		resp.ContextType = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactTypesByID returns the artifact types for the requested ids,
// skipping ids that do not exist.
func (s *Store) GetArtifactTypesByID(ctx context.Context, req *GetArtifactTypesByIDRequest) (*GetArtifactTypesByIDResponse, error) {
	resp := &GetArtifactTypesByIDResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		ts, err := tx.FindTypesByIDs(ctx, types.ArtifactTypeKind, req.TypeIDs)
		if err != nil {
			return err
		}
		if err := setBaseTypes(ctx, tx, ts); err != nil {
			return err
		}
		resp.ArtifactTypes = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionTypesByID returns the execution types for the requested ids,
// skipping ids that do not exist.
func (s *Store) GetExecutionTypesByID(ctx context.Context, req *GetExecutionTypesByIDRequest) (*GetExecutionTypesByIDResponse, error) {
	resp := &GetExecutionTypesByIDResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		ts, err := tx.FindTypesByIDs(ctx, types.ExecutionTypeKind, req.TypeIDs)
		if err != nil {
			return err
		}
		if err := setBaseTypes(ctx, tx, ts); err != nil {
			return err
		}
		resp.ExecutionTypes = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextTypesByID returns the context types for the requested ids,
// skipping ids that do not exist.
func (s *Store) GetContextTypesByID(ctx context.Context, req *GetContextTypesByIDRequest) (*GetContextTypesByIDResponse, error) {
	resp := &GetContextTypesByIDResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		ts, err := tx.FindTypesByIDs(ctx, types.ContextTypeKind, req.TypeIDs)
		if err != nil {
			return err
		}
		resp.ContextTypes = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactTypes lists every user-defined artifact type. The built-in
// catalog types are hidden from bulk listings.
func (s *Store) GetArtifactTypes(ctx context.Context, req *GetArtifactTypesRequest) (*GetArtifactTypesResponse, error) {
	resp := &GetArtifactTypesResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		all, err := tx.FindAllTypes(ctx, types.ArtifactTypeKind)
		if err != nil {
			return err
		}
		var ts []*types.Type
		for _, t := range all {
			if simpletypes.IsSimpleTypeName(types.ArtifactTypeKind, t.Name) {
				continue
			}
			ts = append(ts, t)
		}
		if err := setBaseTypes(ctx, tx, ts); err != nil {
			return err
		}
		resp.ArtifactTypes = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionTypes lists every user-defined execution type. The built-in
// catalog types are hidden from bulk listings.
func (s *Store) GetExecutionTypes(ctx context.Context, req *GetExecutionTypesRequest) (*GetExecutionTypesResponse, error) {
	resp := &GetExecutionTypesResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		all, err := tx.FindAllTypes(ctx, types.ExecutionTypeKind)
		if err != nil {
			return err
		}
		var ts []*types.Type
		for _, t := range all {
			if simpletypes.IsSimpleTypeName(types.ExecutionTypeKind, t.Name) {
				continue
			}
			ts = append(ts, t)
		}
		if err := setBaseTypes(ctx, tx, ts); err != nil {
			return err
		}
		resp.ExecutionTypes = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextTypes lists every context type. The built-in catalog defines no
// context types, so nothing is filtered.
func (s *Store) GetContextTypes(ctx context.Context, req *GetContextTypesRequest) (*GetContextTypesResponse, error) {
	resp := &GetContextTypesResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		ts, err := tx.FindAllTypes(ctx, types.ContextTypeKind)
		if err != nil {
			return err
		}
		resp.ContextTypes = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
