package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/dsl"
	"github.com/user/entityflow/internal/entity"
)

// DefinitionSource is the subset of entity.Service the pipeline needs to
// resolve an entity type's current schema.
type DefinitionSource interface {
	GetByEntityType(ctx context.Context, entityType string) (*entity.EntityDefinition, error)
}

// Pipeline runs the full normalisation/write pipeline for a proposed
// entity record against a published entity type.
type Pipeline struct {
	Defs DefinitionSource
	Rows *RowRepository
	Log  zerolog.Logger
}

// WriteOptions controls optional pipeline behavior.
type WriteOptions struct {
	SkipVersioning bool
}

// Write runs the seven-step normalisation pipeline and persists the result.
// Create vs update is distinguished by the presence of input["uuid"].
func (p *Pipeline) Write(ctx context.Context, entityType string, input map[string]any, opts WriteOptions) (*entity.DynamicEntity, error) {
	def, err := p.Defs.GetByEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if !def.Published {
		return nil, errs.New(errs.Validation, "entity type is not published")
	}

	existingUUID, _ := input["uuid"].(string)
	isCreate := existingUUID == ""

	fields, err := normalizeFields(*def, input, isCreate)
	if err != nil {
		return nil, err
	}

	e := entity.DynamicEntity{
		EntityType: entityType,
		FieldData:  fields,
		Definition: def,
		Published:  true,
	}

	now := time.Now()
	if isCreate {
		e.UUID = uuid.NewString()
		e.CreatedAt = now
		e.Version = 1
	} else {
		e.UUID = existingUUID
		current, err := p.Rows.CurrentVersion(ctx, entityType, existingUUID)
		if err != nil {
			return nil, err
		}
		e.Version = current + 1
	}
	e.UpdatedAt = now

	if parentUUID, _ := input["parent_uuid"].(string); parentUUID != "" {
		e.ParentUUID = parentUUID
		if path, _ := input["path"].(string); path != "" {
			e.Path = path
		} else {
			path, err := p.Rows.ParentPath(ctx, entityType, parentUUID)
			if err != nil {
				return nil, err
			}
			e.Path = path
		}
	} else if path, _ := input["path"].(string); path != "" {
		e.Path = path
	} else {
		return nil, errs.New(errs.Validation, "either 'path' or 'parent_uuid' must be provided")
	}

	if key, _ := input["entity_key"].(string); key != "" {
		e.EntityKey = key
	} else {
		e.EntityKey = e.UUID
	}

	if isCreate {
		if err := p.Rows.Insert(ctx, *def, e); err != nil {
			return nil, err
		}
	} else {
		if err := p.Rows.Update(ctx, *def, e); err != nil {
			return nil, err
		}
	}

	if err := p.Rows.RegistryUpsert(ctx, entity.EntitiesRegistry{
		UUID: e.UUID, EntityType: e.EntityType, Path: e.Path, EntityKey: e.EntityKey, ParentUUID: e.ParentUUID,
	}); err != nil {
		return nil, err
	}

	if !opts.SkipVersioning && !def.VersioningDisabled {
		if err := p.Rows.SnapshotVersion(ctx, entityType, e.UUID, e.Version, e.FieldData); err != nil {
			p.Log.Warn().Err(err).Str("entity_type", entityType).Str("uuid", e.UUID).Msg("entity version snapshot failed; write already committed")
		}
	}

	return &e, nil
}

// entityLookupAdapter adapts RowRepository to the dsl.EntityLookup
// interface the DSL executor's parent resolution calls.
type entityLookupAdapter struct {
	Rows *RowRepository
}

// NewEntityLookup returns a dsl.EntityLookup backed by rows.
func NewEntityLookup(rows *RowRepository) dsl.EntityLookup {
	return &entityLookupAdapter{Rows: rows}
}

func (a *entityLookupAdapter) FindOne(ctx context.Context, entityType string, filters map[string]any) (*dsl.ResolvedParent, error) {
	id, path, key, err := a.Rows.FindOne(ctx, entityType, filters)
	if err != nil {
		if errs.Of(err, errs.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dsl.ResolvedParent{UUID: id, Path: path, EntityKey: key}, nil
}

func (a *entityLookupAdapter) FindByPath(ctx context.Context, entityType, fullPath string) (*dsl.ResolvedParent, error) {
	id, path, key, err := a.Rows.FindByPath(ctx, entityType, fullPath)
	if err != nil {
		if errs.Of(err, errs.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dsl.ResolvedParent{UUID: id, Path: path, EntityKey: key}, nil
}
