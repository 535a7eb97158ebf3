package entity

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/cache"
	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/core/pagination"
)

// Service orchestrates entity-definition operations: persistence,
// materialisation, and cache invalidation.
type Service struct {
	Repo         *Repository
	Materializer *Materializer
	Cache        *cache.Cache
	CacheTTL     time.Duration
	Log          zerolog.Logger
}

// Create persists a new definition and, if published, applies the
// materialisation plan.
func (s *Service) Create(ctx context.Context, def *EntityDefinition) error {
	if def.EntityType == "" {
		return errs.Field(errs.Validation, "entity_type", "entity_type is required")
	}
	if err := ValidateFieldSet(def.Fields); err != nil {
		return err
	}
	assignPositions(def.Fields)

	if existing, err := s.Repo.GetByEntityType(ctx, def.EntityType); err == nil && existing != nil {
		return errs.Field(errs.Conflict, "entity_type", "entity_type already exists")
	}

	if err := s.Repo.Create(ctx, def); err != nil {
		return err
	}

	if def.Published {
		if err := s.Materializer.Create(ctx, *def); err != nil {
			return err
		}
	}

	s.invalidate(ctx, def.EntityType)
	return nil
}

// Update computes the field diff against the current definition,
// increments version, and re-applies the materialisation plan
// incrementally.
func (s *Service) Update(ctx context.Context, id string, updated EntityDefinition) (*EntityDefinition, error) {
	current, err := s.Repo.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateFieldSet(updated.Fields); err != nil {
		return nil, err
	}
	assignPositions(updated.Fields)

	wasPublished := current.Published

	next := *current
	next.DisplayName = updated.DisplayName
	next.Fields = updated.Fields
	next.AllowChildren = updated.AllowChildren
	next.Published = updated.Published
	next.UpdatedBy = updated.UpdatedBy

	if err := s.Repo.Update(ctx, &next); err != nil {
		return nil, err
	}

	if !next.VersioningDisabled {
		if err := s.Repo.SnapshotVersion(ctx, next); err != nil {
			s.Log.Warn().Err(err).Str("entity_type", next.EntityType).Msg("entity definition version snapshot failed; write already committed")
		}
	}

	switch {
	case !wasPublished && next.Published:
		if err := s.Materializer.Create(ctx, next); err != nil {
			return nil, err
		}
	case wasPublished && next.Published:
		if err := s.Materializer.Update(ctx, *current, next); err != nil {
			return nil, err
		}
	case wasPublished && !next.Published:
		if err := s.Materializer.Drop(ctx, next.EntityType); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx, next.EntityType)
	return &next, nil
}

// Delete removes a definition; forbidden while any entity of this type
// exists unless force is true.
func (s *Service) Delete(ctx context.Context, id string, force bool) error {
	def, err := s.Repo.GetByUUID(ctx, id)
	if err != nil {
		return err
	}

	if !force {
		count, err := s.Repo.CountEntitiesOfType(ctx, def.EntityType)
		if err != nil && !errs.Of(err, errs.Database) {
			return err
		}
		if count > 0 {
			return errs.Field(errs.Conflict, "entity_type", "entities of this type still exist; pass force=true to delete anyway")
		}
	}

	if def.Published {
		if err := s.Materializer.Drop(ctx, def.EntityType); err != nil {
			return err
		}
	}

	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, def.EntityType)
	return nil
}

// GetByEntityType reads through the cache, keyed by entity_definitions:<type>.
func (s *Service) GetByEntityType(ctx context.Context, entityType string) (*EntityDefinition, error) {
	key := cache.EntityDefinitionKey(entityType)

	var cached EntityDefinition
	if found, err := s.Cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	def, err := s.Repo.GetByEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.Set(ctx, key, def, s.CacheTTL)
	return def, nil
}

func (s *Service) GetByUUID(ctx context.Context, id string) (*EntityDefinition, error) {
	return s.Repo.GetByUUID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]EntityDefinition, error) {
	return s.Repo.List(ctx, limit, offset)
}

// DefaultListPerPage and MaxListPerPage bound a paginated List call's page
// size when the caller's pagination.Query leaves per_page unset or oversized.
const (
	DefaultListPerPage = 20
	MaxListPerPage     = 200
)

// ListPaginated resolves q against the default/max page size and returns the
// matching page of entity definitions alongside the total row count.
func (s *Service) ListPaginated(ctx context.Context, q pagination.Query) ([]EntityDefinition, int64, error) {
	perPage := q.GetPerPage(DefaultListPerPage, MaxListPerPage)
	offset := q.Offset(1, DefaultListPerPage, MaxListPerPage)

	defs, err := s.Repo.List(ctx, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return defs, total, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.Repo.Count(ctx)
}

func (s *Service) invalidate(ctx context.Context, entityType string) {
	if err := s.Cache.Delete(ctx, cache.EntityDefinitionKey(entityType)); err != nil {
		s.Log.Warn().Err(err).Str("entity_type", entityType).Msg("entity definition cache invalidation failed")
	}
}

// assignPositions fills in Position for any field that doesn't already
// carry one, preserving declaration order; existing explicit positions are
// left untouched so rename detection in diff.go stays stable across calls.
func assignPositions(fields []FieldDefinition) {
	for i := range fields {
		if fields[i].Position == 0 {
			fields[i].Position = i
		}
	}
}
