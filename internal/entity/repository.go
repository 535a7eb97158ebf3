package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/user/entityflow/internal/core/errs"
	dblib "github.com/user/entityflow/internal/db"
)

// Repository persists EntityDefinition rows in entity_definitions, with a
// parallel entity_definition_versions snapshot table.
type Repository struct {
	DB *dblib.DB
}

func NewRepository(db *dblib.DB) *Repository { return &Repository{DB: db} }

// Create inserts a new definition with version=1. Fails with Conflict if
// entity_type already exists.
func (r *Repository) Create(ctx context.Context, def *EntityDefinition) error {
	if def.UUID == "" {
		def.UUID = uuid.NewString()
	}
	def.Version = 1
	now := time.Now()
	def.CreatedAt, def.UpdatedAt = now, now

	fieldsJSON, err := json.Marshal(def.Fields)
	if err != nil {
		return errs.Wrap(errs.Conversion, err, "marshal field definitions")
	}

	stmt := `INSERT INTO entity_definitions
		(uuid, entity_type, display_name, fields, allow_children, published, version,
		 created_at, created_by, updated_at, updated_by)
		VALUES (` + r.DB.Placeholders(11) + `)`

	_, err = r.DB.Conn.ExecContext(ctx, stmt,
		def.UUID, def.EntityType, def.DisplayName, fieldsJSON, def.AllowChildren,
		def.Published, def.Version, def.CreatedAt, def.CreatedBy, def.UpdatedAt, def.UpdatedBy)
	if err != nil {
		if dblib.IsUniqueViolation(err) {
			return errs.Field(errs.Conflict, "entity_type", "entity_type already exists")
		}
		return errs.Wrap(errs.Database, err, "insert entity definition")
	}
	return nil
}

// Update persists def as a new version (monotonically incremented) of an
// existing row identified by uuid.
func (r *Repository) Update(ctx context.Context, def *EntityDefinition) error {
	fieldsJSON, err := json.Marshal(def.Fields)
	if err != nil {
		return errs.Wrap(errs.Conversion, err, "marshal field definitions")
	}
	def.UpdatedAt = time.Now()

	stmt := `UPDATE entity_definitions SET
		display_name = ` + r.DB.Placeholder(1) + `,
		fields = ` + r.DB.Placeholder(2) + `,
		allow_children = ` + r.DB.Placeholder(3) + `,
		published = ` + r.DB.Placeholder(4) + `,
		version = version + 1,
		updated_at = ` + r.DB.Placeholder(5) + `,
		updated_by = ` + r.DB.Placeholder(6) + `
		WHERE uuid = ` + r.DB.Placeholder(7) + `
		RETURNING version`

	row := r.DB.Conn.QueryRowContext(ctx, stmt,
		def.DisplayName, fieldsJSON, def.AllowChildren, def.Published,
		def.UpdatedAt, def.UpdatedBy, def.UUID)
	if err := row.Scan(&def.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.NotFound, "entity definition not found")
		}
		return errs.Wrap(errs.Database, err, "update entity definition")
	}
	return nil
}

// Delete removes the entity_definitions row for uuid.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.Conn.ExecContext(ctx, "DELETE FROM entity_definitions WHERE uuid = "+r.DB.Placeholder(1), id)
	if err != nil {
		return errs.Wrap(errs.Database, err, "delete entity definition")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, "entity definition not found")
	}
	return nil
}

func (r *Repository) scanOne(row *sql.Row) (*EntityDefinition, error) {
	var def EntityDefinition
	var fieldsJSON []byte
	var createdBy, updatedBy sql.NullString

	err := row.Scan(&def.UUID, &def.EntityType, &def.DisplayName, &fieldsJSON,
		&def.AllowChildren, &def.Published, &def.Version,
		&def.CreatedAt, &createdBy, &def.UpdatedAt, &updatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "entity definition not found")
		}
		return nil, errs.Wrap(errs.Database, err, "scan entity definition")
	}
	if err := json.Unmarshal(fieldsJSON, &def.Fields); err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "unmarshal field definitions")
	}
	def.CreatedBy, def.UpdatedBy = createdBy.String, updatedBy.String
	return &def, nil
}

const selectColumns = `uuid, entity_type, display_name, fields, allow_children, published, version,
		created_at, created_by, updated_at, updated_by`

func (r *Repository) GetByUUID(ctx context.Context, id string) (*EntityDefinition, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM entity_definitions WHERE uuid = "+r.DB.Placeholder(1), id)
	return r.scanOne(row)
}

func (r *Repository) GetByEntityType(ctx context.Context, entityType string) (*EntityDefinition, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM entity_definitions WHERE entity_type = "+r.DB.Placeholder(1), entityType)
	return r.scanOne(row)
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]EntityDefinition, error) {
	rows, err := r.DB.Conn.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM entity_definitions ORDER BY entity_type LIMIT "+r.DB.Placeholder(1)+" OFFSET "+r.DB.Placeholder(2),
		limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "list entity definitions")
	}
	defer rows.Close()

	var out []EntityDefinition
	for rows.Next() {
		var def EntityDefinition
		var fieldsJSON []byte
		var createdBy, updatedBy sql.NullString
		if err := rows.Scan(&def.UUID, &def.EntityType, &def.DisplayName, &fieldsJSON,
			&def.AllowChildren, &def.Published, &def.Version,
			&def.CreatedAt, &createdBy, &def.UpdatedAt, &updatedBy); err != nil {
			return nil, errs.Wrap(errs.Database, err, "scan entity definition row")
		}
		if err := json.Unmarshal(fieldsJSON, &def.Fields); err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "unmarshal field definitions")
		}
		def.CreatedBy, def.UpdatedBy = createdBy.String, updatedBy.String
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	row := r.DB.Conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM entity_definitions")
	if err := row.Scan(&n); err != nil {
		return 0, errs.Wrap(errs.Database, err, "count entity definitions")
	}
	return n, nil
}

// CountEntitiesOfType reports how many rows exist in a published type's
// backing table; used by Delete to enforce "forbidden while any entity of
// this type exists unless force=true".
func (r *Repository) CountEntitiesOfType(ctx context.Context, entityType string) (int64, error) {
	table, err := r.DB.QuoteIdent(TableName(entityType))
	if err != nil {
		return 0, err
	}
	var n int64
	row := r.DB.Conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table)
	if err := row.Scan(&n); err != nil {
		return 0, errs.Wrap(errs.Database, err, "count entities of type")
	}
	return n, nil
}

// SnapshotVersion appends a point-in-time copy of def to
// entity_definition_versions, used by C1's versioning hook on update.
func (r *Repository) SnapshotVersion(ctx context.Context, def EntityDefinition) error {
	fieldsJSON, err := json.Marshal(def.Fields)
	if err != nil {
		return errs.Wrap(errs.Conversion, err, "marshal field definitions for snapshot")
	}
	stmt := `INSERT INTO entity_definition_versions
		(entity_definition_uuid, version, display_name, fields, allow_children, published, snapshotted_at)
		VALUES (` + r.DB.Placeholders(7) + `)`
	_, err = r.DB.Conn.ExecContext(ctx, stmt,
		def.UUID, def.Version, def.DisplayName, fieldsJSON, def.AllowChildren, def.Published, time.Now())
	if err != nil {
		return errs.Wrap(errs.Database, err, "snapshot entity definition version")
	}
	return nil
}

// PurgeOldDefinitionVersions deletes entity_definition_versions rows older
// than before, returning the count removed.
func (r *Repository) PurgeOldDefinitionVersions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.Conn.ExecContext(ctx,
		`DELETE FROM entity_definition_versions WHERE snapshotted_at < `+r.DB.Placeholder(1), before)
	if err != nil {
		return 0, errs.Wrap(errs.Database, err, "purge old entity definition versions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
