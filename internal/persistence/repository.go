package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/entityflow/internal/core/errs"
	dblib "github.com/user/entityflow/internal/db"
	"github.com/user/entityflow/internal/entity"
)

// RowRepository persists DynamicEntity rows into their materialised
// entity_<type> table, plus the flat entities_registry index, grounded on
// internal/storage's raw ExecContext/QueryRowContext style.
type RowRepository struct {
	DB *dblib.DB
}

func NewRowRepository(db *dblib.DB) *RowRepository { return &RowRepository{DB: db} }

// columnOrder returns a stable column ordering for a row's SQL write: system
// columns first (in materialize.go's fixed order), then declared fields.
func columnOrder(def entity.EntityDefinition) []string {
	cols := []string{"uuid", "path", "parent_uuid", "entity_key", "created_at", "created_by", "updated_at", "updated_by", "published", "version"}
	for _, f := range def.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func (r *RowRepository) quotedColumns(cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		q, err := r.DB.QuoteIdent(c)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// Insert writes a new entity row. Values for Object/Array/Json-typed
// fields are marshaled to JSON before the write.
func (r *RowRepository) Insert(ctx context.Context, def entity.EntityDefinition, e entity.DynamicEntity) error {
	table, err := r.DB.QuoteIdent(entity.TableName(def.EntityType))
	if err != nil {
		return err
	}
	cols := columnOrder(def)
	quoted, err := r.quotedColumns(cols)
	if err != nil {
		return err
	}
	values, err := r.values(def, e, cols)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ", "), r.DB.Placeholders(len(cols)))
	if _, err := r.DB.Conn.ExecContext(ctx, stmt, values...); err != nil {
		return r.mapWriteError(def.EntityType, err)
	}
	return nil
}

// Update overwrites an existing row's fields by uuid.
func (r *RowRepository) Update(ctx context.Context, def entity.EntityDefinition, e entity.DynamicEntity) error {
	table, err := r.DB.QuoteIdent(entity.TableName(def.EntityType))
	if err != nil {
		return err
	}
	cols := columnOrder(def)
	values, err := r.values(def, e, cols)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(cols)-1)
	args := make([]any, 0, len(cols))
	idx := 1
	for i, c := range cols {
		if c == "uuid" {
			continue
		}
		quoted, err := r.DB.QuoteIdent(c)
		if err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", quoted, r.DB.Placeholder(idx)))
		args = append(args, values[i])
		idx++
	}
	args = append(args, e.UUID)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE uuid = %s", table, strings.Join(sets, ", "), r.DB.Placeholder(idx))
	res, err := r.DB.Conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return r.mapWriteError(def.EntityType, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, "entity not found")
	}
	return nil
}

func (r *RowRepository) values(def entity.EntityDefinition, e entity.DynamicEntity, cols []string) ([]any, error) {
	out := make([]any, len(cols))
	byName := make(map[string]entity.FieldDefinition, len(def.Fields))
	for _, f := range def.Fields {
		byName[f.Name] = f
	}

	for i, c := range cols {
		switch c {
		case "uuid":
			out[i] = e.UUID
		case "path":
			out[i] = e.Path
		case "parent_uuid":
			out[i] = nullableString(e.ParentUUID)
		case "entity_key":
			out[i] = e.EntityKey
		case "created_at":
			out[i] = e.CreatedAt
		case "created_by":
			out[i] = nullableString(e.CreatedBy)
		case "updated_at":
			out[i] = e.UpdatedAt
		case "updated_by":
			out[i] = nullableString(e.UpdatedBy)
		case "published":
			out[i] = e.Published
		case "version":
			out[i] = e.Version
		default:
			val := e.FieldData[c]
			if f, ok := byName[c]; ok {
				switch f.FieldType {
				case entity.FieldObject, entity.FieldArray, entity.FieldJSON:
					marshaled, err := json.Marshal(val)
					if err != nil {
						return nil, errs.Wrap(errs.Conversion, err, "marshal "+c)
					}
					val = marshaled
				}
			}
			out[i] = val
		}
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// mapWriteError maps a unique-violation error back to the offending field
// via entity.UniqueConstraintName's naming scheme, falling back to a bare
// Conflict when the constraint can't be matched to a known field.
func (r *RowRepository) mapWriteError(entityType string, err error) error {
	if constraint, ok := dblib.UniqueViolationConstraint(err); ok {
		prefix := "uq_" + entity.TableName(entityType) + "_"
		if strings.HasPrefix(constraint, prefix) {
			field := strings.TrimPrefix(constraint, prefix)
			return errs.Field(errs.Conflict, field, "value already exists for a unique field")
		}
		return errs.New(errs.Conflict, "unique constraint violated")
	}
	if dblib.IsUniqueViolation(err) {
		return errs.New(errs.Conflict, "unique constraint violated")
	}
	return errs.Wrap(errs.Database, err, "write entity row")
}

// FindOne resolves an EntityLookup-style query by exact-match filters
// against a published entity type's table, used by the DSL executor's
// parent resolution.
func (r *RowRepository) FindOne(ctx context.Context, entityType string, filters map[string]any) (uuid, path, entityKey string, err error) {
	table, qerr := r.DB.QuoteIdent(entity.TableName(entityType))
	if qerr != nil {
		return "", "", "", qerr
	}

	wheres := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	idx := 1
	for k, v := range filters {
		col, qerr := r.DB.QuoteIdent(k)
		if qerr != nil {
			return "", "", "", qerr
		}
		wheres = append(wheres, fmt.Sprintf("%s = %s", col, r.DB.Placeholder(idx)))
		args = append(args, v)
		idx++
	}

	stmt := fmt.Sprintf("SELECT uuid, path, entity_key FROM %s WHERE %s LIMIT 1", table, strings.Join(wheres, " AND "))
	row := r.DB.Conn.QueryRowContext(ctx, stmt, args...)
	if scanErr := row.Scan(&uuid, &path, &entityKey); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", "", "", errs.New(errs.NotFound, "no matching entity")
		}
		return "", "", "", errs.Wrap(errs.Database, scanErr, "find entity")
	}
	return uuid, path, entityKey, nil
}

// FindByPath resolves the entity whose full path (path || '/' ||
// entity_key) equals fullPath, used by fallback_path resolution. Returns
// that entity's own path and entity_key, mirroring FindOne's result shape,
// so callers build the new record's path the same way in both cases.
func (r *RowRepository) FindByPath(ctx context.Context, entityType, fullPath string) (uuid, path, entityKey string, err error) {
	table, qerr := r.DB.QuoteIdent(entity.TableName(entityType))
	if qerr != nil {
		return "", "", "", qerr
	}
	stmt := fmt.Sprintf("SELECT uuid, path, entity_key FROM %s WHERE path || '/' || entity_key = %s LIMIT 1", table, r.DB.Placeholder(1))
	row := r.DB.Conn.QueryRowContext(ctx, stmt, fullPath)
	if scanErr := row.Scan(&uuid, &path, &entityKey); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", "", "", errs.New(errs.NotFound, "no entity at fallback path")
		}
		return "", "", "", errs.Wrap(errs.Database, scanErr, "find entity by path")
	}
	return uuid, path, entityKey, nil
}

// ParentPath looks up the full path (path+"/"+entity_key) of an existing
// entity, used by parent/path resolution when the caller supplies
// parent_uuid but no path. Parents live in the same entity type's table
// (hierarchical self-reference).
func (r *RowRepository) ParentPath(ctx context.Context, entityType, parentUUID string) (string, error) {
	table, err := r.DB.QuoteIdent(entity.TableName(entityType))
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("SELECT path, entity_key FROM %s WHERE uuid = %s", table, r.DB.Placeholder(1))
	row := r.DB.Conn.QueryRowContext(ctx, stmt, parentUUID)
	var path, key string
	if scanErr := row.Scan(&path, &key); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", errs.New(errs.NotFound, "parent entity not found")
		}
		return "", errs.Wrap(errs.Database, scanErr, "find parent entity")
	}
	if path == "" || path == "/" {
		return "/" + key, nil
	}
	return path + "/" + key, nil
}

// CurrentVersion reads the stored version for an existing row, used by the
// write pipeline to compute the next version on update.
func (r *RowRepository) CurrentVersion(ctx context.Context, entityType, uuidStr string) (int, error) {
	table, err := r.DB.QuoteIdent(entity.TableName(entityType))
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT version FROM %s WHERE uuid = %s", table, r.DB.Placeholder(1))
	row := r.DB.Conn.QueryRowContext(ctx, stmt, uuidStr)
	var version int
	if scanErr := row.Scan(&version); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return 0, errs.New(errs.NotFound, "entity not found")
		}
		return 0, errs.Wrap(errs.Database, scanErr, "read entity version")
	}
	return version, nil
}

// RegistryUpsert writes/updates the flat entities_registry index row
// alongside the typed-view write (step 6). It runs as its own statement after
// Insert/Update; Pipeline.Write does not wrap the two in one transaction, so
// a failure here leaves the typed row written without its registry entry.
func (r *RowRepository) RegistryUpsert(ctx context.Context, reg entity.EntitiesRegistry) error {
	stmt := `INSERT INTO entities_registry (uuid, entity_type, path, entity_key, parent_uuid)
		VALUES (` + r.DB.Placeholders(5) + `)
		ON CONFLICT (uuid) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			path = EXCLUDED.path,
			entity_key = EXCLUDED.entity_key,
			parent_uuid = EXCLUDED.parent_uuid`
	_, err := r.DB.Conn.ExecContext(ctx, stmt, reg.UUID, reg.EntityType, reg.Path, reg.EntityKey, nullableString(reg.ParentUUID))
	if err != nil {
		return errs.Wrap(errs.Database, err, "upsert registry entry")
	}
	return nil
}

// SnapshotVersion appends a point-in-time JSON snapshot of an entity row to
// a generic per-type version table (step 7).
func (r *RowRepository) SnapshotVersion(ctx context.Context, entityType, uuid string, version int, fieldData map[string]any) error {
	table := entity.TableName(entityType) + "_versions"
	quoted, err := r.DB.QuoteIdent(table)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(fieldData)
	if err != nil {
		return errs.Wrap(errs.Conversion, err, "marshal entity version snapshot")
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (entity_uuid, version, field_data, snapshotted_at) VALUES (%s)`, quoted, r.DB.Placeholders(4))
	_, err = r.DB.Conn.ExecContext(ctx, stmt, uuid, version, payload, time.Now())
	if err != nil {
		return errs.Wrap(errs.Database, err, "snapshot entity version")
	}
	return nil
}

// PurgeOldVersions deletes entityType's version-snapshot rows older than
// before, returning the count removed.
func (r *RowRepository) PurgeOldVersions(ctx context.Context, entityType string, before time.Time) (int64, error) {
	table := entity.TableName(entityType) + "_versions"
	quoted, err := r.DB.QuoteIdent(table)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE snapshotted_at < %s`, quoted, r.DB.Placeholder(1))
	res, err := r.DB.Conn.ExecContext(ctx, stmt, before)
	if err != nil {
		return 0, errs.Wrap(errs.Database, err, "purge old entity versions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
