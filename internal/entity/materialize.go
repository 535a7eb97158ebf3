package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/db"
)

// SQLColumn is one column of a materialisation plan.
type SQLColumn struct {
	Name     string
	SQLType  string
	Nullable bool
	Unique   bool
}

// UniqueConstraintName is the fixed naming scheme used for a field's unique
// constraint, relied on by the persistence pipeline to map a unique
// violation's constraint name back to the offending field.
func UniqueConstraintName(entityType, fieldName string) string {
	return "uq_" + TableName(entityType) + "_" + fieldName
}

// MaterializationPlan is the derived storage shape for a published
// EntityDefinition: the backing table's columns plus the view that exposes
// system columns and every field.
type MaterializationPlan struct {
	TableName string
	ViewName  string
	Columns   []SQLColumn
}

// systemColumns are the fixed columns every entity_<type> table carries
// alongside its declared fields.
var systemColumns = []SQLColumn{
	{Name: "uuid", SQLType: "uuid", Nullable: false},
	{Name: "path", SQLType: "text", Nullable: false},
	{Name: "parent_uuid", SQLType: "uuid", Nullable: true},
	{Name: "entity_key", SQLType: "text", Nullable: false},
	{Name: "created_at", SQLType: "timestamptz", Nullable: false},
	{Name: "created_by", SQLType: "text", Nullable: true},
	{Name: "updated_at", SQLType: "timestamptz", Nullable: false},
	{Name: "updated_by", SQLType: "text", Nullable: true},
	{Name: "published", SQLType: "boolean", Nullable: false},
	{Name: "version", SQLType: "integer", Nullable: false},
}

// sqlTypeForField derives the storage column type for a field.
func sqlTypeForField(f FieldDefinition) string {
	switch f.FieldType {
	case FieldString, FieldText, FieldWysiwyg:
		if f.FieldType == FieldString {
			if ml := f.Validation.MaxLength; ml != nil && *ml > 0 && *ml <= 255 {
				return fmt.Sprintf("varchar(%d)", *ml)
			}
		}
		return "text"
	case FieldInteger:
		return "bigint"
	case FieldFloat:
		return "double precision"
	case FieldBoolean:
		return "boolean"
	case FieldDateTime:
		return "timestamptz"
	case FieldDate:
		return "date"
	case FieldUUID, FieldManyToOne:
		return "uuid"
	case FieldSelect:
		if src := f.Validation.OptionsSource; src != nil && src.Kind == OptionsEnum {
			return enumTypeName(f.Name)
		}
		return "text"
	case FieldMultiSelect:
		return "text[]"
	case FieldManyToMany:
		return "uuid[]"
	case FieldObject, FieldArray, FieldJSON:
		return "jsonb"
	case FieldImage, FieldFile:
		return "text"
	case FieldPassword:
		return "text"
	default:
		return "text"
	}
}

func enumTypeName(fieldName string) string { return fieldName + "_enum" }

// TableName and ViewName are the fixed naming scheme every entity type uses.
func TableName(entityType string) string { return "entity_" + entityType }
func ViewName(entityType string) string  { return "entity_" + entityType + "_view" }

// Plan derives the MaterializationPlan for a published definition.
func Plan(def EntityDefinition) MaterializationPlan {
	cols := append([]SQLColumn{}, systemColumns...)
	for _, f := range def.Fields {
		cols = append(cols, SQLColumn{
			Name:     f.Name,
			SQLType:  sqlTypeForField(f),
			Nullable: !f.Required,
			Unique:   f.Unique,
		})
	}
	return MaterializationPlan{
		TableName: TableName(def.EntityType),
		ViewName:  ViewName(def.EntityType),
		Columns:   cols,
	}
}

// Materializer applies a MaterializationPlan to the database: creates the
// backing table/enum types and the view on first publish, and adapts them
// incrementally on update (adding columns, renaming in place, never
// dropping-then-adding a renamed column so values survive).
type Materializer struct {
	DB *db.DB
}

// Create builds the table, any enum types it needs, and the view for a
// freshly published definition.
func (m *Materializer) Create(ctx context.Context, def EntityDefinition) error {
	plan := Plan(def)

	for _, f := range def.Fields {
		if f.FieldType == FieldSelect {
			if src := f.Validation.OptionsSource; src != nil && src.Kind == OptionsEnum && len(src.Options) > 0 {
				if err := m.createEnumType(ctx, enumTypeName(f.Name), src.Options); err != nil {
					return err
				}
			}
		}
	}

	if err := m.createTable(ctx, plan); err != nil {
		return err
	}
	if !def.VersioningDisabled {
		if err := m.createVersionsTable(ctx, def.EntityType); err != nil {
			return err
		}
	}
	return m.createOrReplaceView(ctx, plan)
}

// createVersionsTable creates the generic per-type version-snapshot table
// the persistence pipeline's versioning step writes to.
func (m *Materializer) createVersionsTable(ctx context.Context, entityType string) error {
	table, err := m.DB.QuoteIdent(TableName(entityType) + "_versions")
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id bigserial PRIMARY KEY,
		entity_uuid uuid NOT NULL,
		version integer NOT NULL,
		field_data jsonb NOT NULL,
		snapshotted_at timestamptz NOT NULL
	)`, table)
	if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.Database, err, "create entity versions table")
	}
	return nil
}

// Update recomputes the plan against the new definition and incrementally
// adapts the table: add new columns, rename changed ones in place (see
// diff.go for rename detection), then refreshes the view.
func (m *Materializer) Update(ctx context.Context, oldDef, newDef EntityDefinition) error {
	diff := Diff(oldDef.Fields, newDef.Fields)
	table, err := m.DB.QuoteIdent(TableName(newDef.EntityType))
	if err != nil {
		return errs.Wrap(errs.Database, err, "quote table name")
	}

	for _, r := range diff.Renamed {
		oldCol, err := m.DB.QuoteIdent(r.From.Name)
		if err != nil {
			return err
		}
		newCol, err := m.DB.QuoteIdent(r.To.Name)
		if err != nil {
			return err
		}
		stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldCol, newCol)
		if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.Database, err, "rename column")
		}
	}

	for _, f := range diff.Added {
		col, err := m.DB.QuoteIdent(f.Name)
		if err != nil {
			return err
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, col, sqlTypeForField(f))
		if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.Database, err, "add column")
		}
	}

	for _, f := range diff.Removed {
		col, err := m.DB.QuoteIdent(f.Name)
		if err != nil {
			return err
		}
		stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", table, col)
		if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.Database, err, "drop column")
		}
	}

	for _, tc := range diff.TypeChanged {
		col, err := m.DB.QuoteIdent(tc.Name)
		if err != nil {
			return err
		}
		newType := sqlTypeForField(tc)
		stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", table, col, newType, col, newType)
		if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.Database, err, "change column type")
		}
	}

	return m.createOrReplaceView(ctx, Plan(newDef))
}

// Drop removes the view and backing table for an entity type.
func (m *Materializer) Drop(ctx context.Context, entityType string) error {
	view, err := m.DB.QuoteIdent(ViewName(entityType))
	if err != nil {
		return err
	}
	if _, err := m.DB.Conn.ExecContext(ctx, "DROP VIEW IF EXISTS "+view); err != nil {
		return errs.Wrap(errs.Database, err, "drop view")
	}
	table, err := m.DB.QuoteIdent(TableName(entityType))
	if err != nil {
		return err
	}
	if _, err := m.DB.Conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return errs.Wrap(errs.Database, err, "drop table")
	}
	return nil
}

func (m *Materializer) createEnumType(ctx context.Context, typeName string, options []string) error {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = "'" + strings.ReplaceAll(o, "'", "''") + "'"
	}
	stmt := fmt.Sprintf(
		"DO $$ BEGIN CREATE TYPE %s AS ENUM (%s); EXCEPTION WHEN duplicate_object THEN null; END $$",
		typeName, strings.Join(quoted, ", "),
	)
	if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.Database, err, "create enum type")
	}
	return nil
}

func (m *Materializer) createTable(ctx context.Context, plan MaterializationPlan) error {
	table, err := m.DB.QuoteIdent(plan.TableName)
	if err != nil {
		return err
	}

	entityType := strings.TrimSuffix(strings.TrimPrefix(plan.TableName, "entity_"), "")

	defs := make([]string, 0, len(plan.Columns)+1)
	for _, c := range plan.Columns {
		col, err := m.DB.QuoteIdent(c.Name)
		if err != nil {
			return err
		}
		nullability := "NOT NULL"
		if c.Nullable {
			nullability = ""
		}
		defs = append(defs, strings.TrimSpace(fmt.Sprintf("%s %s %s", col, c.SQLType, nullability)))
		if c.Unique {
			constraint := UniqueConstraintName(entityType, c.Name)
			defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", constraint, col))
		}
	}
	defs = append(defs, "PRIMARY KEY (uuid)")

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.Database, err, "create table")
	}
	return nil
}

func (m *Materializer) createOrReplaceView(ctx context.Context, plan MaterializationPlan) error {
	view, err := m.DB.QuoteIdent(plan.ViewName)
	if err != nil {
		return err
	}
	table, err := m.DB.QuoteIdent(plan.TableName)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(plan.Columns))
	for _, c := range plan.Columns {
		quoted, err := m.DB.QuoteIdent(c.Name)
		if err != nil {
			return err
		}
		cols = append(cols, quoted)
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s", view, strings.Join(cols, ", "), table)
	if _, err := m.DB.Conn.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.Database, err, "create or replace view")
	}
	return nil
}
