package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gl-apps/glsync/internal/db"
	"github.com/gl-apps/glsync/internal/mapping"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Destination writes transformed rows into arbitrary destination tables. The
// orchestrator depends on this interface so tests can substitute fakes.
type Destination interface {
	// UpsertBatch writes rows keyed on glide_row_id. Duplicate keys update,
	// never skip. The batch is atomic: either all rows land or none do.
	UpsertBatch(ctx context.Context, table string, rows []map[string]any) error
}

// RelationshipResolver rewrites foreign-reference columns after a sync. It is
// an opaque database procedure from the orchestrator's point of view.
type RelationshipResolver interface {
	MapRelationships(ctx context.Context, table string) error
}

// GormDestination is the production Destination backed by the shared database
// handle.
type GormDestination struct {
	db *gorm.DB
}

// NewGormDestination constructs a GormDestination.
func NewGormDestination(conn *gorm.DB) *GormDestination {
	return &GormDestination{db: conn}
}

// UpsertBatch validates the target table name, then upserts the rows inside
// one transaction. Rows are sub-grouped by column signature so a row that
// omits a field leaves the pre-existing destination value untouched.
func (d *GormDestination) UpsertBatch(ctx context.Context, table string, rows []map[string]any) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("destination: not initialized")
	}
	if !db.ValidIdentifier(table) {
		return fmt.Errorf("destination: invalid table name %q", table)
	}
	if len(rows) == 0 {
		return nil
	}

	groups := groupByColumns(rows)

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, group := range groups {
			updateColumns := make([]string, 0, len(group.columns))
			for _, col := range group.columns {
				if col == mapping.RowIDColumn {
					continue
				}
				if !db.ValidIdentifier(col) {
					return fmt.Errorf("destination: invalid column name %q", col)
				}
				updateColumns = append(updateColumns, col)
			}

			onConflict := clause.OnConflict{
				Columns: []clause.Column{{Name: mapping.RowIDColumn}},
			}
			if len(updateColumns) > 0 {
				onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
			} else {
				// Identifier-only rows still need the conflict resolved as an
				// update, not a skip.
				onConflict.DoUpdates = clause.Assignments(map[string]any{mapping.RowIDColumn: gorm.Expr("excluded." + mapping.RowIDColumn)})
			}

			if errCreate := tx.Table(table).Clauses(onConflict).Create(group.rows).Error; errCreate != nil {
				return fmt.Errorf("destination: upsert into %s: %w", table, errCreate)
			}
		}
		return nil
	})
}

// columnGroup collects rows sharing an identical column set.
type columnGroup struct {
	columns []string
	rows    []map[string]any
}

// groupByColumns splits rows into groups with identical column signatures so
// each multi-row insert has a uniform column list.
func groupByColumns(rows []map[string]any) []columnGroup {
	index := map[string]int{}
	var groups []columnGroup

	for _, row := range rows {
		columns := make([]string, 0, len(row))
		for col := range row {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		signature := strings.Join(columns, "\x00")

		if at, ok := index[signature]; ok {
			groups[at].rows = append(groups[at].rows, row)
			continue
		}
		index[signature] = len(groups)
		groups = append(groups, columnGroup{columns: columns, rows: []map[string]any{row}})
	}
	return groups
}

// DBRelationshipResolver invokes the glsync_map_relationships database
// function, which owns all foreign-reference rewriting logic.
type DBRelationshipResolver struct {
	db *gorm.DB
}

// NewDBRelationshipResolver constructs the production resolver.
func NewDBRelationshipResolver(conn *gorm.DB) *DBRelationshipResolver {
	return &DBRelationshipResolver{db: conn}
}

// MapRelationships calls the resolver procedure for one destination table.
func (r *DBRelationshipResolver) MapRelationships(ctx context.Context, table string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("resolver: not initialized")
	}
	if !db.ValidIdentifier(table) {
		return fmt.Errorf("resolver: invalid table name %q", table)
	}
	if errExec := r.db.WithContext(ctx).Exec("SELECT glsync_map_relationships(?)", table).Error; errExec != nil {
		return fmt.Errorf("resolver: map relationships for %s: %w", table, errExec)
	}
	return nil
}

// pgErrorDetails extracts PostgreSQL diagnostics from a write failure so the
// error ledger snapshot carries the server-side code and constraint.
func pgErrorDetails(err error) map[string]any {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	details := map[string]any{"code": pgErr.Code}
	if pgErr.ConstraintName != "" {
		details["constraint"] = pgErr.ConstraintName
	}
	if pgErr.Detail != "" {
		details["detail"] = pgErr.Detail
	}
	return details
}
