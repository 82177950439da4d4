package db

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// identifierPattern restricts table and column names accepted for dynamic SQL.
// Destination tables and columns come from operator-edited mapping records, so
// they are validated rather than trusted.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate as a SQL
// identifier.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(strings.TrimSpace(name))
}

// QuoteIdentifier quotes a validated identifier. Both supported dialects accept
// double quotes.
func QuoteIdentifier(name string) string {
	return fmt.Sprintf("%q", name)
}

// JSONExtractTextExpr returns a SQL expression to extract a JSON field as text.
// The column is quoted; the key must be a trusted literal, never caller input.
func JSONExtractTextExpr(conn *gorm.DB, column, key string) string {
	if DialectName(conn) == DialectPostgres {
		return fmt.Sprintf("%s->>'%s'", QuoteIdentifier(column), key)
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", QuoteIdentifier(column), key)
}
