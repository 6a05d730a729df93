package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
)

// DefaultTable is the destination table used when none is configured.
const DefaultTable = "movie_series"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Dialect selects identifier quoting, placeholders and upsert syntax.
type Dialect string

// Supported SQL dialects.
const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

type columnType struct {
	mysql, postgres, sqlite string
}

var columnTypes = map[string]columnType{
	"content_id":   {"BIGINT NOT NULL PRIMARY KEY", "BIGINT PRIMARY KEY", "INTEGER PRIMARY KEY"},
	"title":        {"VARCHAR(512) NOT NULL", "TEXT NOT NULL", "TEXT NOT NULL"},
	"type":         {"VARCHAR(32) NOT NULL", "TEXT NOT NULL", "TEXT NOT NULL"},
	"release_year": {"INT NULL", "INTEGER", "INTEGER"},
	"description":  {"TEXT", "TEXT", "TEXT"},
	"language":     {"VARCHAR(16)", "TEXT", "TEXT"},
	"duration":     {"INT NULL", "INTEGER", "INTEGER"},
	"thumbnail":    {"VARCHAR(512) NULL", "TEXT", "TEXT"},
	"Poster_img":   {"VARCHAR(512) NULL", "TEXT", "TEXT"},
	"imdb_id":      {"VARCHAR(32) NULL", "TEXT", "TEXT"},
	"director":     {"VARCHAR(255) NULL", "TEXT", "TEXT"},
	"cast":         {"TEXT", "TEXT", "TEXT"},
}

// ResolveTable applies the default and validates the identifier.
func ResolveTable(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func (d Dialect) quote(ident string) string {
	if d == DialectMySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// UpsertStatement builds the single-row upsert keyed on content_id. Bind
// arguments follow catalog.Columns.
func UpsertStatement(d Dialect, table string) string {
	return upsertStatement(d, table, func(i int) string { return d.placeholder(i + 1) })
}

func upsertStatement(d Dialect, table string, bind func(i int) string) string {
	cols := make([]string, len(catalog.Columns))
	binds := make([]string, len(catalog.Columns))
	updates := make([]string, 0, len(catalog.Columns)-1)
	for i, col := range catalog.Columns {
		q := d.quote(col)
		cols[i] = q
		binds[i] = bind(i)
		if col == catalog.Columns[0] {
			continue
		}
		switch d {
		case DialectMySQL:
			updates = append(updates, fmt.Sprintf("%s=VALUES(%s)", q, q))
		case DialectPostgres:
			updates = append(updates, fmt.Sprintf("%s=EXCLUDED.%s", q, q))
		default:
			updates = append(updates, fmt.Sprintf("%s=excluded.%s", q, q))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(binds, ", "))
	if d == DialectMySQL {
		fmt.Fprintf(&b, " ON DUPLICATE KEY UPDATE %s", strings.Join(updates, ", "))
	} else {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", d.quote(catalog.Columns[0]), strings.Join(updates, ", "))
	}
	return b.String()
}

// NamedUpsertStatement is UpsertStatement with :column binds, for sqlx
// named execution against a catalog.Item.
func NamedUpsertStatement(d Dialect, table string) string {
	return upsertStatement(d, table, func(i int) string { return ":" + catalog.Columns[i] })
}

// CreateTableStatement returns an idempotent DDL statement for the destination table.
func CreateTableStatement(d Dialect, table string) string {
	defs := make([]string, len(catalog.Columns))
	for i, col := range catalog.Columns {
		ct := columnTypes[col]
		typ := ct.sqlite
		switch d {
		case DialectMySQL:
			typ = ct.mysql
		case DialectPostgres:
			typ = ct.postgres
		}
		defs[i] = d.quote(col) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}
