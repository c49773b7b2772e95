package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/upb/analytics-tools/services"
	"go.uber.org/zap"
)

// TableNames lists the user tables in name order
func (db *DB) TableNames(ctx context.Context) ([]string, error) {
	var query sq.SelectBuilder
	switch db.dialect {
	case DialectPostgres:
		query = db.builder.Select("table_name").
			From("information_schema.tables").
			Where(sq.Eq{"table_schema": "public", "table_type": "BASE TABLE"}).
			OrderBy("table_name")
	default:
		query = db.builder.Select("name").
			From("sqlite_master").
			Where(sq.Eq{"type": "table"}).
			Where(sq.NotLike{"name": "sqlite_%"}).
			OrderBy("name")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, buildErr(err)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, dbError("failed to list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dbError("failed to scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to list tables", err)
	}

	db.logger.Debug("listed tables", zap.Int("count", len(names)))
	return names, nil
}

// TableInfo describes the named tables: the CREATE statement of each
// followed by a comment block with up to SampleRows example rows.
// Unknown table names are a validation error.
func (db *DB) TableInfo(ctx context.Context, names []string) (string, error) {
	known, err := db.TableNames(ctx)
	if err != nil {
		return "", err
	}
	knownSet := make(map[string]bool, len(known))
	for _, n := range known {
		knownSet[n] = true
	}

	var missing []string
	for _, n := range names {
		if !knownSet[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("table_names %v not found in database", missing), nil).
			WithDetail("tables", missing)
	}

	blocks := make([]string, 0, len(names))
	for _, name := range names {
		ddl, err := db.createStatement(ctx, name)
		if err != nil {
			return "", err
		}
		sample, err := db.sampleRows(ctx, name)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, ddl+"\n\n"+sample)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (db *DB) createStatement(ctx context.Context, table string) (string, error) {
	if db.dialect == DialectPostgres {
		return db.postgresCreateStatement(ctx, table)
	}

	stmt, args, err := db.builder.Select("sql").
		From("sqlite_master").
		Where(sq.Eq{"type": "table", "name": table}).
		ToSql()
	if err != nil {
		return "", buildErr(err)
	}

	var ddl sql.NullString
	if err := db.QueryRowContext(ctx, stmt, args...).Scan(&ddl); err != nil {
		return "", dbError("failed to read table definition", err)
	}
	return strings.TrimSpace(ddl.String), nil
}

// postgresCreateStatement rebuilds a CREATE TABLE statement from
// information_schema, which has no stored DDL text.
func (db *DB) postgresCreateStatement(ctx context.Context, table string) (string, error) {
	stmt, args, err := db.builder.Select("column_name", "data_type", "is_nullable").
		From("information_schema.columns").
		Where(sq.Eq{"table_schema": "public", "table_name": table}).
		OrderBy("ordinal_position").
		ToSql()
	if err != nil {
		return "", buildErr(err)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return "", dbError("failed to read table columns", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return "", dbError("failed to scan column", err)
		}
		col := "\t" + name + " " + strings.ToUpper(dataType)
		if nullable == "NO" {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return "", dbError("failed to read table columns", err)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", table, strings.Join(cols, ",\n")), nil
}

func (db *DB) sampleRows(ctx context.Context, table string) (string, error) {
	stmt, args, err := db.builder.Select("*").
		From(quoteIdent(table)).
		Limit(uint64(db.SampleRows)).
		ToSql()
	if err != nil {
		return "", buildErr(err)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return "", dbError("failed to sample rows", err)
	}
	defer rows.Close()

	header, body, _, err := renderRows(rows, db.SampleRows)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/*\n%d rows from %s table:\n%s\n", db.SampleRows, table, header)
	for _, line := range body {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("*/")
	return b.String(), nil
}
