package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Run executes query inside a read-only transaction that is always rolled
// back, and renders the result as tab-separated text with a header line.
// At most MaxRows rows are rendered; a trailing line notes how many were cut.
func (db *DB) Run(ctx context.Context, query string) (string, error) {
	start := time.Now()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", dbError("failed to begin read-only transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return "", dbError("query failed", err)
	}
	defer rows.Close()

	header, body, total, err := renderRows(rows, db.MaxRows)
	if err != nil {
		return "", err
	}

	db.logger.Debug("query executed",
		zap.String("query", query),
		zap.Int("rows", total),
		zap.Duration("duration", time.Since(start)))

	if total == 0 {
		return header + "\n(no rows)", nil
	}

	var b strings.Builder
	b.WriteString(header)
	for _, line := range body {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	if total > len(body) {
		fmt.Fprintf(&b, "\n... (%d more rows)", total-len(body))
	}
	return b.String(), nil
}

// renderRows drains rows, formatting at most limit of them. It returns the
// header line, the formatted rows and the total row count.
func renderRows(rows *sql.Rows, limit int) (string, []string, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", nil, 0, dbError("failed to read columns", err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var body []string
	total := 0
	for rows.Next() {
		total++
		if total > limit {
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", nil, 0, dbError("failed to scan row", err)
		}
		fields := make([]string, len(values))
		for i, v := range values {
			fields[i] = formatValue(v)
		}
		body = append(body, strings.Join(fields, "\t"))
	}
	if err := rows.Err(); err != nil {
		return "", nil, 0, dbError("failed to read rows", err)
	}

	return strings.Join(cols, "\t"), body, total, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
