package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/inkpad-notes/chatcore/internal/gateway"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Query implements gateway.Store.
func (d *DB) Query(ctx context.Context, table string, filter gateway.Filter, order []gateway.Order, limit, offset int) ([]gateway.Row, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhere(schema, filter)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(schema.columns, ", "), table)
	sb.WriteString(where)
	if len(order) > 0 {
		terms := make([]string, 0, len(order))
		for _, o := range order {
			if !schema.has(o.Column) {
				return nil, fmt.Errorf("unknown column %q in order", o.Column)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, o.Column+" "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := d.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []gateway.Row
	for rows.Next() {
		row, err := scanRow(rows, schema.columns)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Insert implements gateway.Store. The stored row is re-read by primary key
// so defaults applied by the schema are reflected back, then published as an
// insert change event.
func (d *DB) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(row))
	marks := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, c := range schema.columns {
		v, ok := row[c]
		if !ok {
			continue
		}
		cols = append(cols, c)
		marks = append(marks, "?")
		args = append(args, v)
	}
	for c := range row {
		if !schema.has(c) {
			return nil, fmt.Errorf("unknown column %q in insert", c)
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("insert %s: %w", table, gateway.ErrConflict)
		}
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	stored, err := d.rowByPK(ctx, table, schema, row[schema.pk])
	if err != nil {
		return nil, err
	}
	d.publish(gateway.InsertKind(table), stored)
	return stored, nil
}

// Update implements gateway.Store. Matching rows are pinned by primary key
// inside a transaction so a patch that changes filtered columns (read=0 →
// read=1) still reports the rows it touched.
func (d *DB) Update(ctx context.Context, table string, filter gateway.Filter, patch gateway.Row) ([]gateway.Row, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	where, whereArgs, err := buildWhere(schema, filter)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(patch))
	setArgs := make([]any, 0, len(patch))
	for _, c := range schema.columns {
		v, ok := patch[c]
		if !ok {
			continue
		}
		sets = append(sets, c+" = ?")
		setArgs = append(setArgs, v)
	}
	for c := range patch {
		if !schema.has(c) {
			return nil, fmt.Errorf("unknown column %q in patch", c)
		}
	}
	if len(sets) == 0 {
		return nil, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pkRows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s%s", schema.pk, table, where), whereArgs...)
	if err != nil {
		return nil, fmt.Errorf("update select %s: %w", table, err)
	}
	var pks []any
	for pkRows.Next() {
		var pk any
		if err := pkRows.Scan(&pk); err != nil {
			_ = pkRows.Close()
			return nil, err
		}
		pks = append(pks, pk)
	}
	if err := pkRows.Close(); err != nil {
		return nil, err
	}
	if len(pks) == 0 {
		return nil, tx.Commit()
	}

	marks := strings.TrimSuffix(strings.Repeat("?,", len(pks)), ",")
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)", table, strings.Join(sets, ", "), schema.pk, marks)
	if _, err := tx.ExecContext(ctx, stmt, append(setArgs, pks...)...); err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}

	sel := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)", strings.Join(schema.columns, ", "), table, schema.pk, marks)
	selRows, err := tx.QueryContext(ctx, sel, pks...)
	if err != nil {
		return nil, fmt.Errorf("update reread %s: %w", table, err)
	}
	var updated []gateway.Row
	for selRows.Next() {
		row, err := scanRow(selRows, schema.columns)
		if err != nil {
			_ = selRows.Close()
			return nil, err
		}
		updated = append(updated, row)
	}
	if err := selRows.Close(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	for _, row := range updated {
		d.publish(gateway.UpdateKind(table), row)
	}
	return updated, nil
}

// Delete implements gateway.Store.
func (d *DB) Delete(ctx context.Context, table string, filter gateway.Filter) error {
	schema, err := schemaFor(table)
	if err != nil {
		return err
	}
	where, args, err := buildWhere(schema, filter)
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", table, where), args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (d *DB) publish(kind string, row gateway.Row) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(busEvent(kind, row))
}

func (d *DB) rowByPK(ctx context.Context, table string, schema tableSchema, pk any) (gateway.Row, error) {
	rows, err := d.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(schema.columns, ", "), table, schema.pk), pk)
	if err != nil {
		return nil, fmt.Errorf("reread %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, fmt.Errorf("reread %s: row vanished", table)
	}
	return scanRow(rows, schema.columns)
}

func scanRow(rows *sql.Rows, columns []string) (gateway.Row, error) {
	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(gateway.Row, len(columns))
	for i, c := range columns {
		if b, ok := vals[i].([]byte); ok {
			vals[i] = string(b)
		}
		row[c] = vals[i]
	}
	return row, nil
}

func buildWhere(schema tableSchema, filter gateway.Filter) (string, []any, error) {
	var clauses []string
	var args []any

	for _, c := range filter.Conds {
		clause, condArgs, err := buildCond(schema, c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, condArgs...)
	}

	if len(filter.Any) > 0 {
		var groups []string
		for _, group := range filter.Any {
			var parts []string
			for _, c := range group {
				clause, condArgs, err := buildCond(schema, c)
				if err != nil {
					return "", nil, err
				}
				parts = append(parts, clause)
				args = append(args, condArgs...)
			}
			groups = append(groups, "("+strings.Join(parts, " AND ")+")")
		}
		clauses = append(clauses, "("+strings.Join(groups, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildCond(schema tableSchema, c gateway.Cond) (string, []any, error) {
	if !schema.has(c.Column) {
		return "", nil, fmt.Errorf("unknown column %q in filter", c.Column)
	}
	switch c.Op {
	case "eq":
		return c.Column + " = ?", []any{c.Value}, nil
	case "in":
		var vals []any
		switch vs := c.Value.(type) {
		case []string:
			for _, v := range vs {
				vals = append(vals, v)
			}
		case []any:
			vals = vs
		default:
			return "", nil, fmt.Errorf("in condition on %q needs a slice value", c.Column)
		}
		if len(vals) == 0 {
			// Empty IN never matches.
			return "1 = 0", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		return c.Column + " IN (" + marks + ")", vals, nil
	default:
		return "", nil, fmt.Errorf("unsupported filter op %q", c.Op)
	}
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
