package pgstore

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/kilupskalvis/bizstore/internal/models"
)

// statement is a parameterised query returning one row_to_json column per row.
type statement struct {
	sql  string
	args []any
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, toParam(v))
	return fmt.Sprintf("$%d", len(a.args))
}

// toParam encodes nested values as JSON so they bind to json/jsonb columns.
func toParam(v any) any {
	switch v.(type) {
	case map[string]any, []any, models.Record, []models.Record:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	}
	return v
}

func sortedColumns(r models.Record, skipID bool) []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		if skipID && k == "id" {
			continue
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func buildSelect(table string, q models.Query) statement {
	var b strings.Builder
	var a argList

	fmt.Fprintf(&b, "SELECT row_to_json(t) FROM %s AS t", ident(table))

	cols := make([]string, 0, len(q.Filters))
	for col := range q.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for i, col := range cols {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		if q.Filters[col] == nil {
			fmt.Fprintf(&b, "t.%s IS NULL", ident(col))
			continue
		}
		fmt.Fprintf(&b, "t.%s = %s", ident(col), a.add(q.Filters[col]))
	}

	if q.Order != nil && q.Order.Column != "" {
		dir := "ASC"
		if q.Order.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY t.%s %s", ident(q.Order.Column), dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s", a.add(q.Limit))
		if off := q.Offset(); off > 0 {
			fmt.Fprintf(&b, " OFFSET %s", a.add(off))
		}
	}

	return statement{sql: b.String(), args: a.args}
}

func buildInsert(table string, rec models.Record) statement {
	cols := sortedColumns(rec, false)
	if len(cols) == 0 {
		return statement{sql: fmt.Sprintf("INSERT INTO %s AS t DEFAULT VALUES RETURNING row_to_json(t)", ident(table))}
	}

	var a argList
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, col := range cols {
		names[i] = ident(col)
		params[i] = a.add(rec[col])
	}
	sql := fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) RETURNING row_to_json(t)",
		ident(table), strings.Join(names, ", "), strings.Join(params, ", "))
	return statement{sql: sql, args: a.args}
}

func buildUpdate(table, id string, patch models.Record) statement {
	var a argList
	cols := sortedColumns(patch, true)

	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", ident(col), a.add(patch[col])))
	}
	if len(sets) == 0 {
		sets = append(sets, `"id" = t."id"`)
	}

	sql := fmt.Sprintf("UPDATE %s AS t SET %s WHERE t.\"id\" = %s RETURNING row_to_json(t)",
		ident(table), strings.Join(sets, ", "), a.add(id))
	return statement{sql: sql, args: a.args}
}

func buildDelete(table, id string) statement {
	return statement{
		sql:  fmt.Sprintf("DELETE FROM %s AS t WHERE t.\"id\" = $1 RETURNING row_to_json(t)", ident(table)),
		args: []any{id},
	}
}

func buildUpsert(table string, rec models.Record) statement {
	ins := buildInsert(table, rec)
	sql := strings.TrimSuffix(ins.sql, " RETURNING row_to_json(t)")

	cols := sortedColumns(rec, true)
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(col), ident(col)))
	}
	if len(sets) == 0 {
		sets = append(sets, `"id" = EXCLUDED."id"`)
	}

	sql += fmt.Sprintf(` ON CONFLICT ("id") DO UPDATE SET %s RETURNING row_to_json(t)`, strings.Join(sets, ", "))
	return statement{sql: sql, args: ins.args}
}
