package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// CountColumn is the alias of the row count in grouped results. Synthetic
// columns carry types.ReservedPrefix, which user field names may not use.
const CountColumn = types.ReservedPrefix + "count"

// Executor runs report configs against a gorm connection. Identifiers in a
// config must already be validated.
type Executor struct {
	db      *gorm.DB
	dialect string
}

func NewExecutor(db *gorm.DB) *Executor {
	return &Executor{db: db, dialect: db.Dialector.Name()}
}

func (e *Executor) quote(name string) string {
	return e.db.Statement.Quote(name)
}

// Apply adds filter clauses to tx. fields supplies the types used
// to coerce filter values.
func (e *Executor) Apply(tx *gorm.DB, filters []types.FilterClause, fields map[string]types.Field) *gorm.DB {
	for _, f := range filters {
		col := e.quote(f.Field)
		ft := fields[f.Field].Type
		textual := !ft.IsNumeric() && ft != types.FieldTypeBoolean && !ft.IsDateLike()

		switch f.Operator {
		case types.OpIs:
			if textual {
				tx = tx.Where(fmt.Sprintf("(%s IS NULL OR %s = ?)", col, col), "")
			} else {
				tx = tx.Where(fmt.Sprintf("%s IS NULL", col))
			}
		case types.OpIsNot:
			if textual {
				tx = tx.Where(fmt.Sprintf("(%s IS NOT NULL AND %s <> ?)", col, col), "")
			} else {
				tx = tx.Where(fmt.Sprintf("%s IS NOT NULL", col))
			}
		case types.OpLike, types.OpNotLike:
			pattern := f.Value
			if !strings.Contains(pattern, "%") {
				pattern = "%" + pattern + "%"
			}
			tx = tx.Where(fmt.Sprintf("%s %s ?", col, strings.ToUpper(string(f.Operator))), pattern)
		case types.OpNotEqual:
			tx = tx.Where(fmt.Sprintf("%s <> ?", col), coerce(ft, f.Value))
		default:
			tx = tx.Where(fmt.Sprintf("%s %s ?", col, f.Operator), coerce(ft, f.Value))
		}
	}
	return tx
}

// Execute runs cfg against table and returns one page of results.
func (e *Executor) Execute(ctx context.Context, table string, cfg *types.ReportConfig, known []types.Field, page types.Pagination) (*types.ExecuteResult, error) {
	page = page.Normalize()
	fields := make(map[string]types.Field, len(known)+len(cfg.SelectedFields))
	for _, f := range known {
		fields[f.Name] = f
	}
	for _, f := range cfg.SelectedFields {
		if _, ok := fields[f.Name]; !ok {
			fields[f.Name] = f
		}
	}

	if cfg.IsGrouped() {
		return e.executeGrouped(ctx, table, cfg, fields, page)
	}

	base := func() *gorm.DB {
		return e.Apply(e.db.WithContext(ctx).Table(table), cfg.Filters, fields)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	columns := make([]string, len(cfg.SelectedFields))
	for i, f := range cfg.SelectedFields {
		columns[i] = e.quote(f.Name)
	}
	tx := base().Select(columns)
	for _, s := range cfg.Sort {
		tx = tx.Order(fmt.Sprintf("%s %s", e.quote(s.Field), strings.ToUpper(string(s.Direction))))
	}

	rows, err := queryMaps(tx.Offset(page.Offset()).Limit(page.PageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	return &types.ExecuteResult{
		Rows:       rows,
		TotalCount: total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages(total, page.PageSize),
	}, nil
}

func (e *Executor) executeGrouped(ctx context.Context, table string, cfg *types.ReportConfig, fields map[string]types.Field, page types.Pagination) (*types.ExecuteResult, error) {
	var (
		selects []string
		groupBy []string
		keys    []string
	)
	seenKey := make(map[string]struct{})
	for _, g := range cfg.GroupBy {
		if _, dup := seenKey[g.Field]; dup {
			continue
		}
		seenKey[g.Field] = struct{}{}
		expr := e.bucket(e.quote(g.Field), g.Period)
		selects = append(selects, fmt.Sprintf("%s AS %s", expr, e.quote(g.Field)))
		groupBy = append(groupBy, expr)
		keys = append(keys, g.Field)
	}
	selects = append(selects, fmt.Sprintf("COUNT(*) AS %s", e.quote(CountColumn)))

	seenAgg := make(map[string]struct{})
	for _, g := range cfg.GroupBy {
		switch g.Aggregate {
		case types.AggregateSum, types.AggregateAvg, types.AggregateMin, types.AggregateMax:
		default:
			continue
		}
		for _, f := range cfg.SelectedFields {
			if !fields[f.Name].Type.IsNumeric() {
				continue
			}
			alias := AggregateAlias(g.Aggregate, f.Name)
			if _, dup := seenAgg[alias]; dup {
				continue
			}
			seenAgg[alias] = struct{}{}
			selects = append(selects, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(g.Aggregate)), e.quote(f.Name), e.quote(alias)))
		}
	}

	grouped := func() *gorm.DB {
		columns := make([]clause.Column, len(groupBy))
		for i, expr := range groupBy {
			columns[i] = clause.Column{Name: expr, Raw: true}
		}
		return e.Apply(e.db.WithContext(ctx).Table(table), cfg.Filters, fields).
			Select(selects).
			Clauses(clause.GroupBy{Columns: columns})
	}

	var total int64
	if err := e.db.WithContext(ctx).Table("(?) AS grouped", grouped()).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count groups: %w", err)
	}

	tx := grouped()
	ordered := false
	for _, s := range cfg.Sort {
		if _, ok := seenKey[s.Field]; !ok {
			continue
		}
		tx = tx.Order(fmt.Sprintf("%s %s", e.quote(s.Field), strings.ToUpper(string(s.Direction))))
		ordered = true
	}
	if !ordered {
		for _, k := range keys {
			tx = tx.Order(e.quote(k))
		}
	}

	rows, err := queryMaps(tx.Offset(page.Offset()).Limit(page.PageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}

	groups := make([]types.Group, len(rows))
	for i, row := range rows {
		key := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			key[k] = row[k]
		}
		groups[i] = types.Group{Key: key, Count: toInt64(row[CountColumn])}
	}

	return &types.ExecuteResult{
		Rows:       rows,
		TotalCount: total,
		IsGrouped:  true,
		Groups:     groups,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages(total, page.PageSize),
	}, nil
}

// AggregateAlias names the result column of an aggregate over a field.
func AggregateAlias(agg types.Aggregate, field string) string {
	return types.ReservedPrefix + string(agg) + "_" + field
}

// queryMaps runs tx and reads every row into a map keyed by column name.
// Values are scanned into plain interfaces so computed columns, which have
// no declared type, come back as values rather than pointers.
func queryMaps(tx *gorm.DB) ([]map[string]interface{}, error) {
	rows, err := tx.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaps(rows)
}

func scanMaps(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := make([]map[string]interface{}, 0)
	values := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// bucket returns the SQL expression truncating a date column to period.
func (e *Executor) bucket(col string, period types.GroupPeriod) string {
	if period == "" || period == types.PeriodExact {
		return col
	}

	switch e.dialect {
	case "postgres":
		layouts := map[types.GroupPeriod]string{
			types.PeriodYear:  "YYYY",
			types.PeriodMonth: "YYYY-MM",
			types.PeriodWeek:  `IYYY-"W"IW`,
			types.PeriodDay:   "YYYY-MM-DD",
			types.PeriodHour:  "YYYY-MM-DD HH24:00",
		}
		return fmt.Sprintf("to_char(CAST(%s AS timestamp), '%s')", col, layouts[period])
	case "mysql":
		layouts := map[types.GroupPeriod]string{
			types.PeriodYear:  "%Y",
			types.PeriodMonth: "%Y-%m",
			types.PeriodWeek:  "%x-W%v",
			types.PeriodDay:   "%Y-%m-%d",
			types.PeriodHour:  "%Y-%m-%d %H:00",
		}
		return fmt.Sprintf("DATE_FORMAT(%s, '%s')", col, layouts[period])
	default:
		layouts := map[types.GroupPeriod]string{
			types.PeriodYear:  "%Y",
			types.PeriodMonth: "%Y-%m",
			types.PeriodWeek:  "%Y-W%W",
			types.PeriodDay:   "%Y-%m-%d",
			types.PeriodHour:  "%Y-%m-%d %H:00",
		}
		return fmt.Sprintf("strftime('%s', %s)", layouts[period], col)
	}
}

func coerce(ft types.FieldType, value string) interface{} {
	switch {
	case ft == types.FieldTypeInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return n
		}
	case ft.IsNumeric():
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	case ft == types.FieldTypeBoolean:
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return value
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func totalPages(total int64, size int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
