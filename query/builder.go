// Package query assembles report descriptors from user-editable rows and
// compiles them onto gorm queries.
package query

import (
	"fmt"
	"strings"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// FilterRow is one editable filter line of the report builder. A row with
// no field is ignored.
type FilterRow struct {
	Field    string               `json:"field"`
	Operator types.FilterOperator `json:"operator"`
	Value    string               `json:"value"`
}

type SortRow struct {
	Field     string              `json:"field"`
	Direction types.SortDirection `json:"direction"`
}

type GroupRow struct {
	Field     string            `json:"field"`
	Period    types.GroupPeriod `json:"period"`
	Aggregate types.Aggregate   `json:"aggregate"`
}

// Request is the report builder state as posted by a client.
type Request struct {
	BaseTable string      `json:"base_table"`
	Fields    []string    `json:"fields"`
	Filters   []FilterRow `json:"filters"`
	Sort      []SortRow   `json:"sort"`
	GroupBy   []GroupRow  `json:"group_by"`
}

// Builder collects rows against the fields of one table. Nothing is checked
// until Build.
type Builder struct {
	table  string
	fields []types.Field
	index  map[string]types.Field

	selected []string
	filters  []FilterRow
	sorts    []SortRow
	groups   []GroupRow
}

func NewBuilder(table string, fields []types.Field) *Builder {
	index := make(map[string]types.Field, len(fields))
	for _, f := range fields {
		index[f.Name] = f
	}
	return &Builder{table: table, fields: fields, index: index}
}

// FromRequest loads every row of a posted request into a new builder.
func FromRequest(req Request, fields []types.Field) *Builder {
	b := NewBuilder(req.BaseTable, fields).Select(req.Fields...)
	for _, r := range req.Filters {
		b.AddFilter(r)
	}
	for _, r := range req.Sort {
		b.AddSort(r)
	}
	for _, r := range req.GroupBy {
		b.AddGroup(r)
	}
	return b
}

// FromConfig re-hydrates a saved config for editing.
func FromConfig(cfg *types.ReportConfig, fields []types.Field) *Builder {
	b := NewBuilder(cfg.BaseTable, fields).Select(cfg.FieldNames()...)
	for _, c := range cfg.Filters {
		b.AddFilter(FilterRow{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	for _, c := range cfg.Sort {
		b.AddSort(SortRow{Field: c.Field, Direction: c.Direction})
	}
	for _, c := range cfg.GroupBy {
		b.AddGroup(GroupRow{Field: c.Field, Period: c.Period, Aggregate: c.Aggregate})
	}
	return b
}

func (b *Builder) Select(names ...string) *Builder {
	b.selected = append(b.selected, names...)
	return b
}

func (b *Builder) AddFilter(row FilterRow) *Builder {
	b.filters = append(b.filters, row)
	return b
}

func (b *Builder) AddSort(row SortRow) *Builder {
	b.sorts = append(b.sorts, row)
	return b
}

func (b *Builder) AddGroup(row GroupRow) *Builder {
	b.groups = append(b.groups, row)
	return b
}

// Request returns the current rows in request form.
func (b *Builder) Request() Request {
	return Request{
		BaseTable: b.table,
		Fields:    append([]string(nil), b.selected...),
		Filters:   append([]FilterRow(nil), b.filters...),
		Sort:      append([]SortRow(nil), b.sorts...),
		GroupBy:   append([]GroupRow(nil), b.groups...),
	}
}

// Build validates every row and assembles the config. Input errors are
// returned together as types.ValidationErrors; a group on a field that
// cannot be grouped yields a NoGroupableFieldsError.
func (b *Builder) Build() (*types.ReportConfig, error) {
	var errs types.ValidationErrors
	fail := func(path, tag string, value interface{}, format string, args ...interface{}) {
		errs = append(errs, types.ValidationError{
			Field:   path,
			Tag:     tag,
			Value:   value,
			Message: fmt.Sprintf(format, args...),
		})
	}

	cfg := &types.ReportConfig{BaseTable: b.table}
	if b.table == "" {
		fail("base_table", "required", nil, "Base table is required")
	}

	seen := make(map[string]struct{}, len(b.selected))
	for i, name := range b.selected {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		f, ok := b.index[name]
		if !ok {
			fail(fmt.Sprintf("fields[%d]", i), "known_field", name, "Field '%s' does not exist on table '%s'", name, b.table)
			continue
		}
		cfg.SelectedFields = append(cfg.SelectedFields, f)
	}
	if len(seen) == 0 {
		fail("fields", "min", nil, "Select at least one field")
	}

	for i, row := range b.filters {
		if row.Field == "" {
			continue
		}
		path := fmt.Sprintf("filters[%d]", i)
		if _, ok := b.index[row.Field]; !ok {
			fail(path, "known_field", row.Field, "Field '%s' does not exist on table '%s'", row.Field, b.table)
			continue
		}
		op := types.FilterOperator(strings.ToLower(strings.TrimSpace(string(row.Operator))))
		if op == "" {
			op = types.OpEqual
		}
		if !op.Valid() {
			fail(path+".operator", "filterop", row.Operator, "Unsupported filter operator '%s'", row.Operator)
			continue
		}
		value := row.Value
		if op.IgnoresValue() {
			value = ""
		}
		cfg.Filters = append(cfg.Filters, types.FilterClause{Field: row.Field, Operator: op, Value: value})
	}

	for i, row := range b.sorts {
		if row.Field == "" {
			continue
		}
		path := fmt.Sprintf("sort[%d]", i)
		if _, ok := b.index[row.Field]; !ok {
			fail(path, "known_field", row.Field, "Field '%s' does not exist on table '%s'", row.Field, b.table)
			continue
		}
		dir := types.SortDirection(strings.ToLower(string(row.Direction)))
		switch dir {
		case "":
			dir = types.SortAsc
		case types.SortAsc, types.SortDesc:
		default:
			fail(path+".direction", "oneof", row.Direction, "Sort direction must be asc or desc, got '%s'", row.Direction)
			continue
		}
		cfg.Sort = append(cfg.Sort, types.SortClause{Field: row.Field, Direction: dir})
	}

	groups, err := b.buildGroups(fail)
	if err != nil {
		return nil, err
	}
	cfg.GroupBy = groups

	if len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func (b *Builder) buildGroups(fail func(path, tag string, value interface{}, format string, args ...interface{})) ([]types.GroupClause, error) {
	var active []int
	for i, row := range b.groups {
		if row.Field != "" {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	if len(GroupableFields(b.fields)) == 0 {
		return nil, &types.NoGroupableFieldsError{}
	}

	var out []types.GroupClause
	for _, i := range active {
		row := b.groups[i]
		path := fmt.Sprintf("group_by[%d]", i)
		f, ok := b.index[row.Field]
		if !ok {
			fail(path, "known_field", row.Field, "Field '%s' does not exist on table '%s'", row.Field, b.table)
			continue
		}
		if !f.Type.IsGroupable() {
			return nil, &types.NoGroupableFieldsError{Field: f.Name, Type: f.Type}
		}

		period := types.PeriodExact
		if f.Type.IsDateLike() && row.Period != "" {
			period = row.Period
			switch period {
			case types.PeriodExact, types.PeriodYear, types.PeriodMonth,
				types.PeriodWeek, types.PeriodDay, types.PeriodHour:
			default:
				fail(path+".period", "oneof", row.Period, "Unsupported grouping period '%s'", row.Period)
				continue
			}
		}

		agg := row.Aggregate
		switch agg {
		case "":
			agg = types.AggregateGroup
		case types.AggregateGroup, types.AggregateCount, types.AggregateSum,
			types.AggregateAvg, types.AggregateMin, types.AggregateMax:
		default:
			fail(path+".aggregate", "oneof", row.Aggregate, "Unsupported aggregate '%s'", row.Aggregate)
			continue
		}

		out = append(out, types.GroupClause{Field: f.Name, Period: period, Aggregate: agg})
	}
	return out, nil
}

// GroupableFields returns the fields a report may group on.
func GroupableFields(fields []types.Field) []types.Field {
	out := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		if f.Type.IsGroupable() {
			out = append(out, f)
		}
	}
	return out
}
