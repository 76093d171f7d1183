package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dineshvijayakumar2/flansa-builder/backend"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

type executeFunc func(ctx context.Context, cfg *types.ReportConfig, page types.Pagination) (*types.ExecuteResult, error)

// fakeBackend keeps everything in memory. Hooks replace individual calls.
type fakeBackend struct {
	mu      sync.Mutex
	tables  map[string]*types.Table
	layouts map[string][]types.LayoutItem
	reports map[string]*types.SavedReport
	rows    []map[string]interface{}
	saves   int

	saveLayout  func(ctx context.Context, items []types.LayoutItem) error
	execute     executeFunc
	tableFields func(ctx context.Context, table string) error
}

var _ backend.Backend = (*fakeBackend)(nil)

func newFakeBackend(tables ...*types.Table) *fakeBackend {
	f := &fakeBackend{
		tables:  make(map[string]*types.Table),
		layouts: make(map[string][]types.LayoutItem),
		reports: make(map[string]*types.SavedReport),
	}
	for _, t := range tables {
		f.tables[t.Name] = t
	}
	return f
}

func (f *fakeBackend) GetTableFields(ctx context.Context, table string) ([]types.Field, error) {
	if f.tableFields != nil {
		if err := f.tableFields(ctx, table); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[table]
	if !ok {
		return nil, &types.NotFoundError{Kind: "table", Name: table}
	}
	return append([]types.Field(nil), t.Fields...), nil
}

func (f *fakeBackend) ListTables(ctx context.Context) ([]types.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Table, 0, len(f.tables))
	for _, t := range f.tables {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeBackend) GetTable(ctx context.Context, table string) (*types.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[table]
	if !ok {
		return nil, &types.NotFoundError{Kind: "table", Name: table}
	}
	c := *t
	return &c, nil
}

func (f *fakeBackend) LoadFormConfig(ctx context.Context, table string) ([]types.LayoutItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[table]; !ok {
		return nil, &types.NotFoundError{Kind: "table", Name: table}
	}
	return append([]types.LayoutItem{}, f.layouts[table]...), nil
}

func (f *fakeBackend) SaveFormConfig(ctx context.Context, table string, items []types.LayoutItem) error {
	if f.saveLayout != nil {
		if err := f.saveLayout(ctx, items); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts[table] = append([]types.LayoutItem(nil), items...)
	f.saves++
	return nil
}

func (f *fakeBackend) LoadReportConfig(ctx context.Context, reportID string) (*types.SavedReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok {
		return nil, &types.NotFoundError{Kind: "report", Name: reportID}
	}
	return r, nil
}

func (f *fakeBackend) SaveReportConfig(ctx context.Context, title string, config *types.ReportConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("report-%d", len(f.reports)+1)
	f.reports[id] = &types.SavedReport{ReportID: id, Title: title, Config: config}
	return id, nil
}

func (f *fakeBackend) ListReports(ctx context.Context) ([]types.SavedReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.SavedReport, 0, len(f.reports))
	for _, r := range f.reports {
		out = append(out, types.SavedReport{ReportID: r.ReportID, Title: r.Title})
	}
	return out, nil
}

// ExecuteReport pages over the stored rows without filtering.
func (f *fakeBackend) ExecuteReport(ctx context.Context, cfg *types.ReportConfig, page types.Pagination) (*types.ExecuteResult, error) {
	if f.execute != nil {
		return f.execute(ctx, cfg, page)
	}
	page = page.Normalize()

	f.mu.Lock()
	defer f.mu.Unlock()
	total := len(f.rows)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return &types.ExecuteResult{
		Rows:       f.rows[start:end],
		TotalCount: int64(total),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: (total + page.PageSize - 1) / page.PageSize,
	}, nil
}

func (f *fakeBackend) DistinctValues(ctx context.Context, table, field string, limit int) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[interface{}]struct{})
	var out []interface{}
	for _, row := range f.rows {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateTable(ctx context.Context, table *types.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[table.Name]; ok {
		return types.NewValidationError("name", "unique", "table '%s' already exists", table.Name)
	}
	f.tables[table.Name] = table
	return nil
}

func (f *fakeBackend) DeleteTable(ctx context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[table]; !ok {
		return &types.NotFoundError{Kind: "table", Name: table}
	}
	delete(f.tables, table)
	return nil
}

func (f *fakeBackend) GenerateSchema(ctx context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[table]
	if !ok {
		return &types.NotFoundError{Kind: "table", Name: table}
	}
	t.SchemaGenerated = true
	return nil
}

func (f *fakeBackend) savedLayout(table string) []types.LayoutItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.layouts[table]
}

func ordersTable() *types.Table {
	return &types.Table{
		Name:  "orders",
		Label: "Orders",
		Fields: []types.Field{
			{Name: "customer", Label: "Customer", Type: "Data", Required: true},
			{Name: "amount", Label: "Amount", Type: types.FieldTypeCurrency},
			{Name: "order_date", Label: "Order Date", Type: types.FieldTypeDate},
			{Name: "notes", Type: types.FieldTypeLongText},
			{Name: "receipt", Type: types.FieldTypeFileAttachment},
		},
	}
}
