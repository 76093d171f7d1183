package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineshvijayakumar2/flansa-builder/layout"
	"github.com/dineshvijayakumar2/flansa-builder/query"
	"github.com/dineshvijayakumar2/flansa-builder/render"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

func sequentialIDs() layout.IDGenerator {
	n := 0
	return func(kind types.ItemKind) string {
		n++
		return fmt.Sprintf("%s_%d", kind, n)
	}
}

func TestLatch(t *testing.T) {
	var l Latch
	assert.True(t, l.TryAcquire())
	assert.True(t, l.Busy())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}

func TestViewTickets(t *testing.T) {
	v := NewView(context.Background())

	first := v.Begin(context.Background())
	second := v.Begin(context.Background())
	defer first.Done()
	defer second.Done()

	applied := ""
	assert.ErrorIs(t, first.Commit(func() { applied = "first" }), ErrStale)
	assert.NoError(t, second.Commit(func() { applied = "second" }))
	assert.Equal(t, "second", applied)
	assert.False(t, first.Current())
	assert.True(t, second.Current())
}

func TestViewCloseCancelsTickets(t *testing.T) {
	v := NewView(context.Background())
	ticket := v.Begin(context.Background())
	defer ticket.Done()

	bound, release := v.Bind(context.Background())
	defer release()

	v.Close()

	for _, ctx := range []context.Context{ticket.Context(), bound} {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("context not cancelled by Close")
		}
	}
	assert.True(t, v.Closed())
	assert.ErrorIs(t, ticket.Commit(func() { t.Error("applied after close") }), ErrStale)
}

func TestAppBuilder(t *testing.T) {
	b := newFakeBackend()
	app := NewAppBuilder(b)
	ctx := context.Background()

	table := ordersTable()
	require.NoError(t, app.CreateTable(ctx, table))
	assert.Equal(t, types.FieldTypeText, table.Fields[0].Type)

	err := app.CreateTable(ctx, &types.Table{Name: "bad table"})
	assert.ErrorIs(t, err, types.ErrValidation)

	widgets, err := app.TableWidgets(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, widgets, 5)
	assert.Equal(t, render.WidgetNumeric, widgets[1].Kind)

	require.NoError(t, app.GenerateSchema(ctx, "orders"))
	got, err := app.GetTable(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, got.SchemaGenerated)

	assert.ErrorIs(t, app.GenerateSchema(ctx, "missing"), types.ErrNotFound)
	require.NoError(t, app.DeleteTable(ctx, "orders"))
	assert.ErrorIs(t, app.DeleteTable(ctx, "orders"), types.ErrNotFound)
}

func TestAppBuilderImportTable(t *testing.T) {
	b := newFakeBackend()
	app := NewAppBuilder(b)
	ctx := context.Background()

	table, err := app.ImportTable(ctx, `CREATE TABLE customers (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(80) NOT NULL,
		joined DATE
	)`, "Customers")
	require.NoError(t, err)
	assert.Equal(t, "Customers", table.Label)
	require.Len(t, table.Fields, 2)
	assert.True(t, table.Fields[0].Required)

	fields, err := app.TableFields(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, types.FieldTypeDate, fields[1].Type)

	_, err = app.ImportTable(ctx, "CREATE TABLE customers (name TEXT)", "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = app.ImportTable(ctx, "CREATE TABLE shapes (outline POLYGON)", "")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func newLoadedForm(t *testing.T, b *fakeBackend) *FormBuilder {
	t.Helper()
	f := NewFormBuilder("orders", b, WithLayoutIDs(sequentialIDs()))
	t.Cleanup(f.Close)
	require.NoError(t, f.Load(context.Background()))
	return f
}

func TestFormBuilderAddField(t *testing.T) {
	b := newFakeBackend(ordersTable())
	f := newLoadedForm(t, b)
	ctx := context.Background()

	require.NoError(t, f.AddField(ctx, "customer", -1))
	require.NoError(t, f.AddField(ctx, "amount", 0))

	items := f.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "amount", items[0].FieldRef)
	assert.Equal(t, "customer", items[1].FieldRef)
	assert.Equal(t, items, b.savedLayout("orders"))

	available, err := f.AvailableFields(ctx)
	require.NoError(t, err)
	names := make([]string, len(available))
	for i, a := range available {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"order_date", "notes", "receipt"}, names)

	assert.ErrorIs(t, f.AddField(ctx, "customer", -1), types.ErrDuplicate)
	assert.ErrorIs(t, f.AddField(ctx, "discount", -1), types.ErrNotFound)
	assert.ErrorIs(t, f.AddField(ctx, "notes", 9), types.ErrValidation)
	assert.Len(t, f.Items(), 2)
}

func TestFormBuilderAddFieldRollsBack(t *testing.T) {
	b := newFakeBackend(ordersTable())
	f := newLoadedForm(t, b)
	ctx := context.Background()
	require.NoError(t, f.AddField(ctx, "customer", -1))

	b.saveLayout = func(context.Context, []types.LayoutItem) error {
		return &types.BackendUnavailableError{Op: "save form", Err: errors.New("connection refused")}
	}
	err := f.AddField(ctx, "amount", -1)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)

	items := f.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "customer", items[0].FieldRef)

	b.saveLayout = nil
	require.NoError(t, f.AddField(ctx, "amount", -1))
	assert.Len(t, f.Items(), 2)
}

func TestFormBuilderAddFieldBusy(t *testing.T) {
	b := newFakeBackend(ordersTable())
	f := newLoadedForm(t, b)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	b.saveLayout = func(context.Context, []types.LayoutItem) error {
		close(entered)
		<-proceed
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.AddField(context.Background(), "customer", -1)
	}()
	<-entered

	assert.ErrorIs(t, f.AddField(context.Background(), "amount", -1), types.ErrBusy)

	close(proceed)
	require.NoError(t, <-done)

	b.saveLayout = nil
	require.NoError(t, f.AddField(context.Background(), "amount", -1))
	assert.Equal(t, []string{"customer", "amount"}, []string{f.Items()[0].FieldRef, f.Items()[1].FieldRef})
}

func TestFormBuilderAddFieldDuringReload(t *testing.T) {
	b := newFakeBackend(ordersTable())
	f := newLoadedForm(t, b)
	ctx := context.Background()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	b.saveLayout = func(context.Context, []types.LayoutItem) error {
		close(entered)
		<-proceed
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.AddField(ctx, "customer", -1)
	}()
	<-entered

	assert.Empty(t, f.Items())
	_, err := f.AddSection("Main")
	require.NoError(t, err)
	require.NoError(t, f.Load(ctx))
	assert.Empty(t, f.Items())

	close(proceed)
	require.NoError(t, <-done)

	items := f.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "customer", items[0].FieldRef)
	assert.Equal(t, items, b.savedLayout("orders"))
}

func TestFormBuilderAddFieldAfterClose(t *testing.T) {
	b := newFakeBackend(ordersTable())
	f := newLoadedForm(t, b)

	entered := make(chan struct{})
	b.saveLayout = func(ctx context.Context, _ []types.LayoutItem) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		done <- f.AddField(context.Background(), "customer", -1)
	}()
	<-entered
	f.Close()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, f.Items())
}

func TestFormBuilderMarkersAndPreview(t *testing.T) {
	b := newFakeBackend(ordersTable())
	b.layouts["orders"] = []types.LayoutItem{
		{Kind: types.ItemSectionBreak, ID: "main", Label: "Main", Order: 0, ColumnCount: 2},
		{Kind: types.ItemField, FieldRef: "customer", Order: 1},
		{Kind: types.ItemColumnBreak, ID: "col", Order: 2},
		{Kind: types.ItemField, FieldRef: "amount", Order: 3},
	}
	f := newLoadedForm(t, b)

	section, err := f.AddSection("Details")
	require.NoError(t, err)
	assert.Equal(t, "section_break_1", section.ID)
	column, err := f.AddColumn()
	require.NoError(t, err)
	assert.Equal(t, "column_break_2", column.ID)

	require.NoError(t, f.MoveToSection(3, 4))
	items := f.Items()
	assert.Equal(t, "amount", items[4].FieldRef)

	preview := f.Preview()
	require.Len(t, preview.Sections, 2)
	main := preview.Sections[0]
	assert.Equal(t, "Main", main.Label)
	assert.Equal(t, 2, main.ColumnCount)
	require.Len(t, main.Columns, 2)
	assert.Equal(t, "customer", main.Columns[0][0].Field)
	assert.Equal(t, render.WidgetSingleLine, main.Columns[0][0].Kind)
	assert.Empty(t, main.Columns[1])

	details := preview.Sections[1]
	assert.Equal(t, "Details", details.Label)
	assert.Equal(t, render.WidgetNumeric, details.Columns[0][0].Kind)

	removed, err := f.RemoveItem(0)
	require.NoError(t, err)
	assert.Equal(t, "main", removed.ID)

	require.NoError(t, f.Save(context.Background()))
	assert.Equal(t, f.Items(), b.savedLayout("orders"))
}

func TestFormBuilderOrganize(t *testing.T) {
	b := newFakeBackend(ordersTable())
	b.layouts["orders"] = []types.LayoutItem{
		types.FieldItem("receipt"),
		types.FieldItem("notes"),
		types.FieldItem("customer"),
		types.FieldItem("order_date"),
	}
	f := newLoadedForm(t, b)

	require.NoError(t, f.Organize(context.Background(), layout.OrganizeFlags{PrioritizeRequired: true}))

	var order []string
	for _, item := range f.Items() {
		if item.IsField() {
			order = append(order, item.FieldRef)
		}
	}
	assert.Equal(t, []string{"customer", "notes", "order_date", "receipt"}, order)
}

func TestFormBuilderLoadDiscardedAfterClose(t *testing.T) {
	b := newFakeBackend(ordersTable())
	f := NewFormBuilder("orders", b)

	started := make(chan struct{})
	b.tableFields = func(ctx context.Context, table string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() { done <- f.Load(context.Background()) }()
	<-started
	f.Close()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.Items())
}

func TestReportBuilder(t *testing.T) {
	b := newFakeBackend(ordersTable())
	r := NewReportBuilder(b, "")
	ctx := context.Background()

	req := query.Request{
		BaseTable: "orders",
		Fields:    []string{"customer", "amount"},
		Filters:   []query.FilterRow{{Field: "amount", Operator: ">", Value: "100"}},
		Sort:      []query.SortRow{{Field: "amount"}},
	}
	cfg, err := r.Build(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, types.SortAsc, cfg.Sort[0].Direction)

	_, err = r.Build(ctx, query.Request{Fields: []string{"customer"}})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.Build(ctx, query.Request{BaseTable: "missing", Fields: []string{"customer"}})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, _, err = r.Save(ctx, "  ", req)
	assert.ErrorIs(t, err, types.ErrValidation)

	id, _, err := r.Save(ctx, "Big orders", req)
	require.NoError(t, err)

	saved, reopened, err := r.Open(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Big orders", saved.Title)
	assert.Equal(t, []string{"customer", "amount"}, reopened.Fields)
	assert.Equal(t, types.OpGreater, reopened.Filters[0].Operator)

	groupable, err := r.GroupableFields(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, groupable, 3)

	b.tables["flags"] = &types.Table{Name: "flags", Fields: []types.Field{{Name: "done", Type: types.FieldTypeBoolean}}}
	_, err = r.GroupableFields(ctx, "flags")
	assert.ErrorIs(t, err, types.ErrNoGroupableFields)
}

func TestReportBuilderFilterValues(t *testing.T) {
	b := newFakeBackend(ordersTable())
	b.rows = []map[string]interface{}{
		{"customer": "alice", "amount": 150.0},
		{"customer": "bob", "amount": 150.0},
		{"customer": "carol"},
	}
	r := NewReportBuilder(b, "")
	ctx := context.Background()

	options, err := r.FilterValues(ctx, "orders", "amount")
	require.NoError(t, err)
	assert.Equal(t, []ValueOption{{Value: 150.0, Label: "150.00"}}, options)

	_, err = r.FilterValues(ctx, "orders", "discount")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestReportBuilderPreview(t *testing.T) {
	b := newFakeBackend(ordersTable())
	b.rows = []map[string]interface{}{
		{"customer": "alice", "amount": 150.0, "notes": strings.Repeat("x", 80)},
	}
	r := NewReportBuilder(b, "")

	page, err := r.Preview(context.Background(), query.Request{
		BaseTable: "orders",
		Fields:    []string{"customer", "amount", "notes"},
	}, types.Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "150.00", page.Rows[0]["amount"])
	assert.Equal(t, strings.Repeat("x", 50)+"...", page.Rows[0]["notes"])
	assert.Equal(t, types.DefaultPageSize, page.PageSize)
}

func TestResultColumnsGrouped(t *testing.T) {
	cfg := &types.ReportConfig{
		BaseTable: "orders",
		SelectedFields: []types.Field{
			{Name: "customer", Label: "Customer", Type: types.FieldTypeText},
			{Name: "amount", Label: "Amount", Type: types.FieldTypeCurrency},
			{Name: "order_date", Label: "Order Date", Type: types.FieldTypeDate},
		},
		GroupBy: []types.GroupClause{
			{Field: "order_date", Period: types.PeriodMonth, Aggregate: types.AggregateSum},
			{Field: "customer", Period: types.PeriodExact, Aggregate: types.AggregateAvg},
		},
	}

	columns := ResultColumns(cfg, nil)
	fields := make([]string, len(columns))
	for i, c := range columns {
		fields[i] = c.Field
	}
	assert.Equal(t, []string{"order_date", "customer", query.CountColumn,
		query.AggregateAlias(types.AggregateSum, "amount"), query.AggregateAlias(types.AggregateAvg, "amount")}, fields)
	assert.Equal(t, types.FieldTypeText, columns[0].Type)
	assert.Equal(t, "Sum of Amount", columns[3].Label)
	assert.Equal(t, types.FieldTypeDecimal, columns[4].Type)
}

func TestResultColumnsUseTableFieldsForKeys(t *testing.T) {
	cfg := &types.ReportConfig{
		BaseTable:      "orders",
		SelectedFields: []types.Field{{Name: "customer", Label: "Customer", Type: types.FieldTypeText}},
		GroupBy:        []types.GroupClause{{Field: "order_date", Period: types.PeriodExact, Aggregate: types.AggregateCount}},
	}

	columns := ResultColumns(cfg, ordersTable().Fields)
	require.Len(t, columns, 2)
	assert.Equal(t, types.FieldTypeDate, columns[0].Type)
	assert.Equal(t, "Order Date", columns[0].Label)

	res := &types.ExecuteResult{
		Rows: []map[string]interface{}{
			{"order_date": time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), query.CountColumn: int64(2)},
		},
		IsGrouped: true,
	}
	page := newReportPage(cfg, ordersTable().Fields, res, render.NewFormatter(render.ModePreview))
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "1/10/2024", page.Rows[0]["order_date"])
	assert.Equal(t, "2", page.Rows[0][query.CountColumn])
}

func savedOrdersReport(b *fakeBackend) string {
	id, _ := b.SaveReportConfig(context.Background(), "Orders", &types.ReportConfig{
		BaseTable: "orders",
		SelectedFields: []types.Field{
			{Name: "customer", Label: "Customer", Type: types.FieldTypeText},
			{Name: "notes", Label: "Notes", Type: types.FieldTypeLongText},
			{Name: "receipt", Label: "Receipt", Type: types.FieldTypeFileAttachment},
		},
	})
	return id
}

func TestReportViewerPage(t *testing.T) {
	b := newFakeBackend(ordersTable())
	for i := 0; i < 25; i++ {
		b.rows = append(b.rows, map[string]interface{}{"customer": fmt.Sprintf("c%d", i)})
	}
	v := NewReportViewer(b, "")
	defer v.Close()
	ctx := context.Background()

	_, err := v.Page(ctx, types.Pagination{})
	assert.ErrorIs(t, err, types.ErrValidation, "nothing open yet")

	_, err = v.Open(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	saved, err := v.Open(ctx, savedOrdersReport(b))
	require.NoError(t, err)
	assert.Equal(t, "Orders", saved.Title)

	page, err := v.Page(ctx, types.Pagination{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 5)
	assert.Equal(t, "c20", page.Rows[0]["customer"])
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, "Orders", page.Title)
	assert.Same(t, page, v.Last())
}

func TestReportViewerDiscardsStalePage(t *testing.T) {
	b := newFakeBackend(ordersTable())
	v := NewReportViewer(b, "")
	defer v.Close()
	ctx := context.Background()
	_, err := v.Open(ctx, savedOrdersReport(b))
	require.NoError(t, err)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	b.execute = func(ctx context.Context, cfg *types.ReportConfig, page types.Pagination) (*types.ExecuteResult, error) {
		if page.Page == 1 {
			close(entered)
			<-proceed
		}
		return &types.ExecuteResult{
			Rows:     []map[string]interface{}{{"customer": fmt.Sprintf("page %d", page.Page)}},
			Page:     page.Page,
			PageSize: page.PageSize,
		}, nil
	}

	slow := make(chan error, 1)
	go func() {
		_, err := v.Page(ctx, types.Pagination{Page: 1})
		slow <- err
	}()
	<-entered

	fresh, err := v.Page(ctx, types.Pagination{Page: 2})
	require.NoError(t, err)
	close(proceed)

	assert.ErrorIs(t, <-slow, ErrStale)
	assert.Same(t, fresh, v.Last())
	assert.Equal(t, "page 2", v.Last().Rows[0]["customer"])
}

func TestReportViewerExport(t *testing.T) {
	b := newFakeBackend(ordersTable())
	long := strings.Repeat("long note ", 20)
	for i := 0; i < types.MaxPageSize+3; i++ {
		b.rows = append(b.rows, map[string]interface{}{
			"customer": fmt.Sprintf("c%d", i),
			"notes":    long,
			"receipt":  `["files/a.pdf","https://cdn.example.com/b.pdf"]`,
		})
	}
	v := NewReportViewer(b, "/media/")
	defer v.Close()

	var buf bytes.Buffer
	assert.ErrorIs(t, v.Export(context.Background(), &buf), types.ErrValidation)

	_, err := v.Open(context.Background(), savedOrdersReport(b))
	require.NoError(t, err)
	require.NoError(t, v.Export(context.Background(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, types.MaxPageSize+4)
	assert.Equal(t, []string{"Customer", "Notes", "Receipt"}, records[0])
	assert.Equal(t, "c0", records[1][0])
	assert.Equal(t, long, records[1][1])
	assert.Equal(t, "/files/a.pdf, https://cdn.example.com/b.pdf", records[1][2])
	assert.Equal(t, fmt.Sprintf("c%d", types.MaxPageSize+2), records[len(records)-1][0])
}
