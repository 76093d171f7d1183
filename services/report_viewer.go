package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/otkinlife/go_tools/logger_tools"

	"github.com/dineshvijayakumar2/flansa-builder/backend"
	"github.com/dineshvijayakumar2/flansa-builder/query"
	"github.com/dineshvijayakumar2/flansa-builder/registry"
	"github.com/dineshvijayakumar2/flansa-builder/render"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

type Column struct {
	Field string          `json:"field"`
	Label string          `json:"label"`
	Type  types.FieldType `json:"type"`
}

// ReportPage is one page of report results with every cell formatted for
// display.
type ReportPage struct {
	ReportID   string              `json:"report_id,omitempty"`
	Title      string              `json:"title,omitempty"`
	Columns    []Column            `json:"columns"`
	Rows       []map[string]string `json:"rows"`
	TotalCount int64               `json:"total_count"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	TotalPages int                 `json:"total_pages"`
	IsGrouped  bool                `json:"is_grouped"`
	Groups     []types.Group       `json:"groups,omitempty"`
}

var aggregateLabels = map[types.Aggregate]string{
	types.AggregateSum: "Sum",
	types.AggregateAvg: "Average",
	types.AggregateMin: "Min",
	types.AggregateMax: "Max",
}

// ResultColumns lists the columns a config produces. Grouped reports yield
// their group keys, the group count, then one column per aggregate over each
// selected numeric field. known supplies the types and labels of group keys
// that are not among the selected fields.
func ResultColumns(cfg *types.ReportConfig, known []types.Field) []Column {
	if !cfg.IsGrouped() {
		columns := make([]Column, len(cfg.SelectedFields))
		for i, f := range cfg.SelectedFields {
			columns[i] = Column{Field: f.Name, Label: f.DisplayLabel(), Type: f.Type}
		}
		return columns
	}

	fields := make(map[string]types.Field, len(known)+len(cfg.SelectedFields))
	for _, f := range known {
		fields[f.Name] = f
	}
	for _, f := range cfg.SelectedFields {
		fields[f.Name] = f
	}

	var columns []Column
	seen := make(map[string]struct{})
	for _, g := range cfg.GroupBy {
		if _, dup := seen[g.Field]; dup {
			continue
		}
		seen[g.Field] = struct{}{}

		f, ok := fields[g.Field]
		if !ok {
			f = types.Field{Name: g.Field, Type: types.FieldTypeText}
		}
		ft := f.Type
		if g.Period != "" && g.Period != types.PeriodExact {
			ft = types.FieldTypeText
		}
		columns = append(columns, Column{Field: g.Field, Label: f.DisplayLabel(), Type: ft})
	}
	columns = append(columns, Column{Field: query.CountColumn, Label: "Count", Type: types.FieldTypeInteger})

	for _, g := range cfg.GroupBy {
		label, ok := aggregateLabels[g.Aggregate]
		if !ok {
			continue
		}
		for _, f := range cfg.SelectedFields {
			if !f.Type.IsNumeric() {
				continue
			}
			alias := query.AggregateAlias(g.Aggregate, f.Name)
			if _, dup := seen[alias]; dup {
				continue
			}
			seen[alias] = struct{}{}

			ft := f.Type
			if g.Aggregate == types.AggregateAvg {
				ft = types.FieldTypeDecimal
			}
			columns = append(columns, Column{
				Field: alias,
				Label: fmt.Sprintf("%s of %s", label, f.DisplayLabel()),
				Type:  ft,
			})
		}
	}
	return columns
}

func columnFields(columns []Column) []types.Field {
	fields := make([]types.Field, len(columns))
	for i, c := range columns {
		fields[i] = types.Field{Name: c.Field, Label: c.Label, Type: c.Type}
	}
	return fields
}

func newReportPage(cfg *types.ReportConfig, known []types.Field, res *types.ExecuteResult, formatter *render.Formatter) *ReportPage {
	columns := ResultColumns(cfg, known)
	fields := columnFields(columns)

	rows := make([]map[string]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = formatter.FormatRow(row, fields)
	}

	return &ReportPage{
		Columns:    columns,
		Rows:       rows,
		TotalCount: res.TotalCount,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalPages: res.TotalPages,
		IsGrouped:  res.IsGrouped,
		Groups:     res.Groups,
	}
}

// ReportViewer shows the results of one saved report.
type ReportViewer struct {
	backend  backend.Backend
	registry *registry.Registry
	view     *View
	preview  *render.Formatter
	export   *render.Formatter

	mu     sync.Mutex
	report *types.SavedReport
	fields []types.Field
	last   *ReportPage
}

func NewReportViewer(b backend.Backend, filePrefix string) *ReportViewer {
	preview := render.NewFormatter(render.ModePreview)
	export := render.NewFormatter(render.ModeExport)
	if filePrefix != "" {
		preview.FilePrefix = filePrefix
		export.FilePrefix = filePrefix
	}
	return &ReportViewer{
		backend:  b,
		registry: registry.New(b),
		view:     NewView(context.Background()),
		preview:  preview,
		export:   export,
	}
}

// Open loads the report to view. It supersedes any page request in flight.
func (v *ReportViewer) Open(ctx context.Context, reportID string) (*types.SavedReport, error) {
	t := v.view.Begin(ctx)
	defer t.Done()

	saved, err := v.backend.LoadReportConfig(t.Context(), reportID)
	if err != nil {
		return nil, err
	}
	fields, err := v.registry.ListFields(t.Context(), saved.Config.BaseTable)
	if err != nil {
		return nil, err
	}

	err = t.Commit(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.report = saved
		v.fields = fields
		v.last = nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (v *ReportViewer) current() (*types.SavedReport, []types.Field, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.report == nil {
		return nil, nil, types.NewValidationError("report", "required", "no report is open")
	}
	return v.report, v.fields, nil
}

// Page runs the open report for one page. When a newer Page or Open call
// starts before this one finishes, this result is dropped and ErrStale
// returned.
func (v *ReportViewer) Page(ctx context.Context, page types.Pagination) (*ReportPage, error) {
	report, known, err := v.current()
	if err != nil {
		return nil, err
	}

	t := v.view.Begin(ctx)
	defer t.Done()

	res, err := v.backend.ExecuteReport(t.Context(), report.Config, page.Normalize())
	if err != nil {
		return nil, err
	}

	result := newReportPage(report.Config, known, res, v.preview)
	result.ReportID = report.ReportID
	result.Title = report.Title

	err = t.Commit(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.last = result
	})
	if err != nil {
		logger_tools.Info(logger_tools.WithFields(ctx, map[string]any{"report_id": report.ReportID}),
			"Discarded superseded page", page.Page)
		return nil, err
	}
	return result, nil
}

// Last returns the most recent page applied to the view.
func (v *ReportViewer) Last() *ReportPage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Export writes every row of the open report as CSV. Values are formatted
// as for display but never truncated.
func (v *ReportViewer) Export(ctx context.Context, w io.Writer) error {
	report, known, err := v.current()
	if err != nil {
		return err
	}

	ctx, release := v.view.Bind(ctx)
	defer release()

	columns := ResultColumns(report.Config, known)
	fields := columnFields(columns)

	out := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Label
	}
	if err := out.Write(header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	written := 0
	for page := 1; ; page++ {
		res, err := v.backend.ExecuteReport(ctx, report.Config, types.Pagination{Page: page, PageSize: types.MaxPageSize})
		if err != nil {
			return err
		}
		for _, row := range res.Rows {
			formatted := v.export.FormatRow(row, fields)
			record := make([]string, len(fields))
			for i, f := range fields {
				record[i] = formatted[f.Name]
			}
			if err := out.Write(record); err != nil {
				return fmt.Errorf("failed to write export row: %w", err)
			}
		}
		written += len(res.Rows)
		if len(res.Rows) == 0 || page >= res.TotalPages {
			break
		}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}

	ctx = logger_tools.WithFields(ctx, map[string]any{"report_id": report.ReportID})
	logger_tools.Info(ctx, "Report exported with", written, "rows")
	return nil
}

// Close ends the viewer. Pending requests are cancelled.
func (v *ReportViewer) Close() {
	v.view.Close()
}
