package services

import (
	"context"
	"strings"

	"github.com/otkinlife/go_tools/logger_tools"

	"github.com/dineshvijayakumar2/flansa-builder/backend"
	"github.com/dineshvijayakumar2/flansa-builder/query"
	"github.com/dineshvijayakumar2/flansa-builder/registry"
	"github.com/dineshvijayakumar2/flansa-builder/render"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// ReportBuilder turns report requests into validated configs, saves them and
// runs previews.
type ReportBuilder struct {
	backend   backend.Backend
	registry  *registry.Registry
	formatter *render.Formatter
}

func NewReportBuilder(b backend.Backend, filePrefix string) *ReportBuilder {
	formatter := render.NewFormatter(render.ModePreview)
	if filePrefix != "" {
		formatter.FilePrefix = filePrefix
	}
	return &ReportBuilder{
		backend:   b,
		registry:  registry.New(b),
		formatter: formatter,
	}
}

// Build validates a request against the fields of its base table.
func (r *ReportBuilder) Build(ctx context.Context, req query.Request) (*types.ReportConfig, error) {
	req.BaseTable = strings.TrimSpace(req.BaseTable)
	if req.BaseTable == "" {
		return nil, types.NewValidationError("base_table", "required", "a base table is required")
	}

	fields, err := r.registry.ListFields(ctx, req.BaseTable)
	if err != nil {
		return nil, err
	}
	return query.FromRequest(req, fields).Build()
}

// GroupableFields lists the fields of a table that a report may group on.
// A table without any returns a NoGroupableFieldsError.
func (r *ReportBuilder) GroupableFields(ctx context.Context, table string) ([]types.Field, error) {
	fields, err := r.registry.ListFields(ctx, table)
	if err != nil {
		return nil, err
	}
	groupable := query.GroupableFields(fields)
	if len(groupable) == 0 {
		return nil, &types.NoGroupableFieldsError{}
	}
	return groupable, nil
}

// Save builds and stores a report under title and returns its id.
func (r *ReportBuilder) Save(ctx context.Context, title string, req query.Request) (string, *types.ReportConfig, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil, types.NewValidationError("title", "required", "a report title is required")
	}

	cfg, err := r.Build(ctx, req)
	if err != nil {
		return "", nil, err
	}

	id, err := r.backend.SaveReportConfig(ctx, title, cfg)
	if err != nil {
		return "", nil, err
	}

	ctx = logger_tools.WithFields(ctx, map[string]any{"report_id": id, "table": cfg.BaseTable})
	logger_tools.Info(ctx, "Report saved:", title)
	return id, cfg, nil
}

// List returns the saved reports, newest first, without their configs.
func (r *ReportBuilder) List(ctx context.Context) ([]types.SavedReport, error) {
	return r.backend.ListReports(ctx)
}

// Open loads a saved report and returns it with its rows in request form,
// ready for further editing.
func (r *ReportBuilder) Open(ctx context.Context, reportID string) (*types.SavedReport, query.Request, error) {
	saved, err := r.backend.LoadReportConfig(ctx, reportID)
	if err != nil {
		return nil, query.Request{}, err
	}
	fields, err := r.registry.ListFields(ctx, saved.Config.BaseTable)
	if err != nil {
		return nil, query.Request{}, err
	}
	return saved, query.FromConfig(saved.Config, fields).Request(), nil
}

// Preview builds a request and runs one page of it.
func (r *ReportBuilder) Preview(ctx context.Context, req query.Request, page types.Pagination) (*ReportPage, error) {
	cfg, err := r.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	fields, err := r.registry.ListFields(ctx, cfg.BaseTable)
	if err != nil {
		return nil, err
	}

	page = page.Normalize()
	res, err := r.backend.ExecuteReport(ctx, cfg, page)
	if err != nil {
		return nil, err
	}
	return newReportPage(cfg, fields, res, r.formatter), nil
}

// ValueOption is one suggested filter value with its display label.
type ValueOption struct {
	Value interface{} `json:"value"`
	Label string      `json:"label"`
}

// FilterValues suggests values for a filter on field, taken from the data
// already stored in the table.
func (r *ReportBuilder) FilterValues(ctx context.Context, table, field string) ([]ValueOption, error) {
	f, err := r.registry.Lookup(ctx, table, field)
	if err != nil {
		return nil, err
	}

	values, err := r.backend.DistinctValues(ctx, table, field, query.DefaultValueLimit)
	if err != nil {
		return nil, err
	}

	options := make([]ValueOption, len(values))
	for i, v := range values {
		options[i] = ValueOption{Value: v, Label: r.formatter.Format(v, f.Type)}
	}
	return options, nil
}
