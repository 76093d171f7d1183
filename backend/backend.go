// Package backend defines the operations the builder needs from the system
// that stores tables, layouts and reports, plus a gorm implementation.
package backend

import (
	"context"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// Backend is implemented by every store the builder can run against.
// Failures of the store itself are reported as
// *types.BackendUnavailableError; missing tables or reports as
// *types.NotFoundError.
type Backend interface {
	GetTableFields(ctx context.Context, table string) ([]types.Field, error)
	ListTables(ctx context.Context) ([]types.Table, error)
	GetTable(ctx context.Context, table string) (*types.Table, error)

	// LoadFormConfig returns the saved layout of a table, or an empty list
	// when none was saved yet.
	LoadFormConfig(ctx context.Context, table string) ([]types.LayoutItem, error)
	SaveFormConfig(ctx context.Context, table string, items []types.LayoutItem) error

	LoadReportConfig(ctx context.Context, reportID string) (*types.SavedReport, error)
	// SaveReportConfig stores a new report and returns its id.
	SaveReportConfig(ctx context.Context, title string, config *types.ReportConfig) (string, error)
	ListReports(ctx context.Context) ([]types.SavedReport, error)
	ExecuteReport(ctx context.Context, config *types.ReportConfig, page types.Pagination) (*types.ExecuteResult, error)
	// DistinctValues lists up to limit distinct values stored in a field.
	DistinctValues(ctx context.Context, table, field string, limit int) ([]interface{}, error)

	CreateTable(ctx context.Context, table *types.Table) error
	DeleteTable(ctx context.Context, table string) error
	GenerateSchema(ctx context.Context, table string) error
}
