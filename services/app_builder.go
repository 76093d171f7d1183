package services

import (
	"context"
	"fmt"

	"github.com/otkinlife/go_tools/logger_tools"

	"github.com/dineshvijayakumar2/flansa-builder/backend"
	"github.com/dineshvijayakumar2/flansa-builder/parser"
	"github.com/dineshvijayakumar2/flansa-builder/render"
	"github.com/dineshvijayakumar2/flansa-builder/types"
	"github.com/dineshvijayakumar2/flansa-builder/validator"
)

// AppBuilder manages the tables of an application.
type AppBuilder struct {
	backend   backend.Backend
	validator *validator.Validator
}

func NewAppBuilder(b backend.Backend) *AppBuilder {
	return &AppBuilder{
		backend:   b,
		validator: validator.New(),
	}
}

func (a *AppBuilder) ListTables(ctx context.Context) ([]types.Table, error) {
	return a.backend.ListTables(ctx)
}

func (a *AppBuilder) GetTable(ctx context.Context, name string) (*types.Table, error) {
	return a.backend.GetTable(ctx, name)
}

// CreateTable normalizes the declared field types and stores the table.
// The data table is not created until GenerateSchema is called.
func (a *AppBuilder) CreateTable(ctx context.Context, table *types.Table) error {
	for i := range table.Fields {
		table.Fields[i].Type = types.NormalizeFieldType(string(table.Fields[i].Type))
	}
	if err := a.validator.ValidateTable(table); err != nil {
		return err
	}

	if err := a.backend.CreateTable(ctx, table); err != nil {
		return err
	}

	ctx = logger_tools.WithFields(ctx, map[string]any{"table": table.Name})
	logger_tools.Info(ctx, "Table created with", len(table.Fields), "fields")
	return nil
}

// ImportTable creates a table from a CREATE TABLE statement. An optional
// label overrides the one derived from the table name.
func (a *AppBuilder) ImportTable(ctx context.Context, createSQL, label string) (*types.Table, error) {
	table, err := parser.ParseCreateStatement(createSQL)
	if err != nil {
		return nil, err
	}
	table.Label = label
	if err := a.CreateTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

func (a *AppBuilder) DeleteTable(ctx context.Context, name string) error {
	if err := a.backend.DeleteTable(ctx, name); err != nil {
		return err
	}
	logger_tools.Info(logger_tools.WithFields(ctx, map[string]any{"table": name}), "Table deleted")
	return nil
}

func (a *AppBuilder) GenerateSchema(ctx context.Context, name string) error {
	if err := a.backend.GenerateSchema(ctx, name); err != nil {
		return fmt.Errorf("failed to generate schema for '%s': %w", name, err)
	}
	logger_tools.Info(logger_tools.WithFields(ctx, map[string]any{"table": name}), "Schema generated")
	return nil
}

func (a *AppBuilder) TableFields(ctx context.Context, name string) ([]types.Field, error) {
	return a.backend.GetTableFields(ctx, name)
}

// TableWidgets returns the design-mode input of every field of a table.
func (a *AppBuilder) TableWidgets(ctx context.Context, name string) ([]render.WidgetDescriptor, error) {
	fields, err := a.backend.GetTableFields(ctx, name)
	if err != nil {
		return nil, err
	}
	return render.RenderInputs(fields), nil
}
