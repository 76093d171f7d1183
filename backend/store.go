package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dineshvijayakumar2/flansa-builder/models"
	"github.com/dineshvijayakumar2/flansa-builder/query"
	"github.com/dineshvijayakumar2/flansa-builder/types"
	"github.com/dineshvijayakumar2/flansa-builder/validator"
)

// Store is the reference Backend. Builder metadata lives in the tables of
// the models package; records of a user table live in PhysicalName(table).
type Store struct {
	db        *gorm.DB
	validator *validator.Validator
	executor  *query.Executor
	newID     func() string
}

var _ Backend = (*Store)(nil)

type StoreOption func(*Store)

// WithReportIDs replaces the uuid generator used for new reports.
func WithReportIDs(gen func() string) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// NewStore expects db to be migrated already, see database.Manager.
func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:        db,
		validator: validator.New(),
		executor:  query.NewExecutor(db),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func unavailable(op string, err error) error {
	return &types.BackendUnavailableError{Op: op, Err: err}
}

func (s *Store) quote(name string) string {
	return s.db.Statement.Quote(name)
}

func (s *Store) findTable(ctx context.Context, name string) (*models.TableDefinition, error) {
	var def models.TableDefinition
	err := s.db.WithContext(ctx).Where("name = ? AND is_active = ?", name, true).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &types.NotFoundError{Kind: "table", Name: name}
	}
	if err != nil {
		return nil, unavailable("find table", err)
	}
	return &def, nil
}

func toTable(def *models.TableDefinition) (*types.Table, error) {
	t := &types.Table{
		Name:            def.Name,
		Label:           def.Label,
		Description:     def.Description,
		SchemaGenerated: def.SchemaGenerated,
	}
	if def.Fields != "" {
		if err := json.Unmarshal([]byte(def.Fields), &t.Fields); err != nil {
			return nil, fmt.Errorf("failed to parse fields of table '%s': %w", def.Name, err)
		}
	}
	for i := range t.Fields {
		t.Fields[i].Type = types.NormalizeFieldType(string(t.Fields[i].Type))
	}
	return t, nil
}

func (s *Store) GetTable(ctx context.Context, name string) (*types.Table, error) {
	def, err := s.findTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return toTable(def)
}

func (s *Store) GetTableFields(ctx context.Context, name string) ([]types.Field, error) {
	t, err := s.GetTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.Fields, nil
}

func (s *Store) ListTables(ctx context.Context) ([]types.Table, error) {
	var defs []models.TableDefinition
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&defs).Error; err != nil {
		return nil, unavailable("list tables", err)
	}

	tables := make([]types.Table, 0, len(defs))
	for i := range defs {
		t, err := toTable(&defs[i])
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

func (s *Store) CreateTable(ctx context.Context, table *types.Table) error {
	if table == nil {
		return types.NewValidationError("table", "required", "table is required")
	}
	if err := s.validator.ValidateTable(table); err != nil {
		return err
	}

	fields, err := json.Marshal(table.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TableDefinition{}).Where("name = ?", table.Name).Count(&count).Error; err != nil {
			return unavailable("create table", err)
		}
		if count > 0 {
			return &types.ValidationError{
				Field:   "name",
				Tag:     "unique",
				Value:   table.Name,
				Message: fmt.Sprintf("table '%s' already exists", table.Name),
			}
		}

		def := models.TableDefinition{
			Name:        table.Name,
			Label:       table.Label,
			Description: table.Description,
			Fields:      string(fields),
			IsActive:    true,
			Version:     1,
		}
		if err := tx.Create(&def).Error; err != nil {
			return unavailable("create table", err)
		}
		return nil
	})
}

// DeleteTable removes the definition, its form layout and its data table.
// Saved reports on the table are deactivated.
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	def, err := s.findTable(ctx, name)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(def).Error; err != nil {
			return unavailable("delete table", err)
		}
		if err := tx.Where("table_name = ?", name).Delete(&models.FormConfiguration{}).Error; err != nil {
			return unavailable("delete form configuration", err)
		}
		if err := tx.Model(&models.SavedReport{}).Where("base_table = ?", name).Update("is_active", false).Error; err != nil {
			return unavailable("deactivate reports", err)
		}
		if tx.Migrator().HasTable(PhysicalName(name)) {
			if err := tx.Migrator().DropTable(PhysicalName(name)); err != nil {
				return unavailable("drop data table", err)
			}
		}
		return nil
	})
}

// GenerateSchema creates the data table of a user table, or adds the
// columns of fields declared since the last run.
func (s *Store) GenerateSchema(ctx context.Context, name string) error {
	def, err := s.findTable(ctx, name)
	if err != nil {
		return err
	}
	table, err := toTable(def)
	if err != nil {
		return err
	}

	dialect := s.db.Dialector.Name()
	physical := PhysicalName(name)
	db := s.db.WithContext(ctx)

	if !db.Migrator().HasTable(physical) {
		if err := db.Exec(createTableSQL(dialect, s.quote, table)).Error; err != nil {
			return unavailable("generate schema", err)
		}
	} else {
		for _, f := range table.Fields {
			if f.Name == "id" || db.Migrator().HasColumn(physical, f.Name) {
				continue
			}
			if err := db.Exec(addColumnSQL(dialect, s.quote, name, f)).Error; err != nil {
				return unavailable("generate schema", err)
			}
		}
	}

	updates := map[string]interface{}{
		"schema_generated": true,
		"version":          gorm.Expr("version + 1"),
	}
	if err := db.Model(def).Updates(updates).Error; err != nil {
		return unavailable("generate schema", err)
	}
	return nil
}

func (s *Store) LoadFormConfig(ctx context.Context, table string) ([]types.LayoutItem, error) {
	if _, err := s.findTable(ctx, table); err != nil {
		return nil, err
	}

	var form models.FormConfiguration
	err := s.db.WithContext(ctx).Where("table_name = ? AND is_active = ?", table, true).First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []types.LayoutItem{}, nil
	}
	if err != nil {
		return nil, unavailable("load form configuration", err)
	}

	var items []types.LayoutItem
	if form.Layout != "" {
		if err := json.Unmarshal([]byte(form.Layout), &items); err != nil {
			return nil, fmt.Errorf("failed to parse form layout of '%s': %w", table, err)
		}
	}
	if err := s.validator.ValidateLayout(items); err != nil {
		return nil, fmt.Errorf("stored layout of '%s' is invalid: %w", table, err)
	}
	if items == nil {
		items = []types.LayoutItem{}
	}
	return items, nil
}

func (s *Store) SaveFormConfig(ctx context.Context, table string, items []types.LayoutItem) error {
	if err := s.validator.ValidateLayout(items); err != nil {
		return err
	}
	if _, err := s.findTable(ctx, table); err != nil {
		return err
	}

	if items == nil {
		items = []types.LayoutItem{}
	}
	layout, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var form models.FormConfiguration
		err := tx.Where("table_name = ?", table).First(&form).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			form = models.FormConfiguration{DBTableName: table, Layout: string(layout), IsActive: true, Version: 1}
			if err := tx.Create(&form).Error; err != nil {
				return unavailable("save form configuration", err)
			}
			return nil
		case err != nil:
			return unavailable("save form configuration", err)
		}

		updates := map[string]interface{}{
			"layout":    string(layout),
			"is_active": true,
			"version":   gorm.Expr("version + 1"),
		}
		if err := tx.Model(&form).Updates(updates).Error; err != nil {
			return unavailable("save form configuration", err)
		}
		return nil
	})
}

func (s *Store) fieldsFor(ctx context.Context, cfg *types.ReportConfig) (*types.Table, error) {
	if cfg == nil {
		return nil, types.NewValidationError("config", "required", "report config is required")
	}
	table, err := s.GetTable(ctx, cfg.BaseTable)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateReportConfig(cfg, table.Fields); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *Store) SaveReportConfig(ctx context.Context, title string, cfg *types.ReportConfig) (string, error) {
	if title == "" {
		return "", types.NewValidationError("title", "required", "Report title is required")
	}
	if _, err := s.fieldsFor(ctx, cfg); err != nil {
		return "", err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode report config: %w", err)
	}

	report := models.SavedReport{
		ReportID:  s.newID(),
		Title:     title,
		BaseTable: cfg.BaseTable,
		Config:    string(data),
		IsActive:  true,
		Version:   1,
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return "", unavailable("save report", err)
	}
	return report.ReportID, nil
}

func toSavedReport(m *models.SavedReport, withConfig bool) (types.SavedReport, error) {
	r := types.SavedReport{ReportID: m.ReportID, Title: m.Title}
	if withConfig {
		var cfg types.ReportConfig
		if err := json.Unmarshal([]byte(m.Config), &cfg); err != nil {
			return r, fmt.Errorf("failed to parse report '%s': %w", m.ReportID, err)
		}
		r.Config = &cfg
	}
	return r, nil
}

func (s *Store) LoadReportConfig(ctx context.Context, reportID string) (*types.SavedReport, error) {
	var m models.SavedReport
	err := s.db.WithContext(ctx).Where("report_id = ? AND is_active = ?", reportID, true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &types.NotFoundError{Kind: "report", Name: reportID}
	}
	if err != nil {
		return nil, unavailable("load report", err)
	}

	r, err := toSavedReport(&m, true)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateReportConfig(r.Config, nil); err != nil {
		return nil, fmt.Errorf("stored report '%s' is invalid: %w", reportID, err)
	}
	return &r, nil
}

// ListReports returns active reports without their configs, newest first.
func (s *Store) ListReports(ctx context.Context) ([]types.SavedReport, error) {
	var ms []models.SavedReport
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id DESC").Find(&ms).Error; err != nil {
		return nil, unavailable("list reports", err)
	}

	out := make([]types.SavedReport, 0, len(ms))
	for i := range ms {
		r, _ := toSavedReport(&ms[i], false)
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ExecuteReport(ctx context.Context, cfg *types.ReportConfig, page types.Pagination) (*types.ExecuteResult, error) {
	table, err := s.fieldsFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !table.SchemaGenerated {
		return nil, &types.ValidationError{
			Field:   "base_table",
			Tag:     "schema",
			Value:   table.Name,
			Message: fmt.Sprintf("schema of table '%s' has not been generated", table.Name),
		}
	}

	res, err := s.executor.Execute(ctx, PhysicalName(table.Name), cfg, table.Fields, page)
	if err != nil {
		return nil, unavailable("execute report", err)
	}
	return res, nil
}

func (s *Store) DistinctValues(ctx context.Context, table, field string, limit int) ([]interface{}, error) {
	t, err := s.GetTable(ctx, table)
	if err != nil {
		return nil, err
	}

	found := false
	for _, f := range t.Fields {
		if f.Name == field {
			found = true
			break
		}
	}
	if !found {
		return nil, &types.NotFoundError{Kind: "field", Name: field}
	}
	if !t.SchemaGenerated {
		return []interface{}{}, nil
	}

	values, err := s.executor.DistinctValues(ctx, PhysicalName(t.Name), field, limit)
	if err != nil {
		return nil, unavailable("list values", err)
	}
	return values, nil
}
