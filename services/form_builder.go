package services

import (
	"context"
	"errors"
	"sync"

	"github.com/otkinlife/go_tools/logger_tools"

	"github.com/dineshvijayakumar2/flansa-builder/backend"
	"github.com/dineshvijayakumar2/flansa-builder/layout"
	"github.com/dineshvijayakumar2/flansa-builder/registry"
	"github.com/dineshvijayakumar2/flansa-builder/render"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

type FormOption func(*FormBuilder)

// WithLayoutIDs sets the generator used for new section and column ids.
func WithLayoutIDs(gen layout.IDGenerator) FormOption {
	return func(f *FormBuilder) {
		f.newID = gen
	}
}

// FormBuilder edits the layout of one table's form. All methods are safe for
// concurrent use; AddField admits one caller at a time and rejects the rest
// with types.ErrBusy instead of queueing them.
type FormBuilder struct {
	table    string
	backend  backend.Backend
	registry *registry.Registry
	view     *View
	adding   Latch
	newID    layout.IDGenerator

	mu     sync.Mutex
	model  *layout.Model
	fields []types.Field
}

func NewFormBuilder(table string, b backend.Backend, opts ...FormOption) *FormBuilder {
	f := &FormBuilder{
		table:    table,
		backend:  b,
		registry: registry.New(b),
		view:     NewView(context.Background()),
		newID:    layout.UUIDGenerator,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.model = layout.New(layout.WithIDGenerator(f.newID))
	return f
}

func (f *FormBuilder) Table() string {
	return f.table
}

func (f *FormBuilder) logContext(ctx context.Context) context.Context {
	return logger_tools.WithFields(ctx, map[string]any{"table": f.table, "builder": "form"})
}

// Load reads the table's fields and its saved layout. A load that finishes
// after a newer one, or after Close, is discarded with ErrStale.
func (f *FormBuilder) Load(ctx context.Context) error {
	t := f.view.Begin(ctx)
	defer t.Done()

	f.registry.Invalidate(f.table)
	fields, err := f.registry.ListFields(t.Context(), f.table)
	if err != nil {
		return err
	}
	items, err := f.backend.LoadFormConfig(t.Context(), f.table)
	if err != nil {
		return err
	}
	model, err := layout.FromItems(items, layout.WithIDGenerator(f.newID))
	if err != nil {
		return err
	}

	return t.Commit(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.model = model
		f.fields = fields
	})
}

// Items returns the current layout in display order.
func (f *FormBuilder) Items() []types.LayoutItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Items()
}

// AvailableFields returns the table fields not yet placed on the form.
func (f *FormBuilder) AvailableFields(ctx context.Context) ([]types.Field, error) {
	f.mu.Lock()
	placed := f.model.FieldNames()
	f.mu.Unlock()

	return f.registry.FieldsNotIn(ctx, f.table, placed)
}

// AddField places a field at index at (or appends when at is negative) and
// saves the layout. If saving fails the layout is left as it was. The layout
// stays readable and editable while the save is in flight.
func (f *FormBuilder) AddField(ctx context.Context, name string, at int) error {
	if !f.adding.TryAcquire() {
		return types.ErrBusy
	}
	defer f.adding.Release()

	ctx = f.logContext(ctx)

	if _, err := f.registry.Lookup(ctx, f.table, name); err != nil {
		return err
	}
	fields, err := f.registry.ListFields(ctx, f.table)
	if err != nil {
		return err
	}

	item := types.FieldItem(name)
	f.mu.Lock()
	next := f.model.Clone()
	if at < 0 {
		at = next.Len()
	}
	err = next.Insert(item, at)
	f.mu.Unlock()
	if err != nil {
		return err
	}

	saveCtx, release := f.view.Bind(ctx)
	defer release()
	if err := f.backend.SaveFormConfig(saveCtx, f.table, next.Items()); err != nil {
		logger_tools.Warn(ctx, "Failed to save layout after adding field", name, "error:", err.Error())
		return err
	}
	if f.view.Closed() {
		return ErrStale
	}

	// The model may have changed during the save; place the field on
	// whatever is current.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = fields
	cur := f.model.Clone()
	if at > cur.Len() {
		at = cur.Len()
	}
	if err := cur.Insert(item, at); err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			return nil
		}
		return err
	}
	f.model = cur
	logger_tools.Info(ctx, "Field added to form:", name)
	return nil
}

// RemoveItem removes the item at a flat index. Removing a field makes it
// available again.
func (f *FormBuilder) RemoveItem(at int) (types.LayoutItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Remove(at)
}

func (f *FormBuilder) MoveToSection(fieldIndex, sectionIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.MoveToSection(fieldIndex, sectionIndex)
}

// AddSection appends a section break.
func (f *FormBuilder) AddSection(label string) (types.LayoutItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.AppendLayoutMarker(types.ItemSectionBreak, label)
}

// AddColumn appends a column break.
func (f *FormBuilder) AddColumn() (types.LayoutItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.AppendLayoutMarker(types.ItemColumnBreak, "")
}

// Organize rebuilds the layout from its placed fields, grouped by category.
func (f *FormBuilder) Organize(ctx context.Context, flags layout.OrganizeFlags) error {
	fields, err := f.registry.ListFields(ctx, f.table)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.model.Clone()
	if err := next.Organize(fields, flags); err != nil {
		return err
	}
	f.model = next
	f.fields = fields
	return nil
}

// Save persists the current layout.
func (f *FormBuilder) Save(ctx context.Context) error {
	ctx = f.logContext(ctx)

	f.mu.Lock()
	items := f.model.Items()
	f.mu.Unlock()

	t := f.view.Begin(ctx)
	defer t.Done()
	if err := f.backend.SaveFormConfig(t.Context(), f.table, items); err != nil {
		logger_tools.Error(ctx, "Failed to save layout:", err.Error())
		return err
	}
	logger_tools.Info(ctx, "Layout saved with", len(items), "items")
	return nil
}

type PreviewSection struct {
	ID          string                      `json:"id,omitempty"`
	Label       string                      `json:"label,omitempty"`
	ColumnCount int                         `json:"column_count"`
	Columns     [][]render.WidgetDescriptor `json:"columns"`
}

type FormPreview struct {
	Table    string           `json:"table"`
	Sections []PreviewSection `json:"sections"`
}

// Preview renders the layout as it would appear in the form, section by
// section and column by column. Fields no longer known to the table are
// drawn as single-line inputs.
func (f *FormBuilder) Preview() FormPreview {
	f.mu.Lock()
	defer f.mu.Unlock()

	known := make(map[string]types.Field, len(f.fields))
	for _, field := range f.fields {
		known[field.Name] = field
	}

	sections := f.model.Sections()
	preview := FormPreview{Table: f.table, Sections: make([]PreviewSection, 0, len(sections))}
	for _, s := range sections {
		ps := PreviewSection{ColumnCount: 1}
		if s.Header != nil {
			ps.ID = s.Header.ID
			ps.Label = s.Header.Label
			if s.Header.ColumnCount > 0 {
				ps.ColumnCount = s.Header.ColumnCount
			}
		}
		for _, column := range s.Columns {
			widgets := make([]render.WidgetDescriptor, 0, len(column))
			for _, name := range column {
				field, ok := known[name]
				if !ok {
					field = types.Field{Name: name, Type: types.FieldTypeText}
				}
				widgets = append(widgets, render.RenderInput(field))
			}
			ps.Columns = append(ps.Columns, widgets)
		}
		preview.Sections = append(preview.Sections, ps)
	}
	return preview
}

// Close ends the builder's view. In-flight loads are cancelled and their
// results dropped.
func (f *FormBuilder) Close() {
	f.view.Close()
}
