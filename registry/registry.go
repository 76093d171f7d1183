// Package registry caches the field definitions of tables for the lifetime
// of one builder page.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// FieldSource loads the field list of a table. backend.Backend satisfies it.
type FieldSource interface {
	GetTableFields(ctx context.Context, table string) ([]types.Field, error)
}

type Registry struct {
	source FieldSource

	mu    sync.Mutex
	cache map[string][]types.Field
}

func New(source FieldSource) *Registry {
	return &Registry{
		source: source,
		cache:  make(map[string][]types.Field),
	}
}

// ListFields returns the fields of a table in backend order. The first
// successful load is cached until Invalidate.
func (r *Registry) ListFields(ctx context.Context, table string) ([]types.Field, error) {
	r.mu.Lock()
	cached, ok := r.cache[table]
	r.mu.Unlock()
	if ok {
		return clone(cached), nil
	}

	fields, err := r.source.GetTableFields(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields of '%s': %w", table, err)
	}
	for i := range fields {
		fields[i].Type = types.NormalizeFieldType(string(fields[i].Type))
	}

	r.mu.Lock()
	r.cache[table] = fields
	r.mu.Unlock()
	return clone(fields), nil
}

// Lookup returns a single field of a table.
func (r *Registry) Lookup(ctx context.Context, table, name string) (types.Field, error) {
	fields, err := r.ListFields(ctx, table)
	if err != nil {
		return types.Field{}, err
	}
	for _, f := range fields {
		if f.Name == name {
			return f, nil
		}
	}
	return types.Field{}, &types.NotFoundError{Kind: "field", Name: name}
}

// FieldsNotIn returns the fields of table that are not yet placed.
func (r *Registry) FieldsNotIn(ctx context.Context, table string, placed []string) ([]types.Field, error) {
	fields, err := r.ListFields(ctx, table)
	if err != nil {
		return nil, err
	}
	return Difference(fields, placed), nil
}

// Invalidate drops cached fields. With no arguments every table is dropped.
func (r *Registry) Invalidate(tables ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tables) == 0 {
		r.cache = make(map[string][]types.Field)
		return
	}
	for _, t := range tables {
		delete(r.cache, t)
	}
}

// Difference returns the fields whose names are not in placed, keeping the
// order of fields.
func Difference(fields []types.Field, placed []string) []types.Field {
	exclude := make(map[string]struct{}, len(placed))
	for _, name := range placed {
		exclude[name] = struct{}{}
	}

	out := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		if _, ok := exclude[f.Name]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func clone(fields []types.Field) []types.Field {
	return append([]types.Field(nil), fields...)
}
