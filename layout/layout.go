// Package layout holds the ordered section/column/field structure behind a
// form or report design.
//
// Sections are stored as an arena: each section owns its header and the
// ordered items below it, and the flat LayoutItem list the backend persists
// is derived on demand. The first section is implicit and has no header; it
// collects fields placed before any section break and always exists, so a
// removed section always has a predecessor to hand its fields to.
package layout

import (
	"fmt"
	"sort"

	"github.com/dineshvijayakumar2/flansa-builder/types"
	"github.com/google/uuid"
)

// IDGenerator produces unique ids for new layout markers.
type IDGenerator func(kind types.ItemKind) string

// UUIDGenerator prefixes a random uuid with the marker kind.
func UUIDGenerator(kind types.ItemKind) string {
	prefix := "section"
	if kind == types.ItemColumnBreak {
		prefix = "column"
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

type section struct {
	header *types.LayoutItem // nil for the implicit leading section
	items  []types.LayoutItem
}

func (s *section) size() int {
	if s.header == nil {
		return len(s.items)
	}
	return len(s.items) + 1
}

func (s *section) clone() *section {
	c := &section{items: append([]types.LayoutItem(nil), s.items...)}
	if s.header != nil {
		h := *s.header
		c.header = &h
	}
	return c
}

type Model struct {
	sections []*section
	fields   map[string]struct{}
	newID    IDGenerator
}

type Option func(*Model)

func WithIDGenerator(gen IDGenerator) Option {
	return func(m *Model) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// New returns an empty layout.
func New(opts ...Option) *Model {
	m := &Model{
		sections: []*section{{}},
		fields:   make(map[string]struct{}),
		newID:    UUIDGenerator,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromItems builds a model from a persisted item list. Items are placed by
// their Order value; ties keep list order.
func FromItems(items []types.LayoutItem, opts ...Option) (*Model, error) {
	sorted := append([]types.LayoutItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	m := New(opts...)
	for _, item := range sorted {
		if err := m.Insert(item, m.Len()); err != nil {
			return nil, fmt.Errorf("failed to load layout: %w", err)
		}
	}
	return m, nil
}

// Clone returns an independent copy sharing only the id generator.
func (m *Model) Clone() *Model {
	c := &Model{
		sections: make([]*section, len(m.sections)),
		fields:   make(map[string]struct{}, len(m.fields)),
		newID:    m.newID,
	}
	for i, s := range m.sections {
		c.sections[i] = s.clone()
	}
	for name := range m.fields {
		c.fields[name] = struct{}{}
	}
	return c
}

// Len is the number of items in the flat view.
func (m *Model) Len() int {
	n := 0
	for _, s := range m.sections {
		n += s.size()
	}
	return n
}

// Contains reports whether the field is already placed.
func (m *Model) Contains(fieldName string) bool {
	_, ok := m.fields[fieldName]
	return ok
}

// Items returns the flat item list with Order renumbered to the sequence.
func (m *Model) Items() []types.LayoutItem {
	out := make([]types.LayoutItem, 0, m.Len())
	for _, s := range m.sections {
		if s.header != nil {
			out = append(out, *s.header)
		}
		out = append(out, s.items...)
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}

// FieldNames returns the placed fields in layout order.
func (m *Model) FieldNames() []string {
	names := make([]string, 0, len(m.fields))
	for _, s := range m.sections {
		for _, item := range s.items {
			if item.IsField() {
				names = append(names, item.FieldRef)
			}
		}
	}
	return names
}

// Item returns the item at a flat index.
func (m *Model) Item(at int) (types.LayoutItem, error) {
	si, k, err := m.position(at)
	if err != nil {
		return types.LayoutItem{}, err
	}
	if k < 0 {
		return *m.sections[si].header, nil
	}
	return m.sections[si].items[k], nil
}

// Insert places an item so that it ends up at flat index at. at == Len()
// appends. A section break splits the section it lands in: the items after
// the insertion point move under the new header.
func (m *Model) Insert(item types.LayoutItem, at int) error {
	if at < 0 || at > m.Len() {
		return types.NewValidationError("index", "range", "insert position %d out of range [0,%d]", at, m.Len())
	}

	switch item.Kind {
	case types.ItemField:
		if item.FieldRef == "" {
			return types.NewValidationError("field_ref", "required", "field item needs a field reference")
		}
		if m.Contains(item.FieldRef) {
			return &types.DuplicateError{Field: item.FieldRef}
		}
	case types.ItemSectionBreak, types.ItemColumnBreak:
		if item.ID == "" {
			item.ID = m.newID(item.Kind)
		}
		if item.IsSection() && item.ColumnCount == 0 {
			item.ColumnCount = 1
		}
	default:
		return types.NewValidationError("kind", "oneof", "unknown layout item kind '%s'", item.Kind)
	}

	si, k := m.insertionPoint(at)
	s := m.sections[si]

	if item.IsSection() {
		header := item
		tail := append([]types.LayoutItem(nil), s.items[k:]...)
		s.items = s.items[:k:k]
		next := &section{header: &header, items: tail}
		m.sections = append(m.sections, nil)
		copy(m.sections[si+2:], m.sections[si+1:])
		m.sections[si+1] = next
		return nil
	}

	s.items = append(s.items, types.LayoutItem{})
	copy(s.items[k+1:], s.items[k:])
	s.items[k] = item
	if item.IsField() {
		m.fields[item.FieldRef] = struct{}{}
	}
	return nil
}

// Append inserts at the end of the layout.
func (m *Model) Append(item types.LayoutItem) error {
	return m.Insert(item, m.Len())
}

// Remove deletes the item at a flat index and returns it. Removing a section
// break hands every item below it to the end of the preceding section.
func (m *Model) Remove(at int) (types.LayoutItem, error) {
	si, k, err := m.position(at)
	if err != nil {
		return types.LayoutItem{}, err
	}
	s := m.sections[si]

	if k < 0 {
		removed := *s.header
		prev := m.sections[si-1]
		prev.items = append(prev.items, s.items...)
		m.sections = append(m.sections[:si], m.sections[si+1:]...)
		return removed, nil
	}

	removed := s.items[k]
	s.items = append(s.items[:k], s.items[k+1:]...)
	if removed.IsField() {
		delete(m.fields, removed.FieldRef)
	}
	return removed, nil
}

// RemoveField deletes a field by name.
func (m *Model) RemoveField(name string) error {
	at, ok := m.IndexOfField(name)
	if !ok {
		return &types.NotFoundError{Kind: "field", Name: name}
	}
	_, err := m.Remove(at)
	return err
}

// MoveToSection relocates the field at fieldIndex to directly below the
// section header at sectionIndex. Both indexes refer to the flat view
// before the move.
func (m *Model) MoveToSection(fieldIndex, sectionIndex int) error {
	fsi, fk, err := m.position(fieldIndex)
	if err != nil {
		return err
	}
	if fk < 0 || !m.sections[fsi].items[fk].IsField() {
		return types.NewValidationError("field_index", "field", "item %d is not a field", fieldIndex)
	}

	tsi, tk, err := m.position(sectionIndex)
	if err != nil {
		return err
	}
	if tk >= 0 {
		return types.NewValidationError("section_index", "section", "item %d is not a section break", sectionIndex)
	}

	src := m.sections[fsi]
	item := src.items[fk]
	src.items = append(src.items[:fk], src.items[fk+1:]...)

	dst := m.sections[tsi]
	dst.items = append([]types.LayoutItem{item}, dst.items...)
	return nil
}

// AppendLayoutMarker adds a section or column break at the end and returns
// it with its generated id.
func (m *Model) AppendLayoutMarker(kind types.ItemKind, label string) (types.LayoutItem, error) {
	var item types.LayoutItem
	switch kind {
	case types.ItemSectionBreak:
		item = types.SectionBreak(m.newID(kind), label)
	case types.ItemColumnBreak:
		item = types.ColumnBreak(m.newID(kind))
	default:
		return types.LayoutItem{}, types.NewValidationError("kind", "oneof", "'%s' is not a layout marker", kind)
	}

	if err := m.Append(item); err != nil {
		return types.LayoutItem{}, err
	}
	return item, nil
}

// IndexOfField returns the flat index of a placed field.
func (m *Model) IndexOfField(name string) (int, bool) {
	if !m.Contains(name) {
		return 0, false
	}
	at := 0
	for _, s := range m.sections {
		if s.header != nil {
			at++
		}
		for _, item := range s.items {
			if item.IsField() && item.FieldRef == name {
				return at, true
			}
			at++
		}
	}
	return 0, false
}

// SectionOf returns the header of the section holding the field, or nil
// when the field sits in the implicit leading section.
func (m *Model) SectionOf(name string) (*types.LayoutItem, bool) {
	for _, s := range m.sections {
		for _, item := range s.items {
			if item.IsField() && item.FieldRef == name {
				if s.header == nil {
					return nil, true
				}
				h := *s.header
				return &h, true
			}
		}
	}
	return nil, false
}

// Section is a read-only view of one section split into columns.
type Section struct {
	Header  *types.LayoutItem
	Columns [][]string
}

// Sections returns every non-empty section with its fields grouped by
// column breaks. The implicit section is omitted when empty.
func (m *Model) Sections() []Section {
	out := make([]Section, 0, len(m.sections))
	for i, s := range m.sections {
		if i == 0 && len(s.items) == 0 {
			continue
		}
		view := Section{Columns: [][]string{{}}}
		if s.header != nil {
			h := *s.header
			view.Header = &h
		}
		for _, item := range s.items {
			if item.Kind == types.ItemColumnBreak {
				view.Columns = append(view.Columns, []string{})
				continue
			}
			last := len(view.Columns) - 1
			view.Columns[last] = append(view.Columns[last], item.FieldRef)
		}
		out = append(out, view)
	}
	return out
}

// position maps a flat index to (section, item). k == -1 addresses the
// section header.
func (m *Model) position(at int) (int, int, error) {
	if at < 0 {
		return 0, 0, types.NewValidationError("index", "range", "index %d out of range", at)
	}
	offset := at
	for si, s := range m.sections {
		if s.header != nil {
			if offset == 0 {
				return si, -1, nil
			}
			offset--
		}
		if offset < len(s.items) {
			return si, offset, nil
		}
		offset -= len(s.items)
	}
	return 0, 0, types.NewValidationError("index", "range", "index %d out of range [0,%d)", at, m.Len())
}

// insertionPoint maps a flat insertion index to (section, item offset).
// A position just before a header belongs to the end of the previous
// section.
func (m *Model) insertionPoint(at int) (int, int) {
	offset := at
	for si, s := range m.sections {
		if s.header != nil {
			offset--
		}
		if offset <= len(s.items) {
			return si, offset
		}
		offset -= len(s.items)
	}
	last := len(m.sections) - 1
	return last, len(m.sections[last].items)
}
