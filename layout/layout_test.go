package layout

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// sequentialIDs returns a generator producing kind_1, kind_2, ...
func sequentialIDs() IDGenerator {
	n := 0
	return func(kind types.ItemKind) string {
		n++
		return fmt.Sprintf("%s_%d", kind, n)
	}
}

func describe(items []types.LayoutItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		if item.IsField() {
			out[i] = item.FieldRef
		} else {
			out[i] = "#" + item.ID
		}
	}
	return out
}

func build(t *testing.T, items ...types.LayoutItem) *Model {
	t.Helper()
	m := New(WithIDGenerator(sequentialIDs()))
	for _, item := range items {
		require.NoError(t, m.Append(item))
	}
	return m
}

func TestInsertSplitsSection(t *testing.T) {
	m := build(t,
		types.SectionBreak("s1", "Details"),
		types.FieldItem("a"),
		types.FieldItem("b"),
	)

	require.NoError(t, m.Insert(types.SectionBreak("s2", "More"), 2))
	assert.Equal(t, []string{"#s1", "a", "#s2", "b"}, describe(m.Items()))

	sections := m.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, "s1", sections[0].Header.ID)
	assert.Equal(t, [][]string{{"a"}}, sections[0].Columns)
	assert.Equal(t, [][]string{{"b"}}, sections[1].Columns)

	item, err := m.Item(2)
	require.NoError(t, err)
	assert.Equal(t, 1, item.ColumnCount)
}

func TestInsertDuplicateFieldLeavesModelUnchanged(t *testing.T) {
	m := build(t, types.FieldItem("a"), types.SectionBreak("s1", ""), types.FieldItem("b"))
	before := m.Items()

	for _, at := range []int{0, 1, 3} {
		err := m.Insert(types.FieldItem("b"), at)
		assert.True(t, errors.Is(err, types.ErrDuplicate), "at %d: %v", at, err)
		assert.Equal(t, "field 'b' already in form", err.Error())
	}
	assert.Equal(t, before, m.Items())
}

func TestInvalidOperationsLeaveModelUnchanged(t *testing.T) {
	m := build(t, types.SectionBreak("s1", ""), types.FieldItem("a"), types.ColumnBreak("c1"), types.FieldItem("b"))
	before := m.Items()

	tests := []struct {
		name string
		op   func() error
	}{
		{"insert past end", func() error { return m.Insert(types.FieldItem("x"), 99) }},
		{"insert negative", func() error { return m.Insert(types.FieldItem("x"), -1) }},
		{"insert unknown kind", func() error { return m.Insert(types.LayoutItem{Kind: "tab_break"}, 0) }},
		{"insert field without ref", func() error { return m.Insert(types.LayoutItem{Kind: types.ItemField}, 0) }},
		{"remove past end", func() error { _, err := m.Remove(4); return err }},
		{"move onto a field", func() error { return m.MoveToSection(1, 3) }},
		{"move a column break", func() error { return m.MoveToSection(2, 0) }},
		{"remove missing field", func() error { return m.RemoveField("zzz") }},
		{"append a field as marker", func() error { _, err := m.AppendLayoutMarker(types.ItemField, ""); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.op())
			assert.Equal(t, before, m.Items())
		})
	}
}

func TestRemoveSectionKeepsFields(t *testing.T) {
	tests := []struct {
		name   string
		items  []types.LayoutItem
		remove int
		want   []string
	}{
		{
			name: "fields move to previous section",
			items: []types.LayoutItem{
				types.SectionBreak("s1", ""), types.FieldItem("a"),
				types.SectionBreak("s2", ""), types.FieldItem("b"), types.FieldItem("c"),
			},
			remove: 2,
			want:   []string{"#s1", "a", "b", "c"},
		},
		{
			name: "first section hands fields to the implicit section",
			items: []types.LayoutItem{
				types.FieldItem("a"),
				types.SectionBreak("s1", ""), types.FieldItem("b"),
				types.SectionBreak("s2", ""), types.FieldItem("c"),
			},
			remove: 1,
			want:   []string{"a", "b", "#s2", "c"},
		},
		{
			name: "column breaks travel with the fields",
			items: []types.LayoutItem{
				types.SectionBreak("s1", ""), types.FieldItem("a"),
				types.SectionBreak("s2", ""), types.FieldItem("b"), types.ColumnBreak("c1"), types.FieldItem("c"),
			},
			remove: 2,
			want:   []string{"#s1", "a", "b", "#c1", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := build(t, tt.items...)
			fieldsBefore := len(m.FieldNames())

			removed, err := m.Remove(tt.remove)
			require.NoError(t, err)
			assert.True(t, removed.IsSection())
			assert.Equal(t, tt.want, describe(m.Items()))
			assert.Len(t, m.FieldNames(), fieldsBefore)
		})
	}
}

func TestRemoveFieldFreesName(t *testing.T) {
	m := build(t, types.FieldItem("a"), types.FieldItem("b"))

	require.NoError(t, m.RemoveField("a"))
	assert.False(t, m.Contains("a"))
	assert.Equal(t, []string{"b"}, m.FieldNames())

	require.NoError(t, m.Insert(types.FieldItem("a"), 0))
	assert.Equal(t, []string{"a", "b"}, m.FieldNames())
}

func TestMoveToSection(t *testing.T) {
	m := build(t,
		types.FieldItem("a"),
		types.SectionBreak("s1", "One"), types.FieldItem("b"),
		types.SectionBreak("s2", "Two"), types.FieldItem("c"),
	)

	require.NoError(t, m.MoveToSection(0, 3))
	assert.Equal(t, []string{"#s1", "b", "#s2", "a", "c"}, describe(m.Items()))

	header, ok := m.SectionOf("a")
	require.True(t, ok)
	assert.Equal(t, "s2", header.ID)

	at, ok := m.IndexOfField("a")
	require.True(t, ok)
	assert.Equal(t, 3, at)

	// moving within the same section brings the field to the top
	require.NoError(t, m.MoveToSection(4, 2))
	assert.Equal(t, []string{"#s1", "b", "#s2", "c", "a"}, describe(m.Items()))
}

func TestAppendLayoutMarker(t *testing.T) {
	m := build(t, types.FieldItem("a"))

	section, err := m.AppendLayoutMarker(types.ItemSectionBreak, "Extra")
	require.NoError(t, err)
	assert.Equal(t, "section_break_1", section.ID)
	assert.Equal(t, "Extra", section.Label)
	assert.Equal(t, 1, section.ColumnCount)

	column, err := m.AppendLayoutMarker(types.ItemColumnBreak, "")
	require.NoError(t, err)
	assert.Equal(t, "column_break_2", column.ID)

	assert.Equal(t, []string{"a", "#section_break_1", "#column_break_2"}, describe(m.Items()))
}

func TestUUIDGeneratorIsUnique(t *testing.T) {
	m := New()
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		item, err := m.AppendLayoutMarker(types.ItemColumnBreak, "")
		require.NoError(t, err)
		assert.Regexp(t, `^column_[0-9a-f-]{36}$`, item.ID)
		_, dup := seen[item.ID]
		require.False(t, dup)
		seen[item.ID] = struct{}{}
	}
}

func TestFromItemsOrdersByOrder(t *testing.T) {
	items := []types.LayoutItem{
		{Kind: types.ItemField, FieldRef: "b", Order: 2},
		{Kind: types.ItemSectionBreak, ID: "s1", Order: 0},
		{Kind: types.ItemField, FieldRef: "a", Order: 1},
	}

	m, err := FromItems(items)
	require.NoError(t, err)

	got := m.Items()
	assert.Equal(t, []string{"#s1", "a", "b"}, describe(got))
	for i, item := range got {
		assert.Equal(t, i, item.Order)
	}

	_, err = FromItems([]types.LayoutItem{types.FieldItem("a"), types.FieldItem("a")})
	assert.True(t, errors.Is(err, types.ErrDuplicate))
}

func TestCloneIsIndependent(t *testing.T) {
	m := build(t, types.SectionBreak("s1", ""), types.FieldItem("a"))
	c := m.Clone()

	require.NoError(t, c.Append(types.FieldItem("b")))
	_, err := c.Remove(0)
	require.NoError(t, err)

	assert.Equal(t, []string{"#s1", "a"}, describe(m.Items()))
	assert.False(t, m.Contains("b"))
	assert.Equal(t, []string{"a", "b"}, describe(c.Items()))
}

func TestSectionsColumns(t *testing.T) {
	m := build(t,
		types.FieldItem("loose"),
		types.SectionBreak("s1", "Main"),
		types.FieldItem("a"), types.ColumnBreak("c1"), types.FieldItem("b"), types.FieldItem("c"),
	)

	sections := m.Sections()
	require.Len(t, sections, 2)
	assert.Nil(t, sections[0].Header)
	assert.Equal(t, [][]string{{"loose"}}, sections[0].Columns)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}}, sections[1].Columns)

	assert.Empty(t, New().Sections())
}

func organizeFixture() []types.Field {
	return []types.Field{
		{Name: "name", Type: types.FieldTypeText, Required: true},
		{Name: "email", Type: types.FieldTypeText},
		{Name: "notes", Type: types.FieldTypeLongText},
		{Name: "due", Type: types.FieldTypeDate},
		{Name: "owner", Type: types.FieldTypeReference},
		{Name: "photo", Type: types.FieldTypeImageAttachment},
		{Name: "score", Type: types.FieldTypeInteger},
		{Name: "started", Type: types.FieldTypeDateTime},
		{Name: "geo", Type: types.FieldType("Geolocation")},
	}
}

func TestOrganizeByCategory(t *testing.T) {
	tests := []struct {
		name  string
		flags OrganizeFlags
		want  []string
	}{
		{
			name:  "no flags",
			flags: OrganizeFlags{},
			want:  []string{"name", "email", "score", "geo", "notes", "due", "started", "owner", "photo"},
		},
		{
			name:  "required first",
			flags: OrganizeFlags{PrioritizeRequired: true},
			want:  []string{"name", "email", "score", "geo", "notes", "due", "started", "owner", "photo"},
		},
		{
			name:  "grouped",
			flags: OrganizeFlags{GroupRelated: true, PrioritizeRequired: true},
			want: []string{
				"name",
				"#organized_section_basic", "email", "score", "geo",
				"notes",
				"#organized_section_date", "due", "started",
				"owner", "photo",
			},
		},
		{
			name:  "grouped responsive",
			flags: OrganizeFlags{GroupRelated: true, Responsive: true},
			want: []string{
				"#organized_section_basic", "name", "email", "#organized_column_basic", "score", "geo",
				"notes",
				"#organized_section_date", "due", "started",
				"owner", "photo",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := organizeFixture()
			got := OrganizeByCategory(fields, tt.flags)
			assert.Equal(t, tt.want, describe(got))
			for i, item := range got {
				assert.Equal(t, i, item.Order)
			}
			assert.Equal(t, organizeFixture(), fields, "input must not be modified")
		})
	}
}

func TestOrganizeByCategoryIsPure(t *testing.T) {
	flags := OrganizeFlags{GroupRelated: true, Responsive: true}
	first := OrganizeByCategory(organizeFixture(), flags)
	second := OrganizeByCategory(organizeFixture(), flags)
	assert.Equal(t, first, second)

	header := first[0]
	assert.Equal(t, "organized_section_basic", header.ID)
	assert.Equal(t, 2, header.ColumnCount)
	assert.Equal(t, "responsive", header.ColumnLayout)
	assert.Equal(t, "Basic Information", header.Label)

	assert.Empty(t, OrganizeByCategory(nil, flags))
}

func TestModelOrganize(t *testing.T) {
	m := build(t,
		types.SectionBreak("s1", "Old"),
		types.FieldItem("due"),
		types.ColumnBreak("c1"),
		types.FieldItem("name"),
		types.FieldItem("unregistered"),
		types.FieldItem("started"),
	)

	require.NoError(t, m.Organize(organizeFixture(), OrganizeFlags{GroupRelated: true, PrioritizeRequired: true}))
	assert.Equal(t,
		[]string{"name", "unregistered", "#organized_section_date", "due", "started"},
		describe(m.Items()))
	assert.ElementsMatch(t, []string{"due", "name", "unregistered", "started"}, m.FieldNames())

	require.NoError(t, m.Append(types.FieldItem("owner")))
	assert.True(t, errors.Is(m.Append(types.FieldItem("due")), types.ErrDuplicate))
}
