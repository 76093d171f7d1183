package layout

import (
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// Category is the bucket a field is sorted into when a form is organized.
type Category string

const (
	CategoryRequired   Category = "required"
	CategoryBasic      Category = "basic"
	CategoryText       Category = "text"
	CategoryDate       Category = "date"
	CategoryRelation   Category = "relation"
	CategoryAttachment Category = "attachment"
)

// categoryOrder is the order buckets are emitted in.
var categoryOrder = []Category{
	CategoryRequired,
	CategoryBasic,
	CategoryText,
	CategoryDate,
	CategoryRelation,
	CategoryAttachment,
}

var categoryLabels = map[Category]string{
	CategoryRequired:   "Required Information",
	CategoryBasic:      "Basic Information",
	CategoryText:       "Details",
	CategoryDate:       "Dates",
	CategoryRelation:   "Related Records",
	CategoryAttachment: "Attachments",
}

var typeCategories = map[types.FieldType]Category{
	types.FieldTypeText:            CategoryBasic,
	types.FieldTypeInteger:         CategoryBasic,
	types.FieldTypeDecimal:         CategoryBasic,
	types.FieldTypeCurrency:        CategoryBasic,
	types.FieldTypeBoolean:         CategoryBasic,
	types.FieldTypeSingleSelect:    CategoryBasic,
	types.FieldTypeLongText:        CategoryText,
	types.FieldTypeDate:            CategoryDate,
	types.FieldTypeDateTime:        CategoryDate,
	types.FieldTypeReference:       CategoryRelation,
	types.FieldTypeFileAttachment:  CategoryAttachment,
	types.FieldTypeImageAttachment: CategoryAttachment,
}

// responsiveThreshold is the bucket size above which a responsive layout
// splits the section into two columns.
const responsiveThreshold = 3

type OrganizeFlags struct {
	GroupRelated       bool `json:"group_related"`
	PrioritizeRequired bool `json:"prioritize_required"`
	Responsive         bool `json:"responsive"`
}

// CategoryOf returns the bucket of a field under the given flags.
func CategoryOf(field types.Field, flags OrganizeFlags) Category {
	if flags.PrioritizeRequired && field.Required {
		return CategoryRequired
	}
	if c, ok := typeCategories[field.Type]; ok {
		return c
	}
	return CategoryBasic
}

// OrganizeByCategory lays the given fields out from scratch. Fields keep
// their relative order inside a bucket. Ids of generated markers depend only
// on the bucket, so equal input always yields equal output.
func OrganizeByCategory(fields []types.Field, flags OrganizeFlags) []types.LayoutItem {
	buckets := make(map[Category][]types.Field, len(categoryOrder))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = struct{}{}
		c := CategoryOf(f, flags)
		buckets[c] = append(buckets[c], f)
	}

	items := make([]types.LayoutItem, 0, len(fields)+2*len(categoryOrder))
	for _, c := range categoryOrder {
		bucket := buckets[c]
		if len(bucket) == 0 {
			continue
		}

		withHeader := flags.GroupRelated && len(bucket) > 1
		split := -1
		if withHeader {
			header := types.SectionBreak("organized_section_"+string(c), categoryLabels[c])
			if flags.Responsive && len(bucket) > responsiveThreshold {
				header.ColumnCount = 2
				header.ColumnLayout = "responsive"
				split = (len(bucket) + 1) / 2
			}
			items = append(items, header)
		}

		for i, f := range bucket {
			if i == split {
				items = append(items, types.ColumnBreak("organized_column_"+string(c)))
			}
			items = append(items, types.FieldItem(f.Name))
		}
	}

	for i := range items {
		items[i].Order = i
	}
	return items
}

// Organize replaces the layout with OrganizeByCategory applied to its placed
// fields. Prior sections and column breaks are discarded. known supplies the
// field metadata; placed fields missing from it are kept as basic fields.
func (m *Model) Organize(known []types.Field, flags OrganizeFlags) error {
	index := make(map[string]types.Field, len(known))
	for _, f := range known {
		index[f.Name] = f
	}

	names := m.FieldNames()
	fields := make([]types.Field, 0, len(names))
	for _, name := range names {
		f, ok := index[name]
		if !ok {
			f = types.Field{Name: name}
		}
		fields = append(fields, f)
	}

	next, err := FromItems(OrganizeByCategory(fields, flags), WithIDGenerator(m.newID))
	if err != nil {
		return err
	}
	m.sections = next.sections
	m.fields = next.fields
	return nil
}
