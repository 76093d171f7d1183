package types

import "strings"

// ReservedPrefix starts the names of synthetic report columns. Field names
// may not use it.
const ReservedPrefix = "__"

// FieldType is the declared type of a table column.
type FieldType string

const (
	FieldTypeText            FieldType = "Text"
	FieldTypeLongText        FieldType = "LongText"
	FieldTypeInteger         FieldType = "Integer"
	FieldTypeDecimal         FieldType = "Decimal"
	FieldTypeCurrency        FieldType = "Currency"
	FieldTypeDate            FieldType = "Date"
	FieldTypeDateTime        FieldType = "DateTime"
	FieldTypeBoolean         FieldType = "Boolean"
	FieldTypeSingleSelect    FieldType = "SingleSelect"
	FieldTypeReference       FieldType = "Reference"
	FieldTypeFileAttachment  FieldType = "FileAttachment"
	FieldTypeImageAttachment FieldType = "ImageAttachment"
)

// frappeFieldTypes maps backend fieldtype names onto the canonical set.
var frappeFieldTypes = map[string]FieldType{
	"data":            FieldTypeText,
	"text":            FieldTypeText,
	"small text":      FieldTypeLongText,
	"long text":       FieldTypeLongText,
	"longtext":        FieldTypeLongText,
	"text editor":     FieldTypeLongText,
	"int":             FieldTypeInteger,
	"integer":         FieldTypeInteger,
	"float":           FieldTypeDecimal,
	"decimal":         FieldTypeDecimal,
	"percent":         FieldTypeDecimal,
	"currency":        FieldTypeCurrency,
	"date":            FieldTypeDate,
	"datetime":        FieldTypeDateTime,
	"check":           FieldTypeBoolean,
	"boolean":         FieldTypeBoolean,
	"select":          FieldTypeSingleSelect,
	"singleselect":    FieldTypeSingleSelect,
	"link":            FieldTypeReference,
	"reference":       FieldTypeReference,
	"attach":          FieldTypeFileAttachment,
	"fileattachment":  FieldTypeFileAttachment,
	"attach image":    FieldTypeImageAttachment,
	"imageattachment": FieldTypeImageAttachment,
}

// NormalizeFieldType maps a backend type name to its canonical FieldType.
// Unrecognized names are returned unchanged so that future types survive a
// round trip.
func NormalizeFieldType(name string) FieldType {
	if t, ok := frappeFieldTypes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return FieldType(name)
}

// IsDateLike reports whether the type carries a calendar value.
func (t FieldType) IsDateLike() bool {
	return t == FieldTypeDate || t == FieldTypeDateTime
}

// IsNumeric reports whether values of this type can be aggregated.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldTypeInteger, FieldTypeDecimal, FieldTypeCurrency:
		return true
	}
	return false
}

// IsAttachment reports whether values are stored file references.
func (t FieldType) IsAttachment() bool {
	return t == FieldTypeFileAttachment || t == FieldTypeImageAttachment
}

// IsGroupable reports whether a report may group rows on this type.
func (t FieldType) IsGroupable() bool {
	switch t {
	case FieldTypeText, FieldTypeSingleSelect, FieldTypeReference,
		FieldTypeDate, FieldTypeDateTime, FieldTypeLongText:
		return true
	}
	return false
}

type Field struct {
	Name      string    `json:"name" validate:"required,identifier"`
	Label     string    `json:"label,omitempty"`
	Type      FieldType `json:"type" validate:"required"`
	Options   []string  `json:"options,omitempty"`    // select choices
	LinkTable string    `json:"link_table,omitempty"` // target of a Reference field
	Required  bool      `json:"required,omitempty"`
	ReadOnly  bool      `json:"read_only,omitempty"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

type ItemKind string

const (
	ItemField        ItemKind = "field"
	ItemSectionBreak ItemKind = "section_break"
	ItemColumnBreak  ItemKind = "column_break"
)

// LayoutItem is one entry of a form or report design. Kind selects the
// variant: field items carry FieldRef, section and column breaks carry ID.
type LayoutItem struct {
	Kind         ItemKind `json:"kind" validate:"required,oneof=field section_break column_break"`
	FieldRef     string   `json:"field_ref,omitempty" validate:"required_if=Kind field"`
	ID           string   `json:"id,omitempty" validate:"required_unless=Kind field"`
	Label        string   `json:"label,omitempty"`
	Order        int      `json:"order"`
	ColumnCount  int      `json:"column_count,omitempty" validate:"gte=0,lte=4"`
	ColumnLayout string   `json:"column_layout,omitempty"`
}

func FieldItem(name string) LayoutItem {
	return LayoutItem{Kind: ItemField, FieldRef: name}
}

func SectionBreak(id, label string) LayoutItem {
	return LayoutItem{Kind: ItemSectionBreak, ID: id, Label: label, ColumnCount: 1}
}

func ColumnBreak(id string) LayoutItem {
	return LayoutItem{Kind: ItemColumnBreak, ID: id}
}

func (i LayoutItem) IsField() bool   { return i.Kind == ItemField }
func (i LayoutItem) IsSection() bool { return i.Kind == ItemSectionBreak }

type FilterOperator string

const (
	OpEqual        FilterOperator = "="
	OpNotEqual     FilterOperator = "!="
	OpLike         FilterOperator = "like"
	OpNotLike      FilterOperator = "not like"
	OpGreater      FilterOperator = ">"
	OpLess         FilterOperator = "<"
	OpGreaterEqual FilterOperator = ">="
	OpLessEqual    FilterOperator = "<="
	OpIs           FilterOperator = "is"
	OpIsNot        FilterOperator = "is not"
)

// IgnoresValue reports whether the operator tests emptiness only.
func (o FilterOperator) IgnoresValue() bool {
	return o == OpIs || o == OpIsNot
}

func (o FilterOperator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpLike, OpNotLike, OpGreater, OpLess,
		OpGreaterEqual, OpLessEqual, OpIs, OpIsNot:
		return true
	}
	return false
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type GroupPeriod string

const (
	PeriodExact GroupPeriod = "exact"
	PeriodYear  GroupPeriod = "year"
	PeriodMonth GroupPeriod = "month"
	PeriodWeek  GroupPeriod = "week"
	PeriodDay   GroupPeriod = "day"
	PeriodHour  GroupPeriod = "hour"
)

type Aggregate string

const (
	AggregateGroup Aggregate = "group"
	AggregateCount Aggregate = "count"
	AggregateSum   Aggregate = "sum"
	AggregateAvg   Aggregate = "avg"
	AggregateMin   Aggregate = "min"
	AggregateMax   Aggregate = "max"
)

type FilterClause struct {
	Field    string         `json:"field" validate:"required,identifier"`
	Operator FilterOperator `json:"operator" validate:"required,filterop"`
	Value    string         `json:"value"`
}

type SortClause struct {
	Field     string        `json:"field" validate:"required,identifier"`
	Direction SortDirection `json:"direction" validate:"required,oneof=asc desc"`
}

type GroupClause struct {
	Field     string      `json:"field" validate:"required,identifier"`
	Period    GroupPeriod `json:"period" validate:"required,oneof=exact year month week day hour"`
	Aggregate Aggregate   `json:"aggregate" validate:"required,oneof=group count sum avg min max"`
}

// ReportConfig is the unit saved as a report and sent for execution.
type ReportConfig struct {
	BaseTable      string         `json:"base_table" validate:"required,identifier"`
	SelectedFields []Field        `json:"selected_fields" validate:"required,min=1,dive"`
	Filters        []FilterClause `json:"filters,omitempty" validate:"dive"`
	Sort           []SortClause   `json:"sort,omitempty" validate:"dive"`
	GroupBy        []GroupClause  `json:"group_by,omitempty" validate:"dive"`
}

// IsGrouped reports whether execution aggregates rows.
func (c *ReportConfig) IsGrouped() bool {
	return len(c.GroupBy) > 0
}

// FieldNames returns the names of the selected fields in order.
func (c *ReportConfig) FieldNames() []string {
	names := make([]string, len(c.SelectedFields))
	for i, f := range c.SelectedFields {
		names[i] = f.Name
	}
	return names
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"page_size"`
}

// Normalize applies defaults and clamps the page size.
func (p Pagination) Normalize() Pagination {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type Group struct {
	Key   map[string]interface{} `json:"key"`
	Count int64                  `json:"count"`
}

type ExecuteResult struct {
	Rows       []map[string]interface{} `json:"rows"`
	TotalCount int64                    `json:"total_count"`
	IsGrouped  bool                     `json:"is_grouped"`
	Groups     []Group                  `json:"groups,omitempty"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}

// Table describes a user-defined table known to the backend.
type Table struct {
	Name            string  `json:"name" validate:"required,identifier"`
	Label           string  `json:"label,omitempty"`
	Description     string  `json:"description,omitempty"`
	Fields          []Field `json:"fields" validate:"dive"`
	SchemaGenerated bool    `json:"schema_generated"`
}

type SavedReport struct {
	ReportID string        `json:"report_id"`
	Title    string        `json:"title"`
	Config   *ReportConfig `json:"config,omitempty"`
}
