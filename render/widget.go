// Package render maps fields to input widgets and stored values to display
// strings.
package render

import (
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

type WidgetKind string

const (
	WidgetSingleLine      WidgetKind = "single_line"
	WidgetMultiLine       WidgetKind = "multi_line"
	WidgetNumeric         WidgetKind = "numeric"
	WidgetDatePicker      WidgetKind = "date_picker"
	WidgetDateTimePicker  WidgetKind = "datetime_picker"
	WidgetCheckbox        WidgetKind = "checkbox"
	WidgetDropdown        WidgetKind = "dropdown"
	WidgetReferencePicker WidgetKind = "reference_picker"
	WidgetFileUpload      WidgetKind = "file_upload"
	WidgetImageUpload     WidgetKind = "image_upload"
)

// WidgetDescriptor tells a client which input to draw for a field in
// design mode.
type WidgetDescriptor struct {
	Field     string     `json:"field"`
	Label     string     `json:"label"`
	Kind      WidgetKind `json:"kind"`
	Options   []string   `json:"options,omitempty"`
	LinkTable string     `json:"link_table,omitempty"`
	Precision int        `json:"precision,omitempty"`
	Required  bool       `json:"required,omitempty"`
	ReadOnly  bool       `json:"read_only,omitempty"`
	// Placeholder is set for dropdowns with no options yet.
	Placeholder string `json:"placeholder,omitempty"`
}

var widgetKinds = map[types.FieldType]WidgetKind{
	types.FieldTypeText:            WidgetSingleLine,
	types.FieldTypeLongText:        WidgetMultiLine,
	types.FieldTypeInteger:         WidgetNumeric,
	types.FieldTypeDecimal:         WidgetNumeric,
	types.FieldTypeCurrency:        WidgetNumeric,
	types.FieldTypeDate:            WidgetDatePicker,
	types.FieldTypeDateTime:        WidgetDateTimePicker,
	types.FieldTypeBoolean:         WidgetCheckbox,
	types.FieldTypeSingleSelect:    WidgetDropdown,
	types.FieldTypeReference:       WidgetReferencePicker,
	types.FieldTypeFileAttachment:  WidgetFileUpload,
	types.FieldTypeImageAttachment: WidgetImageUpload,
}

// RenderInput returns the widget for a field. Unknown types get a
// single-line input.
func RenderInput(field types.Field) WidgetDescriptor {
	kind, ok := widgetKinds[field.Type]
	if !ok {
		kind = WidgetSingleLine
	}

	w := WidgetDescriptor{
		Field:    field.Name,
		Label:    field.DisplayLabel(),
		Kind:     kind,
		Required: field.Required,
		ReadOnly: field.ReadOnly,
	}

	switch field.Type {
	case types.FieldTypeDecimal, types.FieldTypeCurrency:
		w.Precision = 2
	case types.FieldTypeSingleSelect:
		w.Options = append([]string(nil), field.Options...)
		if len(w.Options) == 0 {
			w.Placeholder = "Select " + w.Label
		}
	case types.FieldTypeReference:
		w.LinkTable = field.LinkTable
	}
	return w
}

// RenderInputs maps every field in order.
func RenderInputs(fields []types.Field) []WidgetDescriptor {
	out := make([]WidgetDescriptor, len(fields))
	for i, f := range fields {
		out[i] = RenderInput(f)
	}
	return out
}
