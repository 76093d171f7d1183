package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

type Mode int

const (
	// ModePreview truncates long text for table cells and tiles.
	ModePreview Mode = iota
	// ModeExport keeps every value whole.
	ModeExport
)

const (
	DefaultMaxLength = 50
	Ellipsis         = "..."

	DateLayout     = "1/2/2006"
	DateTimeLayout = "1/2/2006, 3:04:05 PM"

	CheckMark = "✓"
	CrossMark = "✗"
)

var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type Formatter struct {
	Mode       Mode
	MaxLength  int
	FilePrefix string
	Location   *time.Location
}

func NewFormatter(mode Mode) *Formatter {
	return &Formatter{
		Mode:       mode,
		MaxLength:  DefaultMaxLength,
		FilePrefix: DefaultFilePrefix,
		Location:   time.UTC,
	}
}

var preview = NewFormatter(ModePreview)

// FormatValue formats a value for an interactive preview.
func FormatValue(value interface{}, ft types.FieldType) string {
	return preview.Format(value, ft)
}

// Format never fails: values that do not fit their declared type are shown
// as plain strings.
func (f *Formatter) Format(value interface{}, ft types.FieldType) string {
	if value == nil {
		return ""
	}

	switch {
	case ft == types.FieldTypeDate:
		if t, ok := f.toTime(value); ok {
			return t.Format(DateLayout)
		}
	case ft == types.FieldTypeDateTime:
		if t, ok := f.toTime(value); ok {
			return t.Format(DateTimeLayout)
		}
	case ft == types.FieldTypeCurrency || ft == types.FieldTypeDecimal:
		if n, ok := toFloat(value); ok {
			return strconv.FormatFloat(n, 'f', 2, 64)
		}
	case ft == types.FieldTypeBoolean:
		if truthy(value) {
			return CheckMark
		}
		return CrossMark
	case ft.IsAttachment():
		return strings.Join(ExtractAttachmentURLs(toString(value), f.FilePrefix), ", ")
	}

	return f.truncate(toString(value))
}

// FormatRow formats each selected column of a result row.
func (f *Formatter) FormatRow(row map[string]interface{}, fields []types.Field) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		out[field.Name] = f.Format(row[field.Name], field.Type)
	}
	return out
}

func (f *Formatter) truncate(s string) string {
	if f.Mode == ModeExport || f.MaxLength <= 0 {
		return s
	}
	if utf8.RuneCountInString(s) <= f.MaxLength {
		return s
	}
	return string([]rune(s)[:f.MaxLength]) + Ellipsis
}

func (f *Formatter) toTime(value interface{}) (time.Time, bool) {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}

	switch v := value.(type) {
	case time.Time:
		return v.In(loc), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.In(loc), true
	}

	s := strings.TrimSpace(toString(value))
	for _, layout := range storedTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return n, err == nil
	}
	return 0, false
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
		return false
	case []byte:
		return truthy(string(v))
	}
	if n, ok := toFloat(value); ok {
		return n != 0
	}
	return false
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatFloat(v, 'f', 0, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	}
	return fmt.Sprint(value)
}
