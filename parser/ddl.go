// Package parser turns CREATE TABLE statements into table definitions.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

var (
	tableNameRegex  = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([^\s(]+)`)
	sizedTypeRegex  = regexp.MustCompile(`^([a-z ]+?)\s*\(\s*(\d+)\s*(?:,\s*(\d+))?\s*\)(?:\s+unsigned)?$`)
	referencesRegex = regexp.MustCompile(`(?i)REFERENCES\s+([^\s(]+)`)
	quoteChars      = "\"`"
)

// sqlTypes maps column types of postgres, mysql and sqlite onto field types.
var sqlTypes = map[string]types.FieldType{
	"varchar":           types.FieldTypeText,
	"character varying": types.FieldTypeText,
	"char":              types.FieldTypeText,
	"character":         types.FieldTypeText,
	"uuid":              types.FieldTypeText,
	"text":              types.FieldTypeLongText,
	"mediumtext":        types.FieldTypeLongText,
	"longtext":          types.FieldTypeLongText,
	"json":              types.FieldTypeLongText,
	"jsonb":             types.FieldTypeLongText,
	"integer":           types.FieldTypeInteger,
	"int":               types.FieldTypeInteger,
	"int2":              types.FieldTypeInteger,
	"int4":              types.FieldTypeInteger,
	"int8":              types.FieldTypeInteger,
	"smallint":          types.FieldTypeInteger,
	"bigint":            types.FieldTypeInteger,
	"serial":            types.FieldTypeInteger,
	"bigserial":         types.FieldTypeInteger,
	"numeric":           types.FieldTypeDecimal,
	"decimal":           types.FieldTypeDecimal,
	"real":              types.FieldTypeDecimal,
	"float":             types.FieldTypeDecimal,
	"float4":            types.FieldTypeDecimal,
	"float8":            types.FieldTypeDecimal,
	"double":            types.FieldTypeDecimal,
	"double precision":  types.FieldTypeDecimal,
	"money":             types.FieldTypeCurrency,
	"boolean":           types.FieldTypeBoolean,
	"bool":              types.FieldTypeBoolean,
	"date":              types.FieldTypeDate,
	"timestamp":         types.FieldTypeDateTime,
	"timestamptz":       types.FieldTypeDateTime,
	"datetime":          types.FieldTypeDateTime,

	"timestamp without time zone": types.FieldTypeDateTime,
	"timestamp with time zone":    types.FieldTypeDateTime,
}

// ParseCreateStatement reads a single CREATE TABLE statement. Table
// constraints and the id column are skipped; NOT NULL columns become
// required fields.
func ParseCreateStatement(createSQL string) (*types.Table, error) {
	createSQL = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(createSQL), ";"))

	matches := tableNameRegex.FindStringSubmatch(createSQL)
	if len(matches) < 2 {
		return nil, types.NewValidationError("create_statement", "table", "cannot extract table name from CREATE statement")
	}
	name := unquote(matches[1])
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = unquote(name[i+1:])
	}

	open := strings.Index(createSQL, "(")
	end := strings.LastIndex(createSQL, ")")
	if open < 0 || end <= open {
		return nil, types.NewValidationError("create_statement", "columns", "cannot extract columns from CREATE statement")
	}

	table := &types.Table{Name: name}
	for _, def := range splitTopLevel(createSQL[open+1:end], ',') {
		def = strings.TrimSpace(def)
		if def == "" || isConstraint(def) {
			continue
		}
		field, err := parseColumn(def)
		if err != nil {
			return nil, fmt.Errorf("failed to parse column '%s': %w", def, err)
		}
		if field.Name == "id" {
			continue
		}
		table.Fields = append(table.Fields, field)
	}
	return table, nil
}

func unquote(s string) string {
	return strings.Trim(s, quoteChars)
}

func isConstraint(def string) bool {
	def = strings.ToUpper(def)
	for _, prefix := range []string{"PRIMARY KEY", "FOREIGN KEY", "UNIQUE", "CHECK", "CONSTRAINT", "KEY ", "INDEX "} {
		if strings.HasPrefix(def, prefix) {
			return true
		}
	}
	return false
}

func parseColumn(def string) (types.Field, error) {
	parts := splitTopLevel(def, ' ')
	if len(parts) < 2 {
		return types.Field{}, types.NewValidationError("create_statement", "column", "invalid column definition: %s", def)
	}

	field := types.Field{Name: unquote(parts[0])}

	// Multi-word types such as "double precision" or "timestamp with time
	// zone" run until the first constraint keyword.
	typeWords := []string{parts[1]}
	rest := parts[2:]
	for len(rest) > 0 && !isConstraintKeyword(rest[0]) {
		typeWords = append(typeWords, rest[0])
		rest = rest[1:]
	}

	ft, err := fieldType(strings.Join(typeWords, " "))
	if err != nil {
		return types.Field{}, err
	}
	field.Type = ft

	constraints := strings.ToUpper(strings.Join(rest, " "))
	field.Required = strings.Contains(constraints, "NOT NULL")
	if m := referencesRegex.FindStringSubmatch(strings.Join(rest, " ")); len(m) > 1 {
		field.Type = types.FieldTypeReference
		field.LinkTable = unquote(m[1])
	}
	return field, nil
}

func isConstraintKeyword(word string) bool {
	switch strings.ToUpper(word) {
	case "NOT", "NULL", "PRIMARY", "UNIQUE", "DEFAULT", "CHECK", "REFERENCES",
		"CONSTRAINT", "AUTO_INCREMENT", "AUTOINCREMENT", "COLLATE", "GENERATED", "COMMENT":
		return true
	}
	return false
}

func fieldType(sqlType string) (types.FieldType, error) {
	t := strings.ToLower(strings.TrimSpace(sqlType))

	if strings.HasSuffix(t, "[]") {
		return types.FieldTypeLongText, nil
	}
	if m := sizedTypeRegex.FindStringSubmatch(t); len(m) > 1 {
		base := strings.TrimSpace(m[1])
		if base == "tinyint" && m[2] == "1" {
			return types.FieldTypeBoolean, nil
		}
		t = base
	}
	t = strings.TrimSuffix(t, " unsigned")

	if ft, ok := sqlTypes[t]; ok {
		return ft, nil
	}
	if t == "tinyint" {
		return types.FieldTypeInteger, nil
	}
	return "", types.NewValidationError("create_statement", "type", "unsupported column type: %s", sqlType)
}

// splitTopLevel splits s on sep outside quotes and parentheses.
func splitTopLevel(s string, sep rune) []string {
	var (
		parts     []string
		current   strings.Builder
		depth     int
		inQuotes  bool
		quoteChar rune
	)

	isSep := func(r rune) bool {
		if sep == ' ' {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r'
		}
		return r == sep
	}

	for _, char := range s {
		switch {
		case char == '"' || char == '\'' || char == '`':
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
			}
			current.WriteRune(char)
		case char == '(' && !inQuotes:
			depth++
			current.WriteRune(char)
		case char == ')' && !inQuotes:
			depth--
			current.WriteRune(char)
		case isSep(char) && !inQuotes && depth == 0:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
