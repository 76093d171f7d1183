package backend

import (
	"fmt"
	"strings"

	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// DataTablePrefix is prepended to a user table name to get the name of the
// table holding its records.
const DataTablePrefix = "fl_"

func PhysicalName(table string) string {
	return DataTablePrefix + table
}

// ColumnType returns the column type of a field for a gorm dialect name.
func ColumnType(dialect string, ft types.FieldType) string {
	switch ft {
	case types.FieldTypeText, types.FieldTypeSingleSelect, types.FieldTypeReference:
		if dialect == "sqlite" {
			return "TEXT"
		}
		return "VARCHAR(255)"
	case types.FieldTypeInteger:
		if dialect == "sqlite" {
			return "INTEGER"
		}
		return "BIGINT"
	case types.FieldTypeDecimal, types.FieldTypeCurrency:
		switch dialect {
		case "sqlite":
			return "REAL"
		case "postgres":
			return "NUMERIC(18,6)"
		}
		return "DECIMAL(18,6)"
	case types.FieldTypeDate:
		return "DATE"
	case types.FieldTypeDateTime:
		switch dialect {
		case "postgres":
			return "TIMESTAMP"
		}
		return "DATETIME"
	case types.FieldTypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func primaryKeyDefinition(dialect string) string {
	switch dialect {
	case "postgres":
		return "id BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func columnDefinition(dialect string, quote func(string) string, f types.Field) string {
	return fmt.Sprintf("%s %s", quote(f.Name), ColumnType(dialect, f.Type))
}

// createTableSQL builds the statement creating the data table of t.
func createTableSQL(dialect string, quote func(string) string, t *types.Table) string {
	columns := make([]string, 0, len(t.Fields)+1)
	columns = append(columns, primaryKeyDefinition(dialect))
	for _, f := range t.Fields {
		if f.Name == "id" {
			continue
		}
		columns = append(columns, columnDefinition(dialect, quote, f))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)",
		quote(PhysicalName(t.Name)),
		strings.Join(columns, ",\n  "))
}

func addColumnSQL(dialect string, quote func(string) string, table string, f types.Field) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(PhysicalName(table)), columnDefinition(dialect, quote, f))
}
