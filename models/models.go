package models

import (
	"time"
)

type DatabaseConfig struct {
	Name             string                 `json:"name"`
	DbType           string                 `json:"db_type" validate:"required,oneof=postgresql mysql sqlite"`
	Host             string                 `json:"host" validate:"required_unless=DbType sqlite"`
	Port             int                    `json:"port" validate:"omitempty,min=1,max=65535"`
	DatabaseName     string                 `json:"database_name" validate:"required"` // file path for sqlite
	Username         string                 `json:"username" validate:"required_unless=DbType sqlite"`
	Password         string                 `json:"password"`
	SSLMode          string                 `json:"ssl_mode"`
	ConnectionParams map[string]interface{} `json:"connection_params"`
	MaxOpenConns     int                    `json:"max_open_conns"`
	MaxIdleConns     int                    `json:"max_idle_conns"`
	ConnMaxLifetime  int                    `json:"conn_max_lifetime"`
	LogLevel         string                 `json:"log_level" validate:"omitempty,oneof=silent error warn info"`
	Description      string                 `json:"description"`
}

// TableDefinition is a user-defined table. Fields holds the JSON encoded
// field list.
type TableDefinition struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	Name            string `json:"name" gorm:"size:64;not null;uniqueIndex"`
	Label           string `json:"label" gorm:"size:255"`
	Description     string `json:"description" gorm:"type:text"`
	Fields          string `json:"fields" gorm:"type:text"`
	SchemaGenerated bool   `json:"schema_generated" gorm:"default:false"`

	IsActive bool `json:"is_active" gorm:"default:true"`
	Version  int  `json:"version" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TableDefinition) TableName() string {
	return "flansa_tables"
}

// FormConfiguration stores the saved layout of a table's form as JSON.
type FormConfiguration struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	DBTableName string `json:"table_name" gorm:"column:table_name;size:64;not null;uniqueIndex"`
	Layout      string `json:"layout" gorm:"type:text"`

	IsActive bool `json:"is_active" gorm:"default:true"`
	Version  int  `json:"version" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FormConfiguration) TableName() string {
	return "flansa_form_configurations"
}

type SavedReport struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ReportID  string `json:"report_id" gorm:"size:36;not null;uniqueIndex"`
	Title     string `json:"title" gorm:"size:255;not null"`
	BaseTable string `json:"base_table" gorm:"size:64;not null;index"`
	Config    string `json:"config" gorm:"type:text;not null"`

	IsActive bool `json:"is_active" gorm:"default:true"`
	Version  int  `json:"version" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SavedReport) TableName() string {
	return "flansa_saved_reports"
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&TableDefinition{},
		&FormConfiguration{},
		&SavedReport{},
	}
}
