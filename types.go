package flansa

import (
	"github.com/dineshvijayakumar2/flansa-builder/query"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// APIResponse represents a standard API response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// OpenSessionResponse describes a form-builder session.
type OpenSessionResponse struct {
	SessionID string             `json:"session_id"`
	Table     string             `json:"table"`
	Items     []types.LayoutItem `json:"items"`
}

// ImportTableRequest creates a table from a CREATE TABLE statement.
type ImportTableRequest struct {
	CreateStatement string `json:"create_statement" binding:"required"`
	Label           string `json:"label"`
}

type AddFieldRequest struct {
	Field string `json:"field" binding:"required"`
	// Index is the flat position to insert at; nil appends.
	Index *int `json:"index"`
}

type MoveRequest struct {
	FieldIndex   int `json:"field_index"`
	SectionIndex int `json:"section_index"`
}

type MarkerRequest struct {
	Kind  types.ItemKind `json:"kind" binding:"required"`
	Label string         `json:"label"`
}

// SaveReportRequest stores a report built from Request under Title.
type SaveReportRequest struct {
	Title   string        `json:"title" binding:"required"`
	Request query.Request `json:"request"`
}

type SaveReportResponse struct {
	ReportID string              `json:"report_id"`
	Config   *types.ReportConfig `json:"config"`
}

type OpenReportResponse struct {
	Report  *types.SavedReport `json:"report"`
	Request query.Request      `json:"request"`
}
