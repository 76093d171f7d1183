package flansa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/otkinlife/go_tools/logger_tools"

	"github.com/dineshvijayakumar2/flansa-builder/layout"
	"github.com/dineshvijayakumar2/flansa-builder/middleware"
	"github.com/dineshvijayakumar2/flansa-builder/query"
	"github.com/dineshvijayakumar2/flansa-builder/services"
	"github.com/dineshvijayakumar2/flansa-builder/types"
)

// registerAPIRoutes registers all API routes
func (b *Builder) registerAPIRoutes(router *gin.Engine) {
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORS(b.config.CORSOrigins))

	api := router.Group(b.config.APIBasePath)
	{
		api.GET("/health", b.handleHealth)

		tables := api.Group("/tables")
		{
			tables.GET("", b.handleListTables)
			tables.POST("", b.handleCreateTable)
			tables.POST("/import", b.handleImportTable)
			tables.GET("/:table", b.handleGetTable)
			tables.DELETE("/:table", b.handleDeleteTable)
			tables.POST("/:table/schema", b.handleGenerateSchema)
			tables.GET("/:table/fields", b.handleTableFields)
			tables.GET("/:table/widgets", b.handleTableWidgets)
			tables.GET("/:table/groupable", b.handleGroupableFields)
			tables.GET("/:table/fields/:field/values", b.handleFieldValues)
		}

		forms := api.Group("/forms")
		{
			forms.POST("/:table/sessions", b.handleOpenSession)
			forms.GET("/sessions/:sid", b.withSession(b.handleGetSession))
			forms.DELETE("/sessions/:sid", b.handleCloseSession)
			forms.POST("/sessions/:sid/reload", b.withSession(b.handleReloadSession))
			forms.GET("/sessions/:sid/available", b.withSession(b.handleAvailableFields))
			forms.POST("/sessions/:sid/fields", b.withSession(b.handleAddField))
			forms.DELETE("/sessions/:sid/items/:index", b.withSession(b.handleRemoveItem))
			forms.POST("/sessions/:sid/move", b.withSession(b.handleMoveToSection))
			forms.POST("/sessions/:sid/markers", b.withSession(b.handleAddMarker))
			forms.POST("/sessions/:sid/organize", b.withSession(b.handleOrganize))
			forms.POST("/sessions/:sid/save", b.withSession(b.handleSaveForm))
			forms.GET("/sessions/:sid/preview", b.withSession(b.handlePreviewForm))
		}

		reports := api.Group("/reports")
		{
			reports.GET("", b.handleListReports)
			reports.POST("", b.handleSaveReport)
			reports.POST("/build", b.handleBuildReport)
			reports.POST("/preview", b.handlePreviewReport)
			reports.GET("/:id", b.handleOpenReport)
			reports.POST("/:id/execute", b.handleExecuteReport)
			reports.GET("/:id/export", b.handleExportReport)
		}
	}
}

// statusFor maps an error onto the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrBusy), errors.Is(err, services.ErrStale):
		return http.StatusConflict
	case errors.Is(err, types.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, types.ErrNoGroupableFields):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	resp := APIResponse{Success: false, Error: err.Error()}
	var verrs types.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Data = verrs
	}
	if status >= http.StatusInternalServerError {
		logger_tools.Error(c.Request.Context(), "Request failed:", err.Error())
	}
	c.JSON(status, resp)
}

func respondOK(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// bindJSON decodes the body into v, replying 400 on failure.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

func parsePagination(c *gin.Context) (types.Pagination, error) {
	var page types.Pagination
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, types.NewValidationError("page", "numeric", "page must be a number")
		}
		page.Page = n
	}
	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, types.NewValidationError("page_size", "numeric", "page_size must be a number")
		}
		page.PageSize = n
	}
	return page.Normalize(), nil
}

func (b *Builder) handleHealth(c *gin.Context) {
	if b.manager != nil {
		if err := b.manager.Ping(c.Request.Context()); err != nil {
			respondError(c, &types.BackendUnavailableError{Op: "ping", Err: err})
			return
		}
	}
	respondOK(c, http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": b.sessions.count(),
	}, "")
}

// Table handlers
func (b *Builder) handleListTables(c *gin.Context) {
	tables, err := b.apps.ListTables(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tables, "")
}

func (b *Builder) handleCreateTable(c *gin.Context) {
	var table types.Table
	if !bindJSON(c, &table) {
		return
	}
	if err := b.apps.CreateTable(c.Request.Context(), &table); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, table, "Table created")
}

func (b *Builder) handleImportTable(c *gin.Context) {
	var req ImportTableRequest
	if !bindJSON(c, &req) {
		return
	}
	table, err := b.apps.ImportTable(c.Request.Context(), req.CreateStatement, req.Label)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, table, "Table imported")
}

func (b *Builder) handleGetTable(c *gin.Context) {
	table, err := b.apps.GetTable(c.Request.Context(), c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, table, "")
}

func (b *Builder) handleDeleteTable(c *gin.Context) {
	name := c.Param("table")
	if err := b.apps.DeleteTable(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	b.sessions.closeTable(name)
	respondOK(c, http.StatusOK, nil, "Table deleted")
}

func (b *Builder) handleGenerateSchema(c *gin.Context) {
	if err := b.apps.GenerateSchema(c.Request.Context(), c.Param("table")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil, "Schema generated")
}

func (b *Builder) handleTableFields(c *gin.Context) {
	fields, err := b.apps.TableFields(c.Request.Context(), c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, fields, "")
}

func (b *Builder) handleTableWidgets(c *gin.Context) {
	widgets, err := b.apps.TableWidgets(c.Request.Context(), c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, widgets, "")
}

func (b *Builder) handleGroupableFields(c *gin.Context) {
	fields, err := b.NewReportBuilder().GroupableFields(c.Request.Context(), c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, fields, "")
}

func (b *Builder) handleFieldValues(c *gin.Context) {
	values, err := b.NewReportBuilder().FilterValues(c.Request.Context(), c.Param("table"), c.Param("field"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, values, "")
}

// Form session handlers
func (b *Builder) handleOpenSession(c *gin.Context) {
	form := b.NewFormBuilder(c.Param("table"))
	if err := form.Load(c.Request.Context()); err != nil {
		form.Close()
		respondError(c, err)
		return
	}

	id := b.sessions.add(form)
	ctx := logger_tools.WithFields(c.Request.Context(), map[string]any{"session_id": id, "table": form.Table()})
	logger_tools.Info(ctx, "Form session opened")

	respondOK(c, http.StatusCreated, OpenSessionResponse{
		SessionID: id,
		Table:     form.Table(),
		Items:     form.Items(),
	}, "")
}

// withSession resolves the :sid parameter before calling fn.
func (b *Builder) withSession(fn func(c *gin.Context, id string, form *services.FormBuilder)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sid")
		form, err := b.sessions.get(id)
		if err != nil {
			respondError(c, err)
			return
		}
		fn(c, id, form)
	}
}

func sessionState(id string, form *services.FormBuilder) OpenSessionResponse {
	return OpenSessionResponse{SessionID: id, Table: form.Table(), Items: form.Items()}
}

func (b *Builder) handleGetSession(c *gin.Context, id string, form *services.FormBuilder) {
	respondOK(c, http.StatusOK, sessionState(id, form), "")
}

func (b *Builder) handleCloseSession(c *gin.Context) {
	if err := b.sessions.close(c.Param("sid")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil, "Session closed")
}

func (b *Builder) handleReloadSession(c *gin.Context, id string, form *services.FormBuilder) {
	if err := form.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionState(id, form), "")
}

func (b *Builder) handleAvailableFields(c *gin.Context, id string, form *services.FormBuilder) {
	fields, err := form.AvailableFields(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, fields, "")
}

func (b *Builder) handleAddField(c *gin.Context, id string, form *services.FormBuilder) {
	var req AddFieldRequest
	if !bindJSON(c, &req) {
		return
	}
	at := -1
	if req.Index != nil {
		at = *req.Index
	}
	if err := form.AddField(c.Request.Context(), req.Field, at); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionState(id, form), "Field added")
}

func (b *Builder) handleRemoveItem(c *gin.Context, id string, form *services.FormBuilder) {
	at, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respondError(c, types.NewValidationError("index", "numeric", "index must be a number"))
		return
	}
	removed, err := form.RemoveItem(at)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, removed, "Item removed")
}

func (b *Builder) handleMoveToSection(c *gin.Context, id string, form *services.FormBuilder) {
	var req MoveRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := form.MoveToSection(req.FieldIndex, req.SectionIndex); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionState(id, form), "")
}

func (b *Builder) handleAddMarker(c *gin.Context, id string, form *services.FormBuilder) {
	var req MarkerRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		item types.LayoutItem
		err  error
	)
	switch req.Kind {
	case types.ItemSectionBreak:
		item, err = form.AddSection(req.Label)
	case types.ItemColumnBreak:
		item, err = form.AddColumn()
	default:
		err = types.NewValidationError("kind", "oneof", "'%s' is not a layout marker", req.Kind)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, item, "")
}

func (b *Builder) handleOrganize(c *gin.Context, id string, form *services.FormBuilder) {
	var flags layout.OrganizeFlags
	if !bindJSON(c, &flags) {
		return
	}
	if err := form.Organize(c.Request.Context(), flags); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionState(id, form), "")
}

func (b *Builder) handleSaveForm(c *gin.Context, id string, form *services.FormBuilder) {
	if err := form.Save(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionState(id, form), "Form saved")
}

func (b *Builder) handlePreviewForm(c *gin.Context, id string, form *services.FormBuilder) {
	respondOK(c, http.StatusOK, form.Preview(), "")
}

// Report handlers
func (b *Builder) handleListReports(c *gin.Context) {
	reports, err := b.NewReportBuilder().List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, reports, "")
}

func (b *Builder) handleBuildReport(c *gin.Context) {
	var req query.Request
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := b.NewReportBuilder().Build(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cfg, "")
}

func (b *Builder) handlePreviewReport(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req query.Request
	if !bindJSON(c, &req) {
		return
	}
	result, err := b.NewReportBuilder().Preview(c.Request.Context(), req, page)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result, "")
}

func (b *Builder) handleSaveReport(c *gin.Context) {
	var req SaveReportRequest
	if !bindJSON(c, &req) {
		return
	}
	id, cfg, err := b.NewReportBuilder().Save(c.Request.Context(), req.Title, req.Request)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, SaveReportResponse{ReportID: id, Config: cfg}, "Report saved")
}

func (b *Builder) handleOpenReport(c *gin.Context) {
	saved, req, err := b.NewReportBuilder().Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, OpenReportResponse{Report: saved, Request: req}, "")
}

func (b *Builder) handleExecuteReport(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		respondError(c, err)
		return
	}

	viewer := b.NewReportViewer()
	defer viewer.Close()

	if _, err := viewer.Open(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	result, err := viewer.Page(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result, "")
}

func (b *Builder) handleExportReport(c *gin.Context) {
	viewer := b.NewReportViewer()
	defer viewer.Close()

	saved, err := viewer.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := viewer.Export(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", saved.ReportID+".csv"))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
