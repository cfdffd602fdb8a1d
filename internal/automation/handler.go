package automation

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sdrops/internal/logger"
	"sdrops/pkg/errors"
)

type Handler struct {
	Service Service
	Logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errors.ToErrorResponse(err))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
}

// RegisterRoutes mounts the automation API on an authenticated group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/automation-trigger", h.Trigger)

	rules := api.Group("/automation-rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.POST("/bulk-toggle", h.BulkToggle)
		rules.POST("/bulk-delete", h.BulkDeleteRules)
		rules.GET("/:id", h.GetRule)
		rules.PATCH("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
	}

	logs := api.Group("/automation-logs")
	{
		logs.GET("", h.ListLogs)
		logs.GET("/export", h.ExportLogs)
		logs.GET("/analytics", h.Analytics)
		logs.GET("/:id", h.GetLog)
		logs.POST("/bulk-delete", h.BulkDeleteLogs)
		logs.DELETE("", h.ClearLogs)
	}
}

// Trigger godoc
// @Summary      Evaluate a tag change
// @Description  Match the tag change of an export against enabled rules and dispatch their actions
// @Tags         automation
// @Accept       json
// @Produce      json
// @Param        event  body      TriggerRequest  true  "Tag change"
// @Success      200    {object}  TriggerResponse
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      401    {object}  errors.ErrorResponse
// @Failure      500    {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-trigger [post]
func (h *Handler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.Trigger(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListRules godoc
// @Summary      List automation rules
// @Tags         automation-rules
// @Produce      json
// @Success      200  {array}   Rule
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.Service.ListRules(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule godoc
// @Summary      Create an automation rule
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        rule  body      CreateRuleRequest  true  "Rule"
// @Success      201   {object}  Rule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      401   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.Service.CreateRule(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetRule godoc
// @Summary      Get an automation rule
// @Tags         automation-rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  Rule
// @Failure      404  {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	found, err := h.Service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// UpdateRule godoc
// @Summary      Partially update an automation rule
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Rule ID"
// @Param        rule  body      UpdateRuleRequest  true  "Fields to change"
// @Success      200   {object}  Rule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules/{id} [patch]
func (h *Handler) UpdateRule(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.Service.UpdateRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRule godoc
// @Summary      Delete an automation rule and its execution logs
// @Tags         automation-rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  DeletedResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	resp, err := h.Service.DeleteRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BulkToggle godoc
// @Summary      Enable or disable several rules
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        body  body      BulkToggleRequest  true  "Rule ids and target state"
// @Success      200   {object}  BulkToggleResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules/bulk-toggle [post]
func (h *Handler) BulkToggle(c *gin.Context) {
	var req BulkToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.BulkToggle(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BulkDeleteRules godoc
// @Summary      Delete several rules and their execution logs
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        body  body      IDsRequest  true  "Rule ids"
// @Success      200   {object}  DeletedCountResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-rules/bulk-delete [post]
func (h *Handler) BulkDeleteRules(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.BulkDeleteRules(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListLogs godoc
// @Summary      List execution logs
// @Tags         automation-logs
// @Produce      json
// @Param        rule_id      query     string  false  "Rule ID"
// @Param        export_id    query     string  false  "Export ID"
// @Param        status       query     string  false  "pending, success or error"
// @Param        action_type  query     string  false  "Action type"
// @Param        date_from    query     string  false  "YYYY-MM-DD or RFC3339"
// @Param        date_to      query     string  false  "YYYY-MM-DD (inclusive) or RFC3339"
// @Param        tag          query     string  false  "Trigger tag of the rule"
// @Param        search       query     string  false  "Matches rule name, export id and error message"
// @Param        sort_by      query     string  false  "created_at, status, action_type, rule_name or export_id"
// @Param        sort_dir     query     string  false  "asc or desc"
// @Param        page         query     int     false  "Page, from 1"
// @Param        limit        query     int     false  "Page size, at most 200"
// @Success      200          {object}  LogListResponse
// @Failure      400          {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-logs [get]
func (h *Handler) ListLogs(c *gin.Context) {
	var filter LogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.ListLogs(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ExportLogs godoc
// @Summary      Export execution logs as CSV
// @Description  Accepts the same filters as the log listing. At most 10000 rows are exported.
// @Tags         automation-logs
// @Produce      text/csv
// @Success      200  {string}  string  "CSV file"
// @Failure      400  {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-logs/export [get]
func (h *Handler) ExportLogs(c *gin.Context) {
	var filter LogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}

	logs, err := h.Service.ExportLogs(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := WriteLogsCSV(&buf, logs); err != nil {
		h.HandleError(c, errors.Wrap(err, errors.ErrInternal))
		return
	}

	filename := fmt.Sprintf("automation-logs-%s.csv", time.Now().UTC().Format(dateOnly))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Analytics godoc
// @Summary      Execution analytics
// @Tags         automation-logs
// @Produce      json
// @Param        rule_id    query     string  false  "Rule ID"
// @Param        status     query     string  false  "pending, success or error"
// @Param        date_from  query     string  false  "YYYY-MM-DD or RFC3339"
// @Param        date_to    query     string  false  "YYYY-MM-DD (inclusive) or RFC3339"
// @Success      200        {object}  Analytics
// @Failure      400        {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-logs/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	var filter AnalyticsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.Analytics(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetLog godoc
// @Summary      Get an execution log with its rule
// @Tags         automation-logs
// @Produce      json
// @Param        id   path      string  true  "Log ID"
// @Success      200  {object}  LogDetail
// @Failure      404  {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-logs/{id} [get]
func (h *Handler) GetLog(c *gin.Context) {
	detail, err := h.Service.GetLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// BulkDeleteLogs godoc
// @Summary      Delete execution logs by id
// @Tags         automation-logs
// @Accept       json
// @Produce      json
// @Param        body  body      IDsRequest  true  "Log ids"
// @Success      200   {object}  DeletedCountResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-logs/bulk-delete [post]
func (h *Handler) BulkDeleteLogs(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.BulkDeleteLogs(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClearLogs godoc
// @Summary      Delete execution logs matching a filter
// @Description  At least one of rule_id, status or a positive older_than_days is required.
// @Tags         automation-logs
// @Produce      json
// @Param        rule_id          query     string  false  "Rule ID"
// @Param        status           query     string  false  "pending, success or error"
// @Param        older_than_days  query     int     false  "Only rows older than this many days"
// @Success      200              {object}  DeletedCountResponse
// @Failure      400              {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /automation-logs [delete]
func (h *Handler) ClearLogs(c *gin.Context) {
	var filter ClearFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Service.ClearLogs(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
