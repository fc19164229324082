package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/service"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
	"github.com/campuschain/feedback-api/pkg/response"
)

// AdminHandler exposes the privileged registration, reporting and contract
// administration endpoints.
type AdminHandler struct {
	registration *service.RegistrationService
	queries      *service.ChainQueryService
	exports      *service.ExportService
	resolver     *chain.AdminResolver
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(registration *service.RegistrationService, queries *service.ChainQueryService, exports *service.ExportService, resolver *chain.AdminResolver) *AdminHandler {
	return &AdminHandler{registration: registration, queries: queries, exports: exports, resolver: resolver}
}

// RegisterTeacher godoc
// @Summary Register teacher
// @Description Register a teacher on the ledger, idempotently
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.RegisterTeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/teachers [post]
func (h *AdminHandler) RegisterTeacher(c *gin.Context) {
	var req service.RegisterTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}

	registration, err := h.registration.RegisterTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// RegisterStudent godoc
// @Summary Register student wallet
// @Description Register a student wallet on the ledger, idempotently
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.RegisterStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/students [post]
func (h *AdminHandler) RegisterStudent(c *gin.Context) {
	var req service.RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}

	registration, err := h.registration.RegisterStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// AllFeedback godoc
// @Summary List all feedback
// @Description Full on-chain feedback log, newest first
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/feedback [get]
func (h *AdminHandler) AllFeedback(c *gin.Context) {
	records, err := h.queries.ListAllFeedback(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Dashboard godoc
// @Summary Dashboard stats
// @Description Aggregate counts and recent feedback for the admin dashboard
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.queries.DashboardStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ContractAdmin godoc
// @Summary Current contract admin
// @Description Report the current on-chain admin address
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/contract [get]
func (h *AdminHandler) ContractAdmin(c *gin.Context) {
	address, err := h.queries.ContractAdmin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"admin": address}, nil)
}

// EnsureAdmin godoc
// @Summary Rotate contract admin
// @Description Transfer contract adminship to the given address if needed
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body object true "Desired admin address"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/contract/rotate [post]
func (h *AdminHandler) EnsureAdmin(c *gin.Context) {
	var payload struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "admin address required"))
		return
	}

	desired, err := chain.ParseAddress(payload.Address)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid admin address"))
		return
	}

	rotation, err := h.resolver.EnsureAdmin(c.Request.Context(), desired)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rotation, nil)
}

// Export godoc
// @Summary Export feedback report
// @Description Download the full feedback log as csv or pdf
// @Tags Admin
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/feedback/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	result, err := h.exports.FeedbackReport(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
