package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campuschain/feedback-api/internal/service"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
	"github.com/campuschain/feedback-api/pkg/response"
)

// FeedbackHandler exposes submission and aggregate endpoints.
type FeedbackHandler struct {
	feedback *service.FeedbackService
	queries  *service.ChainQueryService
}

// NewFeedbackHandler creates a new handler.
func NewFeedbackHandler(feedback *service.FeedbackService, queries *service.ChainQueryService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, queries: queries}
}

// Submit godoc
// @Summary Submit feedback
// @Description Submit course feedback to the ledger for the caller's wallet
// @Tags Feedback
// @Accept json
// @Produce json
// @Param payload body service.SubmitFeedbackRequest true "Feedback payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /feedback [post]
func (h *FeedbackHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}

	receipt, err := h.feedback.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// Status godoc
// @Summary Get staged submission status
// @Description Fetch the staging record for a submission owned by the caller
// @Tags Feedback
// @Produce json
// @Param id path string true "Staging id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /feedback/{id}/status [get]
func (h *FeedbackHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	staged, err := h.feedback.Status(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, staged, nil)
}

// MySubmissions godoc
// @Summary List own submissions
// @Description List the caller's confirmed feedback submissions
// @Tags Feedback
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /feedback/mine [get]
func (h *FeedbackHandler) MySubmissions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, err := h.feedback.MySubmissions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Submitted godoc
// @Summary Check prior submission
// @Description Report whether the caller already submitted for a course and teacher
// @Tags Feedback
// @Produce json
// @Param course_id query int true "Course id"
// @Param teacher_id query string true "Teacher id"
// @Success 200 {object} response.Envelope
// @Router /feedback/submitted [get]
func (h *FeedbackHandler) Submitted(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courseID, err := strconv.ParseInt(c.Query("course_id"), 10, 64)
	teacherID := c.Query("teacher_id")
	if err != nil || courseID <= 0 || teacherID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course_id and teacher_id are required"))
		return
	}

	submitted, err := h.feedback.HasSubmitted(c.Request.Context(), claims.UserID, courseID, teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"submitted": submitted}, nil)
}

// Averages godoc
// @Summary Teacher course averages
// @Description Per-dimension rating means for a teacher on a course
// @Tags Feedback
// @Produce json
// @Param teacherId path string true "Teacher id"
// @Param courseId path int true "Course id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /feedback/averages/{teacherId}/{courseId} [get]
func (h *FeedbackHandler) Averages(c *gin.Context) {
	teacherID := c.Param("teacherId")
	courseID, err := strconv.ParseInt(c.Param("courseId"), 10, 64)
	if err != nil || courseID <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course id must be a positive integer"))
		return
	}

	averages, err := h.queries.TeacherCourseAverages(c.Request.Context(), teacherID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, averages, nil)
}
