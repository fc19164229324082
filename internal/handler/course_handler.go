package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campuschain/feedback-api/internal/service"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
	"github.com/campuschain/feedback-api/pkg/response"
)

// CourseHandler exposes course read and creation endpoints.
type CourseHandler struct {
	queries      *service.ChainQueryService
	registration *service.RegistrationService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(queries *service.ChainQueryService, registration *service.RegistrationService) *CourseHandler {
	return &CourseHandler{queries: queries, registration: registration}
}

func courseIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "course id must be a positive integer")
	}
	return id, nil
}

// List godoc
// @Summary List courses
// @Description List all courses with assigned teachers and branch metadata
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	views, err := h.queries.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// Get godoc
// @Summary Get course
// @Description Fetch a single course by its numeric id
// @Tags Courses
// @Produce json
// @Param id path int true "Course id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	id, err := courseIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.queries.GetCourse(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Create godoc
// @Summary Create course
// @Description Create a course on chain and assign the listed teachers
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	creation, err := h.registration.CreateCourse(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, creation)
}
