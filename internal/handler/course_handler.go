package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edutech/college-api/internal/middleware"
	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/service"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/response"
)

// CourseHandler exposes catalog and enrollment endpoints.
type CourseHandler struct {
	courses *service.CourseService
	exports *service.ExportService
	metrics *service.MetricsService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService, exports *service.ExportService, metrics *service.MetricsService) *CourseHandler {
	return &CourseHandler{courses: courses, exports: exports, metrics: metrics}
}

// List godoc
// @Summary List the course catalog
// @Tags Courses
// @Produce json
// @Param department query string false "Filter by department"
// @Param semester query string false "Filter by semester"
// @Param faculty query string false "Filter by owning faculty"
// @Param search query string false "Match code, title or description"
// @Param status query string false "active (default), inactive or all"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.Department = c.Query("department")
	filter.Semester = c.Query("semester")
	filter.FacultyID = c.Query("faculty")
	filter.Search = c.Query("search")
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	result, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, result.CacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if len(result.DepartmentStats) > 0 {
		meta["department_stats"] = result.DepartmentStats
	}
	response.JSON(c, http.StatusOK, result.Courses, &result.Pagination, meta)
}

// Get godoc
// @Summary Course detail
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	result, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.courses.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "course deleted"}, nil)
}

// ToggleActive godoc
// @Summary Toggle catalog visibility
// @Tags Courses
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/status [patch]
func (h *CourseHandler) ToggleActive(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	course, err := h.courses.ToggleActive(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Enroll godoc
// @Summary Enroll in a course
// @Tags Courses
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	course, err := h.courses.Enroll(c.Request.Context(), p, c.Param("id"))
	h.metrics.ObserveEnrollment("course_enroll", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Unenroll godoc
// @Summary Leave a course
// @Tags Courses
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/unenroll [post]
func (h *CourseHandler) Unenroll(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	course, err := h.courses.Unenroll(c.Request.Context(), p, c.Param("id"))
	h.metrics.ObserveEnrollment("course_unenroll", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Roster godoc
// @Summary List enrolled students
// @Tags Courses
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Roster(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	students, err := h.courses.EnrolledStudents(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// ExportRoster godoc
// @Summary Export the roster as CSV or PDF
// @Tags Courses
// @Security BearerAuth
// @Produce octet-stream
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /courses/{id}/students/export [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	file, err := h.exports.Roster(c.Request.Context(), p, c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// MyCourses godoc
// @Summary The caller's courses
// @Tags Courses
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/mine [get]
func (h *CourseHandler) MyCourses(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.courses.MyCourses(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// AddResource godoc
// @Summary Attach a material to a course
// @Tags Courses
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.AddResourceRequest true "Resource payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/resources [post]
func (h *CourseHandler) AddResource(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.AddResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resource, err := h.courses.AddResource(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// RemoveResource godoc
// @Summary Remove a course material
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param resourceId path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/resources/{resourceId} [delete]
func (h *CourseHandler) RemoveResource(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.courses.RemoveResource(c.Request.Context(), p, c.Param("id"), c.Param("resourceId")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "resource removed"}, nil)
}

// Statistics godoc
// @Summary Catalog statistics
// @Tags Courses
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/statistics [get]
func (h *CourseHandler) Statistics(c *gin.Context) {
	stats, err := h.courses.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
