package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/service"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/response"
)

// FacultyHandler exposes the public faculty directory endpoints.
type FacultyHandler struct {
	faculty *service.FacultyService
}

// NewFacultyHandler constructs FacultyHandler.
func NewFacultyHandler(faculty *service.FacultyService) *FacultyHandler {
	return &FacultyHandler{faculty: faculty}
}

// List godoc
// @Summary List faculty
// @Tags Faculty
// @Produce json
// @Param department query string false "Filter by department"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /faculty [get]
func (h *FacultyHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	faculty, pagination, err := h.faculty.List(c.Request.Context(), c.Query("department"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, pagination)
}

// Me godoc
// @Summary Own faculty profile
// @Tags Faculty
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/me [get]
func (h *FacultyHandler) Me(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	faculty, err := h.faculty.Me(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}

// Get godoc
// @Summary Faculty detail with courses taught
// @Tags Faculty
// @Produce json
// @Param id path string true "Faculty ID"
// @Success 200 {object} response.Envelope
// @Router /faculty/{id} [get]
func (h *FacultyHandler) Get(c *gin.Context) {
	faculty, err := h.faculty.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}

// Update godoc
// @Summary Update a faculty profile
// @Tags Faculty
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Faculty ID"
// @Param payload body models.UpdateFacultyRequest true "Faculty payload"
// @Success 200 {object} response.Envelope
// @Router /faculty/{id} [put]
func (h *FacultyHandler) Update(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.UpdateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	faculty, err := h.faculty.Update(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}

// Deactivate godoc
// @Summary Deactivate a faculty profile
// @Tags Faculty
// @Security BearerAuth
// @Param id path string true "Faculty ID"
// @Success 204
// @Router /faculty/{id} [delete]
func (h *FacultyHandler) Deactivate(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.faculty.Deactivate(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
