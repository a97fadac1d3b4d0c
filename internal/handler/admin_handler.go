package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/pkg/response"
)

// AdminHandler exposes admin-only operational endpoints.
type AdminHandler struct {
	users *repository.UserRepository
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(users *repository.UserRepository) *AdminHandler {
	return &AdminHandler{users: users}
}

// Users godoc
// @Summary List registered users
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param role query string false "Filter by role"
// @Param search query string false "Match name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/users [get]
func (h *AdminHandler) Users(c *gin.Context) {
	var filter models.UserFilter
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	filter.Search = c.Query("search")
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	users, total, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, users, &pagination)
}

// AuditLog godoc
// @Summary Recent audit trail entries
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Max entries (default 100)"
// @Success 200 {object} response.Envelope
// @Router /admin/audit [get]
func (h *AdminHandler) AuditLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.users.ListAudit(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
