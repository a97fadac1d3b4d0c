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

// ContactHandler exposes the public contact form and the staff inbox.
type ContactHandler struct {
	contacts *service.ContactService
}

// NewContactHandler constructs ContactHandler.
func NewContactHandler(contacts *service.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Submit godoc
// @Summary Submit a contact message
// @Tags Contact
// @Accept json
// @Produce json
// @Param payload body service.SubmitContactRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Submit(c *gin.Context) {
	var req service.SubmitContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	// Logged-in submitters may omit name and email.
	if claims := claimsFromContext(c); claims != nil {
		if req.Name == "" {
			req.Name = claims.Name
		}
		if req.Email == "" {
			req.Email = claims.Email
		}
	}
	contact, err := h.contacts.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contact)
}

// List godoc
// @Summary Staff inbox
// @Tags Contact
// @Security BearerAuth
// @Produce json
// @Param status query string false "Filter by workflow status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /contact [get]
func (h *ContactHandler) List(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter models.ContactFilter
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = size
	}

	contacts, pagination, counts, err := h.contacts.List(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{}
	if counts != nil {
		meta["status_counts"] = counts
	}
	response.JSON(c, http.StatusOK, contacts, pagination, meta)
}

// Get godoc
// @Summary Inbox message detail
// @Tags Contact
// @Security BearerAuth
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Router /contact/{id} [get]
func (h *ContactHandler) Get(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	contact, err := h.contacts.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contact, nil)
}

// UpdateStatus godoc
// @Summary Move a message through the workflow
// @Tags Contact
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param payload body service.UpdateContactStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /contact/{id}/status [patch]
func (h *ContactHandler) UpdateStatus(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateContactStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	contact, err := h.contacts.UpdateStatus(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contact, nil)
}

// Respond godoc
// @Summary Reply to a message
// @Tags Contact
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param payload body service.RespondContactRequest true "Response payload"
// @Success 200 {object} response.Envelope
// @Router /contact/{id}/respond [post]
func (h *ContactHandler) Respond(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RespondContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	contact, err := h.contacts.Respond(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contact, nil)
}
