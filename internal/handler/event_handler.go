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

// EventHandler exposes campus event endpoints.
type EventHandler struct {
	events  *service.EventService
	metrics *service.MetricsService
}

// NewEventHandler constructs EventHandler.
func NewEventHandler(events *service.EventService, metrics *service.MetricsService) *EventHandler {
	return &EventHandler{events: events, metrics: metrics}
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param type query string false "Filter by type"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var filter models.EventFilter
	filter.Type = c.Query("type")
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = size
	}

	events, pagination, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Event detail
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create an event
// @Tags Events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.events.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update an event
// @Tags Events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.events.Update(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete an event
// @Tags Events
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.events.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Register godoc
// @Summary Register for an event
// @Tags Events
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/register [post]
func (h *EventHandler) Register(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	err := h.events.Register(c.Request.Context(), p, c.Param("id"))
	h.metrics.ObserveEnrollment("event_register", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "registered"}, nil)
}

// Unregister godoc
// @Summary Cancel an event registration
// @Tags Events
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/register [delete]
func (h *EventHandler) Unregister(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	err := h.events.Unregister(c.Request.Context(), p, c.Param("id"))
	h.metrics.ObserveEnrollment("event_unregister", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "registration cancelled"}, nil)
}

// Participants godoc
// @Summary Event participant list
// @Tags Events
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/participants [get]
func (h *EventHandler) Participants(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	participants, err := h.events.Participants(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, nil)
}

// MyEvents godoc
// @Summary Events the caller registered for
// @Tags Events
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /events/mine [get]
func (h *EventHandler) MyEvents(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	events, err := h.events.MyEvents(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
