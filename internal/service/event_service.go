package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/roster"
	appErrors "github.com/edutech/college-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EventDetail, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
	Register(ctx context.Context, eventID, userID string) error
	Unregister(ctx context.Context, eventID, userID string) error
	Participants(ctx context.Context, eventID string) ([]models.EventParticipant, error)
	ListRegisteredByUser(ctx context.Context, userID string) ([]models.EventDetail, error)
	RefreshStatuses(ctx context.Context) (int64, error)
}

// CreateEventRequest creates a campus event.
type CreateEventRequest struct {
	Title                string            `json:"title" validate:"required,min=3,max=200"`
	Description          string            `json:"description"`
	Date                 time.Time         `json:"date" validate:"required"`
	EndDate              *time.Time        `json:"end_date"`
	Venue                string            `json:"venue" validate:"required"`
	Type                 models.EventType  `json:"type" validate:"required,oneof=academic cultural sports workshop seminar conference"`
	Organizer            string            `json:"organizer"`
	MaxParticipants      int               `json:"max_participants" validate:"omitempty,min=1,max=10000"`
	RegistrationDeadline *time.Time        `json:"registration_deadline"`
}

// UpdateEventRequest mutates event fields; absent fields stay untouched.
type UpdateEventRequest struct {
	Title                *string             `json:"title" validate:"omitempty,min=3,max=200"`
	Description          *string             `json:"description"`
	Date                 *time.Time          `json:"date"`
	EndDate              *time.Time          `json:"end_date"`
	Venue                *string             `json:"venue"`
	Type                 *models.EventType   `json:"type" validate:"omitempty,oneof=academic cultural sports workshop seminar conference"`
	Organizer            *string             `json:"organizer"`
	MaxParticipants      *int                `json:"max_participants" validate:"omitempty,min=1,max=10000"`
	Status               *models.EventStatus `json:"status" validate:"omitempty,oneof=upcoming ongoing completed cancelled"`
	RegistrationDeadline *time.Time          `json:"registration_deadline"`
}

// EventService provides campus event and registration use cases.
type EventService struct {
	repo      eventRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs an EventService instance.
func NewEventService(repo eventRepository, validate *validator.Validate, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EventService{repo: repo, validator: validate, logger: logger}
}

// List returns events filtered by type and status.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one event with its participant count.
func (s *EventService) Get(ctx context.Context, id string) (*models.EventDetail, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch event")
	}
	return event, nil
}

// Create adds a campus event. Staff only.
func (s *EventService) Create(ctx context.Context, p models.Principal, req CreateEventRequest) (*models.Event, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may create events")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	capacity := req.MaxParticipants
	if capacity <= 0 {
		capacity = models.DefaultEventCapacity
	}
	event := &models.Event{
		Title:                req.Title,
		Description:          req.Description,
		Date:                 req.Date,
		EndDate:              req.EndDate,
		Venue:                req.Venue,
		Type:                 req.Type,
		Organizer:            req.Organizer,
		MaxParticipants:      capacity,
		Status:               models.EventUpcoming,
		RegistrationDeadline: req.RegistrationDeadline,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// Update mutates an event. Staff only.
func (s *EventService) Update(ctx context.Context, p models.Principal, id string, req UpdateEventRequest) (*models.EventDetail, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may update events")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch event")
	}

	event := detail.Event
	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Date != nil {
		event.Date = *req.Date
	}
	if req.EndDate != nil {
		event.EndDate = req.EndDate
	}
	if req.Venue != nil {
		event.Venue = *req.Venue
	}
	if req.Type != nil {
		event.Type = *req.Type
	}
	if req.Organizer != nil {
		event.Organizer = *req.Organizer
	}
	if req.MaxParticipants != nil {
		if *req.MaxParticipants < detail.ParticipantCount {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "capacity is below the current participant count")
		}
		event.MaxParticipants = *req.MaxParticipants
	}
	if req.Status != nil {
		event.Status = *req.Status
	}
	if req.RegistrationDeadline != nil {
		event.RegistrationDeadline = req.RegistrationDeadline
	}

	if err := s.repo.Update(ctx, &event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return s.repo.FindByID(ctx, id)
}

// Delete removes an event and its roster. Admin only.
func (s *EventService) Delete(ctx context.Context, p models.Principal, id string) error {
	if !p.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete events")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if repository.IsNoEventRow(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	return nil
}

// Register adds the caller to the event roster. Any authenticated user may
// register; the repository enforces capacity under the event row lock.
func (s *EventService) Register(ctx context.Context, p models.Principal, eventID string) error {
	if err := s.repo.Register(ctx, eventID, p.UserID); err != nil {
		switch {
		case errors.Is(err, roster.ErrAlreadyMember):
			return appErrors.Clone(appErrors.ErrConflict, "already registered for this event")
		case errors.Is(err, roster.ErrFull):
			return appErrors.Clone(appErrors.ErrConflict, "event is full")
		case errors.Is(err, repository.ErrDeadlinePassed):
			return appErrors.Clone(appErrors.ErrInvalidState, "registration deadline has passed")
		case errors.Is(err, roster.ErrClosed):
			return appErrors.Clone(appErrors.ErrInvalidState, "event is not open for registration")
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register")
		}
	}
	return nil
}

// Unregister removes the caller from the event roster.
func (s *EventService) Unregister(ctx context.Context, p models.Principal, eventID string) error {
	if _, err := s.repo.FindByID(ctx, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch event")
	}
	if err := s.repo.Unregister(ctx, eventID, p.UserID); err != nil {
		if errors.Is(err, repository.ErrNotRegistered) {
			return appErrors.Clone(appErrors.ErrInvalidState, "not registered for this event")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unregister")
	}
	return nil
}

// Participants returns the event roster. Staff only.
func (s *EventService) Participants(ctx context.Context, p models.Principal, eventID string) ([]models.EventParticipant, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may view the participant list")
	}
	if _, err := s.repo.FindByID(ctx, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch event")
	}
	participants, err := s.repo.Participants(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	return participants, nil
}

// MyEvents returns events the caller has registered for.
func (s *EventService) MyEvents(ctx context.Context, p models.Principal) ([]models.EventDetail, error) {
	events, err := s.repo.ListRegisteredByUser(ctx, p.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registered events")
	}
	return events, nil
}

// RefreshStatuses rolls event lifecycle states forward. Invoked periodically
// from the server's background loop.
func (s *EventService) RefreshStatuses(ctx context.Context) {
	n, err := s.repo.RefreshStatuses(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh event statuses", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("event statuses refreshed", zap.Int64("updated", n))
	}
}
