package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/jobs"
)

type contactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	List(ctx context.Context, filter models.ContactFilter) ([]models.Contact, int, error)
	FindByID(ctx context.Context, id string) (*models.Contact, error)
	UpdateStatus(ctx context.Context, id string, status models.ContactStatus, assignedTo *string) (*models.Contact, error)
	RecordResponse(ctx context.Context, id, response, respondedBy string) (*models.Contact, error)
	CountByStatus(ctx context.Context) (map[models.ContactStatus]int, error)
}

type contactMailer interface {
	Send(to, subject, htmlBody string) error
}

// SubmitContactRequest is the public contact-form payload.
type SubmitContactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,min=3,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

// UpdateContactStatusRequest moves a message through the inbox workflow.
type UpdateContactStatusRequest struct {
	Status     models.ContactStatus `json:"status" validate:"required,oneof=new in-progress resolved"`
	AssignedTo *string              `json:"assigned_to"`
}

// RespondContactRequest records a staff reply.
type RespondContactRequest struct {
	Response string `json:"response" validate:"required,min=2,max=5000"`
}

// mailJob is the payload carried on the outbound mail queue.
type mailJob struct {
	To      string
	Subject string
	Body    string
}

// ContactService provides the public contact form and staff inbox use cases.
// Replies go out through a retrying in-memory mail queue so a slow SMTP relay
// never blocks the request path.
type ContactService struct {
	repo      contactRepository
	mailer    contactMailer
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
}

// NewContactService constructs a ContactService instance. Call StartQueue
// before serving traffic and StopQueue on shutdown.
func NewContactService(repo contactRepository, mailer contactMailer, validate *validator.Validate, logger *zap.Logger, queueCfg jobs.QueueConfig) *ContactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	s := &ContactService{repo: repo, mailer: mailer, validator: validate, logger: logger}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("contact-mail", s.handleMailJob, queueCfg)
	return s
}

// StartQueue begins the outbound mail workers.
func (s *ContactService) StartQueue(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopQueue drains the outbound mail workers.
func (s *ContactService) StopQueue() {
	s.queue.Stop()
}

// Submit stores a public contact-form message.
func (s *ContactService) Submit(ctx context.Context, req SubmitContactRequest) (*models.Contact, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}

	contact := &models.Contact{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}
	if err := s.repo.Create(ctx, contact); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store message")
	}
	return contact, nil
}

// List returns the staff inbox with per-status counts.
func (s *ContactService) List(ctx context.Context, p models.Principal, filter models.ContactFilter) ([]models.Contact, *models.Pagination, map[models.ContactStatus]int, error) {
	if p.Role == models.RoleStudent {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may read the inbox")
	}
	contacts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to count inbox statuses", zap.Error(err))
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	return contacts, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, counts, nil
}

// Get returns one inbox message. Staff only.
func (s *ContactService) Get(ctx context.Context, p models.Principal, id string) (*models.Contact, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may read the inbox")
	}
	contact, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch message")
	}
	return contact, nil
}

// UpdateStatus moves a message through the workflow. Staff only.
func (s *ContactService) UpdateStatus(ctx context.Context, p models.Principal, id string, req UpdateContactStatusRequest) (*models.Contact, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may manage the inbox")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	contact, err := s.repo.UpdateStatus(ctx, id, req.Status, req.AssignedTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	return contact, nil
}

// Respond records a staff reply, resolves the message and enqueues the
// notification mail to the original sender.
func (s *ContactService) Respond(ctx context.Context, p models.Principal, id string, req RespondContactRequest) (*models.Contact, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may respond to messages")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}

	contact, err := s.repo.RecordResponse(ctx, id, req.Response, p.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record response")
	}

	body := fmt.Sprintf("<p>Hello %s,</p><p>Regarding your message %q:</p><blockquote>%s</blockquote><p>%s</p>",
		html.EscapeString(contact.Name),
		html.EscapeString(contact.Subject),
		html.EscapeString(contact.Message),
		html.EscapeString(req.Response),
	)
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: "contact-response",
		Payload: mailJob{
			To:      contact.Email,
			Subject: "Re: " + contact.Subject,
			Body:    body,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue response mail", zap.String("contact_id", id), zap.Error(err))
	}
	return contact, nil
}

func (s *ContactService) handleMailJob(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(mailJob)
	if !ok {
		s.logger.Error("unexpected mail job payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.mailer.Send(payload.To, payload.Subject, payload.Body)
}
