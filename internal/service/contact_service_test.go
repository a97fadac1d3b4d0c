package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/jobs"
)

type fakeContactRepo struct {
	contacts map[string]*models.Contact
}

func newFakeContactRepo(contacts ...*models.Contact) *fakeContactRepo {
	repo := &fakeContactRepo{contacts: map[string]*models.Contact{}}
	for _, c := range contacts {
		repo.contacts[c.ID] = c
	}
	return repo
}

func (f *fakeContactRepo) Create(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = "msg-new"
	}
	contact.Status = models.ContactNew
	f.contacts[contact.ID] = contact
	return nil
}

func (f *fakeContactRepo) List(ctx context.Context, filter models.ContactFilter) ([]models.Contact, int, error) {
	var out []models.Contact
	for _, c := range f.contacts {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeContactRepo) FindByID(ctx context.Context, id string) (*models.Contact, error) {
	if c, ok := f.contacts[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeContactRepo) UpdateStatus(ctx context.Context, id string, status models.ContactStatus, assignedTo *string) (*models.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c.Status = status
	c.AssignedTo = assignedTo
	return c, nil
}

func (f *fakeContactRepo) RecordResponse(ctx context.Context, id, response, respondedBy string) (*models.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	now := time.Now()
	c.Response = &response
	c.RespondedBy = &respondedBy
	c.RespondedAt = &now
	c.Status = models.ContactResolved
	return c, nil
}

func (f *fakeContactRepo) CountByStatus(ctx context.Context) (map[models.ContactStatus]int, error) {
	counts := map[models.ContactStatus]int{}
	for _, c := range f.contacts {
		counts[c.Status]++
	}
	return counts, nil
}

type recordingMailer struct {
	sent chan string
}

func (m *recordingMailer) Send(to, subject, htmlBody string) error {
	m.sent <- to
	return nil
}

func newContactSvc(repo *fakeContactRepo, mailer contactMailer) *ContactService {
	return NewContactService(repo, mailer, validator.New(), zap.NewNop(), jobs.QueueConfig{Workers: 1})
}

func TestContactServiceSubmit(t *testing.T) {
	repo := newFakeContactRepo()
	svc := newContactSvc(repo, &recordingMailer{sent: make(chan string, 1)})

	contact, err := svc.Submit(context.Background(), SubmitContactRequest{
		Name: "Visitor", Email: "visitor@example.com",
		Subject: "Admission query", Message: "How do I apply for the spring intake?",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ContactNew, contact.Status)
	assert.Contains(t, repo.contacts, contact.ID)
}

func TestContactServiceSubmitInvalid(t *testing.T) {
	svc := newContactSvc(newFakeContactRepo(), &recordingMailer{sent: make(chan string, 1)})

	_, err := svc.Submit(context.Background(), SubmitContactRequest{Name: "X", Email: "bad", Subject: "", Message: "short"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestContactServiceListForbiddenForStudents(t *testing.T) {
	svc := newContactSvc(newFakeContactRepo(), &recordingMailer{sent: make(chan string, 1)})

	_, _, _, err := svc.List(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent}, models.ContactFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestContactServiceRespondSendsMail(t *testing.T) {
	repo := newFakeContactRepo(&models.Contact{
		ID: "m1", Name: "Visitor", Email: "visitor@example.com",
		Subject: "Admission query", Message: "How do I apply?", Status: models.ContactNew,
	})
	mailer := &recordingMailer{sent: make(chan string, 1)}
	svc := newContactSvc(repo, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartQueue(ctx)

	staff := models.Principal{UserID: "a1", Role: models.RoleAdmin}
	contact, err := svc.Respond(context.Background(), staff, "m1", RespondContactRequest{Response: "Applications open in March."})
	require.NoError(t, err)
	assert.Equal(t, models.ContactResolved, contact.Status)
	require.NotNil(t, contact.Response)

	select {
	case to := <-mailer.sent:
		assert.Equal(t, "visitor@example.com", to)
	case <-time.After(2 * time.Second):
		t.Fatal("response mail was not sent")
	}
	svc.StopQueue()
}

func TestContactServiceRespondNotFound(t *testing.T) {
	svc := newContactSvc(newFakeContactRepo(), &recordingMailer{sent: make(chan string, 1)})

	_, err := svc.Respond(context.Background(), models.Principal{UserID: "a1", Role: models.RoleAdmin}, "ghost", RespondContactRequest{Response: "hello there"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
