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
	"github.com/edutech/college-api/internal/repository"
	"github.com/edutech/college-api/internal/roster"
	appErrors "github.com/edutech/college-api/pkg/errors"
)

type fakeEventRepo struct {
	events       map[string]*models.Event
	participants map[string]map[string]bool
	deleted      []string
}

func newFakeEventRepo(events ...*models.Event) *fakeEventRepo {
	repo := &fakeEventRepo{
		events:       map[string]*models.Event{},
		participants: map[string]map[string]bool{},
	}
	for _, e := range events {
		repo.events[e.ID] = e
		repo.participants[e.ID] = map[string]bool{}
	}
	return repo
}

func (f *fakeEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	var out []models.EventDetail
	for _, e := range f.events {
		out = append(out, models.EventDetail{Event: *e, ParticipantCount: len(f.participants[e.ID])})
	}
	return out, len(out), nil
}

func (f *fakeEventRepo) FindByID(ctx context.Context, id string) (*models.EventDetail, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EventDetail{Event: *e, ParticipantCount: len(f.participants[id])}, nil
}

func (f *fakeEventRepo) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = "event-new"
	}
	f.events[event.ID] = event
	f.participants[event.ID] = map[string]bool{}
	return nil
}

func (f *fakeEventRepo) Update(ctx context.Context, event *models.Event) error {
	f.events[event.ID] = event
	return nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.events, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEventRepo) Register(ctx context.Context, eventID, userID string) error {
	event, ok := f.events[eventID]
	if !ok {
		return sql.ErrNoRows
	}
	admission := roster.Admission{
		AlreadyMember: f.participants[eventID][userID],
		Size:          len(f.participants[eventID]),
		Capacity:      event.MaxParticipants,
	}
	if event.Status != models.EventUpcoming {
		admission.Closed = roster.ErrClosed
	} else if event.RegistrationDeadline != nil && time.Now().After(*event.RegistrationDeadline) {
		admission.Closed = repository.ErrDeadlinePassed
	}
	if err := admission.Check(); err != nil {
		return err
	}
	f.participants[eventID][userID] = true
	return nil
}

func (f *fakeEventRepo) Unregister(ctx context.Context, eventID, userID string) error {
	if !f.participants[eventID][userID] {
		return repository.ErrNotRegistered
	}
	delete(f.participants[eventID], userID)
	return nil
}

func (f *fakeEventRepo) Participants(ctx context.Context, eventID string) ([]models.EventParticipant, error) {
	var out []models.EventParticipant
	for id := range f.participants[eventID] {
		out = append(out, models.EventParticipant{UserID: id})
	}
	return out, nil
}

func (f *fakeEventRepo) ListRegisteredByUser(ctx context.Context, userID string) ([]models.EventDetail, error) {
	var out []models.EventDetail
	for id, members := range f.participants {
		if members[userID] {
			out = append(out, models.EventDetail{Event: *f.events[id]})
		}
	}
	return out, nil
}

func (f *fakeEventRepo) RefreshStatuses(ctx context.Context) (int64, error) { return 0, nil }

func newEventSvc(repo *fakeEventRepo) *EventService {
	return NewEventService(repo, validator.New(), zap.NewNop())
}

func upcomingEvent(id string, capacity int) *models.Event {
	return &models.Event{
		ID:              id,
		Title:           "Tech Symposium",
		Date:            time.Now().Add(48 * time.Hour),
		Venue:           "Main Hall",
		Type:            models.EventAcademic,
		MaxParticipants: capacity,
		Status:          models.EventUpcoming,
	}
}

func TestEventServiceCreate(t *testing.T) {
	repo := newFakeEventRepo()
	svc := newEventSvc(repo)

	faculty := models.Principal{UserID: "f1", Role: models.RoleFaculty, Name: "Prof. Gray"}
	event, err := svc.Create(context.Background(), faculty, CreateEventRequest{
		Title: "Robotics Workshop", Date: time.Now().Add(72 * time.Hour),
		Venue: "Lab 2", Type: models.EventWorkshop,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventUpcoming, event.Status)
	assert.Equal(t, models.DefaultEventCapacity, event.MaxParticipants)
}

func TestEventServiceCreateForbiddenForStudents(t *testing.T) {
	svc := newEventSvc(newFakeEventRepo())

	_, err := svc.Create(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent}, CreateEventRequest{
		Title: "Student Party", Date: time.Now().Add(time.Hour),
		Venue: "Quad", Type: models.EventCultural,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEventServiceRegisterAndUnregister(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 50))
	svc := newEventSvc(repo)

	student := models.Principal{UserID: "s1", Role: models.RoleStudent}
	require.NoError(t, svc.Register(context.Background(), student, "e1"))
	assert.True(t, repo.participants["e1"]["s1"])

	require.NoError(t, svc.Unregister(context.Background(), student, "e1"))
	assert.False(t, repo.participants["e1"]["s1"])
}

func TestEventServiceRegisterTwice(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 50))
	svc := newEventSvc(repo)

	student := models.Principal{UserID: "s1", Role: models.RoleStudent}
	require.NoError(t, svc.Register(context.Background(), student, "e1"))
	err := svc.Register(context.Background(), student, "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEventServiceRegisterFull(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 1))
	repo.participants["e1"]["s0"] = true
	svc := newEventSvc(repo)

	err := svc.Register(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent}, "e1")
	require.Error(t, err)
	got := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, got.Code)
	assert.Equal(t, "event is full", got.Message)
}

func TestEventServiceRegisterDeadlinePassed(t *testing.T) {
	event := upcomingEvent("e1", 50)
	deadline := time.Now().Add(-time.Hour)
	event.RegistrationDeadline = &deadline
	repo := newFakeEventRepo(event)
	svc := newEventSvc(repo)

	err := svc.Register(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent}, "e1")
	require.Error(t, err)
	got := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, got.Code)
	assert.Equal(t, "registration deadline has passed", got.Message)
}

func TestEventServiceRegisterCancelledEvent(t *testing.T) {
	event := upcomingEvent("e1", 50)
	event.Status = models.EventCancelled
	repo := newFakeEventRepo(event)
	svc := newEventSvc(repo)

	err := svc.Register(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent}, "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEventServiceUnregisterNotRegistered(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 50))
	svc := newEventSvc(repo)

	err := svc.Unregister(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent}, "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEventServiceUpdateCapacityBelowParticipants(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 50))
	repo.participants["e1"]["s1"] = true
	repo.participants["e1"]["s2"] = true
	svc := newEventSvc(repo)

	capacity := 1
	_, err := svc.Update(context.Background(), models.Principal{UserID: "a1", Role: models.RoleAdmin}, "e1", UpdateEventRequest{MaxParticipants: &capacity})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEventServiceDeleteAdminOnly(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 50))
	svc := newEventSvc(repo)

	err := svc.Delete(context.Background(), models.Principal{UserID: "f1", Role: models.RoleFaculty}, "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), models.Principal{UserID: "a1", Role: models.RoleAdmin}, "e1"))
	assert.Contains(t, repo.deleted, "e1")
}

func TestEventServiceMyEvents(t *testing.T) {
	repo := newFakeEventRepo(upcomingEvent("e1", 50), upcomingEvent("e2", 50))
	repo.participants["e1"]["s1"] = true
	svc := newEventSvc(repo)

	events, err := svc.MyEvents(context.Background(), models.Principal{UserID: "s1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}
