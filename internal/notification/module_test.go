package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salesops_backend/internal/events"
	leadrepo "salesops_backend/internal/leads/repository"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	created    []CreateParams
	createErr  error
	items      []Notification
	total      int
	lastLimit  int
	lastOffset int
	unread     int
	readIDs    []uuid.UUID
	markErr    error
	allFlipped int64
}

func (f *fakeStore) Create(_ context.Context, p CreateParams) (Notification, error) {
	if f.createErr != nil {
		return Notification{}, f.createErr
	}
	f.created = append(f.created, p)
	return Notification{ID: uuid.New(), Title: p.Title, Content: p.Content, Category: p.Category}, nil
}

func (f *fakeStore) List(_ context.Context, limit, offset int) ([]Notification, int, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return f.items, f.total, nil
}

func (f *fakeStore) CountUnread(_ context.Context) (int, error) { return f.unread, nil }

func (f *fakeStore) MarkRead(_ context.Context, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.readIDs = append(f.readIDs, id)
	return nil
}

func (f *fakeStore) MarkAllRead(_ context.Context) (int64, error) { return f.allFlipped, nil }

type fakeMessenger struct {
	groupID string
	text    string
	calls   int
	err     error
}

func (f *fakeMessenger) SendGroupMessage(_ context.Context, groupID, text string) error {
	f.calls++
	f.groupID = groupID
	f.text = text
	return f.err
}

func testModule(store Store) *Module {
	log := logger.New("development")
	return &Module{
		service:     NewService(store, log),
		log:         log,
		teamGroupID: "5511777777777-group",
	}
}

func leadFixture() leadrepo.Lead {
	name := "Bruno Lima"
	city := "Campinas"
	return leadrepo.Lead{
		ID:     uuid.New(),
		Phone:  "5511988776655",
		Name:   &name,
		City:   &city,
		Source: "meta_ads",
		Funnel: "professional",
		Score:  72,
	}
}

func TestHandleLeadCreatedWritesFeedRow(t *testing.T) {
	store := &fakeStore{}
	m := testModule(store)
	leadID := uuid.New()

	err := m.Handle(context.Background(), events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Phone:     "5511988776655",
		Name:      "Bruno Lima",
		Source:    "meta_ads",
		Funnel:    "professional",
		Score:     72,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created = %d rows, want 1", len(store.created))
	}
	row := store.created[0]
	if row.Title != "Novo lead recebido" || row.Category != CategoryInfo {
		t.Errorf("row = %+v", row)
	}
	if !strings.Contains(row.Content, "Bruno Lima") || !strings.Contains(row.Content, "Meta Ads") {
		t.Errorf("content = %q", row.Content)
	}
	if row.ResourceID == nil || *row.ResourceID != leadID || row.ResourceType != ResourceLead {
		t.Errorf("resource = %v/%s", row.ResourceID, row.ResourceType)
	}
}

func TestHandleCommitmentBreachedIsWarning(t *testing.T) {
	store := &fakeStore{}
	m := testModule(store)

	err := m.Handle(context.Background(), events.CommitmentBreached{
		BaseEvent:      events.NewBaseEvent(),
		CommitmentID:   uuid.New(),
		LeadID:         uuid.New(),
		CommitmentType: "response_5min",
		Deadline:       time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	row := store.created[0]
	if row.Category != CategoryWarning || row.ResourceType != ResourceCommitment {
		t.Errorf("row = %+v", row)
	}
	if !strings.Contains(row.Content, "primeira resposta em 5 minutos") {
		t.Errorf("content = %q, want the commitment label spelled out", row.Content)
	}
}

func TestHandleCommitmentEscalatedIsError(t *testing.T) {
	store := &fakeStore{}
	m := testModule(store)

	if err := m.Handle(context.Background(), events.CommitmentEscalated{
		BaseEvent:      events.NewBaseEvent(),
		CommitmentID:   uuid.New(),
		LeadID:         uuid.New(),
		CommitmentType: "followup_4h",
		Level:          2,
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	row := store.created[0]
	if row.Category != CategoryError {
		t.Errorf("category = %q, want error", row.Category)
	}
	if !strings.Contains(row.Content, "Nível 2") {
		t.Errorf("content = %q", row.Content)
	}
}

func TestHandleSequenceCancelledCategories(t *testing.T) {
	cases := []struct {
		name     string
		reason   string
		category string
		want     string
	}{
		{"stale cancels warn", "stale", CategoryWarning, "sem atividade"},
		{"reply cancels are info", "lead respondeu", CategoryInfo, "lead respondeu"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			m := testModule(store)

			if err := m.Handle(context.Background(), events.SequenceCancelled{
				BaseEvent:   events.NewBaseEvent(),
				ExecutionID: uuid.New(),
				LeadID:      uuid.New(),
				SequenceKey: "professional_nurture",
				Reason:      tc.reason,
			}); err != nil {
				t.Fatalf("Handle: %v", err)
			}

			row := store.created[0]
			if row.Category != tc.category {
				t.Errorf("category = %q, want %q", row.Category, tc.category)
			}
			if !strings.Contains(row.Content, tc.want) {
				t.Errorf("content = %q, want %q in it", row.Content, tc.want)
			}
		})
	}
}

func TestHandleSurvivesStoreFailure(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	m := testModule(store)

	err := m.Handle(context.Background(), events.SequenceCompleted{
		BaseEvent:   events.NewBaseEvent(),
		ExecutionID: uuid.New(),
		LeadID:      uuid.New(),
		SequenceKey: "professional_nurture",
		Steps:       3,
	})
	if err != nil {
		t.Fatalf("Handle must not bubble feed write failures, got %v", err)
	}
}

func TestNotifyNewLeadSendsGroupMessage(t *testing.T) {
	m := testModule(&fakeStore{})
	messenger := &fakeMessenger{}
	m.SetMessenger(messenger)

	if err := m.NotifyNewLead(context.Background(), leadFixture()); err != nil {
		t.Fatalf("NotifyNewLead: %v", err)
	}

	if messenger.groupID != "5511777777777-group" {
		t.Errorf("groupID = %q", messenger.groupID)
	}
	for _, want := range []string{"Novo lead", "Bruno Lima", "5511988776655", "Meta Ads", "profissional", "Score: 72", "Campinas"} {
		if !strings.Contains(messenger.text, want) {
			t.Errorf("message missing %q:\n%s", want, messenger.text)
		}
	}
}

func TestNotifyNewLeadWithoutMessengerIsNoOp(t *testing.T) {
	m := testModule(&fakeStore{})

	if err := m.NotifyNewLead(context.Background(), leadFixture()); err != nil {
		t.Fatalf("NotifyNewLead without a messenger: %v", err)
	}
}

func TestListClampsPagination(t *testing.T) {
	store := &fakeStore{items: []Notification{}, total: 0}
	svc := NewService(store, logger.New("development"))

	if _, _, err := svc.List(context.Background(), 0, 500); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastLimit != maxPageSize || store.lastOffset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", store.lastLimit, store.lastOffset, maxPageSize)
	}

	if _, _, err := svc.List(context.Background(), 3, 10); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.lastLimit != 10 || store.lastOffset != 20 {
		t.Errorf("limit/offset = %d/%d, want 10/20", store.lastLimit, store.lastOffset)
	}
}

func TestMarkReadMapsNotFound(t *testing.T) {
	store := &fakeStore{markErr: ErrNotFound}
	svc := NewService(store, logger.New("development"))

	err := svc.MarkRead(context.Background(), uuid.New())
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("err = %v, want not-found kind", err)
	}
}
