package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesops_backend/internal/events"
	"salesops_backend/internal/leads/repository"
	"salesops_backend/internal/leads/resolver"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeEventStore struct {
	admitted     map[string]InboundEvent
	statuses     map[string]string
	errDetails   map[string]string
	leadLinks    map[string]uuid.UUID
	processedIDs map[string]bool
	failedEvents []InboundEvent
	admitErr     error
	admitCalls   int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		admitted:     make(map[string]InboundEvent),
		statuses:     make(map[string]string),
		errDetails:   make(map[string]string),
		leadLinks:    make(map[string]uuid.UUID),
		processedIDs: make(map[string]bool),
	}
}

func (f *fakeEventStore) Admit(_ context.Context, source, eventType, dedupKey string, platformEventID *string, payload []byte) (InboundEvent, bool, error) {
	f.admitCalls++
	if f.admitErr != nil {
		return InboundEvent{}, false, f.admitErr
	}
	if _, exists := f.admitted[dedupKey]; exists {
		return InboundEvent{}, false, nil
	}
	ev := InboundEvent{
		ID:              uuid.New(),
		DedupKey:        dedupKey,
		Source:          source,
		EventType:       eventType,
		PlatformEventID: platformEventID,
		Payload:         payload,
		Status:          StatusReceived,
		ReceivedAt:      time.Now(),
	}
	f.admitted[dedupKey] = ev
	f.statuses[dedupKey] = StatusReceived
	return ev, true, nil
}

func (f *fakeEventStore) MarkStatus(_ context.Context, dedupKey, status string, errDetail *string) error {
	f.statuses[dedupKey] = status
	if errDetail != nil {
		f.errDetails[dedupKey] = *errDetail
	}
	return nil
}

func (f *fakeEventStore) SetLead(_ context.Context, dedupKey string, leadID uuid.UUID) error {
	f.leadLinks[dedupKey] = leadID
	return nil
}

func (f *fakeEventStore) HasProcessedPlatformEvent(_ context.Context, platformEventID string) (bool, error) {
	return f.processedIDs[platformEventID], nil
}

func (f *fakeEventStore) ListFailed(_ context.Context, limit int) ([]InboundEvent, error) {
	if limit > len(f.failedEvents) {
		limit = len(f.failedEvents)
	}
	return f.failedEvents[:limit], nil
}

type fakeLeadResolver struct {
	lead    repository.Lead
	created bool
	err     error
	calls   int
}

func (f *fakeLeadResolver) Resolve(_ context.Context, _ string, _ resolver.Candidate) (repository.Lead, bool, error) {
	f.calls++
	if f.err != nil {
		return repository.Lead{}, false, f.err
	}
	return f.lead, f.created, nil
}

// fakeActions implements every best-effort action interface.
type fakeActions struct {
	commitmentCalls int
	commitmentErr   error
	sequenceCalls   int
	sequenceErr     error
	respondedCalls  int
	crmCalls        int
	crmErr          error
	notifyCalls     int
	notifyErr       error
}

func (f *fakeActions) StartFirstResponse(_ context.Context, _ uuid.UUID) error {
	f.commitmentCalls++
	return f.commitmentErr
}

func (f *fakeActions) StartForLead(_ context.Context, _ repository.Lead) error {
	f.sequenceCalls++
	return f.sequenceErr
}

func (f *fakeActions) MarkResponded(_ context.Context, _ uuid.UUID) error {
	f.respondedCalls++
	return nil
}

func (f *fakeActions) SyncNewLead(_ context.Context, _ repository.Lead) error {
	f.crmCalls++
	return f.crmErr
}

func (f *fakeActions) NotifyNewLead(_ context.Context, _ repository.Lead) error {
	f.notifyCalls++
	return f.notifyErr
}

type fakeBus struct {
	published []events.Event
}

func (f *fakeBus) Publish(_ context.Context, event events.Event) {
	f.published = append(f.published, event)
}

func (f *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	f.Publish(ctx, event)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) eventNames() []string {
	names := make([]string, len(f.published))
	for i, ev := range f.published {
		names[i] = ev.EventName()
	}
	return names
}

func newTestService(store *fakeEventStore, res *fakeLeadResolver, actions *fakeActions, bus *fakeBus) *Service {
	svc := NewService(store, res, bus, logger.New("development"))
	if actions != nil {
		svc.SetCommitmentStarter(actions)
		svc.SetSequenceStarter(actions)
		svc.SetSequenceResponder(actions)
		svc.SetCRMSyncer(actions)
		svc.SetTeamNotifier(actions)
	}
	return svc
}

func leadFixture() repository.Lead {
	name := "Carlos Pereira"
	return repository.Lead{
		ID:     uuid.New(),
		Phone:  "5511999887766",
		Name:   &name,
		Source: "meta_ads",
		Funnel: "professional",
		Score:  85,
	}
}

func ingestFixture() IngestRequest {
	return EventIngestRequest(EventRequest{
		Source:    "meta_ads",
		EventType: EventTypeLeadForm,
		DedupKey:  "evt-1",
		Phone:     "11999887766",
	})
}

func TestIngestNewLeadRunsAllActions(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{lead: leadFixture(), created: true}
	actions := &fakeActions{}
	bus := &fakeBus{}
	svc := newTestService(store, res, actions, bus)

	result, err := svc.Ingest(context.Background(), ingestFixture())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Status != ResultAccepted {
		t.Errorf("Status = %q, want %q", result.Status, ResultAccepted)
	}
	if !result.Created {
		t.Error("Created should be true for a new lead")
	}
	if actions.commitmentCalls != 1 || actions.sequenceCalls != 1 || actions.crmCalls != 1 || actions.notifyCalls != 1 {
		t.Errorf("action calls = %d/%d/%d/%d, want 1 each",
			actions.commitmentCalls, actions.sequenceCalls, actions.crmCalls, actions.notifyCalls)
	}
	if actions.respondedCalls != 0 {
		t.Error("MarkResponded should not run for a new lead")
	}
	if store.statuses["evt-1"] != StatusProcessed {
		t.Errorf("event status = %q, want processed", store.statuses["evt-1"])
	}
	if store.leadLinks["evt-1"] != res.lead.ID {
		t.Error("event should be linked to the resolved lead")
	}
	names := bus.eventNames()
	if len(names) != 1 || names[0] != "leads.lead.created" {
		t.Errorf("published events = %v, want [leads.lead.created]", names)
	}
}

func TestIngestDuplicateKeyShortCircuits(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{lead: leadFixture(), created: true}
	actions := &fakeActions{}
	svc := newTestService(store, res, actions, &fakeBus{})

	if _, err := svc.Ingest(context.Background(), ingestFixture()); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	result, err := svc.Ingest(context.Background(), ingestFixture())
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if result.Status != ResultDuplicate {
		t.Errorf("Status = %q, want %q", result.Status, ResultDuplicate)
	}
	if res.calls != 1 {
		t.Errorf("resolver calls = %d, want 1 (duplicate must short-circuit)", res.calls)
	}
	if actions.commitmentCalls != 1 {
		t.Errorf("commitment calls = %d, want 1", actions.commitmentCalls)
	}
}

func TestIngestPlatformEventDuplicate(t *testing.T) {
	store := newFakeEventStore()
	store.processedIDs["111222333"] = true
	res := &fakeLeadResolver{lead: leadFixture(), created: true}
	svc := newTestService(store, res, &fakeActions{}, &fakeBus{})

	req := MetaIngestRequest(MetaLeadPayload{
		LeadgenID: "111222333",
		FieldData: []MetaFieldData{{Name: "telefone", Values: []string{"11999887766"}}},
	})
	result, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Status != ResultDuplicate {
		t.Errorf("Status = %q, want %q", result.Status, ResultDuplicate)
	}
	if res.calls != 0 {
		t.Error("resolver should not run for a platform-level duplicate")
	}
	if store.statuses["meta:111222333"] != StatusDuplicate {
		t.Errorf("event status = %q, want duplicate", store.statuses["meta:111222333"])
	}
}

func TestIngestResolveFailureParksEvent(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{err: apperr.Validation("contact phone cannot be normalized")}
	bus := &fakeBus{}
	svc := newTestService(store, res, &fakeActions{}, bus)

	_, err := svc.Ingest(context.Background(), ingestFixture())
	if err == nil {
		t.Fatal("expected resolve failure to propagate")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("error kind = %v, want validation", apperr.GetKind(err))
	}

	if store.statuses["evt-1"] != StatusFailed {
		t.Errorf("event status = %q, want failed", store.statuses["evt-1"])
	}
	if store.errDetails["evt-1"] == "" {
		t.Error("failure detail should be recorded on the event")
	}
	names := bus.eventNames()
	if len(names) != 1 || names[0] != "intake.event.failed" {
		t.Errorf("published events = %v, want [intake.event.failed]", names)
	}
}

func TestIngestActionFailuresBecomeWarnings(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{lead: leadFixture(), created: true}
	actions := &fakeActions{
		commitmentErr: errors.New("commitment store down"),
		crmErr:        errors.New("crm timeout"),
	}
	svc := newTestService(store, res, actions, &fakeBus{})

	result, err := svc.Ingest(context.Background(), ingestFixture())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Status != ResultAcceptedWithWarnings {
		t.Errorf("Status = %q, want %q", result.Status, ResultAcceptedWithWarnings)
	}
	if len(result.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2 entries", result.Warnings)
	}
	if actions.sequenceCalls != 1 || actions.notifyCalls != 1 {
		t.Error("remaining actions should still run after earlier failures")
	}
	if store.statuses["evt-1"] != StatusProcessed {
		t.Errorf("event status = %q, want processed despite warnings", store.statuses["evt-1"])
	}
}

func TestIngestInboundMessageFromKnownLead(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{lead: leadFixture(), created: false}
	actions := &fakeActions{}
	bus := &fakeBus{}
	svc := newTestService(store, res, actions, bus)

	text := "pode me ligar?"
	req := MessageIngestRequest(MessageRequest{
		MessageID: "wamid.1",
		Phone:     "5511999887766",
		Text:      &text,
		Direction: "inbound",
	})
	result, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Status != ResultAccepted {
		t.Errorf("Status = %q, want %q", result.Status, ResultAccepted)
	}
	if actions.respondedCalls != 1 {
		t.Errorf("MarkResponded calls = %d, want 1", actions.respondedCalls)
	}
	if actions.commitmentCalls != 0 || actions.sequenceCalls != 0 || actions.crmCalls != 0 {
		t.Error("new-lead actions should not run for an existing lead")
	}
	if len(bus.published) != 0 {
		t.Errorf("no events expected for an existing lead, got %v", bus.eventNames())
	}
}

func TestIngestRejectsBlankDedupKey(t *testing.T) {
	svc := newTestService(newFakeEventStore(), &fakeLeadResolver{}, nil, &fakeBus{})

	req := ingestFixture()
	req.DedupKey = "   "
	_, err := svc.Ingest(context.Background(), req)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestAdmissionErrorIsFatal(t *testing.T) {
	store := newFakeEventStore()
	store.admitErr = errors.New("connection refused")
	res := &fakeLeadResolver{}
	svc := newTestService(store, res, nil, &fakeBus{})

	_, err := svc.Ingest(context.Background(), ingestFixture())
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if res.calls != 0 {
		t.Error("resolver must not run when admission fails")
	}
}

func TestReprocessFailedRecoversParkedEvents(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{lead: leadFixture(), created: true}
	actions := &fakeActions{}
	svc := newTestService(store, res, actions, &fakeBus{})

	parked := ingestFixture()
	store.failedEvents = []InboundEvent{{
		ID:        uuid.New(),
		DedupKey:  parked.DedupKey,
		Source:    parked.Source,
		EventType: parked.EventType,
		Payload:   parked.Payload,
		Status:    StatusFailed,
	}}

	recovered, err := svc.ReprocessFailed(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReprocessFailed: %v", err)
	}

	if recovered != 1 {
		t.Errorf("recovered = %d, want 1", recovered)
	}
	if store.statuses[parked.DedupKey] != StatusProcessed {
		t.Errorf("event status = %q, want processed", store.statuses[parked.DedupKey])
	}
	if actions.commitmentCalls != 1 {
		t.Errorf("commitment calls = %d, want 1", actions.commitmentCalls)
	}
}

func TestReprocessFailedSkipsUnrecoverable(t *testing.T) {
	store := newFakeEventStore()
	res := &fakeLeadResolver{err: apperr.Validation("contact phone cannot be normalized")}
	svc := newTestService(store, res, nil, &fakeBus{})

	store.failedEvents = []InboundEvent{{
		ID:       uuid.New(),
		DedupKey: "evt-bad",
		Source:   "crm",
		Payload:  []byte(`{"phone":""}`),
		Status:   StatusFailed,
	}}

	recovered, err := svc.ReprocessFailed(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReprocessFailed: %v", err)
	}
	if recovered != 0 {
		t.Errorf("recovered = %d, want 0", recovered)
	}
}
