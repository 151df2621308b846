package resolver

import (
	"context"
	"testing"

	"salesops_backend/internal/leads/domain"
	"salesops_backend/internal/leads/repository"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	byPhone         map[string]repository.Lead
	createErr       error
	failCreates     int
	missFirstLookup bool
	createCalls     int
	mergeCalls      int
	scoreUpdates    []float64
	timeline        []string
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{byPhone: map[string]repository.Lead{}}
}

func (f *fakeLeadStore) Create(_ context.Context, params repository.CreateLeadParams) (repository.Lead, error) {
	f.createCalls++
	if f.createErr != nil && f.failCreates > 0 {
		f.failCreates--
		return repository.Lead{}, f.createErr
	}
	if _, exists := f.byPhone[params.Phone]; exists {
		return repository.Lead{}, repository.ErrPhoneExists
	}
	lead := repository.Lead{
		ID:             uuid.New(),
		Phone:          params.Phone,
		Name:           params.Name,
		Email:          params.Email,
		City:           params.City,
		Source:         params.Source,
		Funnel:         params.Funnel,
		Qualification:  params.Qualification,
		ProjectStage:   params.ProjectStage,
		TicketEstimate: params.TicketEstimate,
		Score:          params.Score,
		ScoreVersion:   params.ScoreVersion,
	}
	f.byPhone[params.Phone] = lead
	return lead, nil
}

func (f *fakeLeadStore) GetByPhone(_ context.Context, phone string) (repository.Lead, error) {
	if f.missFirstLookup {
		f.missFirstLookup = false
		return repository.Lead{}, repository.ErrNotFound
	}
	lead, ok := f.byPhone[phone]
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (f *fakeLeadStore) Merge(_ context.Context, id uuid.UUID, params repository.MergeParams) (repository.Lead, error) {
	f.mergeCalls++
	for phone, lead := range f.byPhone {
		if lead.ID != id {
			continue
		}
		lead.Name = coalesce(lead.Name, params.Name)
		lead.Email = coalesce(lead.Email, params.Email)
		lead.City = coalesce(lead.City, params.City)
		lead.Qualification = coalesce(lead.Qualification, params.Qualification)
		lead.ProjectStage = coalesce(lead.ProjectStage, params.ProjectStage)
		lead.TicketEstimate = coalesceFloat(lead.TicketEstimate, params.TicketEstimate)
		f.byPhone[phone] = lead
		return lead, nil
	}
	return repository.Lead{}, repository.ErrNotFound
}

func (f *fakeLeadStore) UpdateScore(_ context.Context, id uuid.UUID, score float64, version string) error {
	f.scoreUpdates = append(f.scoreUpdates, score)
	for phone, lead := range f.byPhone {
		if lead.ID == id && lead.Score < score {
			lead.Score = score
			lead.ScoreVersion = version
			f.byPhone[phone] = lead
		}
	}
	return nil
}

func (f *fakeLeadStore) AddTimelineEntry(_ context.Context, _ uuid.UUID, entryType, _ string, _ map[string]any) error {
	f.timeline = append(f.timeline, entryType)
	return nil
}

func coalesce(current, candidate *string) *string {
	if current != nil {
		return current
	}
	return candidate
}

func coalesceFloat(current, candidate *float64) *float64 {
	if current != nil {
		return current
	}
	return candidate
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestResolveCreatesNewLead(t *testing.T) {
	store := newFakeLeadStore()
	svc := New(store, logger.New("development"))

	lead, created, err := svc.Resolve(context.Background(), "11999887766", Candidate{
		Source: "meta_ads",
		Name:   strPtr("Carlos"),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !created {
		t.Fatal("Resolve() created = false, want true for unseen phone")
	}
	if lead.Phone != "5511999887766" {
		t.Errorf("Resolve() phone = %q, want canonical 5511999887766", lead.Phone)
	}
	if lead.Funnel != domain.FunnelEndConsumer {
		t.Errorf("Resolve() funnel = %q, want %q", lead.Funnel, domain.FunnelEndConsumer)
	}
	if lead.Score < 50 {
		t.Errorf("Resolve() score = %.1f, want at least base", lead.Score)
	}
	if len(store.timeline) != 1 || store.timeline[0] != repository.EntryTypeLeadCreated {
		t.Errorf("timeline entries = %v, want [lead_created]", store.timeline)
	}
}

func TestResolveClassifiesProfessionals(t *testing.T) {
	store := newFakeLeadStore()
	svc := New(store, logger.New("development"))

	lead, _, err := svc.Resolve(context.Background(), "11988776655", Candidate{
		Source:        "google_ads",
		Qualification: "Arquiteto",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if lead.Funnel != domain.FunnelProfessional {
		t.Errorf("Resolve() funnel = %q, want %q", lead.Funnel, domain.FunnelProfessional)
	}
	if lead.Qualification == nil || *lead.Qualification != "Arquiteto" {
		t.Errorf("Resolve() qualification = %v, want raw value kept", lead.Qualification)
	}
}

func TestResolveRejectsUnusableContact(t *testing.T) {
	store := newFakeLeadStore()
	svc := New(store, logger.New("development"))

	_, _, err := svc.Resolve(context.Background(), "not-a-phone", Candidate{Source: "site"})
	if err == nil {
		t.Fatal("Resolve() error = nil, want validation error")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("Resolve() error kind = %v, want KindValidation", apperr.GetKind(err))
	}
	if store.createCalls != 0 {
		t.Errorf("Resolve() created %d leads from unusable contact", store.createCalls)
	}
}

func TestResolveMergesExistingLead(t *testing.T) {
	store := newFakeLeadStore()
	existing := repository.Lead{
		ID:     uuid.New(),
		Phone:  "5511999887766",
		Email:  strPtr("kept@example.com"),
		Source: "site",
		Funnel: domain.FunnelEndConsumer,
		Score:  55,
	}
	store.byPhone[existing.Phone] = existing
	svc := New(store, logger.New("development"))

	lead, created, err := svc.Resolve(context.Background(), "+55 (11) 99988-7766", Candidate{
		Source: "meta_ads",
		Name:   strPtr("Carlos"),
		Email:  strPtr("new@example.com"),
		City:   strPtr("Campinas"),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if created {
		t.Fatal("Resolve() created = true, want false for known phone")
	}
	if store.mergeCalls != 1 {
		t.Fatalf("merge calls = %d, want 1", store.mergeCalls)
	}
	if lead.Name == nil || *lead.Name != "Carlos" {
		t.Errorf("merge did not fill missing name: %v", lead.Name)
	}
	if lead.Email == nil || *lead.Email != "kept@example.com" {
		t.Errorf("merge overwrote existing email: %v", lead.Email)
	}
	if lead.City == nil || *lead.City != "Campinas" {
		t.Errorf("merge did not fill missing city: %v", lead.City)
	}
	if len(store.timeline) != 1 || store.timeline[0] != repository.EntryTypeLeadMerged {
		t.Errorf("timeline entries = %v, want [lead_merged]", store.timeline)
	}
}

func TestResolveMergeSkipsEmptyCandidate(t *testing.T) {
	store := newFakeLeadStore()
	existing := repository.Lead{ID: uuid.New(), Phone: "5511999887766", Source: "site"}
	store.byPhone[existing.Phone] = existing
	svc := New(store, logger.New("development"))

	lead, created, err := svc.Resolve(context.Background(), "5511999887766", Candidate{Source: "whatsapp"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if created || store.mergeCalls != 0 {
		t.Errorf("empty candidate triggered merge (created=%v, mergeCalls=%d)", created, store.mergeCalls)
	}
	if lead.ID != existing.ID {
		t.Errorf("Resolve() returned wrong lead %v", lead.ID)
	}
}

func TestResolveMergeRaisesScore(t *testing.T) {
	store := newFakeLeadStore()
	existing := repository.Lead{
		ID:     uuid.New(),
		Phone:  "5511999887766",
		Source: "meta_ads",
		Funnel: domain.FunnelEndConsumer,
		Score:  58,
	}
	store.byPhone[existing.Phone] = existing
	svc := New(store, logger.New("development"))

	lead, _, err := svc.Resolve(context.Background(), "5511999887766", Candidate{
		Source:         "meta_ads",
		ProjectStage:   strPtr("acabamentos"),
		TicketEstimate: floatPtr(150_000),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(store.scoreUpdates) != 1 {
		t.Fatalf("score updates = %d, want 1", len(store.scoreUpdates))
	}
	if lead.Score <= 58 {
		t.Errorf("merged score = %.1f, want raised above 58", lead.Score)
	}
}

func TestResolveCreateRaceFallsBackToMerge(t *testing.T) {
	store := newFakeLeadStore()
	winner := repository.Lead{ID: uuid.New(), Phone: "5511999887766", Source: "site"}
	svc := New(store, logger.New("development"))

	// The store reports no lead on lookup but the phone is taken by the
	// time the insert lands, which is what a concurrent intake looks like.
	store.missFirstLookup = true
	store.createErr = repository.ErrPhoneExists
	store.failCreates = 1
	store.byPhone[winner.Phone] = winner

	lead, created, err := svc.Resolve(context.Background(), "11999887766", Candidate{
		Source: "meta_ads",
		Name:   strPtr("Carlos"),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if created {
		t.Fatal("Resolve() created = true, want false after losing create race")
	}
	if lead.ID != winner.ID {
		t.Errorf("Resolve() lead = %v, want winner %v", lead.ID, winner.ID)
	}
	if store.mergeCalls != 1 {
		t.Errorf("merge calls = %d, want 1 after race fallback", store.mergeCalls)
	}
}
