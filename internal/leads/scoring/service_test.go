package scoring

import "testing"

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestComputeHighIntentLead(t *testing.T) {
	// Paid social lead at finishing stage with a six-figure ticket must
	// land in the hot band.
	result := Compute(Input{
		Source:         "meta_ads",
		ProjectStage:   strPtr("acabamentos"),
		TicketEstimate: floatPtr(150_000),
	})

	if result.Score < 80 {
		t.Fatalf("Compute() score = %.1f, want >= 80 (factors: %v)", result.Score, result.Factors)
	}
	if result.Version != Version {
		t.Errorf("Compute() version = %q, want %q", result.Version, Version)
	}
}

func TestComputeScoreStaysInRange(t *testing.T) {
	// Every factor maxed out must still clamp to 100.
	maxed := Compute(Input{
		Source:         "referral",
		Qualification:  "arquiteto",
		ProjectStage:   strPtr("acabamentos"),
		TicketEstimate: floatPtr(500_000),
		Name:           strPtr("Ana"),
		Email:          strPtr("ana@example.com"),
		City:           strPtr("São Paulo"),
	})
	if maxed.Score > 100 {
		t.Errorf("Compute() maxed score = %.1f, want <= 100", maxed.Score)
	}
	if maxed.Score < 95 {
		t.Errorf("Compute() maxed score = %.1f, want near ceiling", maxed.Score)
	}

	empty := Compute(Input{})
	if empty.Score != baseScore {
		t.Errorf("Compute() empty profile score = %.1f, want base %.1f", empty.Score, baseScore)
	}
}

func TestScoreSource(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"meta_ads", 8},
		{"google_ads", 10},
		{"indicacao", 12},
		{"organic", 5},
		{"whatsapp_inbound", 6},
		{"unknown_channel", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := scoreSource(tt.source); got != tt.want {
			t.Errorf("scoreSource(%q) = %.1f, want %.1f", tt.source, got, tt.want)
		}
	}
}

func TestScoreProjectStage(t *testing.T) {
	tests := []struct {
		stage string
		want  float64
	}{
		{"acabamentos", 18},
		{"Acabamentos", 18},
		{"alvenaria", 12},
		{"reforma", 10},
		{"estrutura", 8},
		{"fundacao", 5},
		{"projeto", 3},
		{"demolicao", 0},
	}

	for _, tt := range tests {
		if got := scoreProjectStage(&tt.stage); got != tt.want {
			t.Errorf("scoreProjectStage(%q) = %.1f, want %.1f", tt.stage, got, tt.want)
		}
	}

	if got := scoreProjectStage(nil); got != 0 {
		t.Errorf("scoreProjectStage(nil) = %.1f, want 0", got)
	}
}

func TestScoreClientTypeFavorsProfessionals(t *testing.T) {
	architect := scoreClientType("arquiteto")
	consumer := scoreClientType("homeowner")
	missing := scoreClientType("")

	if architect <= consumer {
		t.Errorf("architect score %.1f should exceed consumer score %.1f", architect, consumer)
	}
	if consumer <= missing {
		t.Errorf("identified consumer score %.1f should exceed missing score %.1f", consumer, missing)
	}
}

func TestScoreTicketBrackets(t *testing.T) {
	tests := []struct {
		estimate float64
		want     float64
	}{
		{150_000, 12},
		{100_000, 12},
		{99_999, 8},
		{50_000, 8},
		{20_000, 5},
		{500, 2},
		{0, 0},
		{-10, 0},
	}

	for _, tt := range tests {
		if got := scoreTicket(&tt.estimate); got != tt.want {
			t.Errorf("scoreTicket(%.0f) = %.1f, want %.1f", tt.estimate, got, tt.want)
		}
	}
}

func TestComputeRecordsFactors(t *testing.T) {
	result := Compute(Input{
		Source:         "meta_ads",
		ProjectStage:   strPtr("alvenaria"),
		TicketEstimate: floatPtr(30_000),
	})

	for _, key := range []string{"source", "project_stage", "ticket", "completeness"} {
		if _, ok := result.Factors[key]; !ok {
			t.Errorf("Compute() factors missing %q: %v", key, result.Factors)
		}
	}
	if _, ok := result.Factors["client_type"]; ok {
		t.Errorf("Compute() recorded zero-valued client_type factor: %v", result.Factors)
	}
}
