// Package scoring computes lead quality scores from intake profile data.
package scoring

import (
	"math"
	"strings"

	"salesops_backend/internal/leads/domain"
)

const (
	// Version tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	Version = "2026-v1"

	// Base score - leads start at 50 and factors add/subtract from this.
	baseScore = 50.0

	// Maximum contribution from each factor category. Together with the
	// base these keep raw sums near the 0-100 range before clamping.
	maxSourceContribution       = 12.0 // Acquisition channel quality
	maxClientTypeContribution   = 10.0 // Professional buyers close bigger orders
	maxStageContribution        = 18.0 // Construction stage = purchase readiness
	maxTicketContribution       = 12.0 // Declared deal size bracket
	maxCompletenessContribution = 8.0  // Profile data completeness
)

// Input is the profile snapshot a score is computed from. Optional fields
// are pointers so missing data scores neutral instead of zero-valued.
type Input struct {
	Source         string
	Qualification  string
	ProjectStage   *string
	TicketEstimate *float64
	Name           *string
	Email          *string
	City           *string
}

// Result holds scoring output and factor details.
type Result struct {
	Score   float64
	Factors map[string]float64
	Version string
}

// Compute produces a score in [0,100] for the given profile.
func Compute(in Input) Result {
	score := baseScore
	factors := map[string]float64{}

	score += addFactor(factors, "source", scoreSource(in.Source))
	score += addFactor(factors, "client_type", scoreClientType(in.Qualification))
	score += addFactor(factors, "project_stage", scoreProjectStage(in.ProjectStage))
	score += addFactor(factors, "ticket", scoreTicket(in.TicketEstimate))
	score += addFactor(factors, "completeness", scoreCompleteness(in))

	return Result{
		Score:   clampScore(score),
		Factors: factors,
		Version: Version,
	}
}

func addFactor(factors map[string]float64, key string, value float64) float64 {
	if math.Abs(value) < 0.01 {
		return 0
	}
	// Round to 1 decimal place for cleaner factor display
	factors[key] = math.Round(value*10) / 10
	return value
}

// sourceScoreTable maps source keywords to their quality scores.
// Higher scores indicate channels with better historical conversion.
var sourceScoreTable = []struct {
	keywords []string
	score    float64
}{
	// Best: referrals show high intent
	{[]string{"referral", "indicacao", "indicação"}, 12},
	// Paid search captures active demand
	{[]string{"google_ads", "google"}, 10},
	// Paid social is interruption-driven but well targeted
	{[]string{"meta_ads", "meta", "facebook", "instagram"}, 8},
	// Inbound messaging shows initiative
	{[]string{"whatsapp", "message"}, 6},
	// Organic traffic
	{[]string{"organic", "site", "website"}, 5},
}

// scoreSource evaluates lead acquisition channel quality.
func scoreSource(source string) float64 {
	normalized := strings.ToLower(strings.TrimSpace(source))
	if normalized == "" {
		return 0
	}
	for _, entry := range sourceScoreTable {
		if containsAny(normalized, entry.keywords) {
			return entry.score
		}
	}
	return 0 // Unknown source
}

// scoreClientType evaluates the declared client type.
// Professionals bring repeat volume; architects specify premium materials.
func scoreClientType(qualification string) float64 {
	switch domain.CanonicalQualification(qualification) {
	case domain.QualificationArchitect:
		return 10
	case domain.QualificationDeveloper:
		return 9
	case domain.QualificationContractor:
		return 8
	}
	if strings.TrimSpace(qualification) != "" {
		return 3 // Identified end consumer
	}
	return 0
}

// scoreProjectStage evaluates construction stage as purchase readiness.
// Finishing-stage projects (acabamentos) buy now; early stages are months out.
func scoreProjectStage(stage *string) float64 {
	if stage == nil {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(*stage)) {
	case "acabamentos", "acabamento":
		return 18 // Finishing - actively buying materials
	case "alvenaria":
		return 12 // Masonry - mid-build, purchases ramping up
	case "reforma":
		return 10 // Renovation - compressed timeline
	case "estrutura":
		return 8 // Structural work underway
	case "fundacao", "fundação":
		return 5 // Foundation - early but committed
	case "projeto":
		return 3 // Still designing
	default:
		return 0
	}
}

// scoreTicket evaluates the declared budget bracket.
func scoreTicket(estimate *float64) float64 {
	if estimate == nil {
		return 0
	}
	val := *estimate
	switch {
	case val >= 100_000:
		return 12 // Major project
	case val >= 50_000:
		return 8
	case val >= 20_000:
		return 5
	case val > 0:
		return 2
	default:
		return 0
	}
}

// scoreCompleteness rewards leads that arrive with usable profile data.
// Each filled field eases qualification; capped so it stays a tiebreaker.
func scoreCompleteness(in Input) float64 {
	score := 0.0
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		score += 2
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		score += 2
	}
	if in.City != nil && strings.TrimSpace(*in.City) != "" {
		score += 2
	}
	if in.ProjectStage != nil && strings.TrimSpace(*in.ProjectStage) != "" {
		score += 2
	}
	return clampFloat(score, 0, maxCompletenessContribution)
}

// containsAny checks if s contains any of the keywords.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func clampScore(value float64) float64 {
	rounded := math.Round(value*10) / 10
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

func clampFloat(value float64, min float64, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
