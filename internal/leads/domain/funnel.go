// Package domain holds lead classification rules shared by the resolver
// and scoring packages.
package domain

import "strings"

// Funnel values. Professionals (architects, developers, contractors) get a
// different follow-up track than end consumers.
const (
	FunnelProfessional = "professional"
	FunnelEndConsumer  = "end_consumer"
)

// Canonical qualification values for professional client types.
const (
	QualificationArchitect  = "architect"
	QualificationDeveloper  = "developer"
	QualificationContractor = "contractor"
)

// qualificationAliases maps raw qualification strings, in English and
// Portuguese as they arrive from lead forms, to canonical client types.
var qualificationAliases = map[string]string{
	"architect":     QualificationArchitect,
	"arquiteto":     QualificationArchitect,
	"arquiteta":     QualificationArchitect,
	"arquitetura":   QualificationArchitect,
	"developer":     QualificationDeveloper,
	"builder":       QualificationDeveloper,
	"construtora":   QualificationDeveloper,
	"incorporadora": QualificationDeveloper,
	"contractor":    QualificationContractor,
	"empreiteiro":   QualificationContractor,
	"empreiteira":   QualificationContractor,
	"engenheiro":    QualificationContractor,
	"engenheira":    QualificationContractor,
}

// CanonicalQualification maps a raw qualification string to a canonical
// professional client type, or "" when it does not describe a professional.
func CanonicalQualification(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := qualificationAliases[normalized]; ok {
		return canonical
	}
	return ""
}

// InferFunnel classifies a lead by its stated qualification. Professional
// client types land in the professional funnel; everything else, including
// an absent qualification, is treated as an end consumer.
func InferFunnel(rawQualification string) string {
	if CanonicalQualification(rawQualification) != "" {
		return FunnelProfessional
	}
	return FunnelEndConsumer
}
