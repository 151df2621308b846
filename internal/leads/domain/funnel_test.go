package domain

import "testing"

func TestInferFunnel(t *testing.T) {
	tests := []struct {
		name          string
		qualification string
		want          string
	}{
		{"architect english", "architect", FunnelProfessional},
		{"architect portuguese", "Arquiteto", FunnelProfessional},
		{"feminine form", "arquiteta", FunnelProfessional},
		{"developer", "developer", FunnelProfessional},
		{"construtora", "Construtora", FunnelProfessional},
		{"contractor", "empreiteiro", FunnelProfessional},
		{"engineer", "engenheiro", FunnelProfessional},
		{"padded input", "  contractor  ", FunnelProfessional},
		{"homeowner", "homeowner", FunnelEndConsumer},
		{"proprietario", "proprietario", FunnelEndConsumer},
		{"empty", "", FunnelEndConsumer},
		{"garbage", "???", FunnelEndConsumer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferFunnel(tt.qualification); got != tt.want {
				t.Errorf("InferFunnel(%q) = %q, want %q", tt.qualification, got, tt.want)
			}
		})
	}
}

func TestCanonicalQualification(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Arquiteto", QualificationArchitect},
		{"arquitetura", QualificationArchitect},
		{"incorporadora", QualificationDeveloper},
		{"builder", QualificationDeveloper},
		{"EMPREITEIRO", QualificationContractor},
		{"homeowner", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalQualification(tt.raw); got != tt.want {
			t.Errorf("CanonicalQualification(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
