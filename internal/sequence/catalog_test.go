package sequence

import (
	"strings"
	"testing"
	"time"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	for _, funnel := range []string{"professional", "end_consumer"} {
		seq, ok := catalog.ForFunnel(funnel)
		if !ok {
			t.Fatalf("no sequence for funnel %q", funnel)
		}
		if len(seq.Steps) == 0 {
			t.Fatalf("funnel %q has no steps", funnel)
		}
		for i, step := range seq.Steps {
			if step.Order != i+1 {
				t.Errorf("funnel %q step %d has order %d", funnel, i+1, step.Order)
			}
		}
		if _, ok := catalog.ByID(seq.ID); !ok {
			t.Errorf("ByID(%q) did not round-trip", seq.ID)
		}
	}

	pro, _ := catalog.ForFunnel("professional")
	if pro.ID != "professional_nurture" {
		t.Errorf("professional sequence id = %q, want professional_nurture", pro.ID)
	}
	last := pro.Steps[len(pro.Steps)-1]
	if last.Channel != ChannelEmail || last.Subject == "" {
		t.Errorf("final professional step = %+v, want an email with a subject", last)
	}
}

func TestEmbeddedTemplatesRenderCleanly(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	full := leadFixture()
	empty := full
	empty.Name = nil
	empty.Email = nil
	empty.City = nil
	empty.ProjectStage = nil

	for _, seq := range catalog.Sequences() {
		for _, step := range seq.Steps {
			for _, lead := range []struct {
				label string
				vars  map[string]any
			}{
				{"full", leadVars(full)},
				{"empty", leadVars(empty)},
			} {
				out, err := render(step.Template, lead.vars)
				if err != nil {
					t.Fatalf("%s step %d (%s lead): %v", seq.ID, step.Order, lead.label, err)
				}
				if strings.Contains(out, "<no value>") {
					t.Errorf("%s step %d (%s lead) rendered %q", seq.ID, step.Order, lead.label, out)
				}
			}
		}
	}
}

func TestParseCatalogRejectsBrokenCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty catalog",
			yaml:    "sequences: []",
			wantErr: "empty",
		},
		{
			name: "non-contiguous orders",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: oi}
      - {order: 3, delay_minutes: 5, channel: whatsapp, template: oi}
`,
			wantErr: "contiguous",
		},
		{
			name: "unknown channel",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: sms, template: oi}
`,
			wantErr: "unknown channel",
		},
		{
			name: "email without subject",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: email, template: oi}
`,
			wantErr: "subject",
		},
		{
			name: "negative delay",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: -5, channel: whatsapp, template: oi}
`,
			wantErr: "negative delay",
		},
		{
			name: "empty template",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: ""}
`,
			wantErr: "empty template",
		},
		{
			name: "template does not parse",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: "oi {{if}}"}
`,
			wantErr: "template does not parse",
		},
		{
			name: "duplicate id",
			yaml: `
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: oi}
  - id: seq
    funnel: end_consumer
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: oi}
`,
			wantErr: "duplicate sequence id",
		},
		{
			name: "two sequences on one funnel",
			yaml: `
sequences:
  - id: seq_a
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: oi}
  - id: seq_b
    funnel: professional
    steps:
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: oi}
`,
			wantErr: "more than one sequence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil {
				t.Fatal("ParseCatalog should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseCatalogSortsStepsByOrder(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
sequences:
  - id: seq
    funnel: professional
    steps:
      - {order: 3, delay_minutes: 30, channel: whatsapp, template: terceiro}
      - {order: 1, delay_minutes: 5, channel: whatsapp, template: primeiro}
      - {order: 2, delay_minutes: 10, channel: whatsapp, template: segundo}
`))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	seq, _ := catalog.ByID("seq")
	for i, want := range []string{"primeiro", "segundo", "terceiro"} {
		if seq.Steps[i].Template != want {
			t.Errorf("step %d template = %q, want %q", i+1, seq.Steps[i].Template, want)
		}
	}
}

func TestStepAt(t *testing.T) {
	seq := Sequence{Steps: []Step{
		{Order: 1, DelayMinutes: 30},
		{Order: 2, DelayMinutes: 60},
	}}

	step, ok := seq.StepAt(2)
	if !ok || step.DelayMinutes != 60 {
		t.Errorf("StepAt(2) = %+v, %v", step, ok)
	}
	if step.Delay() != time.Hour {
		t.Errorf("Delay() = %v, want 1h", step.Delay())
	}
	if _, ok := seq.StepAt(3); ok {
		t.Error("StepAt(3) should report no step")
	}
	if _, ok := seq.StepAt(0); ok {
		t.Error("StepAt(0) should report no step")
	}
}
