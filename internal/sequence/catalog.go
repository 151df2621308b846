// Package sequence implements timed follow-up cadences: a YAML catalog of
// per-funnel message sequences, executions tracked per lead, and the
// dispatcher that sends due steps and advances or finishes each execution.
package sequence

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Step channels.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

//go:embed sequences.yaml
var defaultCatalogYAML []byte

// Sequence is one follow-up cadence, bound to a funnel.
type Sequence struct {
	ID     string `yaml:"id"`
	Funnel string `yaml:"funnel"`
	Name   string `yaml:"name"`
	Steps  []Step `yaml:"steps"`
}

// Step is one message in a cadence. Order is 1-indexed; DelayMinutes counts
// from the previous step, and for step 1 from the sequence start.
type Step struct {
	Order        int    `yaml:"order"`
	DelayMinutes int    `yaml:"delay_minutes"`
	Channel      string `yaml:"channel"`
	Subject      string `yaml:"subject"`
	Template     string `yaml:"template"`
}

// Delay returns the step's wait as a duration.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayMinutes) * time.Minute
}

// StepAt returns the step with the given 1-indexed order.
func (s Sequence) StepAt(order int) (Step, bool) {
	for _, step := range s.Steps {
		if step.Order == order {
			return step, true
		}
	}
	return Step{}, false
}

// Catalog holds the validated sequences, indexed for lookup.
type Catalog struct {
	sequences []Sequence
	byFunnel  map[string]Sequence
	byID      map[string]Sequence
}

type catalogFile struct {
	Sequences []Sequence `yaml:"sequences"`
}

// LoadCatalog reads and validates the sequence catalog from path, or the
// embedded default catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	raw := defaultCatalogYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading sequence catalog: %w", err)
		}
		raw = data
	}
	return ParseCatalog(raw)
}

// ParseCatalog parses and validates catalog YAML. Every sequence must carry
// contiguous 1..N step orders, known channels and non-empty templates;
// a broken catalog refuses to load rather than misfiring mid-cadence.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing sequence catalog: %w", err)
	}
	if len(file.Sequences) == 0 {
		return nil, fmt.Errorf("sequence catalog is empty")
	}

	catalog := &Catalog{
		sequences: file.Sequences,
		byFunnel:  make(map[string]Sequence, len(file.Sequences)),
		byID:      make(map[string]Sequence, len(file.Sequences)),
	}
	for i := range catalog.sequences {
		seq := &catalog.sequences[i]
		if err := validateSequence(seq); err != nil {
			return nil, fmt.Errorf("sequence %q: %w", seq.ID, err)
		}
		if _, dup := catalog.byID[seq.ID]; dup {
			return nil, fmt.Errorf("duplicate sequence id %q", seq.ID)
		}
		if _, dup := catalog.byFunnel[seq.Funnel]; dup {
			return nil, fmt.Errorf("funnel %q has more than one sequence", seq.Funnel)
		}
		catalog.byID[seq.ID] = *seq
		catalog.byFunnel[seq.Funnel] = *seq
	}

	return catalog, nil
}

func validateSequence(seq *Sequence) error {
	if seq.ID == "" {
		return fmt.Errorf("missing id")
	}
	if seq.Funnel == "" {
		return fmt.Errorf("missing funnel")
	}
	if len(seq.Steps) == 0 {
		return fmt.Errorf("no steps")
	}

	sort.SliceStable(seq.Steps, func(i, j int) bool {
		return seq.Steps[i].Order < seq.Steps[j].Order
	})
	for i, step := range seq.Steps {
		if step.Order != i+1 {
			return fmt.Errorf("step orders must be contiguous from 1, got %d at position %d", step.Order, i+1)
		}
		if step.DelayMinutes < 0 {
			return fmt.Errorf("step %d: negative delay", step.Order)
		}
		if step.Channel != ChannelWhatsApp && step.Channel != ChannelEmail {
			return fmt.Errorf("step %d: unknown channel %q", step.Order, step.Channel)
		}
		if step.Channel == ChannelEmail && step.Subject == "" {
			return fmt.Errorf("step %d: email steps need a subject", step.Order)
		}
		if step.Template == "" {
			return fmt.Errorf("step %d: empty template", step.Order)
		}
		if _, err := template.New("step").Parse(normalizeTemplateSyntax(step.Template)); err != nil {
			return fmt.Errorf("step %d: template does not parse: %w", step.Order, err)
		}
	}

	return nil
}

// ForFunnel returns the sequence configured for a funnel.
func (c *Catalog) ForFunnel(funnel string) (Sequence, bool) {
	seq, ok := c.byFunnel[funnel]
	return seq, ok
}

// ByID returns a sequence by its catalog id.
func (c *Catalog) ByID(id string) (Sequence, bool) {
	seq, ok := c.byID[id]
	return seq, ok
}

// Sequences returns every sequence in catalog order.
func (c *Catalog) Sequences() []Sequence {
	return c.sequences
}
