package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"salesops_backend/internal/leads/repository"
)

// placeholderPattern matches {{lead.first_name}}-style placeholders as the
// catalog authors write them, without the leading dot Go templates expect.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s*\}\}`)

// templateKeywords are Go template actions that the placeholder pattern also
// matches. They must pass through untouched or {{end}} would become {{.end}}.
var templateKeywords = map[string]bool{
	"if":       true,
	"else":     true,
	"end":      true,
	"range":    true,
	"with":     true,
	"template": true,
	"block":    true,
	"define":   true,
	"break":    true,
	"continue": true,
}

// normalizeTemplateSyntax rewrites {{lead.first_name}} into {{.lead.first_name}}.
// Dotted actions ({{.lead.x}}) and conditionals ({{if .lead.x}}) never match
// the pattern, so mixed templates survive unchanged.
func normalizeTemplateSyntax(text string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		if templateKeywords[strings.SplitN(path, ".", 2)[0]] {
			return match
		}
		return "{{." + path + "}}"
	})
}

// render executes a catalog template against the variable map. Unknown keys
// resolve to zero values rather than failing the whole step, which is why
// leadVars predefines every supported key.
func render(text string, vars map[string]any) (string, error) {
	tpl, err := template.New("step").Option("missingkey=zero").Parse(normalizeTemplateSyntax(text))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf strings.Builder
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// leadVars builds the variable map for one lead. Every key the catalog may
// reference is predefined with an empty default so missing data renders as
// nothing instead of "<no value>".
func leadVars(lead repository.Lead) map[string]any {
	name := strings.TrimSpace(deref(lead.Name))
	first := name
	if fields := strings.Fields(name); len(fields) > 0 {
		first = fields[0]
	}

	ticket := ""
	if lead.TicketEstimate != nil {
		ticket = strconv.FormatFloat(*lead.TicketEstimate, 'f', -1, 64)
	}

	return map[string]any{
		"lead": map[string]any{
			"name":            name,
			"first_name":      first,
			"phone":           lead.Phone,
			"email":           deref(lead.Email),
			"city":            deref(lead.City),
			"source":          lead.Source,
			"funnel":          lead.Funnel,
			"qualification":   deref(lead.Qualification),
			"project_stage":   deref(lead.ProjectStage),
			"ticket_estimate": ticket,
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
