package intake

import (
	"encoding/json"
	"strconv"
	"strings"

	"salesops_backend/internal/leads/resolver"
	"salesops_backend/platform/sanitize"
)

// ExtractMetaLeadFields maps Meta lead form answers into a flat map for
// candidate assembly. Answer labels vary per form, so field names are
// matched by keyword.
func ExtractMetaLeadFields(payload MetaLeadPayload) map[string]string {
	fields := make(map[string]string)

	for _, fd := range payload.FieldData {
		key := normalizeMetaFieldName(fd.Name)
		if key == "" || len(fd.Values) == 0 {
			continue
		}
		if value := strings.TrimSpace(fd.Values[0]); value != "" {
			fields[key] = value
		}
	}

	if payload.CampaignName != "" {
		fields["campaign"] = payload.CampaignName
	}

	return fields
}

// normalizeMetaFieldName maps Meta form field names to our internal field keys.
// Forms are authored in Portuguese; English spellings cover Meta's standard
// fields and imported templates.
func normalizeMetaFieldName(name string) string {
	label := strings.ToLower(strings.TrimSpace(name))

	switch {
	case containsAny(label, "first", "primeiro nome"):
		return "firstName"
	case containsAny(label, "last", "sobrenome"):
		return "lastName"
	case containsAny(label, "full name", "name", "nome") && !containsAny(label, "first", "last"):
		return "fullName"
	case containsAny(label, "email", "e-mail"):
		return "email"
	case containsAny(label, "phone", "telefone", "celular", "whatsapp"):
		return "phone"
	case containsAny(label, "city", "cidade"):
		return "city"
	case containsAny(label, "profiss", "job", "cargo", "occupation", "atua"):
		return "qualification"
	case containsAny(label, "etapa", "fase", "stage", "momento da obra"):
		return "projectStage"
	case containsAny(label, "orcamento", "orçamento", "valor", "budget", "investimento"):
		return "ticketEstimate"
	case containsAny(label, "message", "mensagem", "observa"):
		return "message"
	default:
		return strings.TrimSpace(name)
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// canonicalProjectStage maps free-form stage answers onto the scoring
// vocabulary. Form answers arrive as labels ("Fase de acabamentos"), not
// enum values.
func canonicalProjectStage(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "acabamento"):
		return "acabamentos"
	case strings.Contains(s, "alvenaria"):
		return "alvenaria"
	case strings.Contains(s, "reforma"):
		return "reforma"
	case strings.Contains(s, "estrutura"):
		return "estrutura"
	case containsAny(s, "fundacao", "fundação", "terreno"):
		return "fundacao"
	case containsAny(s, "projeto", "planta"):
		return "projeto"
	default:
		return s
	}
}

// parseTicketEstimate turns free-form budget answers ("R$ 150.000,00",
// "150.000", "150000") into a numeric value. Unparseable answers are
// dropped rather than failing the lead.
func parseTicketEstimate(raw string) *float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}

	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if i := strings.LastIndex(s, "."); i >= 0 && len(s)-i-1 == 3 {
		// "150.000" uses dots as thousand separators, not decimals.
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// candidateFromFields assembles the resolver profile from extracted form
// answers.
func candidateFromFields(source string, fields map[string]string) resolver.Candidate {
	cand := resolver.Candidate{
		Source:        source,
		Qualification: sanitize.Text(fields["qualification"]),
	}

	name := sanitize.Text(fields["fullName"])
	if name == "" {
		name = strings.TrimSpace(sanitize.Text(fields["firstName"]) + " " + sanitize.Text(fields["lastName"]))
	}
	if name != "" {
		cand.Name = &name
	}
	if email := strings.TrimSpace(fields["email"]); email != "" {
		cand.Email = &email
	}
	if city := sanitize.Text(fields["city"]); city != "" {
		cand.City = &city
	}
	if stage := canonicalProjectStage(fields["projectStage"]); stage != "" {
		cand.ProjectStage = &stage
	}
	if estimate := parseTicketEstimate(fields["ticketEstimate"]); estimate != nil {
		cand.TicketEstimate = estimate
	}

	return cand
}

// EventIngestRequest builds the pipeline request for a generic API event.
func EventIngestRequest(req EventRequest) IngestRequest {
	raw, _ := json.Marshal(req)
	return IngestRequest{
		Source:    req.Source,
		EventType: req.EventType,
		DedupKey:  req.DedupKey,
		Phone:     req.Phone,
		Candidate: resolver.Candidate{
			Name:           sanitize.TextPtr(req.Name),
			Email:          req.Email,
			City:           sanitize.TextPtr(req.City),
			Source:         req.Source,
			Qualification:  sanitize.Text(req.Qualification),
			ProjectStage:   req.ProjectStage,
			TicketEstimate: req.TicketEstimate,
		},
		Message: sanitize.TextPtr(req.Message),
		Payload: raw,
	}
}

// MetaIngestRequest builds the pipeline request for a Meta lead form payload.
// The leadgen id doubles as the platform event id: Meta redelivers forms
// under fresh request ids, and the leadgen id is the stable handle across
// those retries.
func MetaIngestRequest(payload MetaLeadPayload) IngestRequest {
	raw, _ := json.Marshal(payload)
	fields := ExtractMetaLeadFields(payload)
	platformID := payload.LeadgenID

	return IngestRequest{
		Source:          SourceMetaAds,
		EventType:       EventTypeLeadForm,
		DedupKey:        "meta:" + payload.LeadgenID,
		PlatformEventID: &platformID,
		Phone:           fields["phone"],
		Candidate:       candidateFromFields(SourceMetaAds, fields),
		Message:         sanitize.TextPtr(optionalField(fields, "message")),
		Payload:         raw,
	}
}

// MessageIngestRequest builds the pipeline request for a messaging-channel
// event.
func MessageIngestRequest(req MessageRequest) IngestRequest {
	raw, _ := json.Marshal(req)
	source := strings.TrimSpace(req.Channel)
	if source == "" {
		source = SourceWhatsApp
	}
	eventType := EventTypeMessageSent
	if req.Direction == "inbound" {
		eventType = EventTypeMessageReceived
	}
	platformID := req.MessageID

	return IngestRequest{
		Source:          source,
		EventType:       eventType,
		DedupKey:        "msg:" + req.MessageID,
		PlatformEventID: &platformID,
		Phone:           req.Phone,
		Candidate:       resolver.Candidate{Source: source, Name: sanitize.TextPtr(req.Name)},
		Message:         sanitize.TextPtr(req.Text),
		Payload:         raw,
	}
}

// RebuildIngestRequest reconstructs the pipeline request from a stored
// inbound event, reversing the shape dispatch the webhook handlers did on
// first delivery. Replay depends on it: failed rows keep only the original
// payload.
func RebuildIngestRequest(ev InboundEvent) (IngestRequest, error) {
	if ev.Source == SourceMetaAds && ev.EventType == EventTypeLeadForm {
		var payload MetaLeadPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return IngestRequest{}, err
		}
		// Generic API events may also declare meta_ads as their source;
		// only payloads carrying a leadgen id are platform deliveries.
		if payload.LeadgenID != "" {
			return MetaIngestRequest(payload), nil
		}
	}

	if ev.EventType == EventTypeMessageReceived || ev.EventType == EventTypeMessageSent {
		var req MessageRequest
		if err := json.Unmarshal(ev.Payload, &req); err != nil {
			return IngestRequest{}, err
		}
		if req.MessageID != "" {
			return MessageIngestRequest(req), nil
		}
	}

	var req EventRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil {
		return IngestRequest{}, err
	}
	return EventIngestRequest(req), nil
}

func optionalField(fields map[string]string, key string) *string {
	if v, ok := fields[key]; ok && v != "" {
		return &v
	}
	return nil
}
