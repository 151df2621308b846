package intake

// EventRequest is the generic intake payload for POST /webhook/events.
// Integrations that already speak our vocabulary use this shape directly.
type EventRequest struct {
	Source         string   `json:"source" validate:"required,min=1,max=60"`
	EventType      string   `json:"eventType" validate:"required,min=1,max=60"`
	DedupKey       string   `json:"dedupKey" validate:"required,min=1,max=200"`
	Phone          string   `json:"phone" validate:"required,min=8,max=30"`
	Name           *string  `json:"name" validate:"omitempty,max=120"`
	Email          *string  `json:"email" validate:"omitempty,email,max=160"`
	City           *string  `json:"city" validate:"omitempty,max=120"`
	Qualification  string   `json:"qualification" validate:"omitempty,max=60"`
	ProjectStage   *string  `json:"projectStage" validate:"omitempty,max=60"`
	TicketEstimate *float64 `json:"ticketEstimate" validate:"omitempty,gte=0"`
	Message        *string  `json:"message" validate:"omitempty,max=4000"`
}

// MetaLeadPayload mirrors the Graph API leadgen retrieval shape (answered
// questions under field_data) plus the ad context Meta attaches.
type MetaLeadPayload struct {
	LeadgenID    string          `json:"leadgen_id" validate:"required,min=1,max=100"`
	FormID       string          `json:"form_id"`
	PageID       string          `json:"page_id"`
	AdID         string          `json:"ad_id"`
	CampaignID   string          `json:"campaign_id"`
	CampaignName string          `json:"campaign_name"`
	CreatedTime  string          `json:"created_time"`
	IsOrganic    bool            `json:"is_organic"`
	FieldData    []MetaFieldData `json:"field_data"`
}

// MetaFieldData is a single answered form question.
type MetaFieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// MessageRequest is the messaging-channel payload for POST /webhook/messages.
// The gateway forwards both directions; only inbound messages affect
// sequences.
type MessageRequest struct {
	MessageID string  `json:"messageId" validate:"required,min=1,max=200"`
	Phone     string  `json:"phone" validate:"required,min=8,max=30"`
	Name      *string `json:"name" validate:"omitempty,max=120"`
	Text      *string `json:"text" validate:"omitempty,max=8000"`
	Direction string  `json:"direction" validate:"required,oneof=inbound outbound"`
	Channel   string  `json:"channel" validate:"omitempty,max=40"`
}
