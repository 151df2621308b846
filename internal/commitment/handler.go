package commitment

import (
	"net/http"

	"salesops_backend/platform/httpkit"
	"salesops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Handler handles commitment HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new commitment handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// CompleteRequest asks to close the open commitment for the lead behind a
// phone number.
type CompleteRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=20"`
	Type  string `json:"type" validate:"required,oneof=response_5min qualification_30min followup_4h visit_24h proposal_48h"`
}

// CompleteResponse reports the completion outcome. Completed is false when
// no commitment of that type was open, which callers treat as success.
type CompleteResponse struct {
	Completed    bool       `json:"completed"`
	CommitmentID *uuid.UUID `json:"commitmentId,omitempty"`
	Type         string     `json:"type"`
	AfterBreach  bool       `json:"afterBreach,omitempty"`
}

// HandleComplete closes an open commitment.
// POST /api/v1/commitments/complete
func (h *Handler) HandleComplete(c *gin.Context) {
	var req CompleteRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	commitment, completed, err := h.service.CompleteByPhone(c.Request.Context(), req.Phone, req.Type)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := CompleteResponse{Completed: completed, Type: req.Type}
	if completed {
		id := commitment.ID
		resp.CommitmentID = &id
		resp.AfterBreach = commitment.BreachedAt != nil
	}
	httpkit.OK(c, resp)
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.Fields(err))
		return false
	}
	return true
}
