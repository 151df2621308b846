package sequence

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

// Handler handles sequence HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new sequence handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// CancelRequest asks to stop the active sequence for the lead behind a
// phone number.
type CancelRequest struct {
	Phone  string `json:"phone" validate:"required,min=8,max=20"`
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// CancelResponse reports the cancellation outcome. Cancelled is false when
// the lead had no active sequence, which callers treat as success.
type CancelResponse struct {
	Cancelled   bool       `json:"cancelled"`
	ExecutionID *uuid.UUID `json:"executionId,omitempty"`
	SequenceKey string     `json:"sequenceKey,omitempty"`
}

// HandleCancel stops an active follow-up sequence.
// POST /api/v1/sequences/cancel
func (h *Handler) HandleCancel(c *gin.Context) {
	var req CancelRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	execution, cancelled, err := h.service.CancelByPhone(c.Request.Context(), req.Phone, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := CancelResponse{Cancelled: cancelled}
	if cancelled {
		id := execution.ID
		resp.ExecutionID = &id
		resp.SequenceKey = execution.SequenceKey
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
