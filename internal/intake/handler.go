package intake

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
	timeFormat        = "2006-01-02T15:04:05Z"

	defaultReplayBatch = 20
)

// Handler handles webhook and admin HTTP requests for the intake context.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
}

// NewHandler creates a new intake handler.
func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// ---- Webhook ingestion (public, API-key authenticated) ----

// IngestResponse is returned for event ingestion requests.
type IngestResponse struct {
	Status   string     `json:"status"`
	LeadID   *uuid.UUID `json:"leadId,omitempty"`
	Created  bool       `json:"created"`
	Warnings []string   `json:"warnings,omitempty"`
}

// HandleEvent processes a generic inbound event.
// POST /api/v1/webhook/events
func (h *Handler) HandleEvent(c *gin.Context) {
	var req EventRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	h.ingest(c, EventIngestRequest(req))
}

// HandleMetaLead processes a Meta lead form payload.
// POST /api/v1/webhook/meta-leads
func (h *Handler) HandleMetaLead(c *gin.Context) {
	var payload MetaLeadPayload
	if !h.bindAndValidate(c, &payload) {
		return
	}
	h.ingest(c, MetaIngestRequest(payload))
}

// HandleMessage processes a messaging-channel event.
// POST /api/v1/webhook/messages
func (h *Handler) HandleMessage(c *gin.Context) {
	var req MessageRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	h.ingest(c, MessageIngestRequest(req))
}

func (h *Handler) ingest(c *gin.Context, req IngestRequest) {
	result, err := h.service.Ingest(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if result.Status == ResultDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, IngestResponse{
		Status:   result.Status,
		LeadID:   result.LeadID,
		Created:  result.Created,
		Warnings: result.Warnings,
	})
}

// ---- Admin API key management (admin key authenticated) ----

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	KeyPrefix  string    `json:"keyPrefix"`
	Active     bool      `json:"active"`
	CreatedAt  string    `json:"createdAt"`
	LastUsedAt *string   `json:"lastUsedAt,omitempty"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"` // plaintext, shown only once
}

// HandleCreateAPIKey creates a new webhook API key.
// POST /api/v1/admin/intake/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	key, err := h.repo.Create(c.Request.Context(), req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists all webhook API keys.
// GET /api/v1/admin/intake/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	keys, err := h.repo.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}
	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates a webhook API key.
// DELETE /api/v1/admin/intake/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID); err != nil {
		if err == ErrAPIKeyNotFound {
			httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}

// ---- Admin replay ----

// ReplayRequest bounds one replay batch. The body is optional.
type ReplayRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}

// HandleReplay reprocesses failed inbound events from their stored payloads.
// POST /api/v1/admin/intake/replay
func (h *Handler) HandleReplay(c *gin.Context) {
	var req ReplayRequest
	if c.Request.ContentLength > 0 && !h.bindAndValidate(c, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultReplayBatch
	}

	recovered, err := h.service.ReprocessFailed(c.Request.Context(), req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"recovered": recovered})
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	resp := APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		Active:    key.Active,
		CreatedAt: key.CreatedAt.Format(timeFormat),
	}
	if key.LastUsedAt != nil {
		lastUsed := key.LastUsedAt.Format(timeFormat)
		resp.LastUsedAt = &lastUsed
	}
	return resp
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
