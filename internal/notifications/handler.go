package notifications

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gatherly/gatherly/internal/domain"
	"github.com/gatherly/gatherly/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrUnknownKind, Status: http.StatusBadRequest, Message: "unknown notification kind"},
	{Error: ErrUnknownRecipient, Status: http.StatusBadRequest, Message: "one or more recipients do not exist"},
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrAlreadyProcessed, Status: http.StatusConflict, Message: "notification already processed"},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Enqueue)
		r.Get("/pending", h.GetPending)
		r.Post("/{id}/processed", h.MarkProcessed)
	})
}

// EnqueueAttachment is one attachment in an enqueue request. Data is
// base64-encoded on the wire.
type EnqueueAttachment struct {
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name" validate:"required"`
	Data        []byte `json:"data" validate:"required"`
}

// EnqueueRequest represents request body for enqueueing notifications.
type EnqueueRequest struct {
	Kind             string              `json:"kind" validate:"required"`
	TemplateData     json.RawMessage     `json:"template_data,omitempty"`
	Attachments      []EnqueueAttachment `json:"attachments" validate:"dive"`
	RecipientUserIDs []string            `json:"recipient_user_ids" validate:"required,min=1,dive,uuid"`
}

// MarkProcessedRequest represents request body for recording a delivery outcome.
type MarkProcessedRequest struct {
	Error *string `json:"error"`
}

// EnqueueResponse reports how many notifications were created.
type EnqueueResponse struct {
	Created int `json:"created"`
}

// PendingResponse is the wire form of a pending notification.
type PendingResponse struct {
	NotificationID string          `json:"notification_id"`
	Kind           string          `json:"kind"`
	Email          string          `json:"email"`
	TemplateData   json.RawMessage `json:"template_data,omitempty"`
	AttachmentIDs  []string        `json:"attachment_ids"`
}

// Enqueue handles POST /notifications.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	attachments := make([]AttachmentInput, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, AttachmentInput{
			ContentType: a.ContentType,
			FileName:    a.FileName,
			Data:        a.Data,
		})
	}

	created, err := h.service.Enqueue(r.Context(), domain.Kind(req.Kind), req.TemplateData, attachments, req.RecipientUserIDs)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, EnqueueResponse{Created: created})
}

// GetPending handles GET /notifications/pending. An empty queue is a normal
// response with a null body, not an error.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.GetPendingNotification(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if pending == nil {
		httputil.Success(w, http.StatusOK, nil)
		return
	}

	httputil.Success(w, http.StatusOK, PendingResponse{
		NotificationID: pending.NotificationID,
		Kind:           string(pending.Kind),
		Email:          pending.Email,
		TemplateData:   pending.TemplateData,
		AttachmentIDs:  pending.AttachmentIDs,
	})
}

// MarkProcessed handles POST /notifications/{id}/processed.
func (h *Handler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MarkProcessedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	var deliveryErr error
	if req.Error != nil && *req.Error != "" {
		deliveryErr = errors.New(*req.Error)
	}

	if err := h.service.MarkProcessed(r.Context(), id, deliveryErr); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, nil)
}
