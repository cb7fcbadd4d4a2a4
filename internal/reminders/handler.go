package reminders

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gatherly/gatherly/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrMissingBaseURL, Status: http.StatusBadRequest, Message: "link base url is required"},
}

// Handler handles HTTP requests for the reminders module.
type Handler struct {
	scheduler *Scheduler
	validator *validator.Validate
}

// NewHandler creates a new reminders handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{
		scheduler: scheduler,
		validator: validator.New(),
	}
}

// RegisterRoutes registers reminder routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reminders/run", h.Run)
}

// RunRequest represents request body for a manual scheduling run.
// LinkBaseURL falls back to the configured value when omitted.
type RunRequest struct {
	LinkBaseURL string `json:"link_base_url,omitempty" validate:"omitempty,url"`
}

// RunResponse reports how many recipients a run notified.
type RunResponse struct {
	Recipients int `json:"recipients"`
}

// Run handles POST /reminders/run.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	baseURL := req.LinkBaseURL
	if baseURL == "" {
		baseURL = h.scheduler.config.LinkBaseURL
	}

	recipients, err := h.scheduler.EnqueueDueReminders(r.Context(), baseURL)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, RunResponse{Recipients: recipients})
}
