package http

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"

	"github.com/histdb/histdb/internal/errors"
	"github.com/histdb/histdb/internal/logging"
	"github.com/histdb/histdb/pkg/types"
)

// Enqueuer is the pipeline surface the handlers need: offer an event, get
// an immediate accept or a backpressure error. Handlers never see storage
// outcomes; those happen after the response is gone.
type Enqueuer interface {
	TryEnqueue(ev types.Event) error
}

// chromeEventRequest is the POST /chrome-events payload.
type chromeEventRequest struct {
	Type      string          `json:"type" validate:"required"`
	URL       string          `json:"url" validate:"required"`
	Title     string          `json:"title"`
	Timestamp types.Timestamp `json:"timestamp"`
	User      string          `json:"user"`
}

// emacsContextRequest is the nested context of an editor event payload.
type emacsContextRequest struct {
	Buffer    string `json:"buffer" validate:"required"`
	FileName  string `json:"file_name"`
	MajorMode string `json:"major_mode" validate:"required"`
	Project   string `json:"project"`
}

// emacsEventRequest is the POST /emacs-events payload.
type emacsEventRequest struct {
	Timestamp types.Timestamp     `json:"timestamp"`
	SessionID string              `json:"session_id" validate:"required"`
	Host      string              `json:"host" validate:"required"`
	Command   string              `json:"command" validate:"required"`
	Context   emacsContextRequest `json:"context"`
}

// queuedResponse acknowledges an accepted event.
type queuedResponse struct {
	Status string `json:"status"`
}

// EventsHandler handles the event ingestion endpoints.
type EventsHandler struct {
	pipeline Enqueuer
	validate *validator.Validate
}

// NewEventsHandler creates the handler bound to a pipeline.
func NewEventsHandler(pipeline Enqueuer) *EventsHandler {
	return &EventsHandler{
		pipeline: pipeline,
		validate: validator.New(),
	}
}

// HandleChromeEvent handles POST /chrome-events.
func (h *EventsHandler) HandleChromeEvent(w http.ResponseWriter, r *http.Request) {
	var req chromeEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("invalid request body: %v", err), errors.CodeInvalidPayload)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error(), errors.CodeInvalidPayload)
		return
	}
	if req.Timestamp.IsZero() {
		writeError(w, r, http.StatusUnprocessableEntity, "timestamp is required", errors.CodeInvalidTimestamp)
		return
	}

	h.enqueue(w, r, types.BrowsingEvent{
		Type:      req.Type,
		URL:       req.URL,
		Title:     req.Title,
		Timestamp: req.Timestamp,
		User:      req.User,
	})
}

// HandleEmacsEvent handles POST /emacs-events.
func (h *EventsHandler) HandleEmacsEvent(w http.ResponseWriter, r *http.Request) {
	var req emacsEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity,
			fmt.Sprintf("invalid request body: %v", err), errors.CodeInvalidPayload)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error(), errors.CodeInvalidPayload)
		return
	}
	if req.Timestamp.IsZero() {
		writeError(w, r, http.StatusUnprocessableEntity, "timestamp is required", errors.CodeInvalidTimestamp)
		return
	}

	h.enqueue(w, r, types.EditorEvent{
		Timestamp: req.Timestamp,
		SessionID: req.SessionID,
		Host:      req.Host,
		Command:   req.Command,
		Context: types.EditorContext{
			Buffer:    req.Context.Buffer,
			FileName:  req.Context.FileName,
			MajorMode: req.Context.MajorMode,
			Project:   req.Context.Project,
		},
	})
}

// enqueue offers the event and writes the acknowledgement or the overload
// response. The queue-full signal is expected under load, not a failure.
func (h *EventsHandler) enqueue(w http.ResponseWriter, r *http.Request, ev types.Event) {
	if err := h.pipeline.TryEnqueue(ev); err != nil {
		if errors.GetCategory(err) == errors.ErrCategoryQueue {
			l := logging.Ctx(r.Context())
			l.Warn().
				Str("kind", string(ev.Kind())).
				Msg("event rejected by backpressure")
			writeError(w, r, http.StatusServiceUnavailable, err.Error(), errors.GetCode(err))
			return
		}
		l := logging.Ctx(r.Context())
		l.Error().Err(err).Msg("enqueue failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error", "")
		return
	}

	writeJSON(w, http.StatusOK, queuedResponse{Status: "queued"})
}

// HandleHealth handles GET /healthz.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
