package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"transcode-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody bounds how much of a callback body is read. Worker
// payloads are a few KB; anything larger is hostile.
const maxWebhookBody = 1 << 20

// Handler exposes the orchestrator's HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and
// optional Metrics. Metrics may be nil to disable metric recording (e.g. in
// tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// statusResponse is the collaborator-facing view of a media record.
type statusResponse struct {
	MediaID  MediaID         `json:"mediaId"`
	TenantID TenantID        `json:"tenantId"`
	Type     MediaType       `json:"type"`
	Status   MediaStatus     `json:"status"`
	JobID    string          `json:"jobId,omitempty"`
	Attempts int             `json:"transcodingAttempts"`
	Error    string          `json:"transcodingError,omitempty"`
	Output   *OutputMetadata `json:"output,omitempty"`
}

func toStatusResponse(rec *MediaRecord) statusResponse {
	return statusResponse{
		MediaID:  rec.MediaID,
		TenantID: rec.TenantID,
		Type:     rec.Type,
		Status:   rec.Status,
		JobID:    rec.ExternalJobID,
		Attempts: rec.TranscodingAttempts,
		Error:    rec.TranscodingError,
		Output:   rec.Output,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Trigger handles POST /media/{media_id}/transcode.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := MediaID(chi.URLParam(r, "media_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec, err := h.svc.Trigger(r.Context(), id)
	if err != nil {
		h.writeTriggerError(w, "trigger transcoding failed", id, err)
		return
	}

	h.log.Info("transcoding job dispatched",
		slog.String("media_id", string(id)),
		slog.String("job_id", rec.ExternalJobID))
	if h.metrics != nil {
		h.metrics.IncJobsDispatched()
	}
	writeJSON(w, http.StatusAccepted, toStatusResponse(rec))
}

// Retry handles POST /media/{media_id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id := MediaID(chi.URLParam(r, "media_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		h.writeTriggerError(w, "retry transcoding failed", id, err)
		return
	}

	h.log.Info("transcoding retry dispatched",
		slog.String("media_id", string(id)),
		slog.String("job_id", rec.ExternalJobID),
		slog.Int("attempts", rec.TranscodingAttempts))
	if h.metrics != nil {
		h.metrics.IncRetries()
		h.metrics.IncJobsDispatched()
	}
	writeJSON(w, http.StatusAccepted, toStatusResponse(rec))
}

// writeTriggerError maps trigger/retry failures onto the response taxonomy:
// 404 unknown record, 409 precondition violations, 502 provider failures.
func (h *Handler) writeTriggerError(w http.ResponseWriter, msg string, id MediaID, err error) {
	switch {
	case errors.Is(err, ErrMediaNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrRetryExhausted),
		errors.Is(err, ErrMissingInput),
		errors.Is(err, ErrInputNotFound):
		h.log.Info(msg,
			slog.String("media_id", string(id)),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.log.Error(msg,
			slog.String("media_id", string(id)),
			slog.String("error", err.Error()))
		if h.metrics != nil {
			h.metrics.IncDispatchFailures()
		}
		w.WriteHeader(http.StatusBadGateway)
	}
}

// GetStatus handles GET /media/{media_id}.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := MediaID(chi.URLParam(r, "media_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec, err := h.svc.GetStatus(r.Context(), id)
	if errors.Is(err, ErrMediaNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("get status failed", slog.String("media_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(rec))
}

// HandleWebhook handles POST /webhooks/transcoding. The raw body is read
// once and verified before any parsing. Bad signatures get a bare 401 with
// no detail so the response cannot be used as an oracle on the secret.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if h.metrics != nil {
		h.metrics.IncWebhooksReceived()
	}

	res, err := h.svc.HandleWebhook(r.Context(), rawBody, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, ErrInvalidSignature):
		h.log.Warn("webhook rejected", slog.String("reason", "invalid signature"))
		if h.metrics != nil {
			h.metrics.IncWebhooksRejected()
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	case errors.Is(err, ErrMalformedPayload):
		h.log.Warn("webhook rejected", slog.String("reason", "malformed payload"))
		if h.metrics != nil {
			h.metrics.IncWebhooksRejected()
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error("webhook processing failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if res.Disposition == WebhookApplied {
		h.log.Info("webhook applied",
			slog.String("media_id", string(res.MediaID)),
			slog.String("job_id", res.JobID),
			slog.String("status", string(res.Status)))
		if h.metrics != nil {
			switch res.Status {
			case StatusReady:
				h.metrics.IncTranscodesCompleted()
			case StatusFailed:
				h.metrics.IncTranscodesFailed()
			}
		}
	} else {
		// Expected under at-least-once delivery; not an error.
		h.log.Info("webhook ignored",
			slog.String("media_id", string(res.MediaID)),
			slog.String("job_id", res.JobID),
			slog.String("reason", string(res.Disposition)))
	}

	writeJSON(w, http.StatusOK, map[string]string{"disposition": string(res.Disposition)})
}

// Routes mounts the orchestrator endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/media/{media_id}", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Post("/transcode", h.Trigger)
		r.Post("/retry", h.Retry)
	})
	r.Post("/webhooks/transcoding", h.HandleWebhook)
}
