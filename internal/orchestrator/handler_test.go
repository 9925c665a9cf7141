package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T, sub *fakeSubmitter) (*Handler, Repository) {
	t.Helper()
	svc, repo := newTestService(t, sub)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(svc, log, nil), repo
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestHandler_Trigger(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{jobIDs: []string{"j1"}})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/media/m1/transcode", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", w.Code, w.Body.String())
	}
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusTranscoding || resp.JobID != "j1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandler_Trigger_notFound(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/media/missing/transcode", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandler_Trigger_wrongStateConflicts(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{jobIDs: []string{"j1"}})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	for i, want := range []int{http.StatusAccepted, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/media/m1/transcode", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, want)
		}
	}
}

func TestHandler_Trigger_dispatchFailure(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{err: context.DeadlineExceeded})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/media/m1/transcode", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestHandler_GetStatus(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/media/m1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MediaID != "m1" || resp.Status != StatusUploaded {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandler_GetStatus_notFound(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/media/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandler_Webhook_success(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{jobIDs: []string{"j1"}})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/media/m1/transcode", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	raw, sig := signedCallback(t, successCallback("j1"))
	whReq := httptest.NewRequest(http.MethodPost, "/webhooks/transcoding", bytes.NewReader(raw))
	whReq.Header.Set(SignatureHeader, sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, whReq)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["disposition"] != string(WebhookApplied) {
		t.Errorf("disposition = %q, want applied", resp["disposition"])
	}

	rec, _ := repo.GetMedia(context.Background(), "m1")
	if rec.Status != StatusReady {
		t.Errorf("status = %q, want ready", rec.Status)
	}
}

func TestHandler_Webhook_badSignature(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{jobIDs: []string{"j1"}})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/media/m1/transcode", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	raw, _ := signedCallback(t, successCallback("j1"))
	whReq := httptest.NewRequest(http.MethodPost, "/webhooks/transcoding", bytes.NewReader(raw))
	whReq.Header.Set(SignatureHeader, "not-the-signature")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, whReq)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("rejection must carry no detail, got %q", w.Body.String())
	}

	rec, _ := repo.GetMedia(context.Background(), "m1")
	if rec.Status != StatusTranscoding {
		t.Errorf("record must be unchanged, got %q", rec.Status)
	}
}

func TestHandler_Webhook_missingSignature(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})
	r := newTestRouter(h)

	raw, _ := signedCallback(t, successCallback("j1"))
	whReq := httptest.NewRequest(http.MethodPost, "/webhooks/transcoding", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, whReq)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandler_Webhook_malformedBody(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})
	r := newTestRouter(h)

	raw := []byte(`{"status":"completed"}`)
	whReq := httptest.NewRequest(http.MethodPost, "/webhooks/transcoding", bytes.NewReader(raw))
	whReq.Header.Set(SignatureHeader, SignPayload(raw, testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, whReq)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandler_Webhook_unknownMediaIsOK(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})
	r := newTestRouter(h)

	raw, sig := signedCallback(t, successCallback("j1"))
	whReq := httptest.NewRequest(http.MethodPost, "/webhooks/transcoding", bytes.NewReader(raw))
	whReq.Header.Set(SignatureHeader, sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, whReq)

	// 200 so the provider stops redelivering.
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["disposition"] != string(WebhookUnknownMedia) {
		t.Errorf("disposition = %q, want unknown_media", resp["disposition"])
	}
}

func TestHandler_Retry(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{jobIDs: []string{"j1", "j2"}})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/media/m1/transcode", nil))

	raw, sig := signedCallback(t, map[string]any{
		"status": "failed", "jobId": "j1", "mediaId": "m1", "type": "video", "error": "boom",
	})
	whReq := httptest.NewRequest(http.MethodPost, "/webhooks/transcoding", bytes.NewReader(raw))
	whReq.Header.Set(SignatureHeader, sig)
	r.ServeHTTP(httptest.NewRecorder(), whReq)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/media/m1/retry", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", w.Code, w.Body.String())
	}
	var resp statusResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != StatusTranscoding || resp.JobID != "j2" || resp.Attempts != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandler_Retry_notFailedConflicts(t *testing.T) {
	h, repo := newTestHandler(t, &fakeSubmitter{})
	seedUploaded(t, repo, "m1")
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/media/m1/retry", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}
