package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// WebhookDisposition describes what a verified callback did to the record.
// The no-op dispositions are expected under at-least-once delivery and
// retry races; they are logged by the caller but never surfaced as errors.
type WebhookDisposition string

const (
	WebhookApplied      WebhookDisposition = "applied"
	WebhookUnknownMedia WebhookDisposition = "unknown_media"
	WebhookStaleJob     WebhookDisposition = "stale_job"
	WebhookSuperseded   WebhookDisposition = "already_terminal"
)

// WebhookResult reports the outcome of HandleWebhook for logging and
// response mapping.
type WebhookResult struct {
	Disposition WebhookDisposition
	MediaID     MediaID
	JobID       string
	Status      MediaStatus
}

// Service is the orchestrator facade. It exposes the four operations
// collaborators use and is the only mutation path for media records beyond
// their initial creation.
type Service struct {
	repo          Repository
	dispatcher    *Dispatcher
	webhookSecret string
}

// NewService returns a Service over the given repository and dispatcher.
// webhookSecret is the worker-wide secret callbacks are signed with.
func NewService(repo Repository, dispatcher *Dispatcher, webhookSecret string) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, webhookSecret: webhookSecret}
}

// Trigger dispatches a transcoding job for an uploaded record and
// transitions it to transcoding. The record is not mutated until the
// submission call has succeeded, so a provider failure leaves it at
// uploaded for the caller to act on.
func (s *Service) Trigger(ctx context.Context, id MediaID) (*MediaRecord, error) {
	rec, err := s.repo.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}

	jobID, err := s.dispatcher.Dispatch(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkTranscoding(ctx, id, jobID); err != nil {
		// The job is already submitted; losing this write means a
		// concurrent caller won the transition first.
		return nil, fmt.Errorf("record job %s for media %s: %w", jobID, id, err)
	}
	return s.repo.GetMedia(ctx, id)
}

// HandleWebhook authenticates and applies a completion callback.
// Verification happens over the raw bytes before anything is parsed; a bad
// signature returns ErrInvalidSignature with zero state change. Benign
// no-ops (unknown record, stale job id, already-terminal status) return a
// nil error with the matching disposition.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if err := VerifySignature(rawBody, signature, s.webhookSecret); err != nil {
		return nil, err
	}

	cb, err := DecodeCallback(rawBody)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.GetMedia(ctx, cb.MediaID)
	if errors.Is(err, ErrMediaNotFound) {
		return &WebhookResult{Disposition: WebhookUnknownMedia, MediaID: cb.MediaID, JobID: cb.JobID}, nil
	}
	if err != nil {
		return nil, err
	}

	var applied bool
	var status MediaStatus
	if cb.Status == OutcomeCompleted {
		applied, status, err = s.applyCompletion(ctx, rec, cb)
	} else {
		applied, status, err = s.applyFailure(ctx, rec, cb.JobID, cb.Error)
	}
	if errors.Is(err, ErrMediaNotFound) {
		return &WebhookResult{Disposition: WebhookUnknownMedia, MediaID: cb.MediaID, JobID: cb.JobID}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &WebhookResult{MediaID: cb.MediaID, JobID: cb.JobID, Status: status}
	switch {
	case applied:
		res.Disposition = WebhookApplied
	case rec.ExternalJobID != cb.JobID:
		res.Disposition = WebhookStaleJob
		res.Status = rec.Status
	default:
		res.Disposition = WebhookSuperseded
		res.Status = rec.Status
	}
	return res, nil
}

// applyCompletion validates a success callback's outputs and performs the
// ready transition, downgrading invalid payloads to a failure transition.
// A record must never become ready with missing or foreign output keys.
func (s *Service) applyCompletion(ctx context.Context, rec *MediaRecord, cb *TranscodeCallback) (bool, MediaStatus, error) {
	out := cb.Output()

	for _, key := range out.Keys() {
		if !ValidateTenantPrefix(key, rec.TenantID) {
			msg := fmt.Sprintf("output key %q is outside tenant namespace %q", key, rec.TenantID)
			applied, err := s.repo.FailTranscoding(ctx, rec.MediaID, cb.JobID, msg)
			return applied, StatusFailed, err
		}
	}

	if out.ManifestKey == "" {
		applied, err := s.repo.FailTranscoding(ctx, rec.MediaID, cb.JobID, "completion callback missing manifest key")
		return applied, StatusFailed, err
	}

	applied, err := s.repo.CompleteTranscoding(ctx, rec.MediaID, cb.JobID, out)
	return applied, StatusReady, err
}

// applyFailure performs the failed transition. The error channel must be
// populated for a failed record, so an empty worker message gets a default.
func (s *Service) applyFailure(ctx context.Context, rec *MediaRecord, jobID, msg string) (bool, MediaStatus, error) {
	if msg == "" {
		msg = "transcoding failed with no error detail"
	}
	applied, err := s.repo.FailTranscoding(ctx, rec.MediaID, jobID, msg)
	return applied, StatusFailed, err
}

// Retry re-dispatches a failed record exactly once. The retry cap is a
// validation failure, not a silent no-op. The reset and the re-dispatch run
// in the same call; a dispatch failure leaves the record back at uploaded.
func (s *Service) Retry(ctx context.Context, id MediaID) (*MediaRecord, error) {
	rec, err := s.repo.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}

	jobID, err := s.dispatcher.Dispatch(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkTranscoding(ctx, id, jobID); err != nil {
		return nil, fmt.Errorf("record job %s for media %s: %w", jobID, id, err)
	}
	return s.repo.GetMedia(ctx, id)
}

// GetStatus returns the current record for collaborators to poll.
func (s *Service) GetStatus(ctx context.Context, id MediaID) (*MediaRecord, error) {
	return s.repo.GetMedia(ctx, id)
}
