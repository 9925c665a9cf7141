package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingInput is returned when a record has no input storage key
	// to dispatch.
	ErrMissingInput = errors.New("media record has no input key")

	// ErrInputNotFound is returned when the pre-flight check cannot find
	// the input object in storage. Dispatching a job against a missing
	// object wastes a paid provider run.
	ErrInputNotFound = errors.New("input object not found in storage")
)

// JobSubmitter submits a transcoding job to the external compute provider
// and returns the provider's job id.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, payload *JobPayload) (jobID string, err error)
}

// InputChecker verifies that an input object exists before a job is
// dispatched. A nil checker skips the pre-flight check.
type InputChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectStoreConfig is the S3-compatible storage configuration forwarded to
// the worker so it can download the original and upload outputs.
type ObjectStoreConfig struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucket"`
}

// JobPayload is the job input submitted to the provider. The worker
// re-derives output keys from (creatorId, mediaId); OutputPrefix is carried
// for logging and sanity checks, not trusted.
type JobPayload struct {
	MediaID       MediaID           `json:"mediaId"`
	CreatorID     TenantID          `json:"creatorId"`
	Type          MediaType         `json:"type"`
	InputKey      string            `json:"inputKey"`
	OutputPrefix  string            `json:"outputPrefix"`
	WebhookURL    string            `json:"webhookUrl"`
	WebhookSecret string            `json:"webhookSecret"`
	Delivery      ObjectStoreConfig `json:"delivery"`
	Archive       ObjectStoreConfig `json:"archive"`
}

// DispatchConfig carries the deployment-level values baked into every job
// payload, plus the bound on the outbound submission call.
type DispatchConfig struct {
	WebhookURL    string
	WebhookSecret string
	Delivery      ObjectStoreConfig
	Archive       ObjectStoreConfig
	SubmitTimeout time.Duration
}

// DefaultSubmitTimeout bounds the job-submission call so a stuck provider
// cannot hang the dispatching request.
const DefaultSubmitTimeout = 30 * time.Second

// Dispatcher builds job payloads and submits them to the provider. It does
// not mutate records; the service persists the returned job id once the
// submission outcome is known.
type Dispatcher struct {
	submitter JobSubmitter
	checker   InputChecker
	cfg       DispatchConfig
}

// NewDispatcher returns a Dispatcher using the given submitter and config.
// checker may be nil to skip the input pre-flight check.
func NewDispatcher(submitter JobSubmitter, checker InputChecker, cfg DispatchConfig) *Dispatcher {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	return &Dispatcher{submitter: submitter, checker: checker, cfg: cfg}
}

// BuildPayload constructs the job payload for rec. All storage keys come
// from the path generator; nothing here concatenates key strings.
func (d *Dispatcher) BuildPayload(rec *MediaRecord) *JobPayload {
	return &JobPayload{
		MediaID:       rec.MediaID,
		CreatorID:     rec.TenantID,
		Type:          rec.Type,
		InputKey:      rec.InputKey,
		OutputPrefix:  DeliveryOutputPrefix(rec.TenantID, rec.MediaID),
		WebhookURL:    d.cfg.WebhookURL,
		WebhookSecret: d.cfg.WebhookSecret,
		Delivery:      d.cfg.Delivery,
		Archive:       d.cfg.Archive,
	}
}

// Dispatch validates the record's preconditions and submits exactly one job,
// returning the provider's job id. Submission failures surface to the
// caller and are never retried automatically: retrying against a paid GPU
// provider on a transient error risks duplicate billing.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *MediaRecord) (string, error) {
	if rec.Status != StatusUploaded {
		return "", ErrInvalidState
	}
	if rec.InputKey == "" {
		return "", ErrMissingInput
	}

	if d.checker != nil {
		exists, err := d.checker.Exists(ctx, rec.InputKey)
		if err != nil {
			return "", fmt.Errorf("check input object %q: %w", rec.InputKey, err)
		}
		if !exists {
			return "", ErrInputNotFound
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	jobID, err := d.submitter.SubmitJob(ctx, d.BuildPayload(rec))
	if err != nil {
		return "", fmt.Errorf("submit transcoding job for media %s: %w", rec.MediaID, err)
	}
	if jobID == "" {
		return "", fmt.Errorf("submit transcoding job for media %s: provider returned empty job id", rec.MediaID)
	}
	return jobID, nil
}
