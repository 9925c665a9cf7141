package orchestrator

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// SignatureHeader is the HTTP header carrying the webhook MAC, computed by
// the worker over the exact raw request body.
const SignatureHeader = "X-Runpod-Signature"

var (
	// ErrInvalidSignature is returned when a webhook signature is missing
	// or does not match the MAC over the raw body. The body must not be
	// parsed or acted on after this error.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrMalformedPayload is returned when a verified webhook body cannot
	// be decoded into a known callback shape.
	ErrMalformedPayload = errors.New("webhook payload is malformed")
)

// SignPayload returns the hex-encoded HMAC-SHA256 of body under secret.
// This is the exact signature scheme the worker uses.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the MAC over the raw body bytes
// using a constant-time comparison. Verification operates on the bytes as
// received: re-serializing parsed JSON can change byte layout and break the
// MAC for otherwise-valid payloads.
func VerifySignature(body []byte, signature, secret string) error {
	if signature == "" || secret == "" {
		return ErrInvalidSignature
	}
	expected := SignPayload(body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// CallbackOutcome tags the two variants of a transcoding callback.
type CallbackOutcome string

const (
	OutcomeCompleted CallbackOutcome = "completed"
	OutcomeFailed    CallbackOutcome = "failed"
)

// TranscodeCallback is the decoded webhook body sent by the worker after a
// job finishes. Status selects the variant: completed callbacks carry the
// output keys and measurements, failed callbacks carry Error.
type TranscodeCallback struct {
	Status  CallbackOutcome `json:"status"`
	JobID   string          `json:"jobId"`
	MediaID MediaID         `json:"mediaId"`
	Type    MediaType       `json:"type"`

	HLSMasterPlaylistKey string    `json:"hlsMasterPlaylistKey"`
	HLSPreviewKey        string    `json:"hlsPreviewKey"`
	ThumbnailKey         string    `json:"thumbnailKey"`
	WaveformKey          string    `json:"waveformKey"`
	WaveformImageKey     string    `json:"waveformImageKey"`
	MezzanineKey         string    `json:"mezzanineKey"`
	DurationSeconds      int       `json:"durationSeconds"`
	Width                int       `json:"width"`
	Height               int       `json:"height"`
	ReadyVariants        []string  `json:"readyVariants"`
	Loudness             *Loudness `json:"loudness"`

	Error string `json:"error"`
}

// DecodeCallback strictly decodes a verified webhook body. Unknown fields,
// an unrecognized status, or a missing job/media id produce
// ErrMalformedPayload. Missing success fields (e.g. the manifest key) are
// not decode errors; the completion handler downgrades those to a failure
// transition so a half-populated callback can never become a ready record.
func DecodeCallback(raw []byte) (*TranscodeCallback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var cb TranscodeCallback
	if err := dec.Decode(&cb); err != nil {
		return nil, ErrMalformedPayload
	}
	if cb.Status != OutcomeCompleted && cb.Status != OutcomeFailed {
		return nil, ErrMalformedPayload
	}
	if cb.JobID == "" || cb.MediaID == "" {
		return nil, ErrMalformedPayload
	}
	return &cb, nil
}

// Output converts a completed callback into the metadata persisted on the
// media record.
func (cb *TranscodeCallback) Output() *OutputMetadata {
	return &OutputMetadata{
		ManifestKey:      cb.HLSMasterPlaylistKey,
		PreviewKey:       cb.HLSPreviewKey,
		ThumbnailKey:     cb.ThumbnailKey,
		WaveformKey:      cb.WaveformKey,
		WaveformImageKey: cb.WaveformImageKey,
		MezzanineKey:     cb.MezzanineKey,
		DurationSeconds:  cb.DurationSeconds,
		Width:            cb.Width,
		Height:           cb.Height,
		ReadyVariants:    cb.ReadyVariants,
		Loudness:         cb.Loudness,
	}
}
