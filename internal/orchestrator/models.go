package orchestrator

import "time"

// MediaID uniquely identifies a media record.
type MediaID string

// TenantID identifies the owning creator/tenant. Every storage key derived
// for a record is prefixed with its tenant id.
type TenantID string

// MediaType classifies a record as video or audio. Immutable once set.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// MediaStatus is the lifecycle state of a media record.
//
// uploaded → transcoding → {ready | failed}; failed → uploaded (once, via
// retry). ready, and failed after the single retry, are terminal.
type MediaStatus string

const (
	StatusUploaded    MediaStatus = "uploaded"
	StatusTranscoding MediaStatus = "transcoding"
	StatusReady       MediaStatus = "ready"
	StatusFailed      MediaStatus = "failed"
)

// MaxTranscodingAttempts caps manual retries. The initial dispatch does not
// count as an attempt.
const MaxTranscodingAttempts = 1

// Loudness holds the normalized loudness measurements reported by the worker
// (loudnorm two-pass analysis).
type Loudness struct {
	IntegratedLUFS float64 `json:"integratedLufs"`
	TruePeakDB     float64 `json:"truePeakDb"`
	RangeLU        float64 `json:"rangeLu"`
}

// OutputMetadata is the set of delivery/archival outputs reported by a
// successful transcode. ManifestKey is the only field required for a record
// to be marked ready; the rest vary by media type (video gets preview and
// thumbnail, audio gets waveforms and no mezzanine).
type OutputMetadata struct {
	ManifestKey      string    `json:"manifestKey"`
	PreviewKey       string    `json:"previewKey,omitempty"`
	ThumbnailKey     string    `json:"thumbnailKey,omitempty"`
	WaveformKey      string    `json:"waveformKey,omitempty"`
	WaveformImageKey string    `json:"waveformImageKey,omitempty"`
	MezzanineKey     string    `json:"mezzanineKey,omitempty"`
	DurationSeconds  int       `json:"durationSeconds"`
	Width            int       `json:"width,omitempty"`
	Height           int       `json:"height,omitempty"`
	ReadyVariants    []string  `json:"readyVariants"`
	Loudness         *Loudness `json:"loudness,omitempty"`
}

// Keys returns every non-empty storage key in the metadata. Used for
// tenant-prefix validation before the metadata is persisted.
func (o *OutputMetadata) Keys() []string {
	all := []string{
		o.ManifestKey,
		o.PreviewKey,
		o.ThumbnailKey,
		o.WaveformKey,
		o.WaveformImageKey,
		o.MezzanineKey,
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// MediaRecord is the unit of work tracked by the orchestrator. It is created
// by the upload-completion collaborator with StatusUploaded and mutated only
// through the Repository's conditional transitions.
type MediaRecord struct {
	MediaID  MediaID
	TenantID TenantID
	Type     MediaType
	Status   MediaStatus

	// InputKey is the storage key of the uploaded original.
	InputKey string

	// ExternalJobID correlates the record with its active dispatch. A
	// callback carrying a different job id is stale and must be ignored.
	ExternalJobID string

	// TranscodingAttempts counts manual retries only.
	TranscodingAttempts int

	// TranscodingError is set iff Status is failed.
	TranscodingError string

	// Output is set iff Status is ready.
	Output *OutputMetadata

	CreatedAt time.Time
	UpdatedAt time.Time
}
