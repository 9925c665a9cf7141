package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMediaNotFound is returned when no record exists for a media id.
	ErrMediaNotFound = errors.New("media record not found")

	// ErrMediaExists is returned when creating a record whose id is taken.
	ErrMediaExists = errors.New("media record already exists")

	// ErrInvalidState is returned when a transition is requested from a
	// status that does not permit it (e.g. dispatching a record that is
	// not in uploaded status).
	ErrInvalidState = errors.New("media record is not in a valid state for this operation")

	// ErrRetryExhausted is returned when a retry is requested for a record
	// that has already used its single retry.
	ErrRetryExhausted = errors.New("transcoding retry limit reached")

	// ErrMissingManifest is returned when CompleteTranscoding is called
	// without a manifest key. A record must never reach ready status with
	// nothing to stream.
	ErrMissingManifest = errors.New("output manifest key is required for ready status")
)

// Repository defines the concurrency-safe contract for accessing and
// mutating media records. Each transition method is a single atomic
// check-then-act unit: the state condition and the mutation are applied
// together, so concurrent callers cannot interleave between them.
type Repository interface {
	// CreateMedia inserts a new record. A blank MediaID is assigned a
	// generated one; a blank Status defaults to uploaded. Returns the
	// stored record.
	CreateMedia(ctx context.Context, rec *MediaRecord) (*MediaRecord, error)

	// GetMedia returns the record for id, or ErrMediaNotFound.
	GetMedia(ctx context.Context, id MediaID) (*MediaRecord, error)

	// MarkTranscoding transitions uploaded → transcoding and records the
	// external job id. Returns ErrInvalidState if the record is not in
	// uploaded status.
	MarkTranscoding(ctx context.Context, id MediaID, jobID string) error

	// ResetForRetry transitions failed → uploaded, increments the attempt
	// counter and clears the error and job id. Returns ErrInvalidState if
	// the record is not failed, ErrRetryExhausted if the retry cap is
	// already spent. Returns the updated record.
	ResetForRetry(ctx context.Context, id MediaID) (*MediaRecord, error)

	// CompleteTranscoding transitions transcoding → ready and persists the
	// output metadata, provided the record is still transcoding and its
	// external job id matches jobID. applied reports whether the update
	// took effect; a false return with nil error means the callback was
	// stale or the record already terminal, which callers treat as a
	// benign no-op.
	CompleteTranscoding(ctx context.Context, id MediaID, jobID string, out *OutputMetadata) (applied bool, err error)

	// FailTranscoding transitions transcoding → failed with the given
	// error text, under the same conditions as CompleteTranscoding.
	FailTranscoding(ctx context.Context, id MediaID, jobID string, msg string) (applied bool, err error)

	// ActiveTranscodingCount returns the number of records currently in
	// transcoding status. Used for metrics.
	ActiveTranscodingCount(ctx context.Context) (int, error)
}

// InMemoryRepository is a concurrency-safe in-memory implementation of
// Repository. It uses a Store for persistence; by default an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given
// Store. Useful for testing or for plugging in a different backend.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// CreateMedia implements Repository.CreateMedia.
func (r *InMemoryRepository) CreateMedia(_ context.Context, rec *MediaRecord) (*MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rec
	if stored.MediaID == "" {
		stored.MediaID = MediaID(uuid.NewString())
	}
	if stored.Status == "" {
		stored.Status = StatusUploaded
	}
	if _, exists := r.store.GetMedia(stored.MediaID); exists {
		return nil, ErrMediaExists
	}

	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.store.SetMedia(&stored)

	out := stored
	return &out, nil
}

// GetMedia implements Repository.GetMedia.
func (r *InMemoryRepository) GetMedia(_ context.Context, id MediaID) (*MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.store.GetMedia(id)
	if !ok {
		return nil, ErrMediaNotFound
	}
	out := *rec
	return &out, nil
}

// MarkTranscoding implements Repository.MarkTranscoding.
func (r *InMemoryRepository) MarkTranscoding(_ context.Context, id MediaID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.store.GetMedia(id)
	if !ok {
		return ErrMediaNotFound
	}
	if rec.Status != StatusUploaded {
		return ErrInvalidState
	}

	rec.Status = StatusTranscoding
	rec.ExternalJobID = jobID
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetForRetry implements Repository.ResetForRetry.
func (r *InMemoryRepository) ResetForRetry(_ context.Context, id MediaID) (*MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.store.GetMedia(id)
	if !ok {
		return nil, ErrMediaNotFound
	}
	if rec.Status != StatusFailed {
		return nil, ErrInvalidState
	}
	if rec.TranscodingAttempts >= MaxTranscodingAttempts {
		return nil, ErrRetryExhausted
	}

	rec.Status = StatusUploaded
	rec.TranscodingAttempts++
	rec.TranscodingError = ""
	rec.ExternalJobID = ""
	rec.UpdatedAt = time.Now().UTC()

	out := *rec
	return &out, nil
}

// CompleteTranscoding implements Repository.CompleteTranscoding.
func (r *InMemoryRepository) CompleteTranscoding(_ context.Context, id MediaID, jobID string, out *OutputMetadata) (bool, error) {
	if out == nil || out.ManifestKey == "" {
		return false, ErrMissingManifest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.store.GetMedia(id)
	if !ok {
		return false, ErrMediaNotFound
	}
	if rec.Status != StatusTranscoding || rec.ExternalJobID != jobID {
		return false, nil
	}

	meta := *out
	rec.Status = StatusReady
	rec.Output = &meta
	rec.TranscodingError = ""
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

// FailTranscoding implements Repository.FailTranscoding.
func (r *InMemoryRepository) FailTranscoding(_ context.Context, id MediaID, jobID string, msg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.store.GetMedia(id)
	if !ok {
		return false, ErrMediaNotFound
	}
	if rec.Status != StatusTranscoding || rec.ExternalJobID != jobID {
		return false, nil
	}

	rec.Status = StatusFailed
	rec.TranscodingError = msg
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ActiveTranscodingCount implements Repository.ActiveTranscodingCount.
func (r *InMemoryRepository) ActiveTranscodingCount(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListMediaIDs() {
		if rec, ok := r.store.GetMedia(id); ok && rec.Status == StatusTranscoding {
			n++
		}
	}
	return n, nil
}
