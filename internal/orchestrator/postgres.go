package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const mediaRecordsSchema = `
CREATE TABLE IF NOT EXISTS media_records (
    media_id             TEXT PRIMARY KEY,
    tenant_id            TEXT NOT NULL,
    media_type           TEXT NOT NULL,
    status               TEXT NOT NULL,
    input_key            TEXT NOT NULL DEFAULT '',
    external_job_id      TEXT NOT NULL DEFAULT '',
    transcoding_attempts INT  NOT NULL DEFAULT 0,
    transcoding_error    TEXT NOT NULL DEFAULT '',
    output               JSONB,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS media_records_status_idx ON media_records (status);
`

const mediaRecordColumns = `media_id, tenant_id, media_type, status, input_key,
	external_job_id, transcoding_attempts, transcoding_error, output,
	created_at, updated_at`

// PostgresRepository is the durable Repository implementation. Every
// transition is a single conditional UPDATE, so the check-then-act sequence
// is atomic against concurrent webhook delivery without explicit row locks.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database at dsn and ensures the
// media_records schema exists.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, mediaRecordsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure media_records schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func scanMediaRecord(row pgx.Row) (*MediaRecord, error) {
	var rec MediaRecord
	var outJSON []byte
	err := row.Scan(
		&rec.MediaID,
		&rec.TenantID,
		&rec.Type,
		&rec.Status,
		&rec.InputKey,
		&rec.ExternalJobID,
		&rec.TranscodingAttempts,
		&rec.TranscodingError,
		&outJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(outJSON) > 0 {
		var out OutputMetadata
		if err := json.Unmarshal(outJSON, &out); err != nil {
			return nil, fmt.Errorf("decode output metadata for media %s: %w", rec.MediaID, err)
		}
		rec.Output = &out
	}
	return &rec, nil
}

// CreateMedia implements Repository.CreateMedia.
func (r *PostgresRepository) CreateMedia(ctx context.Context, rec *MediaRecord) (*MediaRecord, error) {
	stored := *rec
	if stored.MediaID == "" {
		stored.MediaID = MediaID(uuid.NewString())
	}
	if stored.Status == "" {
		stored.Status = StatusUploaded
	}
	now := time.Now().UTC()

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO media_records
			(media_id, tenant_id, media_type, status, input_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (media_id) DO NOTHING`,
		stored.MediaID, stored.TenantID, stored.Type, stored.Status, stored.InputKey, now)
	if err != nil {
		return nil, fmt.Errorf("insert media record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMediaExists
	}
	return r.GetMedia(ctx, stored.MediaID)
}

// GetMedia implements Repository.GetMedia.
func (r *PostgresRepository) GetMedia(ctx context.Context, id MediaID) (*MediaRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+mediaRecordColumns+` FROM media_records WHERE media_id = $1`, id)
	rec, err := scanMediaRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select media record: %w", err)
	}
	return rec, nil
}

// MarkTranscoding implements Repository.MarkTranscoding.
func (r *PostgresRepository) MarkTranscoding(ctx context.Context, id MediaID, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE media_records
		SET status = $1, external_job_id = $2, updated_at = now()
		WHERE media_id = $3 AND status = $4`,
		StatusTranscoding, jobID, id, StatusUploaded)
	if err != nil {
		return fmt.Errorf("mark transcoding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

// ResetForRetry implements Repository.ResetForRetry.
func (r *PostgresRepository) ResetForRetry(ctx context.Context, id MediaID) (*MediaRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE media_records
		SET status = $1,
		    transcoding_attempts = transcoding_attempts + 1,
		    transcoding_error = '',
		    external_job_id = '',
		    updated_at = now()
		WHERE media_id = $2 AND status = $3 AND transcoding_attempts < $4
		RETURNING `+mediaRecordColumns,
		StatusUploaded, id, StatusFailed, MaxTranscodingAttempts)
	rec, err := scanMediaRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		cur, getErr := r.GetMedia(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if cur.Status != StatusFailed {
			return nil, ErrInvalidState
		}
		return nil, ErrRetryExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("reset for retry: %w", err)
	}
	return rec, nil
}

// CompleteTranscoding implements Repository.CompleteTranscoding.
func (r *PostgresRepository) CompleteTranscoding(ctx context.Context, id MediaID, jobID string, out *OutputMetadata) (bool, error) {
	if out == nil || out.ManifestKey == "" {
		return false, ErrMissingManifest
	}
	outJSON, err := json.Marshal(out)
	if err != nil {
		return false, fmt.Errorf("encode output metadata: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE media_records
		SET status = $1, output = $2, transcoding_error = '', updated_at = now()
		WHERE media_id = $3 AND status = $4 AND external_job_id = $5`,
		StatusReady, outJSON, id, StatusTranscoding, jobID)
	if err != nil {
		return false, fmt.Errorf("complete transcoding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.missToNoop(ctx, id)
	}
	return true, nil
}

// FailTranscoding implements Repository.FailTranscoding.
func (r *PostgresRepository) FailTranscoding(ctx context.Context, id MediaID, jobID string, msg string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE media_records
		SET status = $1, transcoding_error = $2, updated_at = now()
		WHERE media_id = $3 AND status = $4 AND external_job_id = $5`,
		StatusFailed, msg, id, StatusTranscoding, jobID)
	if err != nil {
		return false, fmt.Errorf("fail transcoding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.missToNoop(ctx, id)
	}
	return true, nil
}

// ActiveTranscodingCount implements Repository.ActiveTranscodingCount.
func (r *PostgresRepository) ActiveTranscodingCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM media_records WHERE status = $1`, StatusTranscoding).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transcoding records: %w", err)
	}
	return n, nil
}

// classifyMiss distinguishes a missing record from a wrong-state record
// after a conditional update matched nothing. A record that raced a
// concurrent transition reads as ErrInvalidState for this caller.
func (r *PostgresRepository) classifyMiss(ctx context.Context, id MediaID) error {
	if _, err := r.GetMedia(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

// missToNoop maps a zero-row conditional update on the completion path to
// the benign no-op contract: missing records surface ErrMediaNotFound,
// stale job ids and terminal statuses are a nil-error false.
func (r *PostgresRepository) missToNoop(ctx context.Context, id MediaID) error {
	if _, err := r.GetMedia(ctx, id); err != nil {
		return err
	}
	return nil
}
