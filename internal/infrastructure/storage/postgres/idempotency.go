package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crm/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
)

// A pending key older than this is treated as left behind by a crashed
// request and may be reclaimed.
const stalePendingAfter = time.Minute

// IdempotencyRecord stores the result of an idempotent operation.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"` // SHA-256 of the request body
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is the cached HTTP response for replay.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore manages idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	db  QuerierProvider
	ttl time.Duration
	now func() time.Time
}

// NewIdempotencyStore creates a store whose keys live for ttl.
func NewIdempotencyStore(db QuerierProvider, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const acquireKeySQL = `
	INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
	ON CONFLICT (idempotency_key) DO UPDATE SET expires_at = sys_idempotency.expires_at
	RETURNING idempotency_key, user_id, operation, status, request_hash, response,
	          response_status, response_content_type, created_at, updated_at, expires_at,
	          (xmax = 0) AS inserted`

// AcquireKey claims key for one request.
// Returns:
//   - (nil, nil) if the key was acquired and the request should run
//   - (replay, nil) if the operation already completed
//   - (nil, Conflict) if the key belongs to a different request or is in flight
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now()
	q := s.db.GetQuerier(ctx)

	if _, err := q.Exec(ctx, `DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND expires_at < $2`, key, now); err != nil {
		return nil, fmt.Errorf("purge expired idempotency key: %w", err)
	}

	var (
		record   IdempotencyRecord
		inserted bool
		response []byte
	)
	err := q.QueryRow(ctx, acquireKeySQL,
		key, userID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl),
	).Scan(
		&record.Key, &record.UserID, &record.Operation, &record.Status,
		&record.RequestHash, &response, &record.StatusCode, &record.ContentType,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	record.Response = response
	if inserted {
		return nil, nil
	}

	if record.UserID != userID || record.Operation != operation || record.RequestHash != requestHash {
		return nil, apperror.NewConflict("idempotency key was used for a different request").
			WithDetail("idempotencyKey", key).
			WithDetail("operation", record.Operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess:
		return &IdempotencyReplay{
			StatusCode:  normalizeReplayStatus(record.StatusCode),
			ContentType: normalizeReplayContentType(record.ContentType),
			Body:        record.Response,
		}, nil
	default:
		if now.Sub(record.UpdatedAt) <= stalePendingAfter {
			return nil, apperror.NewConflict("request with this idempotency key is in progress").
				WithDetail("idempotencyKey", key)
		}
		tag, err := q.Exec(ctx, `
			UPDATE sys_idempotency SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4
		`, now, key, IdempotencyStatusPending, record.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewConflict("request with this idempotency key is in progress").
				WithDetail("idempotencyKey", key)
		}
		return nil, nil
	}
}

// CompleteKey stores the response so that retries replay it.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	_, err := s.db.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, IdempotencyStatusSuccess, body, statusCode, contentType, s.now(), key)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// ReleaseKey forgets a pending key so the client may retry, used when the
// request failed for reasons a retry can fix.
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.db.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2`,
		key, IdempotencyStatusPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE expires_at < $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}

func normalizeReplayStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

func normalizeReplayContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}
