package postgres_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/infrastructure/storage/postgres"
	"crm/internal/infrastructure/storage/postgres/pgtest"
)

func storedKey(user, op, hash string, status postgres.IdempotencyStatus, updated time.Time, body []byte, inserted bool) pgtest.Row {
	return pgtest.Values(
		"key-1", user, op, status, hash, body, http.StatusCreated, "application/json",
		updated, updated, updated.Add(time.Hour), inserted,
	)
}

func TestAcquireKeyFirstUse(t *testing.T) {
	db := pgtest.New().ExpectRow(storedKey("u1", "payment", "h", postgres.IdempotencyStatusPending, time.Now(), nil, true))
	s := postgres.NewIdempotencyStore(db, time.Hour)

	replay, err := s.AcquireKey(context.Background(), "key-1", "u1", "payment", "h")

	require.NoError(t, err)
	assert.Nil(t, replay)
	require.Len(t, db.Calls, 2)
	assert.Contains(t, db.Calls[0].SQL, "expires_at < $2")
	assert.Contains(t, db.Calls[1].SQL, "(xmax = 0) AS inserted")
}

func TestAcquireKeyReplaysCompletedRequest(t *testing.T) {
	body := []byte(`{"id":"p1"}`)
	db := pgtest.New().ExpectRow(storedKey("u1", "payment", "h", postgres.IdempotencyStatusSuccess, time.Now(), body, false))
	s := postgres.NewIdempotencyStore(db, time.Hour)

	replay, err := s.AcquireKey(context.Background(), "key-1", "u1", "payment", "h")

	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.Equal(t, body, replay.Body)
}

func TestAcquireKeyRejectsDifferentRequest(t *testing.T) {
	db := pgtest.New().ExpectRow(storedKey("u1", "payment", "h", postgres.IdempotencyStatusSuccess, time.Now(), nil, false))
	s := postgres.NewIdempotencyStore(db, time.Hour)

	_, err := s.AcquireKey(context.Background(), "key-1", "u1", "payment", "other-body")

	assert.True(t, apperror.IsConflict(err))
}

func TestAcquireKeyInFlight(t *testing.T) {
	db := pgtest.New().ExpectRow(storedKey("u1", "shipment", "h", postgres.IdempotencyStatusPending, time.Now(), nil, false))
	s := postgres.NewIdempotencyStore(db, time.Hour)

	_, err := s.AcquireKey(context.Background(), "key-1", "u1", "shipment", "h")

	assert.True(t, apperror.IsConflict(err))
}

func TestAcquireKeyReclaimsStalePending(t *testing.T) {
	stale := time.Now().Add(-5 * time.Minute)
	db := pgtest.New().
		ExpectExec("DELETE 0", nil).
		ExpectExec("UPDATE 1", nil).
		ExpectRow(storedKey("u1", "shipment", "h", postgres.IdempotencyStatusPending, stale, nil, false))
	s := postgres.NewIdempotencyStore(db, time.Hour)

	replay, err := s.AcquireKey(context.Background(), "key-1", "u1", "shipment", "h")

	require.NoError(t, err)
	assert.Nil(t, replay)
	assert.Contains(t, db.Last().SQL, "UPDATE sys_idempotency SET updated_at = $1")
}

func TestCleanupExpired(t *testing.T) {
	db := pgtest.New().ExpectExec("DELETE 3", nil)
	s := postgres.NewIdempotencyStore(db, 0)

	n, err := s.CleanupExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
