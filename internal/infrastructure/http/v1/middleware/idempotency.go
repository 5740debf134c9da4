package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
	"crm/internal/infrastructure/storage/postgres"
	"crm/pkg/logger"
)

const HeaderIdempotencyKey = "Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// IdempotencyStore is the subset of postgres.IdempotencyStore the HTTP layer uses.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

// Idempotency middleware makes POST requests that carry an Idempotency-Key
// header safe to retry: the first response is stored and replayed, a
// concurrent duplicate gets 409, and a key reused for another body gets 409.
// It must run after Auth so keys are bound to the caller.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			_ = c.Error(apperror.NewValidation("cannot read request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		// The route template plus the concrete path keeps one key from being
		// replayed against another deal.
		operation := c.Request.Method + " " + c.FullPath() + " " + c.Request.URL.Path

		ctx := c.Request.Context()
		replay, err := store.AcquireKey(ctx, key, appctx.GetUserID(ctx), operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		c.Next()
	}
}

// CompleteIdempotency stores the response of the current request for replay.
// It is a no-op when the request carries no acquired key.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, body []byte) {
	key, store, ok := idempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.CompleteKey(c.Request.Context(), key, statusCode, contentType, body); err != nil {
		logger.Warn(c.Request.Context(), "complete idempotency key failed", "key", key, "error", err)
	}
}

// releaseIdempotency forgets the key so that a retry runs the request again.
func releaseIdempotency(c *gin.Context) {
	key, store, ok := idempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.ReleaseKey(c.Request.Context(), key); err != nil {
		logger.Warn(c.Request.Context(), "release idempotency key failed", "key", key, "error", err)
	}
}

func idempotencyFrom(c *gin.Context) (string, IdempotencyStore, bool) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return "", nil, false
	}
	v, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return "", nil, false
	}
	store, ok := v.(IdempotencyStore)
	return key, store, ok && store != nil
}
