package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/infrastructure/idempotency"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"

	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"

	maxIdempotencyBodyBytes = 1 << 20
)

// Idempotency replays the stored response of a POST that carries an
// X-Idempotency-Key already seen. The key is completed by the handler
// (success) or ErrorHandler (failure).
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("cannot read request body").WithCause(err))
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

		replay, err := store.Acquire(c.Request.Context(), idempotency.Request{
			Key:         key,
			UserID:      appctx.GetActorID(c.Request.Context()),
			Operation:   c.Request.Method + " " + c.FullPath() + " " + c.Request.URL.Path,
			RequestHash: hex.EncodeToString(hash[:]),
		})
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			if replay.StatusCode == http.StatusNoContent {
				c.Status(replay.StatusCode)
			} else {
				c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			}
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)
		c.Next()
	}
}

// CompleteIdempotency stores the response for replay. Server errors release
// the key instead so a retry runs again.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, body []byte) {
	keyVal, ok := c.Get(ctxIdempotencyKey)
	if !ok {
		return
	}
	storeVal, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return
	}
	key, _ := keyVal.(string)
	store, _ := storeVal.(idempotency.Store)
	if store == nil || key == "" {
		return
	}

	// Completion must not be lost because the client went away.
	ctx := c.Request.Context()
	switch {
	case statusCode >= 500:
		_ = store.Release(ctx, key)
	case statusCode >= 400:
		_ = store.Complete(ctx, key, idempotency.StatusFailed, idempotency.Replay{StatusCode: statusCode, ContentType: contentType, Body: body})
	default:
		_ = store.Complete(ctx, key, idempotency.StatusSuccess, idempotency.Replay{StatusCode: statusCode, ContentType: contentType, Body: body})
	}
}
