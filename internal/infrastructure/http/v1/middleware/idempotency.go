package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwise/internal/core/apperror"
	appctx "stockwise/internal/core/context"
	"stockwise/internal/infrastructure/storage/postgres"
	"stockwise/pkg/logger"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReplayed       = "X-Idempotent-Replay"

	maxIdempotencyBodyBytes = 1 << 20
)

// IdempotencyStore persists request outcomes keyed by X-Idempotency-Key.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

// captureWriter keeps a copy of the body written by the handler.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a mutating request is retried
// with the same key. Requests without the header pass through.
//
// Successful responses and client errors are stored. Retryable and server
// failures release the key so the caller can try again.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("request body could not be read").WithCause(err))
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

		ctx := c.Request.Context()
		hash := sha256.Sum256(body)
		operation := c.Request.Method + " " + c.FullPath()

		replay, err := store.AcquireKey(ctx, key, appctx.GetUserID(ctx), operation, hex.EncodeToString(hash[:]))
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			c.Header(HeaderReplayed, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// The request context may already be cancelled; the outcome must still land.
		finishCtx := context.WithoutCancel(ctx)
		if err := finishKey(finishCtx, store, key, c, w); err != nil {
			logger.Warn(ctx, "idempotency key not finalized", "key", key, "error", err)
		}
	}
}

func finishKey(ctx context.Context, store IdempotencyStore, key string, c *gin.Context, w *captureWriter) error {
	if len(c.Errors) == 0 || w.Written() {
		status := w.Status()
		if status >= http.StatusInternalServerError {
			return store.ReleaseKey(ctx, key)
		}
		return store.CompleteKey(ctx, key, status, w.Header().Get("Content-Type"), w.buf.Bytes())
	}

	err := c.Errors.Last().Err
	status, body := ErrorBody(c, err)
	if apperror.IsRetryable(err) || status >= http.StatusInternalServerError {
		return store.ReleaseKey(ctx, key)
	}
	raw, mErr := json.Marshal(body)
	if mErr != nil {
		return mErr
	}
	return store.FailKey(ctx, key, status, gin.MIMEJSON+"; charset=utf-8", raw)
}
