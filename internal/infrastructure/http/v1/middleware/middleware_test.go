package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/apperror"
	appctx "stockwise/internal/core/context"
	"stockwise/internal/core/security"
	"stockwise/internal/infrastructure/storage/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type storedResponse struct {
	status int
	ctype  string
	body   string
	failed bool
}

type fakeIdempotencyStore struct {
	mu       sync.Mutex
	pending  map[string]bool
	done     map[string]storedResponse
	released []string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{pending: map[string]bool{}, done: map[string]storedResponse{}}
}

func (s *fakeIdempotencyStore) AcquireKey(_ context.Context, key, _, _, _ string) (*postgres.IdempotencyReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.done[key]; ok {
		return &postgres.IdempotencyReplay{StatusCode: r.status, ContentType: r.ctype, Body: []byte(r.body)}, nil
	}
	if s.pending[key] {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	s.pending[key] = true
	return nil, nil
}

func (s *fakeIdempotencyStore) CompleteKey(_ context.Context, key string, status int, ctype string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	s.done[key] = storedResponse{status: status, ctype: ctype, body: string(body)}
	return nil
}

func (s *fakeIdempotencyStore) FailKey(_ context.Context, key string, status int, ctype string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	s.done[key] = storedResponse{status: status, ctype: ctype, body: string(body), failed: true}
	return nil
}

func (s *fakeIdempotencyStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	s.released = append(s.released, key)
	return nil
}

func serve(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(Trace(), ErrorHandler(), Recovery())
	r.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("uom", "x"))
	})
	r.GET("/busy", func(c *gin.Context) {
		_ = c.Error(apperror.NewLockTimeout("stock"))
	})
	r.GET("/foreign", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	tests := []struct {
		path       string
		status     int
		code       string
		retryAfter string
	}{
		{"/app", http.StatusNotFound, apperror.CodeNotFound, ""},
		{"/busy", http.StatusServiceUnavailable, apperror.CodeLockTimeout, "1"},
		{"/foreign", http.StatusInternalServerError, apperror.CodeInternal, ""},
		{"/panic", http.StatusInternalServerError, apperror.CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(r, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
			assert.Equal(t, tt.retryAfter, w.Header().Get(HeaderRetryAfter))
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

func TestIdempotency(t *testing.T) {
	store := newFakeIdempotencyStore()
	calls := 0

	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/ok", Idempotency(store), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})
	r.POST("/reject", Idempotency(store), func(c *gin.Context) {
		calls++
		_ = c.Error(apperror.NewValidation("bad quantity"))
	})
	r.POST("/busy", Idempotency(store), func(c *gin.Context) {
		calls++
		_ = c.Error(apperror.NewLockTimeout("stock"))
	})

	t.Run("success is replayed", func(t *testing.T) {
		h := map[string]string{HeaderIdempotencyKey: "k1"}
		first := serve(r, http.MethodPost, "/ok", `{"a":1}`, h)
		second := serve(r, http.MethodPost, "/ok", `{"a":1}`, h)

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
		assert.Equal(t, 1, calls)
	})

	t.Run("client error is stored", func(t *testing.T) {
		calls = 0
		h := map[string]string{HeaderIdempotencyKey: "k2"}
		first := serve(r, http.MethodPost, "/reject", `{}`, h)
		second := serve(r, http.MethodPost, "/reject", `{}`, h)

		assert.Equal(t, http.StatusBadRequest, first.Code)
		assert.Equal(t, http.StatusBadRequest, second.Code)
		assert.Contains(t, second.Body.String(), apperror.CodeValidation)
		assert.Equal(t, 1, calls)
		assert.True(t, store.done["k2"].failed)
	})

	t.Run("retryable error releases the key", func(t *testing.T) {
		calls = 0
		h := map[string]string{HeaderIdempotencyKey: "k3"}
		serve(r, http.MethodPost, "/busy", `{}`, h)
		serve(r, http.MethodPost, "/busy", `{}`, h)

		assert.Equal(t, 2, calls)
		assert.Contains(t, store.released, "k3")
	})

	t.Run("no header passes through", func(t *testing.T) {
		calls = 0
		serve(r, http.MethodPost, "/ok", `{}`, nil)
		serve(r, http.MethodPost, "/ok", `{}`, nil)
		assert.Equal(t, 2, calls)
	})
}

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	switch token {
	case "clerk":
		return &appctx.UserContext{UserID: "u-clerk", Permissions: []string{"stock:read"}}, nil
	case "admin":
		return &appctx.UserContext{UserID: "u-admin", IsAdmin: true}, nil
	}
	return nil, errors.New("unknown token")
}

func TestAuthAndPermission(t *testing.T) {
	policy, err := security.NewCELPolicy(map[string]string{
		security.DefaultRuleKey: "permission in user.permissions",
	})
	require.NoError(t, err)

	r := gin.New()
	r.Use(ErrorHandler(), Auth(staticValidator{}))
	r.GET("/stock", RequirePermission(policy, security.PermissionStockRead, nil), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})
	r.POST("/movements", RequirePermission(policy, security.PermissionMovementCreate, nil), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
	}{
		{"missing header", http.MethodGet, "/stock", "", http.StatusUnauthorized},
		{"bad scheme", http.MethodGet, "/stock", "Basic abc", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/stock", "Bearer nope", http.StatusUnauthorized},
		{"granted", http.MethodGet, "/stock", "Bearer clerk", http.StatusOK},
		{"denied", http.MethodPost, "/movements", "Bearer clerk", http.StatusForbidden},
		{"admin bypass", http.MethodPost, "/movements", "bearer admin", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := map[string]string{}
			if tt.auth != "" {
				h["Authorization"] = tt.auth
			}
			w := serve(r, tt.method, tt.path, "", h)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMetrics(t *testing.T) {
	var route string
	var status int
	r := gin.New()
	r.Use(Metrics(func(rt, _ string, st int, _ time.Duration) {
		route, status = rt, st
	}))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, http.MethodGet, "/items/42", "", nil)
	assert.Equal(t, "/items/:id", route)
	assert.Equal(t, http.StatusNoContent, status)
}
