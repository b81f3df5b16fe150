package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/security"
	"stockflow/internal/infrastructure/idempotency"
)

func newEngine(routes func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler())
	routes(r)
	return r
}

func serve(r *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRecoveryWritesInternalError(t *testing.T) {
	r := newEngine(func(r *gin.Engine) {
		r.GET("/boom", func(*gin.Context) { panic("boom") })
	})

	w := serve(r, http.MethodGet, "/boom", "", HeaderRequestID, "req-1")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-1", body.Details["request_id"])
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorHandlerHidesInternalCause(t *testing.T) {
	r := newEngine(func(r *gin.Engine) {
		r.GET("/fail", func(c *gin.Context) { _ = c.Error(errors.New("pq: password leaked")) })
		r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperror.NewNotFound("document", "x")) })
	})

	w := serve(r, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	w = serve(r, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestTraceKeepsCallerIDs(t *testing.T) {
	var seen *appctx.TraceContext
	r := newEngine(func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) {
			seen = appctx.GetTrace(c.Request.Context())
			c.Status(http.StatusNoContent)
		})
	})

	w := serve(r, http.MethodGet, "/ping", "", HeaderRequestID, "req-7", HeaderTraceID, "trace-7")

	require.NotNil(t, seen)
	assert.Equal(t, "req-7", seen.RequestID)
	assert.Equal(t, "trace-7", seen.TraceID)
	assert.Equal(t, "req-7", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "trace-7", w.Header().Get(HeaderTraceID))
}

type stubValidator struct{}

func (stubValidator) Validate(token string) (security.Actor, error) {
	if token != "good" {
		return security.Actor{}, errors.New("bad token")
	}
	return security.Actor{ID: "u1", Roles: []string{security.RoleClerk}}, nil
}

func TestAuthAndCapability(t *testing.T) {
	authz, err := security.NewCELAuthorizer(security.DefaultRules)
	require.NoError(t, err)
	r := newEngine(func(r *gin.Engine) {
		g := r.Group("", Auth(stubValidator{}))
		g.GET("/read", RequireCapability(authz, security.ActionDocumentRead, "document"), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		g.GET("/reconcile", RequireCapability(authz, security.ActionLedgerReconcile, "ledger"), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/read", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/read", "", "Authorization", "Basic good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/read", "", "Authorization", "Bearer bad").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/read", "", "Authorization", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/reconcile", "", "Authorization", "Bearer good").Code)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := idempotency.NewMemoryStore(0)
	calls := 0
	r := newEngine(func(r *gin.Engine) {
		r.POST("/op", Idempotency(store), func(c *gin.Context) {
			calls++
			if calls == 1 {
				_ = c.Error(errors.New("db down"))
				return
			}
			CompleteIdempotency(c, http.StatusCreated, "application/json", []byte(`{"ok":true}`))
			c.Data(http.StatusCreated, "application/json", []byte(`{"ok":true}`))
		})
	})

	w := serve(r, http.MethodPost, "/op", `{"a":1}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(r, http.MethodPost, "/op", `{"a":1}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = serve(r, http.MethodPost, "/op", `{"a":1}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyStoresClientErrors(t *testing.T) {
	store := idempotency.NewMemoryStore(0)
	calls := 0
	r := newEngine(func(r *gin.Engine) {
		r.POST("/op", Idempotency(store), func(c *gin.Context) {
			calls++
			_ = c.Error(apperror.NewValidation("bad input"))
		})
	})

	first := serve(r, http.MethodPost, "/op", `{}`, HeaderIdempotencyKey, "k2")
	second := serve(r, http.MethodPost, "/op", `{}`, HeaderIdempotencyKey, "k2")

	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}
