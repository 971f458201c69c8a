package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type staticVerifier struct {
	claims UserClaims
	err    error
}

func (v staticVerifier) Verify(context.Context, string) (UserClaims, error) {
	return v.claims, v.err
}

func newTestEcho(mw ...echo.MiddlewareFunc) (*echo.Echo, *map[string]string) {
	e := echo.New()
	e.HTTPErrorHandler = Error(getTestLogger())
	seen := map[string]string{}
	e.Use(mw...)
	e.GET("/ping", func(c echo.Context) error {
		ctx := c.Request().Context()
		seen["workspace"] = appctx.GetWorkspaceKey(ctx)
		seen["actor"] = appctx.GetActor(ctx)
		seen["request_id"] = appctx.GetRequestID(ctx)
		return c.NoContent(http.StatusNoContent)
	})
	return e, &seen
}

func TestContext_WorkspaceAndActor(t *testing.T) {
	e, seen := newTestEcho(Context())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderWorkspaceKey, " ws-9 ")
	req.Header.Set(HeaderActor, "ops@example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ws-9", (*seen)["workspace"])
	assert.Equal(t, "ops@example.com", (*seen)["actor"])
	assert.NotEmpty(t, (*seen)["request_id"])
	assert.Equal(t, (*seen)["request_id"], rec.Header().Get(echo.HeaderXRequestID))
}

func TestContext_Defaults(t *testing.T) {
	e, seen := newTestEcho(Context())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, appctx.DefaultWorkspace, (*seen)["workspace"])
	assert.Equal(t, appctx.DefaultActor, (*seen)["actor"])
}

func TestAuthentication(t *testing.T) {
	t.Run("missing bearer", func(t *testing.T) {
		e, _ := newTestEcho(Context(), Authentication(getTestLogger(), staticVerifier{}))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		e, _ := newTestEcho(Context(), Authentication(getTestLogger(), staticVerifier{err: errors.New("expired")}))
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("claims become the actor", func(t *testing.T) {
		verifier := staticVerifier{claims: UserClaims{Sub: "user-1", Email: "ops@example.com"}}
		e, seen := newTestEcho(Context(), Authentication(getTestLogger(), verifier))
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer abc")
		req.Header.Set(HeaderActor, "spoofed")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "ops@example.com", (*seen)["actor"])
	})
}

func TestError_MapsHTTPError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = Error(getTestLogger())
	e.Use(Context())
	e.GET("/fail", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusConflict, "conflict already resolved")
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("db down")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "conflict already resolved")
	assert.Contains(t, rec.Body.String(), "request_id")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

type capturedLogs struct {
	messages []ectologger.EctoLogMessage
}

func (l *capturedLogs) logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		l.messages = append(l.messages, msg)
	})
}

func TestLogger_AccessFields(t *testing.T) {
	logs := &capturedLogs{}
	e := echo.New()
	e.HTTPErrorHandler = Error(getTestLogger())
	e.Use(Context(), Logger(logs.logger()))
	e.POST("/sync/:provider", func(c echo.Context) error {
		return c.String(http.StatusAccepted, "queued")
	})
	e.GET("/conflicts/:id", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusNotFound, "conflict not found")
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("db down")
	})

	req := httptest.NewRequest(http.MethodPost, "/sync/shopify?max=5", nil)
	req.Header.Set(HeaderWorkspaceKey, "ws-3")
	req.Header.Set(HeaderActor, "ops@example.com")
	e.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, logs.messages, 1)
	msg := logs.messages[0]
	assert.Equal(t, "info", msg.Level)
	assert.Equal(t, "request served", msg.Message)
	assert.Equal(t, "ws-3", msg.Fields["workspace"])
	assert.Equal(t, "ops@example.com", msg.Fields["actor"])
	assert.Equal(t, "shopify", msg.Fields["provider"])
	assert.Equal(t, "/sync/:provider", msg.Fields["route"])
	assert.Equal(t, http.StatusAccepted, msg.Fields["status"])
	assert.Equal(t, int64(len("queued")), msg.Fields["bytes_out"])
	assert.Equal(t, "max=5", msg.Fields["query"])
	assert.NotEmpty(t, msg.Fields["request_id"])

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conflicts/abc", nil))
	require.Len(t, logs.messages, 2)
	assert.Equal(t, "warn", logs.messages[1].Level)
	assert.Equal(t, http.StatusNotFound, logs.messages[1].Fields["status"])
	assert.NotContains(t, logs.messages[1].Fields, "provider")

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Len(t, logs.messages, 3)
	assert.Equal(t, "error", logs.messages[2].Level)
	assert.EqualError(t, logs.messages[2].Err, "db down")
}
