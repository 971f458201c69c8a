package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("state", func(context.Context) error { return errors.New("down") })

	code, resp := serve(t, c, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestReadinessBeforeStartup(t *testing.T) {
	c := NewChecker("test")

	code, resp := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "startup")
}

func TestHealthStatuses(t *testing.T) {
	tests := []struct {
		name       string
		critical   error
		optional   error
		wantCode   int
		wantStatus Status
	}{
		{name: "all healthy", wantCode: http.StatusOK, wantStatus: StatusHealthy},
		{name: "optional down", optional: errors.New("redis down"), wantCode: http.StatusOK, wantStatus: StatusDegraded},
		{name: "critical down", critical: errors.New("save failed"), wantCode: http.StatusServiceUnavailable, wantStatus: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			c.AddCheck("state", func(context.Context) error { return tt.critical })
			c.AddOptionalCheck("redis", func(context.Context) error { return tt.optional })
			c.SetReady(true)

			code, resp := serve(t, c, "/api/v1/health/ready")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, 2)
		})
	}
}

func TestOverall(t *testing.T) {
	assert.Equal(t, StatusHealthy, Overall(nil))
	assert.Equal(t, StatusDegraded, Overall(map[string]CheckResult{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusDegraded},
	}))
	assert.Equal(t, StatusUnhealthy, Overall(map[string]CheckResult{
		"a": {Status: StatusDegraded},
		"b": {Status: StatusUnhealthy},
	}))
}
