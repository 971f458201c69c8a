package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/webhook"
)

const testWorkspace = "ws-1"

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type stubLimiter struct {
	result *redis.RateLimitResult
	err    error
	keys   []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int64, _ time.Duration) (*redis.RateLimitResult, error) {
	l.keys = append(l.keys, key)
	return l.result, l.err
}

type stubDeadLetters struct {
	entries []redis.DLQEntry
}

func (d *stubDeadLetters) ListByWorkspace(_ context.Context, workspace string, _ int64) ([]redis.DLQEntry, error) {
	out := []redis.DLQEntry{}
	for _, entry := range d.entries {
		if workspace == models.AllWorkspaces || entry.Workspace == workspace {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (d *stubDeadLetters) Delete(context.Context, string) error { return nil }

func (d *stubDeadLetters) Count(context.Context) (int64, error) {
	return int64(len(d.entries)), nil
}

type testServer struct {
	echo    *echo.Echo
	engine  *engine.Engine
	secrets *secrets.Store
	webhook *WebhookHandler
}

type serverOptions struct {
	limiter RateLimiter
	limits  WebhookLimits
	dlq     DeadLetters
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	cipher, err := secrets.NewCipher([]byte("test-master-key"))
	require.NoError(t, err)
	store := secrets.NewStore(secrets.NewMemoryBackend(), cipher, getTestLogger())

	cat := catalog.NewMemoryCatalog(models.Item{
		ID:        "item-1",
		Workspace: testWorkspace,
		Name:      "Widget",
		OnHand:    40,
		Barcode:   "SKU1",
	})
	eng := engine.New(engine.Options{
		Secrets: store,
		Catalog: cat,
		Drift:   engine.Drift{},
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
		Logger:  getTestLogger(),
	})

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(getTestLogger())
	e.Use(middleware.Context())

	wh := NewWebhookHandler(eng, store, webhook.NewNormalizer(nil), opts.limiter, opts.limits, getTestLogger())
	Register(e.Group(APIPrefix),
		NewConnectionHandler(eng),
		NewSyncHandler(eng),
		NewConflictHandler(eng),
		wh,
		NewRetryHandler(eng),
		NewDLQHandler(opts.dlq, eng, getTestLogger()),
		NewLedgerHandler(eng, getTestLogger()),
		NewAuditHandler(eng),
	)

	return &testServer{echo: e, engine: eng, secrets: store, webhook: wh}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && (strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[")) {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	}
	req.Header.Set(middleware.HeaderWorkspaceKey, testWorkspace)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) connect(t *testing.T, body string) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/api/v1/connections/shopify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestConnections(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPut, "/api/v1/connections/shopify", `{"account_label":"Main store","access_token":"at-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conn := decode[models.Connection](t, rec)
	assert.Equal(t, models.ConnectionStatusConnected, conn.Status)
	assert.Equal(t, testWorkspace, conn.Workspace)
	assert.Equal(t, models.SecretPresent, conn.AccessToken)

	list := decode[ListResponse[models.Connection]](t, s.do(t, http.MethodGet, "/api/v1/connections", ""))
	assert.Equal(t, 1, list.Count)

	rec = s.do(t, http.MethodGet, "/api/v1/connections/Shopify", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/connections/square", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/connections/shopify", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/connections/shopify", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnections_Errors(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown provider", http.MethodGet, "/api/v1/connections/etsy", "", http.StatusBadRequest},
		{"missing label", http.MethodPut, "/api/v1/connections/shopify", `{"access_token":"at-1"}`, http.StatusBadRequest},
		{"blank label", http.MethodPut, "/api/v1/connections/shopify", `{"account_label":"   ","access_token":"at-1"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPut, "/api/v1/connections/shopify", `{"account_label":`, http.StatusBadRequest},
		{"refresh without connection", http.MethodPost, "/api/v1/connections/square/refresh", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	s.connect(t, `{"account_label":"Main store","access_token":"at-1"}`)
	rec := s.do(t, http.MethodPost, "/api/v1/connections/shopify/refresh", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.connect(t, `{"account_label":"Main store","refresh_token":"rt-1"}`)
	rec = s.do(t, http.MethodPost, "/api/v1/connections/shopify/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conn := decode[models.Connection](t, rec)
	assert.Equal(t, models.ConnectionStatusConnected, conn.Status)
	assert.NotNil(t, conn.LastRefreshedAt)
}

func TestSync_BlockedIsRecorded(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/sync/shopify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[models.SyncJob](t, rec)
	assert.Equal(t, models.SyncJobStatusFailed, job.Status)
	assert.Contains(t, job.Message, "Shopify sync blocked")

	jobs := decode[ListResponse[models.SyncJob]](t, s.do(t, http.MethodGet, "/api/v1/sync/jobs", ""))
	assert.Equal(t, 1, jobs.Count)

	retries := decode[ListResponse[models.SyncRetryJob]](t, s.do(t, http.MethodGet, "/api/v1/retries", ""))
	require.Equal(t, 1, retries.Count)
	assert.Equal(t, models.SyncRetryStatusQueued, retries.Items[0].Status)
}

func TestWebhookIngestAndConflictResolution(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", "event=inventory.updated id=ext-1 barcode=SKU1 qty=50")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[IngestResponse](t, rec).Received)

	conflicts := decode[ListResponse[models.Conflict]](t, s.do(t, http.MethodGet, "/api/v1/conflicts?status=unresolved", ""))
	require.Equal(t, 1, conflicts.Count)
	conflict := conflicts.Items[0]
	assert.Equal(t, models.ConflictQuantityMismatch, conflict.Type)
	assert.Equal(t, 40, conflict.LocalUnits)
	assert.Equal(t, 50, conflict.RemoteUnits)

	path := "/api/v1/conflicts/" + conflict.ID.String() + "/resolve"
	rec = s.do(t, http.MethodPost, path, `{"resolution":"merge"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path, `{"resolution":"keep_local"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ConflictKeepLocal, decode[models.Conflict](t, rec).Status)

	rec = s.do(t, http.MethodPost, path, `{"resolution":"accept_remote"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/conflicts/7f8c2f44-8a0e-4a53-9d0e-1f0f4f1b2c3d/resolve", `{"resolution":"keep_local"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/conflicts/not-a-uuid/resolve", `{"resolution":"keep_local"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conflicts?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	audit := decode[ListResponse[models.AuditEvent]](t, s.do(t, http.MethodGet, "/api/v1/audit", ""))
	actions := make([]string, 0, audit.Count)
	for _, event := range audit.Items {
		actions = append(actions, event.Action)
	}
	assert.Contains(t, actions, "webhook.ingested")
	assert.Contains(t, actions, "conflict.resolved")
}

func TestWebhookLifecycle(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/square", "event=inventory.updated id=a barcode=SKU1 qty=40\nevent=inventory.updated id=b barcode=SKU1 qty=40")
	require.Equal(t, http.StatusAccepted, rec.Code)

	events := decode[ListResponse[models.WebhookEvent]](t, s.do(t, http.MethodGet, "/api/v1/webhooks", ""))
	require.Equal(t, 2, events.Count)
	first, second := events.Items[0], events.Items[1]

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/"+first.ID.String()+"/apply", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WebhookStatusApplied, decode[models.WebhookEvent](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/"+first.ID.String()+"/ignore", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/"+second.ID.String()+"/ignore", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WebhookStatusIgnored, decode[models.WebhookEvent](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/"+second.ID.String()+"/apply", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/7f8c2f44-8a0e-4a53-9d0e-1f0f4f1b2c3d/apply", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookSignature(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.connect(t, `{"account_label":"Main store","access_token":"at-1","webhook_secret":"s3cret"}`)

	body := "event=inventory.updated id=ext-1 barcode=SKU1 qty=50"

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", body, webhook.SignatureHeader, webhook.Sign("wrong", []byte(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", body, webhook.SignatureHeader, webhook.Sign("s3cret", []byte(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// the secret is per provider
	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/square", body)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWebhookJSONPayload(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", `{"topic":"inventory_levels/update","inventory_levels":[{"inventory_item_id":"99","sku":"SKU1","available":55}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[IngestResponse](t, rec).Received)

	conflicts := s.engine.Conflicts(testWorkspace, models.ConflictUnresolved)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "SKU1", conflicts[0].ExternalRef)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", `{"inventory_levels":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRateLimit(t *testing.T) {
	limiter := &stubLimiter{result: &redis.RateLimitResult{Allowed: false, RetryIn: 1500 * time.Millisecond}}
	s := newTestServer(t, serverOptions{limiter: limiter, limits: WebhookLimits{Limit: 10, Window: time.Minute}})

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", "barcode=SKU1 qty=50")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{testWorkspace + ":shopify"}, limiter.keys)
	assert.Empty(t, s.engine.WebhookEvents(testWorkspace))

	limiter.result = &redis.RateLimitResult{Allowed: true, Remaining: 9}
	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", "barcode=SKU1 qty=50")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	limiter.result, limiter.err = nil, errors.New("redis down")
	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/shopify", "barcode=SKU1 qty=51")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleMessage(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	err := s.webhook.HandleMessage(context.Background(), &kafka.ReceivedMessage{
		Value:   []byte("event=inventory.updated id=k-1 barcode=SKU1 qty=45"),
		Headers: map[string]string{HeaderProvider: "quickbooks", HeaderWorkspace: testWorkspace},
	})
	require.NoError(t, err)

	events := s.engine.WebhookEvents(testWorkspace)
	require.Len(t, events, 1)
	assert.Equal(t, models.ProviderQuickBooks, events[0].Provider)

	err = s.webhook.HandleMessage(context.Background(), &kafka.ReceivedMessage{
		Value:   []byte("barcode=SKU1 qty=45"),
		Headers: map[string]string{HeaderProvider: "etsy"},
	})
	assert.Error(t, err)
}

func TestRetriesProcess(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/retries/process?max=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/retries/process?max=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[engine.RetryRunResult](t, rec)
	assert.Equal(t, 0, result.Attempted)
}

func TestAbandonedRetries(t *testing.T) {
	t.Run("engine fallback", func(t *testing.T) {
		s := newTestServer(t, serverOptions{})
		rec := s.do(t, http.MethodGet, "/api/v1/retries/abandoned", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[DLQListResponse](t, rec)
		assert.Equal(t, "engine", resp.Source)
		assert.Empty(t, resp.Entries)
	})

	t.Run("redis stream", func(t *testing.T) {
		dlq := &stubDeadLetters{entries: []redis.DLQEntry{
			{ID: "1", Workspace: testWorkspace, Provider: models.ProviderShopify, AttemptCount: 5},
			{ID: "2", Workspace: "ws-2", Provider: models.ProviderSquare, AttemptCount: 5},
		}}
		s := newTestServer(t, serverOptions{dlq: dlq})

		rec := s.do(t, http.MethodGet, "/api/v1/retries/abandoned", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[DLQListResponse](t, rec)
		assert.Equal(t, "redis", resp.Source)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "1", resp.Entries[0].ID)
		assert.Equal(t, int64(2), resp.Total)
	})
}

func TestLedger(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/ledger/events", `{"event_type":"receipt","delta_units":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/ledger/events", `{"event_type":"bogus","item_id":"item-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/ledger/events",
		`{"event_type":"receipt","item_id":"item-1","item_name":"Widget","delta_units":5,"resulting_units":45,"reason":"delivery"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[models.LedgerEvent](t, rec)
	assert.Equal(t, models.LedgerSyncPending, event.SyncStatus)
	assert.Equal(t, testWorkspace, event.Workspace)

	rec = s.do(t, http.MethodPost, "/api/v1/ledger/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[engine.LedgerSyncResult](t, rec)
	assert.True(t, result.Blocked)

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "ledger-ws-1.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "event_id,workspace_key,created_at"))
	assert.Contains(t, lines[1], "delivery")
}

func TestEngineError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrConflictNotFound, http.StatusNotFound},
		{engine.ErrWebhookEventNotFound, http.StatusNotFound},
		{engine.ErrCredentialMissing, http.StatusNotFound},
		{engine.ErrConflictAlreadyResolved, http.StatusConflict},
		{engine.ErrWebhookEventTerminal, http.StatusConflict},
		{engine.ErrCredentialExpired, http.StatusConflict},
		{engine.ErrAccountLabelRequired, http.StatusBadRequest},
		{engine.ErrUnknownResolution, http.StatusBadRequest},
		{engine.ErrInvalidLedgerEvent, http.StatusBadRequest},
		{engine.ErrSecretWriteFailed, http.StatusServiceUnavailable},
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(getTestLogger())
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			e.HTTPErrorHandler(EngineError(tt.err), e.NewContext(req, rec))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.NoError(t, EngineError(nil))
}
