package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlens/demo-gateway/internal/middleware"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/service"
	"github.com/screenlens/demo-gateway/internal/testutil"
	"github.com/screenlens/demo-gateway/internal/upstream"
)

const (
	testToken     = "4f2c9a1e-7b3d-4e8f-9a6b-1c5d8e2f7a30"
	testSignature = "aabbccddeeff00112233445566778899"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUpstream records every forwarded body so tests can assert the
// sanitization contract.
type fakeUpstream struct {
	*httptest.Server

	calls  atomic.Int64
	status int
	body   string

	lastBody atomic.Pointer[[]byte]
}

func newFakeUpstream(status int, body string) *fakeUpstream {
	f := &fakeUpstream{status: status, body: body}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		b := buf.Bytes()
		f.lastBody.Store(&b)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		w.Write([]byte(f.body))
	}))
	return f
}

func (f *fakeUpstream) forwarded(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	raw := f.lastBody.Load()
	require.NotNil(t, raw, "upstream was never called")

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(*raw, &payload))
	return payload
}

func newTestRouter(store *testutil.FakeStore, upstreamURL string) *gin.Engine {
	var quota *service.QuotaService
	var client *upstream.Client

	if store != nil {
		quota = service.NewQuotaService(
			store, store, store.Roles(), nil,
			service.Policy{DailyLimit: 15, VelocityLimit: models.UnlimitedQuota},
			"sliding_window", time.Minute,
		)
	}
	if upstreamURL != "" {
		client = upstream.New(upstreamURL, "sk-test", 5*time.Second)
	}

	h := NewCompletionHandler(quota, client)

	r := gin.New()
	r.Use(middleware.CORS())
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.POST("/", h.Complete)
	r.OPTIONS("/", h.Preflight)

	return r
}

func completionRequest(t *testing.T, meta map[string]interface{}) *http.Request {
	t.Helper()

	payload := map[string]interface{}{
		"model":    "gpt-4o-mini",
		"messages": []map[string]string{{"role": "user", "content": "describe this screenshot"}},
	}
	if meta != nil {
		payload["_meta"] = meta
	}

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func defaultMeta() map[string]interface{} {
	return map[string]interface{}{
		"clientUuid":        testToken,
		"deviceFingerprint": testSignature,
		"parallelCount":     1,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPreflight(t *testing.T) {
	router := newTestRouter(nil, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(nil, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", decode(t, w)["error"])
}

func TestUnconfiguredStoreFailsClosed(t *testing.T) {
	router := newTestRouter(nil, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, service.CodeConfigError, decode(t, w)["code"])
}

func TestMissingIdentification(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1"}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	router := newTestRouter(store, up.URL)

	for name, meta := range map[string]map[string]interface{}{
		"no meta":        nil,
		"no uuid":        {"deviceFingerprint": testSignature},
		"no fingerprint": {"clientUuid": testToken},
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, completionRequest(t, meta))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, service.CodeMissingID, body["code"])
			assert.Contains(t, body["message"], "update your extension")
		})
	}

	assert.Equal(t, int64(0), up.calls.Load(), "unidentified requests never reach upstream")
}

func TestInvalidBody(t *testing.T) {
	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	up := newFakeUpstream(http.StatusOK, `{}`)
	defer up.Close()
	router := newTestRouter(store, up.URL)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("[1,2,3]")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.CodeInvalidBody, decode(t, w)["code"])
}

func TestFirstRequestMeteredAndEnriched(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1","choices":[{"text":"a screenshot"}]}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	router := newTestRouter(store, up.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "cmpl-1", body["id"])

	demo, ok := body["_demo"].(map[string]interface{})
	require.True(t, ok, "_demo block missing")
	assert.Equal(t, float64(1), demo["usage"])
	assert.Equal(t, float64(15), demo["limit"])
	assert.Equal(t, float64(14), demo["remaining"])
	assert.Equal(t, testSignature[:4]+"…", demo["deviceId"])

	// The identification block must not leak upstream.
	forwarded := up.forwarded(t)
	assert.NotContains(t, forwarded, "_meta")
	assert.Contains(t, forwarded, "model")
	assert.Contains(t, forwarded, "messages")
}

func TestRepeatedRequestsCountDown(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1"}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	router := newTestRouter(store, up.URL)

	for i := 1; i <= 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, completionRequest(t, defaultMeta()))
		require.Equal(t, http.StatusOK, w.Code)

		demo := decode(t, w)["_demo"].(map[string]interface{})
		assert.Equal(t, float64(i), demo["usage"])
		assert.Equal(t, float64(15-i), demo["remaining"])
	}

	assert.Equal(t, 1, store.IdentityCount(), "repeat calls reuse the identity")
}

func TestQuotaExhaustedRejectsBeforeUpstream(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1"}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	identity := store.AddIdentity(testToken, testSignature, models.RoleGuest)
	store.SetUsage(identity.ID, models.UsageDay(time.Now()), 15)

	router := newTestRouter(store, up.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, service.CodeLimitExceeded, body["code"])
	assert.Equal(t, float64(15), body["usage"])
	assert.Equal(t, float64(15), body["limit"])
	assert.Contains(t, body["message"], "free requests for today")
	assert.Equal(t, int64(0), up.calls.Load(), "over-quota requests never reach upstream")
}

func TestDeviceCapRejectsFreshToken(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1"}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	existing := store.AddIdentity("worn-out-token", testSignature, models.RoleGuest)
	store.SetUsage(existing.ID, models.UsageDay(time.Now()), 15)

	router := newTestRouter(store, up.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, service.CodeDeviceLimitExceeded, decode(t, w)["code"])
	assert.Equal(t, 1, store.IdentityCount(), "no identity row for the rejected token")
	assert.Equal(t, int64(0), up.calls.Load())
}

// An upstream rejection passes through verbatim with the upstream's status,
// and the failed call costs nothing.
func TestUpstreamRejectionPassesThroughUnmetered(t *testing.T) {
	up := newFakeUpstream(http.StatusBadRequest, `{"error":{"message":"invalid model"}}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	router := newTestRouter(store, up.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"message":"invalid model"}}`, w.Body.String())

	identity, err := store.FindByClientToken(context.Background(), testToken)
	require.NoError(t, err)
	require.NotNil(t, identity)

	usage, err := store.Get(context.Background(), identity.ID, models.UsageDay(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage, "failed upstream calls are not metered")
}

func TestUpstreamTransportFailure(t *testing.T) {
	store := testutil.NewFakeStore(15, models.UnlimitedQuota)

	// A closed server is a transport failure, not an HTTP rejection.
	up := newFakeUpstream(http.StatusOK, `{}`)
	url := up.URL
	up.Close()

	router := newTestRouter(store, url)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, service.CodeUpstreamError, decode(t, w)["code"])

	identity, err := store.FindByClientToken(context.Background(), testToken)
	require.NoError(t, err)
	require.NotNil(t, identity)

	usage, err := store.Get(context.Background(), identity.ID, models.UsageDay(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage)
}

func TestZeroParallelCountIsFree(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1"}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	identity := store.AddIdentity(testToken, testSignature, models.RoleGuest)
	store.SetUsage(identity.ID, models.UsageDay(time.Now()), 14)

	router := newTestRouter(store, up.URL)

	meta := defaultMeta()
	meta["parallelCount"] = 0

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, meta))

	require.Equal(t, http.StatusOK, w.Code)
	demo := decode(t, w)["_demo"].(map[string]interface{})
	assert.Equal(t, float64(14), demo["usage"], "zero-weight call leaves the counter alone")
	assert.Equal(t, float64(1), demo["remaining"])
}

func TestParallelCountWeightsUsage(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `{"id":"cmpl-1"}`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	router := newTestRouter(store, up.URL)

	meta := defaultMeta()
	meta["parallelCount"] = 4

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, meta))

	require.Equal(t, http.StatusOK, w.Code)
	demo := decode(t, w)["_demo"].(map[string]interface{})
	assert.Equal(t, float64(4), demo["usage"])
	assert.Equal(t, float64(11), demo["remaining"])
}

func TestNonObjectUpstreamBodyReturnedVerbatim(t *testing.T) {
	up := newFakeUpstream(http.StatusOK, `"plain string"`)
	defer up.Close()

	store := testutil.NewFakeStore(15, models.UnlimitedQuota)
	router := newTestRouter(store, up.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, completionRequest(t, defaultMeta()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"plain string"`, w.Body.String())

	// The call still cost a unit even though the body could not be enriched.
	identity, err := store.FindByClientToken(context.Background(), testToken)
	require.NoError(t, err)
	usage, err := store.Get(context.Background(), identity.ID, models.UsageDay(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage)
}
