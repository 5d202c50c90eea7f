package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectwise/internal/account"
	"collectwise/internal/lookup"
	"collectwise/internal/metrics/prompush"
	"collectwise/internal/storage"
	"collectwise/internal/storage/sqlite"
)

func seededStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.Open(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(ctx))

	require.NoError(t, st.Upsert(ctx, account.Account{
		AccountNumber: "ACC001",
		DebtorName:    account.Ptr("Jane Roe"),
		PhoneNumber:   account.Ptr("555-0100"),
		Balance:       decimal.RequireFromString("1500.75"),
		Status:        account.Ptr("active"),
		ClientName:    account.Ptr("Atlas"),
	}))
	require.NoError(t, st.Upsert(ctx, account.Account{AccountNumber: "ACC002"}))
	return st
}

func quietLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	return l, &buf
}

func serve(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func newTestRouter(t *testing.T, st storage.AccountStore) http.Handler {
	t.Helper()
	logger, _ := quietLogger()
	return NewRouter(lookup.New(st), Options{Logger: logger})
}

func TestHealth(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	rec, body := serve(t, r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	ts, ok := body["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(ts, "Z"), ts)
}

func TestStats(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	rec, body := serve(t, r, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["total_accounts"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestStats_StoreFailure(t *testing.T) {
	t.Parallel()

	st, err := sqlite.Open(context.Background(), "")
	require.NoError(t, err)
	defer st.Close()
	r := newTestRouter(t, st) // never initialized

	rec, body := serve(t, r, http.MethodGet, "/stats")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Database error", body["error"])
	assert.Contains(t, body["message"], "not initialized")
}

func TestAccountByPath(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	rec, body := serve(t, r, http.MethodGet, "/accounts/ACC001")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"account_number": "ACC001",
		"debtor_name":    "Jane Roe",
		"phone_number":   "555-0100",
		"balance":        1500.75,
		"status":         "active",
		"client_name":    "Atlas",
	}, body)
}

func TestAccountByPath_NullsAndExactBalance(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	rec, _ := serve(t, r, http.MethodGet, "/accounts/ACC002")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"account_number":"ACC002","debtor_name":null,"phone_number":null,"balance":0,"status":null,"client_name":null}`,
		rec.Body.String())
}

func TestAccountByPath_TrimsKey(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	rec, body := serve(t, r, http.MethodGet, "/accounts/%20ACC001%20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ACC001", body["account_number"])
}

func TestAccountByPath_EscapedKey(t *testing.T) {
	t.Parallel()
	st := seededStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, account.Account{AccountNumber: "ACC/003"}))
	require.NoError(t, st.Upsert(ctx, account.Account{AccountNumber: "ACC%41"}))
	r := newTestRouter(t, st)

	for target, want := range map[string]string{
		"/accounts/ACC%2F003":               "ACC/003",
		"/accounts?account_number=ACC%2F003": "ACC/003",
		"/accounts/ACC%2541":                "ACC%41",
	} {
		rec, body := serve(t, r, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, want, body["account_number"], target)
	}
}

func TestAccountByPath_Errors(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	tests := []struct {
		name    string
		target  string
		code    int
		message string
	}{
		{"empty", "/accounts/", http.StatusBadRequest, "Account number is required"},
		{"blank", "/accounts/%20%20", http.StatusBadRequest, "Account number is required"},
		{"missing", "/accounts/NOPE", http.StatusNotFound, "Account with number 'NOPE' does not exist"},
		{"case sensitive", "/accounts/acc001", http.StatusNotFound, "Account with number 'acc001' does not exist"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := serve(t, r, http.MethodGet, tc.target)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestAccountByQuery(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	rec, body := serve(t, r, http.MethodGet, "/accounts?account_number=ACC001")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jane Roe", body["debtor_name"])

	rec, body = serve(t, r, http.MethodGet, "/accounts")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Bad Request", body["error"])
	assert.Equal(t, "Please provide an account_number query parameter", body["message"])
	assert.Equal(t, "/accounts?account_number=ACC001", body["example"])

	rec, body = serve(t, r, http.MethodGet, "/accounts?account_number=ZZZ")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", body["error"])
	_, hasExample := body["example"]
	assert.False(t, hasExample)
}

// failingStore fails every read with a driver error.
type failingStore struct {
	storage.AccountStore
	err error
}

func (s failingStore) FindByKey(context.Context, string) (account.Account, error) {
	return account.Account{}, s.err
}

func TestAccount_StoreFailureIs500(t *testing.T) {
	t.Parallel()

	for _, storeErr := range []error{errors.New("database is locked"), storage.ErrNotInitialized} {
		logger, logs := quietLogger()
		r := NewRouter(lookup.New(failingStore{err: storeErr}), Options{Logger: logger})

		rec, body := serve(t, r, http.MethodGet, "/accounts/ACC001")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Server Error", body["error"])
		assert.Equal(t, "An error occurred while looking up the account", body["message"])
		assert.NotContains(t, rec.Body.String(), storeErr.Error())
		assert.Contains(t, logs.String(), storeErr.Error())
	}
}

type panickingStore struct{ storage.AccountStore }

func (panickingStore) FindByKey(context.Context, string) (account.Account, error) {
	panic("boom")
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	logger, logs := quietLogger()
	r := NewRouter(lookup.New(panickingStore{}), Options{Logger: logger})

	rec, body := serve(t, r, http.MethodGet, "/accounts/ACC001")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An unexpected error occurred", body["message"])
	assert.Contains(t, logs.String(), "unhandled error")
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, seededStore(t))

	for _, tc := range []struct{ method, target, msg string }{
		{http.MethodGet, "/nope", "Route GET /nope not found"},
		{http.MethodPost, "/health", "Route POST /health not found"},
		{http.MethodDelete, "/accounts/ACC001", "Route DELETE /accounts/ACC001 not found"},
		{http.MethodGet, "/metrics", "Route GET /metrics not found"},
	} {
		rec, body := serve(t, r, tc.method, tc.target)
		require.Equal(t, http.StatusNotFound, rec.Code, tc.target)
		assert.Equal(t, tc.msg, body["message"])
		assert.Len(t, body["available_endpoints"], len(Endpoints))
	}
}

func TestRequestLoggingAndMetrics(t *testing.T) {
	t.Parallel()

	prom, err := prompush.NewBackend("test", "")
	require.NoError(t, err)
	logger, logs := quietLogger()
	r := NewRouter(lookup.New(seededStore(t)), Options{
		Logger:         logger,
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
	})

	serve(t, r, http.MethodGet, "/accounts/ACC001")
	serve(t, r, http.MethodGet, "/accounts/ACC002")
	serve(t, r, http.MethodGet, "/accounts/NOPE")

	expected := `
# HELP collectwise_http_requests_total HTTP requests served.
# TYPE collectwise_http_requests_total counter
collectwise_http_requests_total{method="GET",route="/accounts/{accountNumber}",status="200"} 2
collectwise_http_requests_total{method="GET",route="/accounts/{accountNumber}",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(prom.Gatherer(), strings.NewReader(expected), "collectwise_http_requests_total"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(out), "collectwise_http_request_duration_seconds")

	var line map[string]any
	first := strings.SplitN(logs.String(), "\n", 2)[0]
	require.NoError(t, json.Unmarshal([]byte(first), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/accounts/ACC001", line["path"])
	assert.Equal(t, float64(200), line["status"])
	assert.NotEmpty(t, line["request_id"])
}
