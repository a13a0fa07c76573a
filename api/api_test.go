package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/config"
	"github.com/transparencyx/chaintrace/database/worker"
	"github.com/transparencyx/chaintrace/session"
	"github.com/transparencyx/chaintrace/tracing"
	"github.com/transparencyx/chaintrace/warehouse"
)

var (
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	txHash = common.HexToHash("0x9e63085271890a141297039b3b711913699f1ee4db1acb667ad7ce304772036b")
)

type fakeTracer struct {
	err         error
	requestedBy string
}

func (f *fakeTracer) TracePaymentChain(_ context.Context, hash common.Hash, requestedBy string) (*tracing.PaymentFlow, error) {
	f.requestedBy = requestedBy
	if f.err != nil {
		return nil, f.err
	}
	return &tracing.PaymentFlow{
		TxHash:     hash,
		Origin:     wallet,
		TotalValue: (*hexutil.Big)(big.NewInt(100)),
		Participants: []tracing.Participant{
			{Address: common.HexToAddress("0xb1"), Value: (*hexutil.Big)(big.NewInt(100)), Depth: 1, MethodID: "0x"},
		},
	}, nil
}

func (f *fakeTracer) RawTrace(_ context.Context, _ common.Hash) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"type":"CALL","from":"0xa1"}`), nil
}

type fakeAnalytics struct {
	err       error
	threshold float64
	ratio     float64
	origin    common.Address
	maxDelay  float64
	days      int
	limit     int
}

func (f *fakeAnalytics) SuspiciousDepartments(_ context.Context, threshold float64) ([]warehouse.SuspiciousDepartment, error) {
	f.threshold = threshold
	if f.err != nil {
		return nil, f.err
	}
	return []warehouse.SuspiciousDepartment{{DepartmentAddress: "0xd1", TotalClaims: 3, AvgAnomalyScore: 80, TotalAmount: decimal.NewFromInt(7)}}, nil
}

func (f *fakeAnalytics) PaymentChainCompleteness(_ context.Context, ratio float64) ([]warehouse.ChainCompleteness, error) {
	f.ratio = ratio
	return nil, f.err
}

func (f *fakeAnalytics) AnomalousPaymentPatterns(_ context.Context, origin common.Address, maxDelay float64) ([]warehouse.PaymentPattern, error) {
	f.origin, f.maxDelay = origin, maxDelay
	return nil, f.err
}

func (f *fakeAnalytics) TracePaymentChain(_ context.Context, origin common.Address, days int) ([]warehouse.ChainLink, error) {
	f.origin, f.days = origin, days
	return nil, f.err
}

func (f *fakeAnalytics) ClaimStatusCounts(context.Context) ([]warehouse.StatusCount, error) {
	return []warehouse.StatusCount{{Status: "Paid", Count: 2}}, f.err
}

func (f *fakeAnalytics) RecentChallenges(_ context.Context, limit int) ([]warehouse.ChallengeSummary, error) {
	f.limit = limit
	return nil, f.err
}

func (f *fakeAnalytics) TransactionTrail(context.Context) ([]warehouse.TrailMonth, error) {
	return nil, f.err
}

func (f *fakeAnalytics) FraudAlerts(_ context.Context, limit int) ([]warehouse.FraudAlert, error) {
	f.limit = limit
	return nil, f.err
}

func (f *fakeAnalytics) DepartmentClaimStats(_ context.Context, department common.Address) (*warehouse.DepartmentStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nil, errs.New(errs.TypeNotFound, "department has no claims")
}

type fakeJobs struct{}

func (fakeJobs) QueryTraceJobsByTx(hash common.Hash, limit int) ([]worker.TraceJob, error) {
	return []worker.TraceJob{{TxHash: hash, RequestedBy: "mirror", Status: worker.StatusSuccess}}, nil
}

type fakeFlows map[common.Hash][]*tracing.PaymentFlow

func (f fakeFlows) PaymentFlowsByTx(_ context.Context, hash common.Hash) ([]*tracing.PaymentFlow, error) {
	return f[hash], nil
}

type fakeArchive map[common.Hash][]byte

func (f fakeArchive) GetTrace(_ context.Context, hash common.Hash) ([]byte, error) {
	raw, ok := f[hash]
	if !ok {
		return nil, errs.New(errs.TypeNotFound, "trace is not archived")
	}
	return raw, nil
}

type fakeRoles map[common.Address]string

func (f fakeRoles) RoleOf(address common.Address) (string, error) {
	return f[address], nil
}

type fixture struct {
	api       *API
	tracer    *fakeTracer
	analytics *fakeAnalytics
	redis     *miniredis.Miniredis
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{tracer: &fakeTracer{}, analytics: &fakeAnalytics{}, redis: mr}
	deps := Deps{
		Tracer:    f.tracer,
		Analytics: f.analytics,
		Sessions:  session.NewStore(rdb, time.Hour),
		Jobs:      fakeJobs{},
	}
	for _, m := range mutate {
		m(&deps)
	}
	a, err := NewApi(config.HTTPConfig{Host: "127.0.0.1", Port: 0, CorsOrigins: []string{"https://dash.example"}}, deps)
	require.NoError(t, err)
	f.api = a
	return f
}

func (f *fixture) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, role string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/session", "", `{"address":"`+wallet.Hex()+`","role":"`+role+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestNewApiRequiresCoreServices(t *testing.T) {
	_, err := NewApi(config.HTTPConfig{}, Deps{})
	require.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "supplier")

	rec := f.do(t, http.MethodGet, "/api/session", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, wallet, sess.Address)
	assert.Equal(t, session.RoleSupplier, sess.Role)

	rec = f.do(t, http.MethodDelete, "/api/session", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/session", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, errorOf(t, rec))
}

func TestSessionExpires(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "")

	f.redis.FastForward(2 * time.Hour)
	rec := f.do(t, http.MethodGet, "/api/session", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaleTokenIsIgnoredOnOpenRoutes(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "public")
	f.redis.FastForward(48 * time.Hour)

	rec := f.do(t, http.MethodGet, "/api/claims/status", token, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/session", token, `{"address":"`+wallet.Hex()+`","role":"public"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var fresh session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))
	assert.NotEqual(t, token, fresh.Token)

	rec = f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex(), token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex(), fresh.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionStoreFailureStopsRequest(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "public")
	f.redis.SetError("ERR store unavailable")
	defer f.redis.SetError("")

	rec := f.do(t, http.MethodGet, "/api/claims/status", token, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", errorOf(t, rec))
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"bad address", `{"address":"0x123","role":"public"}`},
		{"unknown role", `{"address":"` + wallet.Hex() + `","role":"auditor"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/session", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestCreateSessionConfirmsContractRoles(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Roles = fakeRoles{wallet: "vendor"}
	})

	rec := f.do(t, http.MethodPost, "/api/session", "", `{"address":"`+wallet.Hex()+`","role":"state-head"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.login(t, "vendor")
	f.login(t, "main-government")
}

func TestTraceRequiresSession(t *testing.T) {
	f := newFixture(t)
	target := "/api/trace/" + txHash.Hex()

	rec := f.do(t, http.MethodGet, target, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, target, "not-a-session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := f.login(t, "public")
	rec = f.do(t, http.MethodGet, target, token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var flow tracing.PaymentFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flow))
	assert.Equal(t, txHash, flow.TxHash)
	assert.Len(t, flow.Participants, 1)
	assert.Equal(t, wallet.Hex(), f.tracer.requestedBy)
}

func TestTraceRejectsBadHash(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "public")

	for _, hash := range []string{"0x1234", "9e63085271890a141297039b3b711913699f1ee4db1acb667ad7ce304772036b", "0xzz"} {
		rec := f.do(t, http.MethodGet, "/api/trace/"+hash, token, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, hash)
	}
}

func TestTraceErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errs.New(errs.TypeNotFound, "transaction not found"), http.StatusNotFound},
		{errs.NewMalformedTrace("root.calls[0]", "bad value"), http.StatusUnprocessableEntity},
		{errs.Wrap(errs.TypeNetwork, "trace transaction", errors.New("dial tcp")), http.StatusBadGateway},
		{errs.Wrap(errs.TypeWarehouse, "append flow", errors.New("broken pipe")), http.StatusServiceUnavailable},
		{errs.NewValidation("txHash", "bad"), http.StatusBadRequest},
		{errs.Wrap(errs.TypeDatabase, "start trace job", errs.NewValidation("txHash", "bad")), http.StatusInternalServerError},
		{errs.Wrap(errs.TypeArchive, "upload trace", errors.New("connection reset")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	f := newFixture(t)
	token := f.login(t, "public")
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			f.tracer.err = tt.err
			rec := f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex(), token, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestServerErrorsHideDetails(t *testing.T) {
	f := newFixture(t)
	f.analytics.err = errs.Wrap(errs.TypeWarehouse, "query", errors.New("password=secret"))

	rec := f.do(t, http.MethodGet, "/api/claims/status", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestRawTraceAndJobs(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "public")

	rec := f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex()+"/raw", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"CALL","from":"0xa1"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex()+"/jobs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []worker.TraceJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "mirror", jobs[0].RequestedBy)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex()+"/jobs?limit=1000", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoredFlowsAndArchive(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Flows = fakeFlows{txHash: {{TxHash: txHash, Origin: wallet, TotalValue: (*hexutil.Big)(big.NewInt(5))}}}
		d.Archive = fakeArchive{txHash: []byte(`{"type":"CALL"}`)}
	})
	token := f.login(t, "public")

	rec := f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex()+"/flows", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var flows []tracing.PaymentFlow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flows))
	require.Len(t, flows, 1)
	assert.Equal(t, wallet, flows[0].Origin)

	other := common.HexToHash("0x01")
	rec = f.do(t, http.MethodGet, "/api/trace/"+other.Hex()+"/flows", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex()+"/archived", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"CALL"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/trace/"+other.Hex()+"/archived", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptionalRoutesWithoutBackends(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Jobs = nil })
	token := f.login(t, "public")

	for _, suffix := range []string{"/flows", "/jobs", "/archived"} {
		rec := f.do(t, http.MethodGet, "/api/trace/"+txHash.Hex()+suffix, token, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, suffix)
	}
}

func TestAnalyticsParameters(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/analytics/suspicious-departments", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, warehouse.DefaultAnomalyThreshold, f.analytics.threshold)
	assert.Contains(t, rec.Body.String(), `"departmentAddress":"0xd1"`)

	rec = f.do(t, http.MethodGet, "/api/analytics/suspicious-departments?threshold=75.5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 75.5, f.analytics.threshold)

	rec = f.do(t, http.MethodGet, "/api/analytics/suspicious-departments?threshold=high", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "threshold: not a number", errorOf(t, rec))

	rec = f.do(t, http.MethodGet, "/api/analytics/chain-completeness?ratio=0.9", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.9, f.analytics.ratio)

	origin := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	rec = f.do(t, http.MethodGet, "/api/analytics/anomalous-patterns?origin="+origin.Hex(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, origin, f.analytics.origin)
	assert.Equal(t, warehouse.DefaultMaxDelaySeconds, f.analytics.maxDelay)

	rec = f.do(t, http.MethodGet, "/api/analytics/payment-chain?origin="+origin.Hex()+"&days=7", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, f.analytics.days)

	rec = f.do(t, http.MethodGet, "/api/analytics/payment-chain", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/challenges?limit=3", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.analytics.limit)

	rec = f.do(t, http.MethodGet, "/api/fraud-alerts", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, warehouse.DefaultListLimit, f.analytics.limit)
}

func TestEmptyResultsAreArrays(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/api/trail", "/api/challenges", "/api/analytics/chain-completeness"} {
		rec := f.do(t, http.MethodGet, target, "", "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.JSONEq(t, `[]`, rec.Body.String(), target)
	}
}

func TestDepartmentStatsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/departments/"+wallet.Hex()+"/stats", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/departments/nope/stats", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityLog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/log", "", `{"action":"view","page":"trail"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/log", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", errorOf(t, rec))

	rec = f.do(t, http.MethodPost, "/api/log", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Checks = map[string]HealthCheck{
			"redis":      func(context.Context) error { return nil },
			"clickhouse": func(context.Context) error { return errors.New("connection refused") },
		}
	})
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"redis":"ok","clickhouse":"connection refused"}`, rec.Body.String())
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/trail", "", "")

	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chaintrace_api_requests_total{code="200",route="/api/trail"}`)

	rec = f.do(t, http.MethodGet, "/api/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/trail", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/trail", nil)
	req.Header.Set("Origin", "https://dash.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.api.Start(context.Background()))
	assert.False(t, f.api.Stopped())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.api.Stop(ctx))
	assert.True(t, f.api.Stopped())
}
