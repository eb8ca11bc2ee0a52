package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/openfinance-gateway/internal/audit"
	"github.com/xela07ax/openfinance-gateway/internal/carbon"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"github.com/xela07ax/openfinance-gateway/internal/infra/auth"
	"github.com/xela07ax/openfinance-gateway/internal/policy"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type recordingJournal struct {
	mu     sync.Mutex
	events []audit.Event
}

func (j *recordingJournal) Record(e audit.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *recordingJournal) last(t *testing.T) audit.Event {
	t.Helper()
	j.mu.Lock()
	defer j.mu.Unlock()
	require.NotEmpty(t, j.events)
	return j.events[len(j.events)-1]
}

type staticBlocker map[string]bool

func (b staticBlocker) IsBlocked(id string) bool { return b[id] }

type stubValidator struct {
	claims *domain.AgentClaims
}

func (v stubValidator) VerifyToken(string) (*domain.AgentClaims, error) {
	return v.claims, nil
}

type testEnv struct {
	handler http.Handler
	journal *recordingJournal
	metrics *Metrics
}

func newTestEnv(t *testing.T, blocker AgentBlocker, opts RouterOptions) *testEnv {
	t.Helper()
	guardrail, err := policy.NewGuardrail(policy.DefaultLimits(), policy.NewUUIDIssuer(policy.DefaultConsentPrefix))
	require.NoError(t, err)

	journal := &recordingJournal{}
	metrics := NewMetrics(prometheus.NewRegistry())
	g := NewGateway(guardrail, carbon.NewEstimator(carbon.DefaultFactorTable()), journal, blocker, metrics, zap.NewNop())

	return &testEnv{handler: NewRouter(g, opts), journal: journal, metrics: metrics}
}

func (e *testEnv) post(t *testing.T, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func authorizeBody(limit, category string) string {
	return fmt.Sprintf(`{"agent_id":"agent_ai_2026_001","spending_limit":%s,"currency":"USD","merchant_category":%q}`, limit, category)
}

func TestAuthorizeAgent_Approved(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("250.00", "restaurants"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	var resp AuthorizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Authorized", resp.Status)
	assert.Equal(t, "restaurants", resp.MerchantConstraints)
	assert.True(t, strings.HasPrefix(resp.ConsentID, policy.DefaultConsentPrefix))
	assert.Equal(t, "AI Agent authorized within defined guardrails.", resp.Message)

	ev := env.journal.last(t)
	assert.Equal(t, audit.KindAuthorization, ev.Kind)
	assert.Equal(t, audit.OutcomeApproved, ev.Outcome)
	assert.Equal(t, resp.ConsentID, ev.ConsentID)
	assert.Equal(t, "250", ev.Amount)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DecisionsTotal.WithLabelValues(audit.KindAuthorization, audit.OutcomeApproved, "none")))
}

func TestAuthorizeAgent_ConsentDiffersAcrossCalls(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	ids := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		rec := env.post(t, "/agent/authorize-agent", authorizeBody("250", "restaurants"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp AuthorizeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		ids[resp.ConsentID] = struct{}{}
	}
	assert.Len(t, ids, 5)
}

func TestAuthorizeAgent_LimitExceeded(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("600", "restaurants"))

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "LIMIT_EXCEEDED", body.Error.Code)
	assert.Contains(t, body.Error.Message, "MFA")
	assert.Equal(t, 500.0, body.Error.Details["max_allowed"])
	assert.Equal(t, 600.0, body.Error.Details["requested"])

	ev := env.journal.last(t)
	assert.Equal(t, audit.OutcomeDenied, ev.Outcome)
	assert.Equal(t, "LIMIT_EXCEEDED", ev.ReasonCode)
	assert.Empty(t, ev.ConsentID)
}

func TestAuthorizeAgent_GovernanceViolation(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("100", "Casino"))

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "GOVERNANCE_VIOLATION", body.Error.Code)
	assert.Equal(t, "Governance Violation: AI Agents are prohibited from Casino.", body.Error.Message)
	assert.Equal(t, "Casino", body.Error.Details["prohibited_category"])
}

func TestAuthorizeAgent_DefaultsCurrency(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	rec := env.post(t, "/agent/authorize-agent", `{"agent_id":"a1","spending_limit":10,"merchant_category":"groceries"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "USD", env.journal.last(t).Currency)
}

func TestAuthorizeAgent_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"zero limit", `{"agent_id":"a","spending_limit":0,"merchant_category":"x"}`, "spending_limit"},
		{"negative limit", `{"agent_id":"a","spending_limit":-5,"merchant_category":"x"}`, "spending_limit"},
		{"missing limit", `{"agent_id":"a","merchant_category":"x"}`, "spending_limit"},
		{"empty agent", `{"agent_id":"  ","spending_limit":5,"merchant_category":"x"}`, "agent_id"},
		{"empty category", `{"agent_id":"a","spending_limit":5,"merchant_category":""}`, "merchant_category"},
		{"bad currency", `{"agent_id":"a","spending_limit":5,"currency":"dollars","merchant_category":"x"}`, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, "/agent/authorize-agent", tt.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "INVALID_INPUT", body.Error.Code)
			fields, ok := body.Error.Details["fields"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, fields, tt.field)
		})
	}

	assert.Empty(t, env.journal.events, "invalid input never reaches the core")
}

func TestAmountBounds(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"tiny limit", "/agent/authorize-agent", authorizeBody("1e-50000000", "restaurants"), "spending_limit"},
		{"huge limit", "/agent/authorize-agent", authorizeBody("1e3000000", "restaurants"), "spending_limit"},
		{"nine decimals", "/agent/authorize-agent", authorizeBody("0.000000001", "restaurants"), "spending_limit"},
		{"tiny amount", "/carbon/enrich-transaction", `{"mcc":"5411","amount":1e-50000000,"description":"x"}`, "amount"},
		{"huge amount", "/carbon/enrich-transaction", `{"mcc":"5411","amount":1e3000000,"description":"x"}`, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, tt.path, tt.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Less(t, rec.Body.Len(), 1024)
			body := decodeError(t, rec)
			assert.Equal(t, "INVALID_INPUT", body.Error.Code)
			fields, ok := body.Error.Details["fields"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "must have at most 18 integer digits and 8 decimal places", fields[tt.field])
		})
	}

	assert.Empty(t, env.journal.events)

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("0.00000001", "restaurants"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthorizeAgent_MalformedBody(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	for _, body := range []string{``, `{`, `{"agent_id":"a","spending_limit":5,"merchant_category":"x","extra":1}`, `{} {}`} {
		rec := env.post(t, "/agent/authorize-agent", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code, body)
	}
}

func TestAuthorizeAgent_KillSwitch(t *testing.T) {
	env := newTestEnv(t, staticBlocker{"rogue": true}, RouterOptions{})

	rec := env.post(t, "/agent/authorize-agent", `{"agent_id":"rogue","spending_limit":5,"merchant_category":"groceries"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AGENT_BLOCKED", decodeError(t, rec).Error.Code)
	assert.Equal(t, audit.OutcomeBlocked, env.journal.last(t).Outcome)

	rec = env.post(t, "/agent/authorize-agent", authorizeBody("5", "groceries"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthorizeAgent_TokenBoundToAgent(t *testing.T) {
	validator := stubValidator{claims: &domain.AgentClaims{
		AgentID: "agent_other",
		Scopes:  map[string]bool{domain.ScopeAgentAuthorize: true},
	}}
	env := newTestEnv(t, nil, RouterOptions{Validator: validator})

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("5", "groceries"), "Authorization", "Bearer x")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Error.Code)

	rec = env.post(t, "/agent/authorize-agent", authorizeBody("5", "groceries"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "token required when auth is on")

	rec = env.post(t, "/carbon/enrich-transaction", `{"mcc":"5411","amount":50,"description":"x"}`, "Authorization", "Bearer x")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "scope carbon.enrich not granted")
}

func TestAuthorizeAgent_ServiceTokenWithoutAgentBinding(t *testing.T) {
	validator := stubValidator{claims: &domain.AgentClaims{
		Scopes: map[string]bool{domain.ScopeAgentAuthorize: true},
	}}
	env := newTestEnv(t, nil, RouterOptions{Validator: validator})

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("5", "groceries"), "Authorization", "Bearer x")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnrichTransaction(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	tests := []struct {
		name     string
		body     string
		category string
		kg       string
	}{
		{"groceries", `{"mcc":"5411","amount":50.00,"description":"Weekly groceries"}`, "Grocery Stores", "6.00"},
		{"gas", `{"mcc":"5541","amount":50.00,"description":"Fuel"}`, "Gas Stations", "105.00"},
		{"fallback", `{"mcc":"9999","amount":100.00,"description":"Shoes"}`, "General Retail", "15.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, "/carbon/enrich-transaction", tt.body)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"carbon_footprint_kg":`+tt.kg)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.category, resp["merchant_category"])
			assert.Contains(t, resp["insights"], tt.kg+"kg")
			assert.Len(t, resp, 4)
		})
	}

	ev := env.journal.last(t)
	assert.Equal(t, audit.KindCarbonEnrichment, ev.Kind)
	assert.Equal(t, "9999", ev.MCC)
	assert.Equal(t, "15.00", ev.CarbonKg)
}

func TestEnrichTransaction_PassesDescriptionThrough(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	rec := env.post(t, "/carbon/enrich-transaction", `{"mcc":"4511","amount":250,"description":"  Flight to New York "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EnrichResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "  Flight to New York ", resp.OriginalTransaction)
	assert.Equal(t, json.Number("212.50"), resp.CarbonFootprintKg)
}

func TestEnrichTransaction_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	for _, body := range []string{
		`{"mcc":"541","amount":50,"description":"x"}`,
		`{"mcc":"54a1","amount":50,"description":"x"}`,
		`{"mcc":"5411","amount":0,"description":"x"}`,
		`{"mcc":"5411","amount":50,"description":""}`,
	} {
		rec := env.post(t, "/carbon/enrich-transaction", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code, body)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{Limiter: rate.NewLimiter(rate.Limit(0.001), 1)})

	first := env.post(t, "/carbon/enrich-transaction", `{"mcc":"5411","amount":50,"description":"x"}`)
	second := env.post(t, "/carbon/enrich-transaction", `{"mcc":"5411","amount":50,"description":"x"}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, second).Error.Code)
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	for path, want := range map[string]string{"/": "Gateway Online", "/health": "ok"} {
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), want)
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent/authorize-agent", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraceIDPropagates(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{})

	rec := env.post(t, "/agent/authorize-agent", authorizeBody("5", "groceries"), "X-Trace-ID", "trace-123")

	assert.Equal(t, "trace-123", rec.Header().Get("X-Trace-ID"))
	assert.Equal(t, "trace-123", env.journal.last(t).TraceID)
}

var _ auth.TokenValidator = stubValidator{}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil, RouterOptions{CORSOrigins: []string{"https://dashboard.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/carbon/enrich-transaction", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
