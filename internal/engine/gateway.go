package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/openfinance-gateway/internal/audit"
	"github.com/xela07ax/openfinance-gateway/internal/carbon"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"github.com/xela07ax/openfinance-gateway/internal/infra/auth"
	"github.com/xela07ax/openfinance-gateway/internal/infra/respond"
	"github.com/xela07ax/openfinance-gateway/internal/policy"
	"go.uber.org/zap"
)

const (
	StatusAuthorized  = "Authorized"
	approvedMessage   = "AI Agent authorized within defined guardrails."
	carbonPlaces      = carbon.FootprintPlaces
	reasonNone        = "none"
	outcomeLabelError = "error"
)

// CarbonEstimator is the enrichment core as seen by the transport.
type CarbonEstimator interface {
	Estimate(q domain.CarbonQuery) domain.CarbonResult
}

// AuthorizeResponse is the 200 body of /agent/authorize-agent.
type AuthorizeResponse struct {
	Status              string `json:"status"`
	ConsentID           string `json:"consent_id"`
	MerchantConstraints string `json:"merchant_constraints"`
	Message             string `json:"message"`
}

// EnrichResponse is the 200 body of /carbon/enrich-transaction.
type EnrichResponse struct {
	OriginalTransaction string      `json:"original_transaction"`
	MerchantCategory    string      `json:"merchant_category"`
	CarbonFootprintKg   json.Number `json:"carbon_footprint_kg"` // fixed 2 decimals, e.g. 6.00
	Insights            string      `json:"insights"`
}

func NewAuthorizeResponse(v domain.AuthorizationVerdict) AuthorizeResponse {
	return AuthorizeResponse{
		Status:              StatusAuthorized,
		ConsentID:           v.ConsentID,
		MerchantConstraints: v.Constraints,
		Message:             approvedMessage,
	}
}

func NewEnrichResponse(q domain.CarbonQuery, res domain.CarbonResult) EnrichResponse {
	return EnrichResponse{
		OriginalTransaction: q.Description,
		MerchantCategory:    res.MerchantCategoryName,
		CarbonFootprintKg:   json.Number(res.CarbonFootprintKg.StringFixed(carbonPlaces)),
		Insights:            res.Insight,
	}
}

// Gateway is the HTTP face of the two decision cores. It decodes, validates,
// calls the core and renders; it never alters a verdict.
type Gateway struct {
	guardrail  policy.Evaluator
	estimator  CarbonEstimator
	journal    audit.Recorder
	killSwitch AgentBlocker
	metrics    *Metrics
	logger     *zap.Logger
}

// NewGateway wires the handlers. journal, killSwitch and metrics are optional.
func NewGateway(guardrail policy.Evaluator, estimator CarbonEstimator, journal audit.Recorder, killSwitch AgentBlocker, metrics *Metrics, logger *zap.Logger) *Gateway {
	if journal == nil {
		journal = nopRecorder{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gateway{
		guardrail:  guardrail,
		estimator:  estimator,
		journal:    journal,
		killSwitch: killSwitch,
		metrics:    metrics,
		logger:     logger.Named("gateway"),
	}
}

// AuthorizeAgent handles POST /agent/authorize-agent.
func (g *Gateway) AuthorizeAgent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	traceID := extractTraceID(r.Context())

	// 1. Decode + boundary validation
	var body AuthorizeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		g.fail(w, err)
		return
	}
	req, err := body.Validate()
	if err != nil {
		g.fail(w, err)
		return
	}
	if r.Context().Err() != nil {
		return // deadline passed or caller left, Timeout renders the reply
	}

	event := audit.Event{
		ID:       uuid.New().String(),
		TraceID:  traceID,
		Kind:     audit.KindAuthorization,
		AgentID:  req.AgentID,
		Amount:   req.SpendingLimit.String(),
		Currency: req.Currency,
		Category: req.MerchantCategory,
	}
	defer func() {
		event.DurationUs = time.Since(start).Microseconds()
		g.journal.Record(event)
	}()

	// 2. Token must belong to the agent it speaks for
	if !auth.ClaimsFromContext(r.Context()).BoundTo(req.AgentID) {
		event.Outcome = audit.OutcomeFailed
		event.ReasonCode = string(domain.CodeUnauthorized)
		g.fail(w, domain.NewUnauthorized("token is not issued to agent "+req.AgentID))
		return
	}

	// 3. Kill-switch beats policy
	if g.killSwitch != nil && g.killSwitch.IsBlocked(req.AgentID) {
		event.Outcome = audit.OutcomeBlocked
		event.ReasonCode = string(domain.CodeAgentBlocked)
		g.metrics.DecisionsTotal.WithLabelValues(audit.KindAuthorization, audit.OutcomeBlocked, string(domain.CodeAgentBlocked)).Inc()
		g.logger.Warn("blocked agent intercepted", zap.String("agent_id", req.AgentID), zap.String("trace_id", traceID))
		g.fail(w, &domain.APIError{
			Code:    domain.CodeAgentBlocked,
			Status:  http.StatusForbidden,
			Message: "Agent " + req.AgentID + " is blocked by the kill-switch.",
			Details: map[string]any{"agent_id": req.AgentID},
		})
		return
	}

	// 4. Policy decision
	verdict, err := g.guardrail.Evaluate(req)
	if err != nil {
		event.Outcome = audit.OutcomeFailed
		g.metrics.DecisionsTotal.WithLabelValues(audit.KindAuthorization, outcomeLabelError, string(domain.CodeInternalError)).Inc()
		g.logger.Error("guardrail evaluation failed", zap.Error(err), zap.String("trace_id", traceID))
		g.fail(w, domain.NewInternalError("Authorization could not be completed"))
		return
	}

	if !verdict.Approved {
		event.Outcome = audit.OutcomeDenied
		event.ReasonCode = string(verdict.Denial.Code)
		g.metrics.DecisionsTotal.WithLabelValues(audit.KindAuthorization, audit.OutcomeDenied, string(verdict.Denial.Code)).Inc()
		g.logger.Info("agent transaction denied",
			zap.String("agent_id", req.AgentID),
			zap.String("reason", string(verdict.Denial.Code)),
			zap.String("trace_id", traceID),
		)
		g.fail(w, verdict.Denial)
		return
	}

	event.Outcome = audit.OutcomeApproved
	event.ConsentID = verdict.ConsentID
	g.metrics.DecisionsTotal.WithLabelValues(audit.KindAuthorization, audit.OutcomeApproved, reasonNone).Inc()

	// 5. Render
	g.ok(w, NewAuthorizeResponse(verdict))
}

// EnrichTransaction handles POST /carbon/enrich-transaction.
func (g *Gateway) EnrichTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body EnrichRequest
	if err := decodeJSON(w, r, &body); err != nil {
		g.fail(w, err)
		return
	}
	q, err := body.Validate()
	if err != nil {
		g.fail(w, err)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	res := g.estimator.Estimate(q)

	g.metrics.DecisionsTotal.WithLabelValues(audit.KindCarbonEnrichment, audit.OutcomeEnriched, reasonNone).Inc()
	g.metrics.CarbonFootprintKg.WithLabelValues(res.MerchantCategoryName).Observe(res.CarbonFootprintKg.InexactFloat64())
	g.journal.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    extractTraceID(r.Context()),
		Kind:       audit.KindCarbonEnrichment,
		Amount:     q.Amount.String(),
		Category:   res.MerchantCategoryName,
		MCC:        q.MerchantCategoryCode,
		Outcome:    audit.OutcomeEnriched,
		CarbonKg:   res.CarbonFootprintKg.StringFixed(carbonPlaces),
		DurationUs: time.Since(start).Microseconds(),
	})

	g.ok(w, NewEnrichResponse(q, res))
}

func (g *Gateway) ok(w http.ResponseWriter, body any) {
	if err := respond.JSON(w, http.StatusOK, body); err != nil {
		g.logger.Error("failed to write response", zap.Error(err))
	}
}

func (g *Gateway) fail(w http.ResponseWriter, err error) {
	apiErr := domain.AsAPIError(err)
	g.metrics.ErrorTotal.WithLabelValues(string(apiErr.Code)).Inc()
	respond.Error(w, apiErr, g.logger)
}

type nopRecorder struct{}

func (nopRecorder) Record(audit.Event) {}
