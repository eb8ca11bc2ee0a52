package audit

import "time"

// Kinds of decisions recorded by the journal.
const (
	KindAuthorization    = "AGENT_AUTHORIZATION"
	KindCarbonEnrichment = "CARBON_ENRICHMENT"
)

// Outcomes.
const (
	OutcomeApproved = "APPROVED"
	OutcomeDenied   = "DENIED"
	OutcomeBlocked  = "BLOCKED" // kill-switch hit before evaluation
	OutcomeEnriched = "ENRICHED"
	OutcomeFailed   = "FAILED"
)

type Event struct {
	ID      string `json:"id"`       // event UUID
	TraceID string `json:"trace_id"` // request correlation
	Kind    string `json:"kind"`
	AgentID string `json:"agent_id,omitempty"`

	// Input summary
	Amount   string `json:"amount"`             // decimal string
	Currency string `json:"currency,omitempty"` // authorizations only
	Category string `json:"category"`           // merchant category or resolved MCC name
	MCC      string `json:"mcc,omitempty"`

	// Result
	Outcome    string    `json:"outcome"`
	ReasonCode string    `json:"reason_code,omitempty"`
	ConsentID  string    `json:"consent_id,omitempty"`
	CarbonKg   string    `json:"carbon_kg,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationUs int64     `json:"duration_us"`
}
