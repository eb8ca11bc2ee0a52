package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

// Requests are a handful of short fields.
const maxBodyBytes = 64 << 10

// AuthorizeRequest is the wire form of an agent authorization request.
type AuthorizeRequest struct {
	AgentID          string          `json:"agent_id" validate:"notblank"`
	SpendingLimit    decimal.Decimal `json:"spending_limit" validate:"amount,positive"`
	Currency         string          `json:"currency" validate:"omitempty,iso4217"`
	MerchantCategory string          `json:"merchant_category" validate:"notblank"`
}

// Validate is the boundary check; the guardrail trusts whatever passes it.
func (r AuthorizeRequest) Validate() (domain.AgentAuthorizationRequest, error) {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if err := validate.Struct(r); err != nil {
		return domain.AgentAuthorizationRequest{}, validationError(err)
	}
	if r.Currency == "" {
		r.Currency = domain.DefaultCurrency
	}
	return domain.AgentAuthorizationRequest{
		AgentID:          strings.TrimSpace(r.AgentID),
		SpendingLimit:    r.SpendingLimit,
		Currency:         r.Currency,
		MerchantCategory: strings.TrimSpace(r.MerchantCategory),
	}, nil
}

// EnrichRequest is the wire form of a transaction to enrich.
type EnrichRequest struct {
	MCC         string          `json:"mcc" validate:"len=4,number"`
	Amount      decimal.Decimal `json:"amount" validate:"amount,positive"`
	Description string          `json:"description" validate:"notblank"`
}

// Validate keeps the description as sent; it is echoed back verbatim.
func (r EnrichRequest) Validate() (domain.CarbonQuery, error) {
	if err := validate.Struct(r); err != nil {
		return domain.CarbonQuery{}, validationError(err)
	}
	return domain.CarbonQuery{
		MerchantCategoryCode: r.MCC,
		Amount:               r.Amount,
		Description:          r.Description,
	}, nil
}

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.NewInvalidInput("Request body is empty", nil)
		case errors.As(err, &maxErr):
			return domain.NewInvalidInput(fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit), nil)
		default:
			return domain.NewInvalidInput("Malformed JSON body", map[string]any{"reason": err.Error()})
		}
	}
	if dec.More() {
		return domain.NewInvalidInput("Request body must contain a single JSON object", nil)
	}
	return nil
}
