// Package respond renders JSON bodies and the gateway error envelope.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/openfinance-gateway/internal/domain"
	"go.uber.org/zap"
)

// ErrorBody is the error envelope: {"error": {"code", "message", "details"}}.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// Envelope converts err into its status code and wire body.
func Envelope(err error) (int, ErrorBody) {
	apiErr := domain.AsAPIError(err)
	return apiErr.Status, ErrorBody{Error: ErrorPayload{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}}
}

// Error writes the envelope for err. Anything that is not an APIError or a denial becomes INTERNAL_ERROR.
func Error(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, body := Envelope(err)
	if werr := JSON(w, status, body); werr != nil && logger != nil {
		logger.Error("failed to write error response", zap.Error(werr), zap.String("code", string(body.Error.Code)))
	}
}
