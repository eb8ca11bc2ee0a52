package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes each event as one structured log record.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("decisions")}
}

func (s *LogSink) WriteBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Info("decision",
			zap.String("id", e.ID),
			zap.String("trace_id", e.TraceID),
			zap.String("kind", e.Kind),
			zap.String("agent_id", e.AgentID),
			zap.String("amount", e.Amount),
			zap.String("currency", e.Currency),
			zap.String("category", e.Category),
			zap.String("mcc", e.MCC),
			zap.String("outcome", e.Outcome),
			zap.String("reason_code", e.ReasonCode),
			zap.String("consent_id", e.ConsentID),
			zap.String("carbon_kg", e.CarbonKg),
			zap.Time("timestamp", e.Timestamp),
			zap.Int64("duration_us", e.DurationUs),
		)
	}
	return nil
}
