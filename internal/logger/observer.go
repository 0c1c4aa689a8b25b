package logger

import (
	"context"

	"asset-lending-api/internal/lending"

	"go.uber.org/zap"
)

type requestIDKey struct{}

// WithRequestID stores the correlation id logged with every event
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id stored in ctx, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Observer logs lending events
type Observer struct {
	log *zap.Logger
}

var _ lending.Observer = (*Observer)(nil)

// NewObserver returns an Observer writing to log
func NewObserver(log *zap.Logger) *Observer {
	return &Observer{log: log.Named("lending")}
}

// Observe logs e at a level matching its outcome. Partial failures are
// flagged for manual reconciliation.
func (o *Observer) Observe(ctx context.Context, e lending.Event) {
	fields := []zap.Field{
		zap.String("action", string(e.Action)),
		zap.String("outcome", string(e.Outcome)),
		zap.Int64("actor_id", e.ActorID),
		zap.Time("at", e.At),
	}
	if e.RequestID != 0 {
		fields = append(fields, zap.Int64("request_id", e.RequestID))
	}
	if e.AssetID != 0 {
		fields = append(fields, zap.Int64("asset_id", e.AssetID))
	}
	if e.From != "" {
		fields = append(fields, zap.String("from", string(e.From)))
	}
	if e.To != "" {
		fields = append(fields, zap.String("to", string(e.To)))
	}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err), zap.String("kind", lending.KindOf(e.Err).String()))
	}

	switch e.Outcome {
	case lending.OutcomeOK:
		o.log.Info("lending event", fields...)
	case lending.OutcomeRejected:
		o.log.Warn("lending event rejected", fields...)
	case lending.OutcomePartialFailure:
		fields = append(fields, zap.Bool("reconciliation_required", true))
		o.log.Error("lending event left partial state", fields...)
	default:
		o.log.Error("lending event failed", fields...)
	}
}
