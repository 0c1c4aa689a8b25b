package lending

import (
	"context"
	"time"

	"asset-lending-api/internal/models"
)

// Action names a lending operation
type Action string

const (
	ActionAssetCreate  Action = "asset_create"
	ActionAssetUpdate  Action = "asset_update"
	ActionAssetDelete  Action = "asset_delete"
	ActionImageRelease Action = "image_release"
	ActionRequest      Action = "request"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionReturn       Action = "return"
	ActionOverdue      Action = "overdue"
)

// Outcome summarizes how an operation ended
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeRejected       Outcome = "rejected"
	OutcomeFailed         Outcome = "failed"
	OutcomePartialFailure Outcome = "partial_failure"
)

// OutcomeOf maps an operation error to its outcome
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict:
		return OutcomeRejected
	case KindPartialFailure:
		return OutcomePartialFailure
	default:
		return OutcomeFailed
	}
}

// Event describes one attempted operation
type Event struct {
	Action    Action
	Outcome   Outcome
	RequestID int64
	AssetID   int64
	ActorID   int64
	From      models.RequestStatus
	To        models.RequestStatus
	Err       error
	At        time.Time
}

// Observer receives an Event after every operation, successful or not.
// Implementations must not block.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f(ctx, e)
func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// Observers fans an event out to every member
type Observers []Observer

// Observe forwards e to each observer in order
func (o Observers) Observe(ctx context.Context, e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, e)
		}
	}
}

// NopObserver discards events
type NopObserver struct{}

// Observe does nothing
func (NopObserver) Observe(context.Context, Event) {}
