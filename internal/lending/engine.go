package lending

import (
	"context"
	"errors"

	"asset-lending-api/internal/models"
)

// History notes written by the engine
var (
	noteRequested = "Borrow requested"
	noteReturned  = "Returned by staff"
)

// Result carries the request and asset as left by a successful transition
type Result struct {
	Request models.BorrowRequest
	Asset   models.Asset
}

// Engine applies borrow request transitions. Every transition changes the
// request, the asset and the history together inside one unit of work.
type Engine struct {
	store   Store
	history *History
	settings
}

// NewEngine creates an Engine backed by store
func NewEngine(store Store, opts ...Option) *Engine {
	s := newSettings(opts)
	return &Engine{
		store:    store,
		history:  &History{store: store, settings: s},
		settings: s,
	}
}

// Create opens a pending request for requesterID on assetID.
func (e *Engine) Create(ctx context.Context, requesterID, assetID int64) (Result, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	today := e.today()
	var res Result
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.LockRequester(ctx, requesterID); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return NotFoundError(MsgRequesterNotFound)
			}
			return err
		}
		blocking, err := tx.CountBlockingRequests(ctx, requesterID, today)
		if err != nil {
			return err
		}
		if blocking > 0 {
			return ConflictError(MsgActiveBorrow)
		}

		asset, err := tx.GetAsset(ctx, assetID, true)
		if errors.Is(err, ErrRecordNotFound) {
			return NotFoundError(MsgAssetNotFound)
		}
		if err != nil {
			return err
		}
		if asset.Status != models.AssetAvailable {
			return ConflictError(MsgAssetUnavailable)
		}
		claimed, err := tx.SetAssetStatus(ctx, assetID, []models.AssetStatus{models.AssetAvailable}, models.AssetPending)
		if err != nil {
			return err
		}
		if !claimed {
			return ConflictError(MsgAssetUnavailable)
		}
		asset.Status = models.AssetPending

		req := models.BorrowRequest{
			RequesterID: requesterID,
			AssetID:     assetID,
			BorrowDate:  today,
			ReturnDate:  today.AddDays(LoanDays),
			Status:      models.RequestPending,
			CreatedAt:   e.now(),
		}
		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		if err := e.history.Record(ctx, tx, req.ID, "", models.RequestPending, requesterID, &noteRequested); err != nil {
			return err
		}
		res = Result{Request: req, Asset: asset}
		return nil
	})
	err = classify(err)
	e.emit(ctx, Event{
		Action:    ActionRequest,
		RequestID: res.Request.ID,
		AssetID:   assetID,
		ActorID:   requesterID,
		To:        models.RequestPending,
	}, err)
	return res, err
}

// Approve moves a pending request to approved and marks the asset borrowed.
func (e *Engine) Approve(ctx context.Context, requestID, reviewerID int64, note *string) (Result, error) {
	return e.decide(ctx, ActionApprove, requestID, reviewerID, note, models.RequestApproved, models.AssetBorrowed)
}

// Reject moves a pending request to rejected and frees the asset.
func (e *Engine) Reject(ctx context.Context, requestID, reviewerID int64, note *string) (Result, error) {
	return e.decide(ctx, ActionReject, requestID, reviewerID, note, models.RequestRejected, models.AssetAvailable)
}

func (e *Engine) decide(ctx context.Context, action Action, requestID, reviewerID int64, note *string, to models.RequestStatus, assetTo models.AssetStatus) (Result, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	now := e.now()
	t := Transition{
		RequestID:    requestID,
		From:         models.RequestPending,
		To:           to,
		DecidedBy:    &reviewerID,
		DecidedAt:    &now,
		DecisionNote: note,
	}
	res, err := e.transition(ctx, t, assetTo, reviewerID, note)
	e.emit(ctx, Event{
		Action:    action,
		RequestID: requestID,
		AssetID:   res.Asset.ID,
		ActorID:   reviewerID,
		From:      models.RequestPending,
		To:        to,
	}, err)
	return res, err
}

// Return closes an approved request, stamps today's return date and frees the asset.
func (e *Engine) Return(ctx context.Context, requestID, custodianID int64) (Result, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	now := e.now()
	today := e.today()
	t := Transition{
		RequestID:  requestID,
		From:       models.RequestApproved,
		To:         models.RequestReturned,
		ReturnedBy: &custodianID,
		ReturnedAt: &now,
		ReturnDate: &today,
	}
	res, err := e.transition(ctx, t, models.AssetAvailable, custodianID, &noteReturned)
	e.emit(ctx, Event{
		Action:    ActionReturn,
		RequestID: requestID,
		AssetID:   res.Asset.ID,
		ActorID:   custodianID,
		From:      models.RequestApproved,
		To:        models.RequestReturned,
	}, err)
	return res, err
}

func (e *Engine) transition(ctx context.Context, t Transition, assetTo models.AssetStatus, actorID int64, note *string) (Result, error) {
	var res Result
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		req, err := tx.GetRequest(ctx, t.RequestID, true)
		if errors.Is(err, ErrRecordNotFound) {
			return ConflictError(MsgRequestProcessed)
		}
		if err != nil {
			return err
		}
		if req.Status != t.From {
			return ConflictError(MsgRequestProcessed)
		}
		ok, err := tx.TransitionRequest(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			return ConflictError(MsgRequestProcessed)
		}

		asset, err := tx.GetAsset(ctx, req.AssetID, true)
		if err != nil {
			return err
		}
		if _, err := tx.SetAssetStatus(ctx, req.AssetID, nil, assetTo); err != nil {
			return err
		}
		asset.Status = assetTo

		if err := e.history.Record(ctx, tx, req.ID, t.From, t.To, actorID, note); err != nil {
			return err
		}

		applyTransition(&req, t)
		res = Result{Request: req, Asset: asset}
		return nil
	})
	return res, classify(err)
}

func applyTransition(req *models.BorrowRequest, t Transition) {
	req.Status = t.To
	if t.DecidedBy != nil {
		req.DecidedBy = t.DecidedBy
	}
	if t.DecidedAt != nil {
		req.DecidedAt = t.DecidedAt
	}
	if t.DecisionNote != nil {
		req.DecisionNote = t.DecisionNote
	}
	if t.ReturnedBy != nil {
		req.ReturnedBy = t.ReturnedBy
	}
	if t.ReturnedAt != nil {
		req.ReturnedAt = t.ReturnedAt
	}
	if t.ReturnDate != nil {
		req.ReturnDate = *t.ReturnDate
	}
}

// Overdue lists approved requests whose return date has passed and emits
// one overdue event per request. It never changes state.
func (e *Engine) Overdue(ctx context.Context) ([]models.BorrowRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reqs, err := e.store.ListOverdue(ctx, e.today())
	if err != nil {
		return nil, classify(err)
	}
	for _, req := range reqs {
		e.emit(ctx, Event{
			Action:    ActionOverdue,
			RequestID: req.ID,
			AssetID:   req.AssetID,
			ActorID:   req.RequesterID,
			From:      req.Status,
			To:        req.Status,
		}, nil)
	}
	return reqs, nil
}
