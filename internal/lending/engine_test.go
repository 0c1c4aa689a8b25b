package lending_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"
	"asset-lending-api/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_BorrowApproveReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Camera")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, created.Request.Status)
	assert.Equal(t, "2026-03-10", created.Request.BorrowDate.String())
	assert.Equal(t, "2026-03-11", created.Request.ReturnDate.String())
	assert.Equal(t, models.AssetPending, f.assetStatus(t, x.ID))

	approved, err := f.engine.Approve(ctx, created.Request.ID, f.lecturer.ID, strPtr("ok for lab"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Request.Status)
	require.NotNil(t, approved.Request.DecidedBy)
	assert.Equal(t, f.lecturer.ID, *approved.Request.DecidedBy)
	assert.Equal(t, models.AssetBorrowed, f.assetStatus(t, x.ID))

	f.clock.Advance(2 * time.Hour)
	returned, err := f.engine.Return(ctx, created.Request.ID, f.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, "Camera", returned.Asset.Name)
	assert.Equal(t, models.AssetAvailable, f.assetStatus(t, x.ID))
	assert.Equal(t, models.RequestReturned, f.requestStatus(t, created.Request.ID))

	req, err := f.store.GetRequest(ctx, created.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", req.ReturnDate.String())
	require.NotNil(t, req.ReturnedBy)
	assert.Equal(t, f.staff.ID, *req.ReturnedBy)

	entries, err := f.store.ListRequestHistory(ctx, created.Request.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	last := entries[2]
	assert.Equal(t, models.RequestApproved, last.OldStatus)
	assert.Equal(t, models.RequestReturned, last.NewStatus)
	assert.Equal(t, f.staff.ID, last.ChangedBy)
	require.NotNil(t, last.Note)
	assert.Equal(t, "Returned by staff", *last.Note)

	assert.Equal(t, lending.ActionReturn, f.events.last().Action)
	assert.Equal(t, lending.OutcomeOK, f.events.last().Outcome)
}

func TestEngine_RejectFreesAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Tripod")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)

	res, err := f.engine.Reject(ctx, created.Request.ID, f.lecturer.ID, strPtr("not this week"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, res.Request.Status)
	require.NotNil(t, res.Request.DecisionNote)
	assert.Equal(t, "not this week", *res.Request.DecisionNote)
	assert.Equal(t, models.AssetAvailable, f.assetStatus(t, x.ID))
	assert.Equal(t, models.RequestRejected, f.requestStatus(t, created.Request.ID))
}

func TestEngine_SecondRequestWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Laptop")
	y := f.asset(t, "Mouse")

	_, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, f.student.ID, y.ID)
	assert.ErrorIs(t, err, lending.ConflictError(lending.MsgActiveBorrow))
	assert.Equal(t, models.AssetAvailable, f.assetStatus(t, y.ID))

	rows, err := f.store.ListBorrowHistory(ctx, lending.HistoryFilter{RequesterID: f.student.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Equal(t, lending.OutcomeRejected, f.events.last().Outcome)
}

func TestEngine_ApproveTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Microphone")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, created.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, created.Request.ID, f.lecturer.ID, strPtr("again"))
	assert.ErrorIs(t, err, lending.ConflictError(lending.MsgRequestProcessed))
	assert.Equal(t, models.RequestApproved, f.requestStatus(t, created.Request.ID))
	assert.Equal(t, models.AssetBorrowed, f.assetStatus(t, x.ID))

	entries, err := f.store.ListRequestHistory(ctx, created.Request.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEngine_ApproveRejectedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Speaker")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, created.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, created.Request.ID, f.lecturer.ID, nil)
	assert.Equal(t, lending.KindConflict, lending.KindOf(err))
	assert.Equal(t, models.RequestRejected, f.requestStatus(t, created.Request.ID))
	assert.Equal(t, models.AssetAvailable, f.assetStatus(t, x.ID))
}

func TestEngine_TransitionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Drone")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)

	t.Run("return pending request", func(t *testing.T) {
		_, err := f.engine.Return(ctx, created.Request.ID, f.staff.ID)
		assert.Equal(t, lending.KindConflict, lending.KindOf(err))
		assert.Equal(t, models.AssetPending, f.assetStatus(t, x.ID))
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.engine.Approve(ctx, 9999, f.lecturer.ID, nil)
		assert.ErrorIs(t, err, lending.ConflictError(lending.MsgRequestProcessed))
	})

	t.Run("asset already pending", func(t *testing.T) {
		_, err := f.engine.Create(ctx, f.student2.ID, x.ID)
		assert.ErrorIs(t, err, lending.ConflictError(lending.MsgAssetUnavailable))
	})

	t.Run("missing asset", func(t *testing.T) {
		_, err := f.engine.Create(ctx, f.student2.ID, 9999)
		assert.Equal(t, lending.KindNotFound, lending.KindOf(err))
	})

	t.Run("unknown requester", func(t *testing.T) {
		_, err := f.engine.Create(ctx, 9999, x.ID)
		assert.ErrorIs(t, err, lending.NotFoundError(lending.MsgRequesterNotFound))
	})
}

func TestEngine_DisabledAssetUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x, err := f.registry.Create(ctx, lending.CreateAssetInput{Name: "Broken lens", Status: "disabled"})
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, f.student.ID, x.ID)
	assert.ErrorIs(t, err, lending.ConflictError(lending.MsgAssetUnavailable))
	assert.Equal(t, models.AssetDisabled, f.assetStatus(t, x.ID))
}

func TestEngine_SameDayReborrowBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Tablet")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, created.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)
	_, err = f.engine.Return(ctx, created.Request.ID, f.staff.ID)
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, f.student.ID, x.ID)
	assert.ErrorIs(t, err, lending.ConflictError(lending.MsgActiveBorrow))

	// Another student is not affected by alice's return.
	other, err := f.engine.Create(ctx, f.student2.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, other.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	again, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", again.Request.BorrowDate.String())
}

func TestEngine_RejectedTodayDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Kettle")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, created.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, f.student.ID, x.ID)
	assert.NoError(t, err)
}

func TestEngine_ConcurrentCreateSameAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Oscilloscope")

	const n = 12
	students := make([]models.User, n)
	for i := range students {
		students[i] = f.store.AddUser(models.User{Username: "student" + string(rune('a'+i)), Role: models.RoleStudent})
	}

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for _, s := range students {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.engine.Create(ctx, id, x.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case lending.KindOf(err) == lending.KindConflict:
				conflicts.Add(1)
			}
		}(s.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
	assert.Equal(t, models.AssetPending, f.assetStatus(t, x.ID))
}

func TestEngine_ConcurrentCreateSameStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	assets := make([]models.Asset, n)
	for i := range assets {
		assets[i] = f.asset(t, "Board")
	}

	var wg sync.WaitGroup
	var ok atomic.Int32
	for _, a := range assets {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := f.engine.Create(ctx, f.student.ID, id); err == nil {
				ok.Add(1)
			}
		}(a.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	pending := 0
	for _, a := range assets {
		if f.assetStatus(t, a.ID) == models.AssetPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)
}

func TestEngine_DetachedFromCallerCancellation(t *testing.T) {
	f := newFixture(t)
	x := f.asset(t, "Projector")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetPending, f.assetStatus(t, x.ID))
}

// failingTx fails history appends after the other writes have been made.
type failingTx struct {
	lending.Tx
}

func (failingTx) AppendHistory(context.Context, *models.HistoryEntry) error {
	return errors.New("disk full")
}

type failingStore struct {
	*memory.Store
	rollbackErr error
}

func (s failingStore) WithinTx(ctx context.Context, fn func(lending.Tx) error) error {
	err := s.Store.WithinTx(ctx, func(tx lending.Tx) error {
		return fn(failingTx{tx})
	})
	if err != nil && s.rollbackErr != nil {
		return &lending.RollbackError{Err: err, RollbackErr: s.rollbackErr}
	}
	return err
}

func TestEngine_FailedWriteLeavesNoTrace(t *testing.T) {
	mem := memory.New()
	f := newFixtureWithStore(t, mem, failingStore{Store: mem})
	ctx := context.Background()

	var asset models.Asset
	require.NoError(t, mem.WithinTx(ctx, func(tx lending.Tx) error {
		asset = models.Asset{Code: "AS-001", Name: "Printer", Status: models.AssetAvailable}
		return tx.InsertAsset(ctx, &asset)
	}))

	_, err := f.engine.Create(ctx, f.student.ID, asset.ID)
	assert.Equal(t, lending.KindStorage, lending.KindOf(err))
	assert.Equal(t, "storage error", lending.PublicMessage(err))
	assert.Equal(t, models.AssetAvailable, f.assetStatus(t, asset.ID))

	rows, err := mem.ListBorrowHistory(ctx, lending.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, lending.OutcomeFailed, f.events.last().Outcome)
}

func TestEngine_RollbackFailureIsPartial(t *testing.T) {
	mem := memory.New()
	f := newFixtureWithStore(t, mem, failingStore{Store: mem, rollbackErr: errors.New("connection reset")})
	ctx := context.Background()

	var asset models.Asset
	require.NoError(t, mem.WithinTx(ctx, func(tx lending.Tx) error {
		asset = models.Asset{Code: "AS-001", Name: "Printer", Status: models.AssetAvailable}
		return tx.InsertAsset(ctx, &asset)
	}))

	_, err := f.engine.Create(ctx, f.student.ID, asset.ID)
	assert.Equal(t, lending.KindPartialFailure, lending.KindOf(err))

	ev := f.events.last()
	assert.Equal(t, lending.ActionRequest, ev.Action)
	assert.Equal(t, lending.OutcomePartialFailure, ev.Outcome)
	assert.Error(t, ev.Err)
}

type stallingStore struct {
	*memory.Store
}

func (stallingStore) WithinTx(ctx context.Context, _ func(lending.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestEngine_StorageTimeout(t *testing.T) {
	mem := memory.New()
	st := stallingStore{Store: mem}
	u := mem.AddUser(models.User{Username: "alice", Role: models.RoleStudent})
	engine := lending.NewEngine(st, lending.WithTimeout(20*time.Millisecond))

	_, err := engine.Create(context.Background(), u.ID, 1)
	assert.Equal(t, lending.KindTimeout, lending.KindOf(err))
	assert.Equal(t, "storage timed out", lending.PublicMessage(err))
}

func TestEngine_Overdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Projector")
	y := f.asset(t, "Tripod")

	late, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, late.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)

	pending, err := f.engine.Create(ctx, f.student2.ID, y.ID)
	require.NoError(t, err)

	// Due tomorrow: not overdue yet, nor on the due date itself.
	reqs, err := f.engine.Overdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	f.clock.Advance(24 * time.Hour)
	reqs, err = f.engine.Overdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	f.clock.Advance(24 * time.Hour)
	reqs, err = f.engine.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, late.Request.ID, reqs[0].ID)

	e := f.events.last()
	assert.Equal(t, lending.ActionOverdue, e.Action)
	assert.Equal(t, lending.OutcomeOK, e.Outcome)
	assert.Equal(t, late.Request.ID, e.RequestID)

	// Read only.
	assert.Equal(t, models.RequestApproved, f.requestStatus(t, late.Request.ID))
	assert.Equal(t, models.RequestPending, f.requestStatus(t, pending.Request.ID))
}
