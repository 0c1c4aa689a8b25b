package memory

import (
	"context"
	"errors"
	"testing"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAsset(t *testing.T, s *Store, code string, status models.AssetStatus) models.Asset {
	t.Helper()
	a := models.Asset{Code: code, Name: "Projector " + code, Status: status}
	err := s.WithinTx(context.Background(), func(tx lending.Tx) error {
		return tx.InsertAsset(context.Background(), &a)
	})
	require.NoError(t, err)
	return a
}

func TestWithinTx_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	asset := seedAsset(t, s, "AS-001", models.AssetAvailable)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx lending.Tx) error {
		ok, err := tx.SetAssetStatus(ctx, asset.ID, []models.AssetStatus{models.AssetAvailable}, models.AssetPending)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetAvailable, got.Status)
}

func TestWithinTx_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(lending.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSetAssetStatus_Conditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	asset := seedAsset(t, s, "AS-001", models.AssetBorrowed)

	err := s.WithinTx(ctx, func(tx lending.Tx) error {
		ok, err := tx.SetAssetStatus(ctx, asset.ID, []models.AssetStatus{models.AssetAvailable}, models.AssetPending)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.SetAssetStatus(ctx, asset.ID, nil, models.AssetAvailable)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetAvailable, got.Status)
}

func TestLastAssetCode_SkipsMalformed(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAsset(t, s, "AS-007", models.AssetAvailable)
	seedAsset(t, s, "legacy-42", models.AssetAvailable)

	err := s.WithinTx(ctx, func(tx lending.Tx) error {
		code, err := tx.LastAssetCode(ctx)
		require.NoError(t, err)
		assert.Equal(t, "AS-007", code)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertRequest_ActiveUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := s.AddUser(models.User{Username: "alice", Role: models.RoleStudent})
	bob := s.AddUser(models.User{Username: "bob", Role: models.RoleStudent})
	a1 := seedAsset(t, s, "AS-001", models.AssetAvailable)
	a2 := seedAsset(t, s, "AS-002", models.AssetAvailable)

	today := models.DateOf(s.now())
	insert := func(requester, asset int64) error {
		return s.WithinTx(ctx, func(tx lending.Tx) error {
			req := models.BorrowRequest{RequesterID: requester, AssetID: asset, BorrowDate: today, ReturnDate: today.AddDays(1), Status: models.RequestPending}
			return tx.InsertRequest(ctx, &req)
		})
	}

	require.NoError(t, insert(alice.ID, a1.ID))
	assert.ErrorIs(t, insert(bob.ID, a1.ID), lending.ConflictError(lending.MsgAssetUnavailable))
	assert.ErrorIs(t, insert(alice.ID, a2.ID), lending.ConflictError(lending.MsgActiveBorrow))
	require.NoError(t, insert(bob.ID, a2.ID))
}

func TestListBorrowHistory_OrderAndFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := s.AddUser(models.User{Username: "alice", Role: models.RoleStudent})
	bob := s.AddUser(models.User{Username: "bob", Role: models.RoleStudent})
	asset := seedAsset(t, s, "AS-001", models.AssetAvailable)

	d1, _ := models.ParseDate("2026-03-01")
	d2, _ := models.ParseDate("2026-03-02")
	err := s.WithinTx(ctx, func(tx lending.Tx) error {
		for _, r := range []models.BorrowRequest{
			{RequesterID: alice.ID, AssetID: asset.ID, BorrowDate: d1, ReturnDate: d2, Status: models.RequestReturned},
			{RequesterID: bob.ID, AssetID: asset.ID, BorrowDate: d2, ReturnDate: d2, Status: models.RequestRejected},
			{RequesterID: alice.ID, AssetID: asset.ID, BorrowDate: d2, ReturnDate: d2, Status: models.RequestRejected},
		} {
			r := r
			if err := tx.InsertRequest(ctx, &r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	rows, err := s.ListBorrowHistory(ctx, lending.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{rows[0].RequestID, rows[1].RequestID, rows[2].RequestID})
	require.NotNil(t, rows[1].RequesterName)
	assert.Equal(t, "bob", *rows[1].RequesterName)
	assert.Equal(t, "Projector AS-001", rows[0].AssetName)

	rows, err = s.ListBorrowHistory(ctx, lending.HistoryFilter{RequesterID: alice.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].RequestID)

	rows, err = s.ListBorrowHistory(ctx, lending.HistoryFilter{RequesterID: alice.ID, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAppendHistory_RequiresRequest(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.WithinTx(ctx, func(tx lending.Tx) error {
		return tx.AppendHistory(ctx, &models.HistoryEntry{RequestID: 99, NewStatus: models.RequestPending})
	})
	assert.Equal(t, lending.KindNotFound, lending.KindOf(err))
}

func TestFindUserByUsername(t *testing.T) {
	s := New()
	s.AddUser(models.User{Username: "Carol", Role: models.RoleStaff})

	u, err := s.FindUserByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, u.Role)

	_, err = s.FindUserByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, lending.ErrRecordNotFound)
}
