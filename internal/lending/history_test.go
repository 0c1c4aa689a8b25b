package lending_test

import (
	"context"
	"testing"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RecordsEveryTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Camera")

	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, created.Request.ID, f.lecturer.ID, strPtr("approved for thesis"))
	require.NoError(t, err)
	_, err = f.engine.Return(ctx, created.Request.ID, f.staff.ID)
	require.NoError(t, err)

	entries, err := f.history.ForRequest(ctx, lending.Viewer{UserID: f.student.ID, Role: models.RoleStudent}, created.Request.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, models.RequestStatus(""), entries[0].OldStatus)
	assert.Equal(t, models.RequestPending, entries[0].NewStatus)
	assert.Equal(t, f.student.ID, entries[0].ChangedBy)
	assert.Equal(t, "Borrow requested", *entries[0].Note)

	assert.Equal(t, models.RequestPending, entries[1].OldStatus)
	assert.Equal(t, models.RequestApproved, entries[1].NewStatus)
	assert.Equal(t, f.lecturer.ID, entries[1].ChangedBy)
	assert.Equal(t, "approved for thesis", *entries[1].Note)

	assert.Equal(t, models.RequestApproved, entries[2].OldStatus)
	assert.Equal(t, models.RequestReturned, entries[2].NewStatus)
}

func TestHistory_ForRequestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.asset(t, "Camera")
	created, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)

	_, err = f.history.ForRequest(ctx, lending.Viewer{UserID: f.student2.ID, Role: models.RoleStudent}, created.Request.ID)
	assert.Equal(t, lending.KindNotFound, lending.KindOf(err))

	entries, err := f.history.ForRequest(ctx, lending.Viewer{UserID: f.lecturer.ID, Role: models.RoleLecturer}, created.Request.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.history.ForRequest(ctx, lending.Viewer{UserID: f.staff.ID, Role: models.RoleStaff}, 4242)
	assert.Equal(t, lending.KindNotFound, lending.KindOf(err))
}

func TestHistory_BorrowedPerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherLecturer := f.store.AddUser(models.User{Username: "lena", Role: models.RoleLecturer})

	x := f.asset(t, "X")
	y := f.asset(t, "Y")
	r1, err := f.engine.Create(ctx, f.student.ID, x.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, r1.Request.ID, f.lecturer.ID, nil)
	require.NoError(t, err)
	r2, err := f.engine.Create(ctx, f.student2.ID, y.ID)
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, r2.Request.ID, otherLecturer.ID, strPtr("no"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		viewer lending.Viewer
		want   []int64
	}{
		{"student sees own", lending.Viewer{UserID: f.student.ID, Role: models.RoleStudent}, []int64{r1.Request.ID}},
		{"lecturer sees decided", lending.Viewer{UserID: otherLecturer.ID, Role: models.RoleLecturer}, []int64{r2.Request.ID}},
		{"staff sees all", lending.Viewer{UserID: f.staff.ID, Role: models.RoleStaff}, []int64{r2.Request.ID, r1.Request.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := f.history.Borrowed(ctx, tt.viewer, lending.HistoryFilter{})
			require.NoError(t, err)
			var ids []int64
			for _, r := range rows {
				ids = append(ids, r.RequestID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	rows, err := f.history.Borrowed(ctx, lending.Viewer{UserID: f.staff.ID, Role: models.RoleStaff}, lending.HistoryFilter{})
	require.NoError(t, err)
	require.NotNil(t, rows[0].ApprovedBy)
	assert.Equal(t, "lena", *rows[0].ApprovedBy)
	assert.Equal(t, "no", *rows[0].DecisionNote)

	_, err = f.history.Borrowed(ctx, lending.Viewer{UserID: 1, Role: "GUEST"}, lending.HistoryFilter{})
	assert.Equal(t, lending.KindValidation, lending.KindOf(err))
}
