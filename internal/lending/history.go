package lending

import (
	"context"
	"errors"

	"asset-lending-api/internal/models"
)

// Viewer is the authenticated caller of a read operation
type Viewer struct {
	UserID int64
	Role   models.Role
}

// History records and lists borrow request status changes
type History struct {
	store Store
	settings
}

// NewHistory creates a History backed by store
func NewHistory(store Store, opts ...Option) *History {
	return &History{store: store, settings: newSettings(opts)}
}

// Record appends one status change inside tx
func (h *History) Record(ctx context.Context, tx Tx, requestID int64, from, to models.RequestStatus, actorID int64, note *string) error {
	if note != nil {
		n := *note
		note = &n
	}
	entry := models.HistoryEntry{
		RequestID: requestID,
		OldStatus: from,
		NewStatus: to,
		ChangedBy: actorID,
		Note:      note,
		CreatedAt: h.now(),
	}
	return tx.AppendHistory(ctx, &entry)
}

// ForRequest lists the status changes of one request, oldest first.
// Students may only read their own requests.
func (h *History) ForRequest(ctx context.Context, viewer Viewer, requestID int64) ([]models.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := h.store.GetRequest(ctx, requestID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, NotFoundError("request not found")
	}
	if err != nil {
		return nil, classify(err)
	}
	if viewer.Role == models.RoleStudent && req.RequesterID != viewer.UserID {
		return nil, NotFoundError("request not found")
	}

	entries, err := h.store.ListRequestHistory(ctx, requestID)
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// Borrowed lists borrow requests visible to viewer, newest borrow date first.
// Students see their own requests, lecturers the ones they decided, staff all.
func (h *History) Borrowed(ctx context.Context, viewer Viewer, filter HistoryFilter) ([]models.BorrowHistoryRow, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	filter.RequesterID = 0
	filter.DecidedBy = 0
	switch viewer.Role {
	case models.RoleStudent:
		filter.RequesterID = viewer.UserID
	case models.RoleLecturer:
		filter.DecidedBy = viewer.UserID
	case models.RoleStaff:
	default:
		return nil, ValidationError("unknown role %q", viewer.Role)
	}

	rows, err := h.store.ListBorrowHistory(ctx, filter)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}
