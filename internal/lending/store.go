package lending

import (
	"context"
	"time"

	"asset-lending-api/internal/models"
)

// Store is the persistence boundary of the lending core. Every multi-step
// mutation runs inside WithinTx, which commits when fn returns nil and rolls
// back otherwise. A rollback that itself fails is reported as *RollbackError.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetAsset(ctx context.Context, id int64) (models.Asset, error)
	ListAssetsWithLatest(ctx context.Context) ([]AssetWithLatest, error)
	CountAssetsByStatus(ctx context.Context) (models.StatusSummary, error)

	GetRequest(ctx context.Context, id int64) (models.BorrowRequest, error)
	ListBorrowHistory(ctx context.Context, filter HistoryFilter) ([]models.BorrowHistoryRow, error)
	ListRequestHistory(ctx context.Context, requestID int64) ([]models.HistoryEntry, error)
	ListOverdue(ctx context.Context, today models.Date) ([]models.BorrowRequest, error)
}

// Tx is the set of operations available inside a unit of work.
// Read methods with forUpdate set lock the row until the unit ends.
type Tx interface {
	// LockAssetCodes serializes code assignment across concurrent creates.
	LockAssetCodes(ctx context.Context) error
	// LastAssetCode returns the most recently assigned well-formed code, or "".
	LastAssetCode(ctx context.Context) (string, error)
	InsertAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, id int64, forUpdate bool) (models.Asset, error)
	UpdateAsset(ctx context.Context, asset *models.Asset) error
	DeleteAsset(ctx context.Context, id int64) error
	// SetAssetStatus moves the asset to status when its current status is in
	// from. An empty from matches any status. It reports whether a row changed.
	SetAssetStatus(ctx context.Context, id int64, from []models.AssetStatus, to models.AssetStatus) (bool, error)
	CountRequestsForAsset(ctx context.Context, assetID int64, activeOnly bool) (int, error)

	// LockRequester serializes request creation per requester.
	LockRequester(ctx context.Context, userID int64) error
	// CountBlockingRequests counts the requester's active requests plus any
	// request returned on today.
	CountBlockingRequests(ctx context.Context, requesterID int64, today models.Date) (int, error)
	InsertRequest(ctx context.Context, req *models.BorrowRequest) error
	GetRequest(ctx context.Context, id int64, forUpdate bool) (models.BorrowRequest, error)
	// TransitionRequest applies t when the request is still in t.From.
	TransitionRequest(ctx context.Context, t Transition) (bool, error)

	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
}

// Transition describes a conditional status change of a borrow request.
// Nil fields are left untouched.
type Transition struct {
	RequestID    int64
	From         models.RequestStatus
	To           models.RequestStatus
	DecidedBy    *int64
	DecidedAt    *time.Time
	DecisionNote *string
	ReturnedBy   *int64
	ReturnedAt   *time.Time
	ReturnDate   *models.Date
}

// AssetWithLatest pairs an asset with its most recent borrow request, if any.
type AssetWithLatest struct {
	Asset         models.Asset
	Latest        *models.BorrowRequest
	RequesterName *string
}

// HistoryFilter narrows ListBorrowHistory. Zero values match everything.
type HistoryFilter struct {
	RequesterID int64
	DecidedBy   int64
	Status      models.RequestStatus
	Limit       int
	Offset      int
}
