package postgres

import (
	"time"

	"asset-lending-api/internal/models"
)

// Row types mirror table columns for goqu struct scanning.

type assetRow struct {
	ID          int64     `db:"id"`
	Code        string    `db:"code"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	ImageURL    *string   `db:"image_url"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r assetRow) model() models.Asset {
	return models.Asset{
		ID:          r.ID,
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Status:      models.AssetStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type requestRow struct {
	ID           int64      `db:"id"`
	RequesterID  int64      `db:"requester_id"`
	AssetID      int64      `db:"asset_id"`
	BorrowDate   time.Time  `db:"borrow_date"`
	ReturnDate   time.Time  `db:"return_date"`
	Status       string     `db:"status"`
	DecidedBy    *int64     `db:"decided_by"`
	DecidedAt    *time.Time `db:"decided_at"`
	DecisionNote *string    `db:"decision_note"`
	GotBackBy    *int64     `db:"got_back_by"`
	ReturnedAt   *time.Time `db:"returned_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (r requestRow) model() models.BorrowRequest {
	return models.BorrowRequest{
		ID:           r.ID,
		RequesterID:  r.RequesterID,
		AssetID:      r.AssetID,
		BorrowDate:   models.DateOf(r.BorrowDate),
		ReturnDate:   models.DateOf(r.ReturnDate),
		Status:       models.RequestStatus(r.Status),
		DecidedBy:    r.DecidedBy,
		DecidedAt:    r.DecidedAt,
		DecisionNote: r.DecisionNote,
		ReturnedBy:   r.GotBackBy,
		ReturnedAt:   r.ReturnedAt,
		CreatedAt:    r.CreatedAt,
	}
}

type historyRow struct {
	ID          int64     `db:"id"`
	RequestID   int64     `db:"request_id"`
	OldStatus   *string   `db:"old_status"`
	NewStatus   string    `db:"new_status"`
	ChangedByID int64     `db:"changed_by_id"`
	Note        *string   `db:"note"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r historyRow) model() models.HistoryEntry {
	e := models.HistoryEntry{
		ID:        r.ID,
		RequestID: r.RequestID,
		NewStatus: models.RequestStatus(r.NewStatus),
		ChangedBy: r.ChangedByID,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
	}
	if r.OldStatus != nil {
		e.OldStatus = models.RequestStatus(*r.OldStatus)
	}
	return e
}

type borrowHistoryRow struct {
	RequestID     int64     `db:"request_id"`
	AssetID       int64     `db:"asset_id"`
	AssetName     string    `db:"asset_name"`
	Status        string    `db:"status"`
	BorrowDate    time.Time `db:"borrow_date"`
	ReturnDate    time.Time `db:"return_date"`
	RequesterName *string   `db:"requester_name"`
	ApprovedBy    *string   `db:"approved_by"`
	GotBackBy     *string   `db:"got_back_by"`
	DecisionNote  *string   `db:"decision_note"`
}

func (r borrowHistoryRow) model() models.BorrowHistoryRow {
	return models.BorrowHistoryRow{
		RequestID:     r.RequestID,
		AssetID:       r.AssetID,
		AssetName:     r.AssetName,
		Status:        models.RequestStatus(r.Status),
		BorrowDate:    models.DateOf(r.BorrowDate),
		ReturnDate:    models.DateOf(r.ReturnDate),
		RequesterName: r.RequesterName,
		ApprovedBy:    r.ApprovedBy,
		GotBackBy:     r.GotBackBy,
		DecisionNote:  r.DecisionNote,
	}
}

type userRow struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	FullName     *string   `db:"full_name"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) model() models.User {
	return models.User{
		ID:           r.ID,
		Username:     r.Username,
		FullName:     r.FullName,
		PasswordHash: r.PasswordHash,
		Role:         models.Role(r.Role),
		CreatedAt:    r.CreatedAt,
	}
}

func nullable[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func activeStatuses() []string {
	return []string{string(models.RequestPending), string(models.RequestApproved)}
}
