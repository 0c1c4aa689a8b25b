package models

import (
	"time"
)

// RequestStatus is the lifecycle state of a borrow request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestReturned RequestStatus = "returned"
)

// Valid reports whether s is a known request status
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestReturned:
		return true
	}
	return false
}

// Active reports whether the request still holds its asset
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestApproved
}

// Display maps the request status to the status shown on an asset.
// An approved request means the asset is out on loan.
func (s RequestStatus) Display() string {
	if s == RequestApproved {
		return string(AssetBorrowed)
	}
	return string(s)
}

// BorrowRequest represents a student's request to borrow one asset
type BorrowRequest struct {
	ID           int64         `json:"id"`
	RequesterID  int64         `json:"requester_id"`
	AssetID      int64         `json:"asset_id"`
	BorrowDate   Date          `json:"borrow_date"`
	ReturnDate   Date          `json:"return_date"`
	Status       RequestStatus `json:"status"`
	DecidedBy    *int64        `json:"decided_by,omitempty"`
	DecidedAt    *time.Time    `json:"decided_at,omitempty"`
	DecisionNote *string       `json:"decision_note,omitempty"`
	ReturnedBy   *int64        `json:"got_back_by,omitempty"`
	ReturnedAt   *time.Time    `json:"returned_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HistoryEntry is one recorded status change of a borrow request.
// OldStatus is empty for the entry that records creation.
type HistoryEntry struct {
	ID        int64         `json:"id"`
	RequestID int64         `json:"request_id"`
	OldStatus RequestStatus `json:"old_status,omitempty"`
	NewStatus RequestStatus `json:"new_status"`
	ChangedBy int64         `json:"changed_by_id"`
	Note      *string       `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// BorrowHistoryRow is a borrow request joined with the names of the people involved
type BorrowHistoryRow struct {
	RequestID     int64         `json:"request_id"`
	AssetID       int64         `json:"asset_id"`
	AssetName     string        `json:"asset_name"`
	Status        RequestStatus `json:"status"`
	BorrowDate    Date          `json:"borrow_date"`
	ReturnDate    Date          `json:"return_date"`
	RequesterName *string       `json:"requester_name,omitempty"`
	ApprovedBy    *string       `json:"approved_by,omitempty"`
	GotBackBy     *string       `json:"got_back_by,omitempty"`
	DecisionNote  *string       `json:"decision_note,omitempty"`
}

// CreateBorrowRequest represents the request body for POST /borrow
type CreateBorrowRequest struct {
	AssetID int64 `json:"asset_id" validate:"required,gt=0"`
}

// DecisionRequest represents the request body for approve and reject
type DecisionRequest struct {
	Note *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}
