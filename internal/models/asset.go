package models

import (
	"strings"
	"time"
)

// AssetStatus is the stored lifecycle state of an asset
type AssetStatus string

const (
	AssetAvailable AssetStatus = "available"
	AssetPending   AssetStatus = "pending"
	AssetBorrowed  AssetStatus = "borrowed"
	AssetDisabled  AssetStatus = "disabled"
)

// ValidAssetStatuses lists every status an asset may hold
var ValidAssetStatuses = []AssetStatus{
	AssetAvailable,
	AssetPending,
	AssetBorrowed,
	AssetDisabled,
}

// ParseAssetStatus normalizes s and reports whether it names a known status
func ParseAssetStatus(s string) (AssetStatus, bool) {
	status := AssetStatus(strings.ToLower(strings.TrimSpace(s)))
	return status, status.Valid()
}

// Valid checks if the status is one of the known asset statuses
func (s AssetStatus) Valid() bool {
	for _, v := range ValidAssetStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// WorkflowOwned reports whether the status is only ever set by the borrow workflow.
func (s AssetStatus) WorkflowOwned() bool {
	return s == AssetPending || s == AssetBorrowed
}

// Asset represents a lendable item
type Asset struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Description *string     `json:"description,omitempty"`
	ImageURL    *string     `json:"image_url,omitempty"`
	Status      AssetStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AssetView is an asset as presented to a particular viewer. Status is the
// display status, which folds in the latest borrow request.
type AssetView struct {
	ID          int64   `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Status      string  `json:"status"`
	RequestID   *int64  `json:"request_id,omitempty"`
	RequesterID *int64  `json:"requester_id,omitempty"`
	StudentName *string `json:"student_name,omitempty"`
	BorrowDate  *Date   `json:"borrow_date,omitempty"`
	ReturnDate  *Date   `json:"return_date,omitempty"`
}

// StatusSummary holds asset counts per stored status
type StatusSummary struct {
	Available int `json:"available"`
	Pending   int `json:"pending"`
	Borrowed  int `json:"borrowed"`
	Disabled  int `json:"disabled"`
}

// Add increments the counter for status by n
func (s *StatusSummary) Add(status AssetStatus, n int) {
	switch status {
	case AssetAvailable:
		s.Available += n
	case AssetPending:
		s.Pending += n
	case AssetBorrowed:
		s.Borrowed += n
	case AssetDisabled:
		s.Disabled += n
	}
}

// CreateAssetRequest represents the request body for creating a new asset
type CreateAssetRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,max=1024"`
}

// UpdateAssetRequest represents the request body for updating an asset
type UpdateAssetRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,max=1024"`
}
