// Package memory provides an in-memory transactional lending store. Units of
// work run against a clone of the state which replaces the live state only
// when the unit succeeds, so a failed unit leaves no trace.
package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"
)

var wellFormedCode = regexp.MustCompile(`^AS-[0-9]+$`)

type state struct {
	users    map[int64]models.User
	assets   map[int64]models.Asset
	requests map[int64]models.BorrowRequest
	history  []models.HistoryEntry

	lastUserID    int64
	lastAssetID   int64
	lastRequestID int64
	lastHistoryID int64
}

func newState() *state {
	return &state{
		users:    map[int64]models.User{},
		assets:   map[int64]models.Asset{},
		requests: map[int64]models.BorrowRequest{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[int64]models.User, len(s.users)),
		assets:        make(map[int64]models.Asset, len(s.assets)),
		requests:      make(map[int64]models.BorrowRequest, len(s.requests)),
		history:       make([]models.HistoryEntry, len(s.history)),
		lastUserID:    s.lastUserID,
		lastAssetID:   s.lastAssetID,
		lastRequestID: s.lastRequestID,
		lastHistoryID: s.lastHistoryID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	copy(c.history, s.history)
	return c
}

// Store is a lending.Store held in process memory
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ lending.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// WithinTx runs fn against a private copy of the state and publishes the copy
// when fn succeeds. Units are fully serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(tx lending.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// AddUser stores u with the next id and returns it
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.lastUserID++
	u.ID = s.state.lastUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.state.users[u.ID] = u
	return u
}

// FindUserByUsername looks a user up by username
func (s *Store) FindUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.state.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, lending.ErrRecordNotFound
}

// GetAsset returns one asset
func (s *Store) GetAsset(_ context.Context, id int64) (models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.assets[id]
	if !ok {
		return models.Asset{}, lending.ErrRecordNotFound
	}
	return a, nil
}

// ListAssetsWithLatest returns every asset with its highest-id request
func (s *Store) ListAssetsWithLatest(_ context.Context) ([]lending.AssetWithLatest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := map[int64]models.BorrowRequest{}
	for _, r := range s.state.requests {
		if cur, ok := latest[r.AssetID]; !ok || r.ID > cur.ID {
			latest[r.AssetID] = r
		}
	}

	out := make([]lending.AssetWithLatest, 0, len(s.state.assets))
	for _, a := range s.state.assets {
		row := lending.AssetWithLatest{Asset: a}
		if r, ok := latest[a.ID]; ok {
			r := r
			row.Latest = &r
			if u, ok := s.state.users[r.RequesterID]; ok {
				name := u.DisplayName()
				row.RequesterName = &name
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.ID < out[j].Asset.ID })
	return out, nil
}

// CountAssetsByStatus counts assets per stored status
func (s *Store) CountAssetsByStatus(_ context.Context) (models.StatusSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var summary models.StatusSummary
	for _, a := range s.state.assets {
		summary.Add(a.Status, 1)
	}
	return summary, nil
}

// GetRequest returns one borrow request
func (s *Store) GetRequest(_ context.Context, id int64) (models.BorrowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.requests[id]
	if !ok {
		return models.BorrowRequest{}, lending.ErrRecordNotFound
	}
	return r, nil
}

func (s *Store) username(id *int64) *string {
	if id == nil {
		return nil
	}
	u, ok := s.state.users[*id]
	if !ok {
		return nil
	}
	name := u.Username
	return &name
}

// ListBorrowHistory lists requests matching filter, newest borrow date first
func (s *Store) ListBorrowHistory(_ context.Context, filter lending.HistoryFilter) ([]models.BorrowHistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := []models.BorrowHistoryRow{}
	for _, r := range s.state.requests {
		if filter.RequesterID != 0 && r.RequesterID != filter.RequesterID {
			continue
		}
		if filter.DecidedBy != 0 && (r.DecidedBy == nil || *r.DecidedBy != filter.DecidedBy) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		requester := r.RequesterID
		rows = append(rows, models.BorrowHistoryRow{
			RequestID:     r.ID,
			AssetID:       r.AssetID,
			AssetName:     s.state.assets[r.AssetID].Name,
			Status:        r.Status,
			BorrowDate:    r.BorrowDate,
			ReturnDate:    r.ReturnDate,
			RequesterName: s.username(&requester),
			ApprovedBy:    s.username(r.DecidedBy),
			GotBackBy:     s.username(r.ReturnedBy),
			DecisionNote:  r.DecisionNote,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].BorrowDate.Equal(rows[j].BorrowDate) {
			return rows[j].BorrowDate.Before(rows[i].BorrowDate)
		}
		return rows[i].RequestID > rows[j].RequestID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(rows) {
			return []models.BorrowHistoryRow{}, nil
		}
		rows = rows[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(rows) {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

// ListRequestHistory lists the entries of one request, oldest first
func (s *Store) ListRequestHistory(_ context.Context, requestID int64) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := []models.HistoryEntry{}
	for _, e := range s.state.history {
		if e.RequestID == requestID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ListOverdue lists approved requests due before today
func (s *Store) ListOverdue(_ context.Context, today models.Date) ([]models.BorrowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.BorrowRequest{}
	for _, r := range s.state.requests {
		if r.Status == models.RequestApproved && r.ReturnDate.Before(today) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) LockAssetCodes(context.Context) error { return nil }

func (t *tx) LastAssetCode(context.Context) (string, error) {
	var best models.Asset
	for _, a := range t.st.assets {
		if wellFormedCode.MatchString(a.Code) && a.ID > best.ID {
			best = a
		}
	}
	return best.Code, nil
}

func (t *tx) InsertAsset(_ context.Context, asset *models.Asset) error {
	for _, a := range t.st.assets {
		if a.Code == asset.Code {
			return lending.ConflictError("asset code already exists")
		}
	}
	t.st.lastAssetID++
	asset.ID = t.st.lastAssetID
	t.st.assets[asset.ID] = *asset
	return nil
}

func (t *tx) GetAsset(_ context.Context, id int64, _ bool) (models.Asset, error) {
	a, ok := t.st.assets[id]
	if !ok {
		return models.Asset{}, lending.ErrRecordNotFound
	}
	return a, nil
}

func (t *tx) UpdateAsset(_ context.Context, asset *models.Asset) error {
	if _, ok := t.st.assets[asset.ID]; !ok {
		return lending.ErrRecordNotFound
	}
	t.st.assets[asset.ID] = *asset
	return nil
}

func (t *tx) DeleteAsset(_ context.Context, id int64) error {
	if _, ok := t.st.assets[id]; !ok {
		return lending.ErrRecordNotFound
	}
	delete(t.st.assets, id)
	return nil
}

func (t *tx) SetAssetStatus(_ context.Context, id int64, from []models.AssetStatus, to models.AssetStatus) (bool, error) {
	a, ok := t.st.assets[id]
	if !ok {
		return false, nil
	}
	if len(from) > 0 {
		matched := false
		for _, f := range from {
			if a.Status == f {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	a.Status = to
	a.UpdatedAt = t.now()
	t.st.assets[id] = a
	return true, nil
}

func (t *tx) CountRequestsForAsset(_ context.Context, assetID int64, activeOnly bool) (int, error) {
	n := 0
	for _, r := range t.st.requests {
		if r.AssetID == assetID && (!activeOnly || r.Status.Active()) {
			n++
		}
	}
	return n, nil
}

func (t *tx) LockRequester(_ context.Context, userID int64) error {
	if _, ok := t.st.users[userID]; !ok {
		return lending.ErrRecordNotFound
	}
	return nil
}

func (t *tx) CountBlockingRequests(_ context.Context, requesterID int64, today models.Date) (int, error) {
	n := 0
	for _, r := range t.st.requests {
		if r.RequesterID != requesterID {
			continue
		}
		if r.Status.Active() || (r.Status == models.RequestReturned && r.ReturnDate.Equal(today)) {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertRequest(_ context.Context, req *models.BorrowRequest) error {
	if _, ok := t.st.assets[req.AssetID]; !ok {
		return lending.NotFoundError(lending.MsgAssetNotFound)
	}
	if req.Status.Active() {
		for _, r := range t.st.requests {
			if !r.Status.Active() {
				continue
			}
			if r.AssetID == req.AssetID {
				return lending.ConflictError(lending.MsgAssetUnavailable)
			}
			if r.RequesterID == req.RequesterID {
				return lending.ConflictError(lending.MsgActiveBorrow)
			}
		}
	}
	t.st.lastRequestID++
	req.ID = t.st.lastRequestID
	t.st.requests[req.ID] = *req
	return nil
}

func (t *tx) GetRequest(_ context.Context, id int64, _ bool) (models.BorrowRequest, error) {
	r, ok := t.st.requests[id]
	if !ok {
		return models.BorrowRequest{}, lending.ErrRecordNotFound
	}
	return r, nil
}

func (t *tx) TransitionRequest(_ context.Context, tr lending.Transition) (bool, error) {
	r, ok := t.st.requests[tr.RequestID]
	if !ok || r.Status != tr.From {
		return false, nil
	}
	r.Status = tr.To
	if tr.DecidedBy != nil {
		r.DecidedBy = tr.DecidedBy
	}
	if tr.DecidedAt != nil {
		r.DecidedAt = tr.DecidedAt
	}
	if tr.DecisionNote != nil {
		r.DecisionNote = tr.DecisionNote
	}
	if tr.ReturnedBy != nil {
		r.ReturnedBy = tr.ReturnedBy
	}
	if tr.ReturnedAt != nil {
		r.ReturnedAt = tr.ReturnedAt
	}
	if tr.ReturnDate != nil {
		r.ReturnDate = *tr.ReturnDate
	}
	t.st.requests[r.ID] = r
	return true, nil
}

func (t *tx) AppendHistory(_ context.Context, entry *models.HistoryEntry) error {
	if _, ok := t.st.requests[entry.RequestID]; !ok {
		return lending.NotFoundError("request not found")
	}
	t.st.lastHistoryID++
	entry.ID = t.st.lastHistoryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	t.st.history = append(t.st.history, *entry)
	return nil
}
