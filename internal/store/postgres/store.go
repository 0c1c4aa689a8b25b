// Package postgres implements the lending store on PostgreSQL through
// database/sql. Either the pgx stdlib driver or lib/pq may back the *sql.DB.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Constraint names from db/migrations
const (
	constraintActivePerAsset     = "borrow_requests_one_active_per_asset"
	constraintActivePerRequester = "borrow_requests_one_active_per_requester"
	constraintAssetCode          = "assets_code_key"
)

// Store is a lending.Store backed by PostgreSQL
type Store struct {
	db *sql.DB
	gq *goqu.Database
}

var _ lending.Store = (*Store)(nil)

// New wraps an open database handle
func New(db *sql.DB) *Store {
	return &Store{db: db, gq: goqu.New("postgres", db)}
}

// WithinTx runs fn inside a READ COMMITTED transaction. Rows read with
// forUpdate stay locked until commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(tx lending.Tx) error) (err error) {
	gtx, err := s.gq.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return wrap(ctx, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = gtx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&tx{gq: gtx}); err != nil {
		if rbErr := gtx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return &lending.RollbackError{Err: err, RollbackErr: rbErr}
		}
		return err
	}
	if err := gtx.Commit(); err != nil {
		return wrap(ctx, "commit transaction", err)
	}
	return nil
}

// FindUserByUsername looks a user up case-insensitively
func (s *Store) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	var row userRow
	found, err := s.gq.From("users").
		Where(goqu.L("lower(username) = lower(?)", username)).
		Prepared(true).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return models.User{}, wrap(ctx, "find user", err)
	}
	if !found {
		return models.User{}, lending.ErrRecordNotFound
	}
	return row.model(), nil
}

// CreateUser inserts u and sets its id
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.gq.Insert("users").
		Rows(goqu.Record{
			"username":      u.Username,
			"full_name":     nullable(u.FullName),
			"password_hash": u.PasswordHash,
			"role":          string(u.Role),
			"created_at":    u.CreatedAt,
		}).
		Returning("id").
		Prepared(true).
		Executor().ScanValContext(ctx, &u.ID)
	if err != nil {
		return wrap(ctx, "insert user", err)
	}
	return nil
}

// GetAsset returns one asset
func (s *Store) GetAsset(ctx context.Context, id int64) (models.Asset, error) {
	var row assetRow
	found, err := s.gq.From("assets").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return models.Asset{}, wrap(ctx, "get asset", err)
	}
	if !found {
		return models.Asset{}, lending.ErrRecordNotFound
	}
	return row.model(), nil
}

const listAssetsWithLatestSQL = `
SELECT a.id, a.code, a.name, a.description, a.image_url, a.status, a.created_at, a.updated_at,
       br.id, br.requester_id, br.borrow_date, br.return_date, br.status,
       COALESCE(NULLIF(u.full_name, ''), u.username)
FROM assets a
LEFT JOIN LATERAL (
    SELECT b.id, b.requester_id, b.borrow_date, b.return_date, b.status
    FROM borrow_requests b
    WHERE b.asset_id = a.id
    ORDER BY b.id DESC
    LIMIT 1
) br ON true
LEFT JOIN users u ON u.id = br.requester_id
ORDER BY a.id ASC`

// ListAssetsWithLatest returns every asset with its highest-id request
func (s *Store) ListAssetsWithLatest(ctx context.Context) ([]lending.AssetWithLatest, error) {
	rows, err := s.db.QueryContext(ctx, listAssetsWithLatestSQL)
	if err != nil {
		return nil, wrap(ctx, "list assets", err)
	}
	defer rows.Close()

	out := []lending.AssetWithLatest{}
	for rows.Next() {
		var (
			a         assetRow
			reqID     sql.NullInt64
			requester sql.NullInt64
			borrowed  sql.NullTime
			due       sql.NullTime
			status    sql.NullString
			name      sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.ImageURL, &a.Status, &a.CreatedAt, &a.UpdatedAt,
			&reqID, &requester, &borrowed, &due, &status, &name); err != nil {
			return nil, wrap(ctx, "scan asset", err)
		}
		item := lending.AssetWithLatest{Asset: a.model()}
		if reqID.Valid {
			item.Latest = &models.BorrowRequest{
				ID:          reqID.Int64,
				RequesterID: requester.Int64,
				AssetID:     a.ID,
				BorrowDate:  models.DateOf(borrowed.Time),
				ReturnDate:  models.DateOf(due.Time),
				Status:      models.RequestStatus(status.String),
			}
			if name.Valid {
				n := name.String
				item.RequesterName = &n
			}
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ctx, "list assets", err)
	}
	return out, nil
}

// CountAssetsByStatus counts assets per stored status
func (s *Store) CountAssetsByStatus(ctx context.Context) (models.StatusSummary, error) {
	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err := s.gq.From("assets").
		Select("status", goqu.COUNT(goqu.Star()).As("n")).
		GroupBy("status").
		Executor().ScanStructsContext(ctx, &counts)
	if err != nil {
		return models.StatusSummary{}, wrap(ctx, "count assets", err)
	}
	var summary models.StatusSummary
	for _, c := range counts {
		summary.Add(models.AssetStatus(c.Status), c.N)
	}
	return summary, nil
}

// GetRequest returns one borrow request
func (s *Store) GetRequest(ctx context.Context, id int64) (models.BorrowRequest, error) {
	var row requestRow
	found, err := s.gq.From("borrow_requests").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return models.BorrowRequest{}, wrap(ctx, "get request", err)
	}
	if !found {
		return models.BorrowRequest{}, lending.ErrRecordNotFound
	}
	return row.model(), nil
}

// ListBorrowHistory lists requests matching filter, newest borrow date first
func (s *Store) ListBorrowHistory(ctx context.Context, filter lending.HistoryFilter) ([]models.BorrowHistoryRow, error) {
	ds := s.gq.From(goqu.T("borrow_requests").As("br")).
		Join(goqu.T("assets").As("a"), goqu.On(goqu.Ex{"a.id": goqu.I("br.asset_id")})).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.Ex{"u.id": goqu.I("br.requester_id")})).
		LeftJoin(goqu.T("users").As("l"), goqu.On(goqu.Ex{"l.id": goqu.I("br.decided_by")})).
		LeftJoin(goqu.T("users").As("s"), goqu.On(goqu.Ex{"s.id": goqu.I("br.got_back_by")})).
		Select(
			goqu.I("br.id").As("request_id"),
			goqu.I("br.asset_id").As("asset_id"),
			goqu.I("a.name").As("asset_name"),
			goqu.I("br.status").As("status"),
			goqu.I("br.borrow_date").As("borrow_date"),
			goqu.I("br.return_date").As("return_date"),
			goqu.I("u.username").As("requester_name"),
			goqu.I("l.username").As("approved_by"),
			goqu.I("s.username").As("got_back_by"),
			goqu.I("br.decision_note").As("decision_note"),
		).
		Order(goqu.I("br.borrow_date").Desc(), goqu.I("br.id").Desc())

	if filter.RequesterID != 0 {
		ds = ds.Where(goqu.Ex{"br.requester_id": filter.RequesterID})
	}
	if filter.DecidedBy != 0 {
		ds = ds.Where(goqu.Ex{"br.decided_by": filter.DecidedBy})
	}
	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"br.status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	var rows []borrowHistoryRow
	if err := ds.Prepared(true).Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, wrap(ctx, "list borrow history", err)
	}
	out := make([]models.BorrowHistoryRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// ListRequestHistory lists the entries of one request, oldest first
func (s *Store) ListRequestHistory(ctx context.Context, requestID int64) ([]models.HistoryEntry, error) {
	var rows []historyRow
	err := s.gq.From("request_history").
		Where(goqu.C("request_id").Eq(requestID)).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		Executor().ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, wrap(ctx, "list request history", err)
	}
	out := make([]models.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// ListOverdue lists approved requests due before today
func (s *Store) ListOverdue(ctx context.Context, today models.Date) ([]models.BorrowRequest, error) {
	var rows []requestRow
	err := s.gq.From("borrow_requests").
		Where(
			goqu.C("status").Eq(string(models.RequestApproved)),
			goqu.C("return_date").Lt(today.String()),
		).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		Executor().ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, wrap(ctx, "list overdue", err)
	}
	out := make([]models.BorrowRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// wrap classifies driver errors. Unique violations on the active-request
// indexes become conflicts; a deadline becomes context.DeadlineExceeded.
func wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return lending.ErrRecordNotFound
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	code, constraint := sqlState(err)
	switch code {
	case "23505":
		switch constraint {
		case constraintActivePerAsset:
			return lending.ConflictError(lending.MsgAssetUnavailable)
		case constraintActivePerRequester:
			return lending.ConflictError(lending.MsgActiveBorrow)
		case constraintAssetCode:
			return lending.ConflictError("asset code already exists")
		}
		return lending.ConflictError("duplicate record")
	case "23503":
		return lending.NotFoundError("referenced record not found")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sqlState(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}
