package postgres

import (
	"context"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// assetCodeLockKey identifies the advisory lock guarding code assignment
const assetCodeLockKey = 0x61737365

type tx struct {
	gq *goqu.TxDatabase
}

func (t *tx) LockAssetCodes(ctx context.Context) error {
	if _, err := t.gq.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", assetCodeLockKey); err != nil {
		return wrap(ctx, "lock asset codes", err)
	}
	return nil
}

func (t *tx) LastAssetCode(ctx context.Context) (string, error) {
	var code string
	_, err := t.gq.From("assets").
		Select("code").
		Where(goqu.L("code ~ ?", `^AS-[0-9]+$`)).
		Order(goqu.C("id").Desc()).
		Limit(1).
		Prepared(true).
		Executor().ScanValContext(ctx, &code)
	if err != nil {
		return "", wrap(ctx, "last asset code", err)
	}
	return code, nil
}

func (t *tx) InsertAsset(ctx context.Context, asset *models.Asset) error {
	_, err := t.gq.Insert("assets").
		Rows(goqu.Record{
			"code":        asset.Code,
			"name":        asset.Name,
			"description": nullable(asset.Description),
			"image_url":   nullable(asset.ImageURL),
			"status":      string(asset.Status),
			"created_at":  asset.CreatedAt,
			"updated_at":  asset.UpdatedAt,
		}).
		Returning("id").
		Prepared(true).
		Executor().ScanValContext(ctx, &asset.ID)
	if err != nil {
		return wrap(ctx, "insert asset", err)
	}
	return nil
}

func (t *tx) GetAsset(ctx context.Context, id int64, forUpdate bool) (models.Asset, error) {
	ds := t.gq.From("assets").Where(goqu.C("id").Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	var row assetRow
	found, err := ds.Prepared(true).Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return models.Asset{}, wrap(ctx, "get asset", err)
	}
	if !found {
		return models.Asset{}, lending.ErrRecordNotFound
	}
	return row.model(), nil
}

func (t *tx) UpdateAsset(ctx context.Context, asset *models.Asset) error {
	res, err := t.gq.Update("assets").
		Set(goqu.Record{
			"name":        asset.Name,
			"description": nullable(asset.Description),
			"image_url":   nullable(asset.ImageURL),
			"status":      string(asset.Status),
			"updated_at":  asset.UpdatedAt,
		}).
		Where(goqu.C("id").Eq(asset.ID)).
		Prepared(true).
		Executor().ExecContext(ctx)
	if err != nil {
		return wrap(ctx, "update asset", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lending.ErrRecordNotFound
	}
	return nil
}

func (t *tx) DeleteAsset(ctx context.Context, id int64) error {
	res, err := t.gq.Delete("assets").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		Executor().ExecContext(ctx)
	if err != nil {
		return wrap(ctx, "delete asset", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lending.ErrRecordNotFound
	}
	return nil
}

func (t *tx) SetAssetStatus(ctx context.Context, id int64, from []models.AssetStatus, to models.AssetStatus) (bool, error) {
	ds := t.gq.Update("assets").
		Set(goqu.Record{
			"status":     string(to),
			"updated_at": goqu.L("now()"),
		}).
		Where(goqu.C("id").Eq(id))
	if len(from) > 0 {
		statuses := make([]string, 0, len(from))
		for _, s := range from {
			statuses = append(statuses, string(s))
		}
		ds = ds.Where(goqu.C("status").In(statuses))
	}
	res, err := ds.Prepared(true).Executor().ExecContext(ctx)
	if err != nil {
		return false, wrap(ctx, "set asset status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(ctx, "set asset status", err)
	}
	return n > 0, nil
}

func (t *tx) CountRequestsForAsset(ctx context.Context, assetID int64, activeOnly bool) (int, error) {
	ds := t.gq.From("borrow_requests").
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("asset_id").Eq(assetID))
	if activeOnly {
		ds = ds.Where(goqu.C("status").In(activeStatuses()))
	}
	var n int
	if _, err := ds.Prepared(true).Executor().ScanValContext(ctx, &n); err != nil {
		return 0, wrap(ctx, "count asset requests", err)
	}
	return n, nil
}

func (t *tx) LockRequester(ctx context.Context, userID int64) error {
	var id int64
	found, err := t.gq.From("users").
		Select("id").
		Where(goqu.C("id").Eq(userID)).
		ForUpdate(exp.Wait).
		Prepared(true).
		Executor().ScanValContext(ctx, &id)
	if err != nil {
		return wrap(ctx, "lock requester", err)
	}
	if !found {
		return lending.ErrRecordNotFound
	}
	return nil
}

func (t *tx) CountBlockingRequests(ctx context.Context, requesterID int64, today models.Date) (int, error) {
	var n int
	_, err := t.gq.From("borrow_requests").
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.C("requester_id").Eq(requesterID),
			goqu.Or(
				goqu.C("status").In(activeStatuses()),
				goqu.And(
					goqu.C("status").Eq(string(models.RequestReturned)),
					goqu.C("return_date").Eq(today.String()),
				),
			),
		).
		Prepared(true).
		Executor().ScanValContext(ctx, &n)
	if err != nil {
		return 0, wrap(ctx, "count blocking requests", err)
	}
	return n, nil
}

func (t *tx) InsertRequest(ctx context.Context, req *models.BorrowRequest) error {
	_, err := t.gq.Insert("borrow_requests").
		Rows(goqu.Record{
			"requester_id": req.RequesterID,
			"asset_id":     req.AssetID,
			"borrow_date":  req.BorrowDate.String(),
			"return_date":  req.ReturnDate.String(),
			"status":       string(req.Status),
			"created_at":   req.CreatedAt,
		}).
		Returning("id").
		Prepared(true).
		Executor().ScanValContext(ctx, &req.ID)
	if err != nil {
		return wrap(ctx, "insert request", err)
	}
	return nil
}

func (t *tx) GetRequest(ctx context.Context, id int64, forUpdate bool) (models.BorrowRequest, error) {
	ds := t.gq.From("borrow_requests").Where(goqu.C("id").Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	var row requestRow
	found, err := ds.Prepared(true).Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return models.BorrowRequest{}, wrap(ctx, "get request", err)
	}
	if !found {
		return models.BorrowRequest{}, lending.ErrRecordNotFound
	}
	return row.model(), nil
}

func (t *tx) TransitionRequest(ctx context.Context, tr lending.Transition) (bool, error) {
	set := goqu.Record{"status": string(tr.To)}
	if tr.DecidedBy != nil {
		set["decided_by"] = *tr.DecidedBy
	}
	if tr.DecidedAt != nil {
		set["decided_at"] = *tr.DecidedAt
	}
	if tr.DecisionNote != nil {
		set["decision_note"] = *tr.DecisionNote
	}
	if tr.ReturnedBy != nil {
		set["got_back_by"] = *tr.ReturnedBy
	}
	if tr.ReturnedAt != nil {
		set["returned_at"] = *tr.ReturnedAt
	}
	if tr.ReturnDate != nil {
		set["return_date"] = tr.ReturnDate.String()
	}

	res, err := t.gq.Update("borrow_requests").
		Set(set).
		Where(
			goqu.C("id").Eq(tr.RequestID),
			goqu.C("status").Eq(string(tr.From)),
		).
		Prepared(true).
		Executor().ExecContext(ctx)
	if err != nil {
		return false, wrap(ctx, "transition request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(ctx, "transition request", err)
	}
	return n > 0, nil
}

func (t *tx) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	var old interface{}
	if entry.OldStatus != "" {
		old = string(entry.OldStatus)
	}
	_, err := t.gq.Insert("request_history").
		Rows(goqu.Record{
			"request_id":    entry.RequestID,
			"old_status":    old,
			"new_status":    string(entry.NewStatus),
			"changed_by_id": entry.ChangedBy,
			"note":          nullable(entry.Note),
			"created_at":    entry.CreatedAt,
		}).
		Returning("id").
		Prepared(true).
		Executor().ScanValContext(ctx, &entry.ID)
	if err != nil {
		return wrap(ctx, "append history", err)
	}
	return nil
}
