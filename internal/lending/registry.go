package lending

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"asset-lending-api/internal/models"
)

// AssetCodePrefix prefixes every generated asset code
const AssetCodePrefix = "AS-"

var assetCodePattern = regexp.MustCompile(`^AS-([0-9]+)$`)

// ImageReleaser frees the resource behind an image reference
type ImageReleaser interface {
	Release(ctx context.Context, ref string) error
}

type nopReleaser struct{}

func (nopReleaser) Release(context.Context, string) error { return nil }

// CreateAssetInput carries the fields accepted when registering an asset
type CreateAssetInput struct {
	Name        string
	Description *string
	Status      string
	ImageRef    *string
	ActorID     int64
}

// UpdateAssetInput is a patch. Nil fields are left unchanged.
type UpdateAssetInput struct {
	Name        *string
	Description *string
	Status      *string
	ImageRef    *string
	ActorID     int64
}

// Registry owns the asset catalogue
type Registry struct {
	store  Store
	images ImageReleaser
	settings
}

// NewRegistry creates a Registry. images may be nil.
func NewRegistry(store Store, images ImageReleaser, opts ...Option) *Registry {
	if images == nil {
		images = nopReleaser{}
	}
	return &Registry{store: store, images: images, settings: newSettings(opts)}
}

// NextAssetCode returns the code following last. An empty or malformed last
// code starts the sequence at AS-001.
func NextAssetCode(last string) string {
	n := 0
	if m := assetCodePattern.FindStringSubmatch(last); m != nil {
		if parsed, err := strconv.Atoi(m[1]); err == nil {
			n = parsed
		}
	}
	return fmt.Sprintf("%s%03d", AssetCodePrefix, n+1)
}

// staffStatus validates a status supplied by staff
func staffStatus(raw string) (models.AssetStatus, error) {
	status, ok := models.ParseAssetStatus(raw)
	if !ok {
		return "", ValidationError("invalid status %q", raw)
	}
	if status.WorkflowOwned() {
		return "", ValidationError("status %q is set by the borrow workflow", status)
	}
	return status, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Create registers a new asset with the next sequential code
func (r *Registry) Create(ctx context.Context, in CreateAssetInput) (models.Asset, error) {
	ctx, cancel := r.detach(ctx)
	defer cancel()

	asset, err := r.create(ctx, in)
	r.emit(ctx, Event{Action: ActionAssetCreate, AssetID: asset.ID, ActorID: in.ActorID}, err)
	return asset, err
}

func (r *Registry) create(ctx context.Context, in CreateAssetInput) (models.Asset, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Asset{}, ValidationError("name is required")
	}
	status := models.AssetAvailable
	if strings.TrimSpace(in.Status) != "" {
		s, err := staffStatus(in.Status)
		if err != nil {
			return models.Asset{}, err
		}
		status = s
	}

	asset := models.Asset{
		Name:        name,
		Description: trimOptional(in.Description),
		ImageURL:    trimOptional(in.ImageRef),
		Status:      status,
	}
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.LockAssetCodes(ctx); err != nil {
			return err
		}
		last, err := tx.LastAssetCode(ctx)
		if err != nil {
			return err
		}
		asset.Code = NextAssetCode(last)
		now := r.now()
		asset.CreatedAt = now
		asset.UpdatedAt = now
		return tx.InsertAsset(ctx, &asset)
	})
	if err != nil {
		return models.Asset{}, classify(err)
	}
	return asset, nil
}

// Update applies a patch to an asset. Replacing the image releases the old one.
func (r *Registry) Update(ctx context.Context, id int64, in UpdateAssetInput) (models.Asset, error) {
	ctx, cancel := r.detach(ctx)
	defer cancel()

	asset, released, err := r.update(ctx, id, in)
	r.emit(ctx, Event{Action: ActionAssetUpdate, AssetID: id, ActorID: in.ActorID}, err)
	if err == nil && released != nil {
		r.release(ctx, id, in.ActorID, *released)
	}
	return asset, err
}

func (r *Registry) update(ctx context.Context, id int64, in UpdateAssetInput) (models.Asset, *string, error) {
	var next *models.AssetStatus
	if in.Status != nil {
		s, err := staffStatus(*in.Status)
		if err != nil {
			return models.Asset{}, nil, err
		}
		next = &s
	}
	var name string
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if name == "" {
			return models.Asset{}, nil, ValidationError("name must not be empty")
		}
	}

	var asset models.Asset
	var released *string
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		current, err := tx.GetAsset(ctx, id, true)
		if errors.Is(err, ErrRecordNotFound) {
			return NotFoundError(MsgAssetNotFound)
		}
		if err != nil {
			return err
		}

		if next != nil && *next != current.Status {
			if current.Status.WorkflowOwned() {
				return ConflictError("asset is in an active borrow and its status cannot be changed")
			}
			active, err := tx.CountRequestsForAsset(ctx, id, true)
			if err != nil {
				return err
			}
			if active > 0 {
				return ConflictError("asset is in an active borrow and its status cannot be changed")
			}
			current.Status = *next
		}
		if in.Name != nil {
			current.Name = name
		}
		if in.Description != nil {
			current.Description = trimOptional(in.Description)
		}
		if in.ImageRef != nil {
			ref := trimOptional(in.ImageRef)
			if current.ImageURL != nil && (ref == nil || *ref != *current.ImageURL) {
				old := *current.ImageURL
				released = &old
			}
			current.ImageURL = ref
		}
		current.UpdatedAt = r.now()
		if err := tx.UpdateAsset(ctx, &current); err != nil {
			return err
		}
		asset = current
		return nil
	})
	if err != nil {
		return models.Asset{}, nil, classify(err)
	}
	return asset, released, nil
}

// Delete removes an asset that has never been requested
func (r *Registry) Delete(ctx context.Context, id int64, actorID int64) error {
	ctx, cancel := r.detach(ctx)
	defer cancel()

	var image *string
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		asset, err := tx.GetAsset(ctx, id, true)
		if errors.Is(err, ErrRecordNotFound) {
			return NotFoundError(MsgAssetNotFound)
		}
		if err != nil {
			return err
		}
		n, err := tx.CountRequestsForAsset(ctx, id, false)
		if err != nil {
			return err
		}
		if n > 0 {
			return ConflictError("asset has borrow history; disable it instead")
		}
		image = asset.ImageURL
		return tx.DeleteAsset(ctx, id)
	})
	err = classify(err)
	r.emit(ctx, Event{Action: ActionAssetDelete, AssetID: id, ActorID: actorID}, err)
	if err == nil && image != nil {
		r.release(ctx, id, actorID, *image)
	}
	return err
}

func (r *Registry) release(ctx context.Context, assetID, actorID int64, ref string) {
	if err := r.images.Release(ctx, ref); err != nil {
		r.emit(ctx, Event{Action: ActionImageRelease, AssetID: assetID, ActorID: actorID}, err)
	}
}

// Get returns one asset. Disabled assets are hidden from students.
func (r *Registry) Get(ctx context.Context, viewer Viewer, id int64) (models.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	asset, err := r.store.GetAsset(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return models.Asset{}, NotFoundError(MsgAssetNotFound)
	}
	if err != nil {
		return models.Asset{}, classify(err)
	}
	if viewer.Role == models.RoleStudent && asset.Status == models.AssetDisabled {
		return models.Asset{}, NotFoundError(MsgAssetNotFound)
	}
	return asset, nil
}

// List returns the catalogue as seen by viewer
func (r *Registry) List(ctx context.Context, viewer Viewer) ([]models.AssetView, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.store.ListAssetsWithLatest(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return Project(viewer, rows), nil
}

// Summary counts assets per stored status
func (r *Registry) Summary(ctx context.Context) (models.StatusSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	summary, err := r.store.CountAssetsByStatus(ctx)
	if err != nil {
		return models.StatusSummary{}, classify(err)
	}
	return summary, nil
}

// Project builds the per-viewer asset views. Students never see disabled
// assets and only see request details on their own latest request. Lecturers
// and staff see every asset annotated with its latest request.
func Project(viewer Viewer, rows []AssetWithLatest) []models.AssetView {
	views := make([]models.AssetView, 0, len(rows))
	for _, row := range rows {
		a := row.Asset
		view := models.AssetView{
			ID:          a.ID,
			Code:        a.Code,
			Name:        a.Name,
			Description: a.Description,
			ImageURL:    a.ImageURL,
			Status:      string(a.Status),
		}
		latest := row.Latest

		if viewer.Role == models.RoleStudent {
			if a.Status == models.AssetDisabled {
				continue
			}
			if latest != nil && latest.RequesterID == viewer.UserID && latest.Status.Active() {
				view.Status = latest.Status.Display()
			}
			if latest != nil && latest.RequesterID == viewer.UserID {
				view.RequestID = &latest.ID
				view.BorrowDate = &latest.BorrowDate
				view.ReturnDate = &latest.ReturnDate
			}
			views = append(views, view)
			continue
		}

		if latest != nil {
			if a.Status != models.AssetDisabled {
				view.Status = latest.Status.Display()
			}
			view.RequestID = &latest.ID
			view.RequesterID = &latest.RequesterID
			view.StudentName = row.RequesterName
			view.BorrowDate = &latest.BorrowDate
			view.ReturnDate = &latest.ReturnDate
		}
		views = append(views, view)
	}
	return views
}
