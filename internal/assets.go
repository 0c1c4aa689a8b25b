package internal

import (
	"net/http"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"
)

// listAssets returns the catalogue as seen by the caller
func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	views, err := s.Registry.List(r.Context(), v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// getAsset returns a single asset by ID
func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := s.Registry.Get(r.Context(), v, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// createAsset registers a new asset with the next sequential code
func (s *Server) createAsset(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	var req models.CreateAssetRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	in := lending.CreateAssetInput{
		Name:        req.Name,
		Description: req.Description,
		ImageRef:    req.ImageURL,
		ActorID:     v.UserID,
	}
	if req.Status != nil {
		in.Status = *req.Status
	}

	asset, err := s.Registry.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Asset created successfully",
		"asset":   asset,
	})
}

// updateAsset patches an asset. Omitted fields keep their value.
func (s *Server) updateAsset(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req models.UpdateAssetRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	asset, err := s.Registry.Update(r.Context(), id, lending.UpdateAssetInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		ImageRef:    req.ImageURL,
		ActorID:     v.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Asset updated successfully",
		"asset":   asset,
	})
}

// deleteAsset removes an asset that was never borrowed
func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Registry.Delete(r.Context(), id, v.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Asset deleted successfully")
}

// dashboardSummary counts assets per status
func (s *Server) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Registry.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
