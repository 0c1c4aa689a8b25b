package internal

import (
	"net/http"

	"asset-lending-api/internal/models"
)

// createBorrow opens a pending request for the calling student
func (s *Server) createBorrow(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	var req models.CreateBorrowRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := s.Engine.Create(r.Context(), v.UserID, req.AssetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Borrow request created successfully (Pending)",
		"request_id": res.Request.ID,
	})
}

func (s *Server) approveBorrow(w http.ResponseWriter, r *http.Request) {
	s.decideBorrow(w, r, true)
}

func (s *Server) rejectBorrow(w http.ResponseWriter, r *http.Request) {
	s.decideBorrow(w, r, false)
}

// decideBorrow approves or rejects a pending request with an optional note
func (s *Server) decideBorrow(w http.ResponseWriter, r *http.Request, approve bool) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req models.DecisionRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	decide, message := s.Engine.Reject, "Borrow request rejected"
	if approve {
		decide, message = s.Engine.Approve, "Borrow request approved"
	}
	if _, err := decide(r.Context(), id, v.UserID, req.Note); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"note":    req.Note,
	})
}

// returnBorrow closes an approved loan and frees the asset
func (s *Server) returnBorrow(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.Engine.Return(r.Context(), id, v.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Item returned successfully by staff",
		"request_id":  res.Request.ID,
		"asset_id":    res.Asset.ID,
		"asset_name":  res.Asset.Name,
		"returned_by": v.UserID,
	})
}

// listHistory lists borrow requests visible to the caller
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	filter, err := parseListParams(r).historyFilter()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.History.Borrowed(r.Context(), v, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// requestHistory lists the status changes of one request
func (s *Server) requestHistory(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.History.ForRequest(r.Context(), v, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
