package internal

import (
	"net/http"
	"strconv"
	"strings"

	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"
)

// listParams holds common query parameters for list endpoints
type listParams struct {
	limit  int
	offset int
	status string
}

// parseListParams parses limit, offset and status from the request.
// Defaults: limit=50 (max 200), offset=0
func parseListParams(r *http.Request) listParams {
	values := r.URL.Query()

	limit := 50
	if s := strings.TrimSpace(values.Get("limit")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			if v > 200 {
				v = 200
			}
			limit = v
		}
	}

	offset := 0
	if s := strings.TrimSpace(values.Get("offset")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	return listParams{
		limit:  limit,
		offset: offset,
		status: strings.ToLower(strings.TrimSpace(values.Get("status"))),
	}
}

// historyFilter turns list params into a store filter. The "borrowed" display
// name is accepted for approved requests.
func (p listParams) historyFilter() (lending.HistoryFilter, error) {
	f := lending.HistoryFilter{Limit: p.limit, Offset: p.offset}
	switch p.status {
	case "":
	case "borrowed":
		f.Status = models.RequestApproved
	default:
		s := models.RequestStatus(p.status)
		if !s.Valid() {
			return f, lending.ValidationError("invalid status %q", p.status)
		}
		f.Status = s
	}
	return f, nil
}
