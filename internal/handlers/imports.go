package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"asset-lending-api/internal/auth"
	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"
	"asset-lending-api/pkg/importer"
)

// AssetCreator registers one asset
type AssetCreator interface {
	Create(ctx context.Context, in lending.CreateAssetInput) (models.Asset, error)
}

// ImportsHandler handles Excel import operations
type ImportsHandler struct {
	Assets   AssetCreator
	MaxBytes int64
	Mapping  *importer.MappingConfig
}

// NewImportsHandler creates a new imports handler. A nil mapping uses importer.DefaultMapping.
func NewImportsHandler(assets AssetCreator, mapping *importer.MappingConfig) *ImportsHandler {
	if mapping == nil {
		mapping = importer.DefaultMapping()
	}
	return &ImportsHandler{
		Assets:   assets,
		MaxBytes: 20 << 20, // 20 MB
		Mapping:  mapping,
	}
}

// RegistrySink feeds imported rows to assets on behalf of actorID
func RegistrySink(assets AssetCreator, actorID int64) importer.AssetSink {
	return registrySink{assets: assets, actorID: actorID}
}

type registrySink struct {
	assets  AssetCreator
	actorID int64
}

func (s registrySink) CreateAsset(ctx context.Context, row importer.AssetRow) (string, error) {
	in := lending.CreateAssetInput{
		Name:    row.Name,
		Status:  row.Status,
		ActorID: s.actorID,
	}
	if row.Description != "" {
		in.Description = &row.Description
	}
	if row.ImageURL != "" {
		in.ImageRef = &row.ImageURL
	}
	asset, err := s.assets.Create(ctx, in)
	if err != nil {
		// Row samples are returned to the caller; keep storage causes out of them.
		return "", errors.New(lending.PublicMessage(err))
	}
	return asset.Code, nil
}

// UploadAssets handles Excel file uploads for asset import
func (h *ImportsHandler) UploadAssets(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "content-type must be multipart/form-data")
		return
	}

	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	dryRun := r.FormValue("dry_run") == "true"
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	mapping := h.Mapping
	if mf, _, err := r.FormFile("mapping"); err == nil {
		defer mf.Close()
		data, err := io.ReadAll(mf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read mapping: "+err.Error())
			return
		}
		if mapping, err = importer.ParseMapping(data); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required: "+err.Error())
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		writeError(w, http.StatusBadRequest, "only .xlsx files are accepted")
		return
	}

	sum, impErr := importer.ImportAssets(r.Context(), RegistrySink(h.Assets, p.UserID), file, importer.ImportOptions{
		Mapping:   mapping,
		DryRun:    dryRun,
		MaxErrors: maxErrors,
	})
	if impErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "import failed",
			"details": impErr.Error(),
			"data":    sum, // might include partial
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	return strings.HasSuffix(strings.ToLower(h.Filename), ".xlsx")
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
