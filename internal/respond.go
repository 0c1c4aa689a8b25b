package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"asset-lending-api/internal/lending"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names in validation errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorBody is the error payload of every endpoint
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind lending.Kind) int {
	switch kind {
	case lending.KindValidation:
		return http.StatusBadRequest
	case lending.KindNotFound:
		return http.StatusNotFound
	case lending.KindConflict:
		return http.StatusConflict
	case lending.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {message}. Causes stay in the server log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := lending.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError && kind != lending.KindPartialFailure {
		// partial failures are already logged by the event observer
		s.log.Error("request failed",
			zap.String("route", routePattern(r)),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	writeMessage(w, status, lending.PublicMessage(err))
}

// decodeJSON reads a JSON body into dst and validates it. An empty body
// decodes to the zero value when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return false
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: validationMessage(ve[0]),
			Errors:  fields,
		})
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return fmt.Sprintf("%s is required", fe.Field())
	}
	return fmt.Sprintf("invalid %s", fe.Field())
}

// idParam parses a positive integer URL parameter
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, lending.ValidationError("invalid %s", name)
	}
	return id, nil
}
