package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 32 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	svc    *service.ReconcileService
	logger *slog.Logger
}

// NewBase creates a new base handler over the reconcile service.
func NewBase(svc *service.ReconcileService, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{svc: svc, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteDomainError maps a domain error onto a status code and error body.
func (b *Base) WriteDomainError(w http.ResponseWriter, err error) {
	status, apiErr := errorResponse(err)
	if status == http.StatusInternalServerError {
		b.logger.Error("request failed", "error", err)
	}
	b.WriteError(w, status, apiErr)
}

func errorResponse(err error) (int, dto.APIError) {
	var (
		status int
		apiErr dto.APIError
	)
	switch {
	case errors.Is(err, model.ErrValidation):
		status, apiErr = http.StatusBadRequest, dto.ValidationError(err.Error())
	case errors.Is(err, model.ErrConflict):
		status, apiErr = http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, err.Error())
	case errors.Is(err, model.ErrStaleProposal):
		status, apiErr = http.StatusConflict, dto.NewAPIError(dto.ErrCodeStale, err.Error())
	case errors.Is(err, model.ErrNotFound):
		status, apiErr = http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, err.Error())
	default:
		return http.StatusInternalServerError, dto.InternalError()
	}
	if sides, ok := model.SidesOf(err); ok {
		apiErr = apiErr.WithSides(sides)
	}
	return status, apiErr
}

// DecodeJSON decodes the request body into v. An empty body leaves v
// untouched.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
