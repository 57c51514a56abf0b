package transport

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

func (h *BaseHandler) log(r *http.Request) *slog.Logger {
	fallback := h.Logger
	if fallback == nil {
		fallback = logger.LoggerWrapper()
	}
	if r == nil {
		return fallback
	}
	return logger.FromOr(r.Context(), fallback)
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log(nil).Error("failed to encode JSON response", "error", err)
	}
}

// HandleError renders err as an AppError envelope. Anything that is not an
// AppError becomes a 500 without leaking its message.
func (h *BaseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		h.log(r).Error("unhandled error", "error", err)
		appErr = errors.NewInternalError("internal server error", err)
	}

	status, body := appErr.ToHTTPResponse()
	if status >= http.StatusInternalServerError {
		h.log(r).Error("request failed", "status", status, "code", appErr.Code, "error", appErr.Error())
	} else {
		h.log(r).Warn("request rejected", "status", status, "code", appErr.Code, "message", appErr.GetDetailedMessage())
	}

	h.WriteJSON(w, status, body)
}

// DecodeJSON decodes an optional request body into dst. An empty body leaves
// dst untouched.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed).WithCause(err)
	}
	return nil
}

// IDParam parses a positive int64 URL parameter.
func (h *BaseHandler) IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationFieldError(name, name+" must be a positive integer", errors.ErrCodeValidationFailed)
	}
	return id, nil
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ""
	}
	return authHeader[7:]
}
