// Package handler holds the JSON response and request helpers shared by the
// API and webhook handlers.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/telemetry"
)

// internalMessage replaces the message of every 5xx that is not an
// upstream condition the client can act on.
const internalMessage = "An internal error occurred. Please try again later."

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string            `json:"code"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse logs err and writes it as {"error": {...}} with the status
// its code maps to.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, nil)
}

// ErrorResponseWith is ErrorResponse with extra top-level fields next to
// "error", e.g. {"verified": false}.
func ErrorResponseWith(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	writeError(w, r, err, extra)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	if domain.IsValidationError(err) {
		extra = withField(extra, "error", errorBody{
			Code:    domain.EINVALID,
			Reason:  domain.ReasonValidation,
			Message: "Request validation failed",
			Fields:  domain.GetValidationFields(err),
		})
		logError(r, err, http.StatusBadRequest)
		WriteJSON(w, http.StatusBadRequest, extra)
		return
	}

	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	message := domain.ErrorMessage(err)
	if code == domain.EINTERNAL {
		message = internalMessage
		telemetry.CaptureErrorFromContext(r.Context(), err, map[string]interface{}{
			"op": domain.ErrorOp(err),
		})
	}

	logError(r, err, status)
	WriteJSON(w, status, withField(extra, "error", errorBody{
		Code:    code,
		Reason:  domain.ErrorReason(err),
		Message: message,
	}))
}

func withField(m map[string]any, key string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, val := range m {
		out[k] = val
	}
	out[key] = v
	return out
}

func logError(r *http.Request, err error, status int) {
	logger := middleware.GetLogger(r.Context())

	attrs := []any{
		"error", err.Error(),
		"code", domain.ErrorCode(err),
		"status", status,
	}
	if reason := domain.ErrorReason(err); reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if op := domain.ErrorOp(err); op != "" {
		attrs = append(attrs, "op", op)
	}

	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "request failed", attrs...)
	case status == http.StatusPaymentRequired:
		logger.WarnContext(r.Context(), "request failed", attrs...)
	default:
		logger.InfoContext(r.Context(), "request failed", attrs...)
	}
}

// ValidationErrorResponse writes field errors, or falls back to
// ErrorResponse for anything that is not a ValidationError.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, err)
}

// NotFoundResponse writes a 404.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// UnauthorizedResponse writes a 401.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "", "A user id is required"))
}

// ForbiddenResponse writes a 403.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource"))
}

// InternalErrorResponse logs err and writes a generic 500.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, domain.Internal(err, "", "An unexpected error occurred"))
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EGATEWAY:
		return http.StatusBadGateway // 502
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
