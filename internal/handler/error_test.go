package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/hoversale/internal/domain"
)

type errorEnvelope struct {
	Verified *bool `json:"verified"`
	Error    struct {
		Code    string            `json:"code"`
		Reason  string            `json:"reason"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{domain.EGATEWAY, http.StatusBadGateway},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ErrorCodeToHTTPStatus(tt.code); got != tt.expected {
				t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.expected)
			}
		})
	}
}

func TestErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedReason string
	}{
		{
			name:           "order not found",
			err:            domain.ErrOrderNotFound.WithOp("order.get"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.ENOTFOUND,
			expectedReason: domain.ReasonOrderNotFound,
		},
		{
			name:           "empty cart",
			err:            domain.ErrEmptyCart.WithOp("order.place"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.EINVALID,
			expectedReason: domain.ReasonEmptyCart,
		},
		{
			name:           "cancel after shipping",
			err:            domain.ErrInvalidTransition.WithOp("order.cancel"),
			expectedStatus: http.StatusConflict,
			expectedCode:   domain.ECONFLICT,
			expectedReason: domain.ReasonInvalidTransition,
		},
		{
			name:           "tampered signature",
			err:            domain.ErrSignatureMismatch.WithOp("payment.verify"),
			expectedStatus: http.StatusPaymentRequired,
			expectedCode:   domain.EPAYMENT,
			expectedReason: domain.ReasonSignatureMismatch,
		},
		{
			name:           "gateway timeout is retryable",
			err:            domain.ErrGatewayTimeout.WithOp("payment.create"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   domain.EUNAVAILABLE,
			expectedReason: domain.ReasonGatewayTimeout,
		},
		{
			name:           "gateway rejection",
			err:            domain.ErrRemoteOrderCreationFailed.WithOp("payment.create"),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   domain.EGATEWAY,
			expectedReason: domain.ReasonRemoteOrderCreationFailed,
		},
		{
			name:           "forbidden",
			err:            domain.Forbidden("order.list", "not your orders"),
			expectedStatus: http.StatusForbidden,
			expectedCode:   domain.EFORBIDDEN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()

			ErrorResponse(rec, req, tt.err)

			if rec.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			env := decodeEnvelope(t, rec)
			if env.Error.Code != tt.expectedCode {
				t.Errorf("error.code = %q, want %q", env.Error.Code, tt.expectedCode)
			}
			if env.Error.Reason != tt.expectedReason {
				t.Errorf("error.reason = %q, want %q", env.Error.Reason, tt.expectedReason)
			}
			if env.Error.Message == "" {
				t.Error("error.message should not be empty")
			}
		})
	}
}

func TestErrorResponse_InternalHidesDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	rec := httptest.NewRecorder()

	err := domain.Persistence(errors.New("dial tcp 10.0.3.12:5432: connection refused"), "order.create")
	ErrorResponse(rec, req, err)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	env := decodeEnvelope(t, rec)
	expected := "An internal error occurred. Please try again later."
	if env.Error.Message != expected {
		t.Errorf("message = %q, want %q", env.Error.Message, expected)
	}
	if env.Error.Reason != domain.ReasonPersistenceFailure {
		t.Errorf("reason = %q, want %q", env.Error.Reason, domain.ReasonPersistenceFailure)
	}
}

func TestErrorResponse_PlainErrorIsInternal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, errors.New("something broke"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if env := decodeEnvelope(t, rec); env.Error.Code != domain.EINTERNAL {
		t.Errorf("error.code = %q, want %q", env.Error.Code, domain.EINTERNAL)
	}
}

func TestErrorResponseWith_ExtraFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/payments/verify", nil)
	rec := httptest.NewRecorder()

	ErrorResponseWith(rec, req, domain.ErrSignatureMismatch, map[string]any{"verified": false})

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}

	env := decodeEnvelope(t, rec)
	if env.Verified == nil || *env.Verified {
		t.Errorf("verified = %v, want false", env.Verified)
	}
	if env.Error.Reason != domain.ReasonSignatureMismatch {
		t.Errorf("error.reason = %q, want %q", env.Error.Reason, domain.ReasonSignatureMismatch)
	}
}

func TestValidationErrorResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	rec := httptest.NewRecorder()

	err := domain.NewValidationError("order.place", "paymentMethod", "must be one of COD, UPI, ONLINE")
	err = domain.AddFieldError(err, "items[0].quantity", "must be at least 1")

	ValidationErrorResponse(rec, req, err)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	env := decodeEnvelope(t, rec)
	if env.Error.Code != domain.EINVALID {
		t.Errorf("error.code = %q, want %q", env.Error.Code, domain.EINVALID)
	}
	if len(env.Error.Fields) != 2 {
		t.Errorf("fields count = %d, want 2", len(env.Error.Fields))
	}
	if env.Error.Fields["items[0].quantity"] != "must be at least 1" {
		t.Errorf("fields[items[0].quantity] = %q", env.Error.Fields["items[0].quantity"])
	}
}

func TestValidationErrorResponse_NonValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	ValidationErrorResponse(rec, req, domain.ErrOrderNotFound)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestConvenienceResponses(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(w http.ResponseWriter, r *http.Request)
		expected int
	}{
		{"NotFoundResponse", NotFoundResponse, http.StatusNotFound},
		{"UnauthorizedResponse", UnauthorizedResponse, http.StatusUnauthorized},
		{"ForbiddenResponse", ForbiddenResponse, http.StatusForbidden},
		{"InternalErrorResponse", func(w http.ResponseWriter, r *http.Request) {
			InternalErrorResponse(w, r, nil)
		}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.respond(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

			if rec.Code != tt.expected {
				t.Errorf("status = %d, want %d", rec.Code, tt.expected)
			}
		})
	}
}
