package domain

import (
	"context"
	"testing"
)

func TestCallerContext(t *testing.T) {
	t.Run("CallerFromContext returns nil when no caller", func(t *testing.T) {
		if caller := CallerFromContext(context.Background()); caller != nil {
			t.Errorf("expected nil caller, got %+v", caller)
		}
	})

	t.Run("UserIDFromContext returns empty when no caller", func(t *testing.T) {
		if id := UserIDFromContext(context.Background()); id != "" {
			t.Errorf("expected empty user id, got %q", id)
		}
	})

	t.Run("UserIDFromContext returns ID when caller set", func(t *testing.T) {
		ctx := NewContextWithCaller(context.Background(), &Caller{UserID: "user-42"})

		if id := UserIDFromContext(ctx); id != "user-42" {
			t.Errorf("expected %q, got %q", "user-42", id)
		}
	})
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if id := RequestIDFromContext(ctx); id != "" {
		t.Errorf("expected empty request id, got %q", id)
	}

	ctx = NewContextWithRequestID(ctx, "req-123")
	if id := RequestIDFromContext(ctx); id != "req-123" {
		t.Errorf("expected %q, got %q", "req-123", id)
	}
}
