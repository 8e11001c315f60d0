// Package domain provides core business types and context helpers for HoverSale.
//
// Caller identity travels with each request explicitly. Services take the
// user id as an argument; the context copy exists for logging and tracing.
package domain

import (
	"context"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	// callerContextKey stores the caller identity in context.
	callerContextKey contextKey = iota

	// requestIDContextKey stores the request ID for tracing.
	requestIDContextKey
)

// Caller is the identity a request declared for itself.
type Caller struct {
	UserID string
}

// NewContextWithCaller returns a new context with the caller attached.
func NewContextWithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext retrieves the caller from context.
// Returns nil if no caller is present.
func CallerFromContext(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerContextKey).(*Caller)
	return caller
}

// UserIDFromContext retrieves the caller's user ID from context.
// Returns "" if no caller is present.
func UserIDFromContext(ctx context.Context) string {
	if caller := CallerFromContext(ctx); caller != nil {
		return caller.UserID
	}
	return ""
}

// NewContextWithRequestID returns a new context with the request ID attached.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}
