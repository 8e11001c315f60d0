package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/handler"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/telemetry"
)

// Header is the request header carrying the client's idempotency key.
const Header = "Idempotency-Key"

// ReplayedHeader is set on responses served from the store.
const ReplayedHeader = "Idempotent-Replayed"

const maxKeyLength = 255

// Middleware makes the wrapped handler idempotent for requests that carry
// an Idempotency-Key header. scope separates routes in the key space and
// labels the replay metric. A nil store disables the middleware.
//
// When Redis is unreachable the request runs without protection; an outage
// of the cache must not stop checkout.
func Middleware(store *Store, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(Header)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxKeyLength {
				handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "idempotency", "Idempotency-Key is too long"))
				return
			}

			logger := middleware.GetLogger(r.Context())

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					handler.ErrorResponse(w, r, domain.Errorf(domain.ETOOLARGE, "idempotency", "Request body too large"))
					return
				}
				handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "idempotency", "Could not read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := Key(scope, domain.UserIDFromContext(r.Context()), clientKey)
			fingerprint := Fingerprint([]byte(r.Method), []byte(r.URL.Path), body)

			stored, err := store.Begin(r.Context(), key, fingerprint)
			switch {
			case errors.Is(err, ErrInProgress):
				handler.ErrorResponse(w, r, domain.Errorf(domain.ECONFLICT, "idempotency", "A request with this Idempotency-Key is still being processed"))
				return
			case errors.Is(err, ErrFingerprintMismatch):
				handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "idempotency", "Idempotency-Key was already used for a different request"))
				return
			case err != nil:
				logger.Warn("idempotency store unavailable, continuing without it", "error", err)
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				logger.Info("replaying stored response", "scope", scope, "status", stored.Status)
				telemetry.Business.IdempotentReplay(scope)
				replay(w, stored)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The client may already be gone; the record must still land.
			ctx := context.WithoutCancel(r.Context())
			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					logger.Warn("failed to release idempotency key", "error", err)
				}
				return
			}
			err = store.Complete(ctx, key, Response{
				Fingerprint: fingerprint,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				logger.Warn("failed to store idempotent response", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// recorder tees the response so it can be stored after the handler returns.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
