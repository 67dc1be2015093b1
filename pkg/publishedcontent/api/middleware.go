package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// PreviewClaim is the JWT claim that grants access to draft content.
const PreviewClaim = "preview"

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// LoggingMiddleware logs each request with its status and duration
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			logger.InfoContext(r.Context(), "HTTP request",
				"request_id", requestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"bytes", rw.bytesWritten,
				"duration", time.Since(start),
			)
		})
	}
}

// RecoveryMiddleware recovers from panics and returns 500 error
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					id := requestID(r.Context())
					logger.ErrorContext(r.Context(), "Panic serving request", "request_id", id, "panic", rec)

					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, map[string]any{
						"error": map[string]any{
							"code":       "internal_error",
							"message":    "An internal server error occurred",
							"request_id": id,
						},
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func previewRequested(r *http.Request) bool {
	preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))
	return preview
}

// NewPreviewAuth returns the HS256 verifier for preview tokens, or nil when secret is empty.
func NewPreviewAuth(secret string) *jwtauth.JWTAuth {
	if secret == "" {
		return nil
	}
	return jwtauth.New("HS256", []byte(secret), nil)
}

// PreviewToken issues a token granting preview access.
func PreviewToken(ja *jwtauth.JWTAuth, claims map[string]interface{}) (string, error) {
	c := map[string]interface{}{PreviewClaim: true}
	for k, v := range claims {
		c[k] = v
	}
	_, token, err := ja.Encode(c)
	return token, err
}

// PreviewGate rejects ?preview=true requests that carry no valid token with the preview claim.
// Requests for published content pass through. A nil ja disables the gate.
func PreviewGate(ja *jwtauth.JWTAuth) Middleware {
	return func(next http.Handler) http.Handler {
		if ja == nil {
			return next
		}
		gate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !previewRequested(r) {
				next.ServeHTTP(w, r)
				return
			}
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				http.Error(w, "Preview requires a valid token", http.StatusUnauthorized)
				return
			}
			if allowed, _ := claims[PreviewClaim].(bool); !allowed {
				http.Error(w, "Token does not grant preview access", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie)(gate)
	}
}

// ViewMiddleware opens one view per request, published or preview per ?preview, and closes it
// when the handler returns.
func ViewMiddleware(cache *publishedcontent.Cache) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			view, err := cache.OpenView(previewRequested(r))
			if err != nil {
				http.Error(w, "Content cache unavailable: "+err.Error(), statusFor(err))
				return
			}
			defer view.Close()

			next.ServeHTTP(w, r.WithContext(publishedcontent.NewContext(r.Context(), view)))
		})
	}
}

func viewFrom(w http.ResponseWriter, r *http.Request) (*publishedcontent.View, bool) {
	view, ok := publishedcontent.FromContext(r.Context())
	if !ok {
		slog.Error("No content view in request context", "path", r.URL.Path)
		http.Error(w, "No content view", http.StatusInternalServerError)
	}
	return view, ok
}
