package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey int

const ctxKeySession ctxKey = iota

// SessionHeader echoes the session ID so that non-browser clients can
// replay it as a Bearer token.
const SessionHeader = "X-Session-ID"

const sessionMaxAge = 180 * 24 * time.Hour

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// sessionMiddleware resolves the anonymous participant session from a
// Bearer token or the session cookie, minting a new one when neither
// carries a valid ID.
func sessionMiddleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := bearerSession(r)
			if !ok {
				if c, err := r.Cookie(cookieName); err == nil && validSessionID(c.Value) {
					id, ok = c.Value, true
				}
			}
			if !ok {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(sessionMaxAge / time.Second),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionHeader, id)

			ctx := context.WithValue(r.Context(), ctxKeySession, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerSession(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || !validSessionID(token) {
		return "", false
	}
	return token, true
}

func validSessionID(s string) bool {
	return uuid.Validate(s) == nil
}

func sessionFrom(r *http.Request) string {
	return r.Context().Value(ctxKeySession).(string)
}
