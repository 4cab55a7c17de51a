package server

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aafreen2203/SafePostAI/internal/requestctx"
)

// AnonymousCaller is the caller label used when no API keys are configured.
const AnonymousCaller = "anonymous"

// RequestIDMiddleware copies chi's request id into the request context and
// echoes it in X-Request-ID. It must run after middleware.RequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id != "" {
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(requestctx.SetRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware accepts X-SafePost-Key or Authorization: Bearer <key> and
// records the key's label as the caller. apiKeys maps key -> label. With no
// keys configured every request passes as AnonymousCaller.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(apiKeys) == 0 {
				next.ServeHTTP(w, r.WithContext(requestctx.SetCaller(r.Context(), AnonymousCaller)))
				return
			}
			key := r.Header.Get("X-SafePost-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			caller := ""
			if key != "" {
				for k, label := range apiKeys {
					if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
						caller = label
						break
					}
				}
			}
			if caller == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.SetCaller(r.Context(), caller)))
		})
	}
}

// RateLimitMiddleware answers 429 when the caller (or, for anonymous callers,
// the client address) is over its limit.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := requestctx.Caller(r.Context())
			if caller == "" || caller == AnonymousCaller {
				caller = clientAddr(r)
			}
			if !rl.Allow(caller) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CORSMiddleware sets CORS headers for the browser extension. allowedOrigins
// may contain "*".
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-SafePost-Key")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
