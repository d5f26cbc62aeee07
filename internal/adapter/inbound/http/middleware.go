package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/Sentinel-Gate/hrgate/internal/domain/dispatch"
)

// TransportName is stored under ctxkey.TransportKey for HTTP requests.
const TransportName = "http"

// identityContextKey stores the authenticated *auth.Identity.
type identityContextKey struct{}

// Authenticator verifies a presented API key. *auth.Keyring implements it.
type Authenticator interface {
	Authenticate(rawKey string) (*auth.Identity, error)
}

// IdentityFromContext returns the caller stored by APIKeyMiddleware, or nil.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityContextKey{}).(*auth.Identity)
	return id
}

// RequestIDMiddleware extracts or generates a request ID and stores it, the
// enriched logger and the transport name in the request context.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, logger.With("request_id", requestID))
			ctx = context.WithValue(ctx, ctxkey.TransportKey{}, TransportName)

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DNSRebindingProtection validates the Origin header against an allowlist.
// Requests without an Origin header are allowed (same-origin or non-browser);
// with an empty allowlist every request carrying an Origin is refused.
func DNSRebindingProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware authenticates the caller from the Authorization bearer
// token or the X-API-Key header and stores the identity in the context.
//
// Requests without a key run as anonymous when it is non-nil (dev mode with
// no keys configured); otherwise they are refused with 401. A key that
// matches no configured hash is always refused. OPTIONS preflights pass
// through unauthenticated.
func APIKeyMiddleware(authn Authenticator, anonymous *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			logger := ctxkey.Logger(r.Context(), slog.Default())

			var caller *auth.Identity
			key := extractAPIKey(r)
			switch {
			case key != "" && authn != nil:
				id, err := authn.Authenticate(key)
				if err != nil {
					logger.Warn("api key rejected", "remote_addr", ctxkey.String(r.Context(), ctxkey.RemoteAddrKey{}))
					writeJSONRPCErrorStatus(w, http.StatusUnauthorized, nil, dispatch.ErrCodeUnauthorized, "Authentication required")
					return
				}
				caller = id
			case key == "" && anonymous != nil:
				caller = anonymous
			default:
				writeJSONRPCErrorStatus(w, http.StatusUnauthorized, nil, dispatch.ErrCodeUnauthorized, "Authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, caller)
			if l, ok := r.Context().Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
				ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, l.With("identity", caller.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// RealIPMiddleware stores the client address under ctxkey.RemoteAddrKey.
// It checks X-Forwarded-For and X-Real-IP (for reverse proxies) and falls
// back to r.RemoteAddr. Only the first X-Forwarded-For entry is used.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxkey.RemoteAddrKey{}, extractRealIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
