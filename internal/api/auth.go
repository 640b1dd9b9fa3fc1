package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"carshine/internal/config"

	"golang.org/x/time/rate"
)

// Permission names checked against the configured API keys.
const (
	PermReadSlots     = "read:slots"
	PermReadBookings  = "read:bookings"
	PermWriteBookings = "write:bookings"
	PermAdminBookings = "admin:bookings"
)

// Identity is the caller as asserted by the auth headers. Session management
// lives upstream; the API only trusts what the gateway forwards.
type Identity struct {
	UserID string
	Email  string
	Admin  bool
}

type ctxKey int

const identityKey ctxKey = 0

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// HTTPAuth provides API-key auth, permission checks and per-key rate limiting.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := a.identityFromHeaders(r)

		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
			identity.Admin = clientAllows(client, PermAdminBookings)
		} else {
			// Без auth доверяем вызывающему целиком (локальная разработка).
			identity.Admin = true
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) identityFromHeaders(r *http.Request) Identity {
	return Identity{
		UserID: strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderUserID)),
		Email:  strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderUserEmail)),
	}
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderAPIKey))
	if apiKey == "" {
		return config.APIClientKey{}, fmt.Errorf("missing api key header")
	}

	client, ok := a.lookupClient(apiKey)
	if !ok {
		return config.APIClientKey{}, fmt.Errorf("invalid api key")
	}

	if err := a.checkPermissions(client, r); err != nil {
		return config.APIClientKey{}, err
	}

	return client, nil
}

// lookupClient scans every configured key with a constant-time compare so
// timing does not leak which prefix matched.
func (a *HTTPAuth) lookupClient(apiKey string) (config.APIClientKey, bool) {
	var (
		found  config.APIClientKey
		hasKey bool
	)
	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			found = client
			hasKey = true
		}
	}
	return found, hasKey
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if !clientAllows(client, required) {
		return errPermissionDenied
	}
	return nil
}

// Пустой список прав означает полный доступ.
func clientAllows(client config.APIClientKey, permission string) bool {
	if len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permission {
			return true
		}
	}
	return false
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return PermAdminBookings
	case strings.HasPrefix(path, "/api/v1/slots"):
		return PermReadSlots
	case strings.HasPrefix(path, "/api/v1/session"):
		return PermWriteBookings
	case strings.HasPrefix(path, "/api/v1/bookings"):
		if r.Method == http.MethodGet {
			return PermReadBookings
		}
		return PermWriteBookings
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderAPIKey)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
