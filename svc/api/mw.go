package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"superpaste/cfg"
	"superpaste/svc/util"
)

type Mw struct {
	cfg    cfg.EmuCfg
	tokens []string
	mu     sync.Mutex
	counts map[string]int
}

func NewMw(c cfg.EmuCfg) *Mw {
	return &Mw{cfg: c, counts: make(map[string]int)}
}

// RequestID keeps a client-sent X-Request-ID and mints one otherwise.
func (m *Mw) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(util.RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = util.NewRequestID()
		}
		ctx := util.SetRequestID(r.Context(), requestID)
		w.Header().Set(util.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Mw) ContextTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), m.cfg.ContextTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Mw) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := util.GetRequestID(r.Context())
				util.Error().
					Interface("panic", rvr).
					Str("request_id", requestID).
					Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"message":    "internal server error",
					"request_id": requestID,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Count tallies requests per matched route.
func (m *Mw) Count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		m.mu.Lock()
		m.counts[r.Method+" "+pattern]++
		m.mu.Unlock()
	})
}

// known reports whether tok is one of the configured tokens.
func (m *Mw) known(tok string) bool {
	for _, t := range m.tokens {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(t)) == 1 {
			return true
		}
	}
	return false
}

func (m *Mw) count(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[route]
}

// OptionalBearer rejects a bearer token that does not match the configured
// one. Requests without a token pass.
func (m *Mw) OptionalBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if len(m.tokens) == 0 || auth == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !m.known(got) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid token."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PasteEEAuth requires a known token as basic-auth user when tokens are set.
// The token becomes the owner of pastes created with it.
func (m *Mw) PasteEEAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.tokens) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		user, _, ok := r.BasicAuth()
		if !ok || !m.known(user) {
			writeJSON(w, http.StatusUnauthorized, pasteEEErr("Invalid API key."))
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), user)))
	})
}

type ownerKey struct{}

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func ownerFrom(ctx context.Context) string {
	s, _ := ctx.Value(ownerKey{}).(string)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
