// Package auth guards the administrative endpoints with static bearer
// tokens. Streamer identity is established upstream; the engine only needs
// to know that an admin call comes from an operator.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/keylock/internal/pkg/logger"
)

type contextKey struct{}

// AdminGuard checks admin bearer tokens.
type AdminGuard struct {
	operators []operator
}

type operator struct {
	name  string
	token []byte
}

// NewAdminGuard parses "name:token" entries. An entry without a name is
// recorded as operator "admin".
func NewAdminGuard(entries []string) (*AdminGuard, error) {
	g := &AdminGuard{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, token, ok := strings.Cut(e, ":")
		if !ok {
			name, token = "admin", e
		}
		if len(token) < 16 {
			return nil, fmt.Errorf("admin token for %q is shorter than 16 characters", name)
		}
		g.operators = append(g.operators, operator{name: name, token: []byte(token)})
	}
	return g, nil
}

// Enabled reports whether any token is configured.
func (g *AdminGuard) Enabled() bool {
	return g != nil && len(g.operators) > 0
}

// Operator returns the name of the operator that authenticated the request.
func Operator(ctx context.Context) string {
	name, _ := ctx.Value(contextKey{}).(string)
	return name
}

func (g *AdminGuard) authenticate(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	for _, op := range g.operators {
		if subtle.ConstantTimeCompare([]byte(token), op.token) == 1 {
			return op.name, true
		}
	}
	return "", false
}

// RequireAdmin is middleware that requires a valid admin token. With no
// tokens configured every request passes.
func (g *AdminGuard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		name, ok := g.authenticate(r)
		if !ok {
			logger.Warn("admin request rejected", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "unauthorized",
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, name)))
	})
}
