// Package api implements the HTTP surface of the relief coordination service.
package api

import (
	"net/http"
	"strings"

	"reliefops/internal/auth"
)

// getPrincipal extracts the caller from a bearer token, falling back to
// dev headers so local clients can act without minting tokens.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return pr
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	role := r.Header.Get("X-Role")
	if role == "" {
		role = "admin"
	}
	return auth.Principal{Tenant: tenant, Role: strings.ToLower(role), UnitID: r.Header.Get("X-Unit-Id")}
}

// actorOf labels audit rows with the most specific identity available.
func actorOf(p auth.Principal) string {
	if p.UnitID != "" {
		return p.UnitID
	}
	return p.Role
}
