// Package auth provides token verification and principal extraction.
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated caller: which tenant they act in, their
// role, and the field unit they operate as (volunteers only).
type Principal struct {
	Tenant string
	Role   string // admin, coordinator, volunteer, resident
	UnitID string
}

// Verifier validates bearer tokens. Two modes:
//
//	dev  - token is "tenant:role" (or "tenant:role:unit"), no crypto
//	hmac - HS256 JWT with tenant/role/unit claims
type Verifier struct {
	Mode       string
	HMACSecret []byte
}

func NewVerifier(mode, hmacSecret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(hmacSecret)}
}

type tokenClaims struct {
	Tenant string `json:"tenant"`
	Role   string `json:"role"`
	Unit   string `json:"unit,omitempty"`
	jwt.RegisteredClaims
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		parts := strings.Split(token, ":")
		if len(parts) < 2 {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		p := Principal{Tenant: parts[0], Role: strings.ToLower(parts[1])}
		if len(parts) > 2 {
			p.UnitID = parts[2]
		}
		return p, nil
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	if claims.Tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	role := claims.Role
	if role == "" {
		role = "volunteer"
	}
	return Principal{Tenant: claims.Tenant, Role: strings.ToLower(role), UnitID: claims.Unit}, nil
}

// CanWrite reports whether the role may mutate dispatch state.
func (p Principal) CanWrite() bool {
	return p.Role == "admin" || p.Role == "coordinator"
}
