// Package security implements password hashing and bearer-token
// issuance/validation for the HTTP surface's /auth endpoints (§6).
//
// Grounded on the reference repo's internal/adapter/httpserver/auth.go:
// the password side swaps that file's hand-rolled Argon2id for
// golang.org/x/crypto/bcrypt per the spec's explicit "bcrypt-class,
// work factor >= 10" requirement (both live in the module the
// reference already depends on); the token side keeps that file's
// hand-rolled HS256 JWT technique verbatim, generalized from a
// single-admin-username subject to an arbitrary user id.
package security

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes password with bcrypt at the given cost (clamped
// to bcrypt's valid range).
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
