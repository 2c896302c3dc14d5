// Package auth resolves bearer tokens to caller identities. Sessions are
// scoped to the caller's primary group, and the rate limiter buckets on the
// same identity.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/webgrab/webgrab/models"
)

// AnonymousIdentity is the shared rate-limit bucket for callers without a
// primary group.
const AnonymousIdentity = "__anonymous__"

// Caller is a resolved identity. The zero value is an anonymous caller
// under enabled auth: it can reach anonymous sessions only.
type Caller struct {
	// Groups in claim order; the first is the primary group.
	Groups []string

	// Authenticated is true when a valid token was presented.
	Authenticated bool

	// FullAccess marks the auth-disabled mode, where group scoping is
	// waived entirely.
	FullAccess bool
}

// PrimaryGroup returns the first group, or empty for anonymous callers.
func (c Caller) PrimaryGroup() string {
	if len(c.Groups) > 0 {
		return c.Groups[0]
	}
	return ""
}

// Identity is the rate-limit bucket key.
func (c Caller) Identity() string {
	if g := c.PrimaryGroup(); g != "" {
		return g
	}
	return AnonymousIdentity
}

// Verifier maps an opaque bearer string to a caller.
type Verifier interface {
	// Resolve verifies a token. The empty token resolves to an anonymous
	// caller, never an error; a malformed, badly signed, or expired token
	// is an AUTH_ERROR.
	Resolve(token string) (Caller, *models.ToolError)

	// Enabled reports whether tokens are being verified at all.
	Enabled() bool
}

// NewVerifier builds the process-wide verifier. With enabled=false every
// caller gets full access and tokens are ignored.
func NewVerifier(enabled bool, secret string) Verifier {
	if !enabled {
		return disabledVerifier{}
	}
	return &jwtVerifier{secret: []byte(secret)}
}

type disabledVerifier struct{}

func (disabledVerifier) Resolve(string) (Caller, *models.ToolError) {
	return Caller{FullAccess: true}, nil
}

func (disabledVerifier) Enabled() bool { return false }

// jwtVerifier validates HS256 tokens carrying a groups claim.
type jwtVerifier struct {
	secret []byte
}

type groupClaims struct {
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

func (v *jwtVerifier) Enabled() bool { return true }

func (v *jwtVerifier) Resolve(token string) (Caller, *models.ToolError) {
	if token == "" {
		return Caller{}, nil
	}
	claims := &groupClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.key,
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Caller{}, models.NewToolError(models.ErrCodeAuth, "invalid bearer token", err)
	}
	if !parsed.Valid {
		return Caller{}, models.NewToolError(models.ErrCodeAuth, "invalid bearer token", nil)
	}
	return Caller{Groups: claims.Groups, Authenticated: true}, nil
}

func (v *jwtVerifier) key(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return v.secret, nil
}
