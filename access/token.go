package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "cosmomed"

// ErrInvalidToken covers every bearer token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the caller of a request.
type Principal struct {
	Subject string
	Role    Role
}

// Anonymous is the principal of requests without a token.
var Anonymous = Principal{Role: GeneralUser{}}

// Claims are the JWT claims the locator reads.
type Claims struct {
	jwt.RegisteredClaims
	Role           string `json:"role"`
	RegistrationNo string `json:"registration_no,omitempty"`
}

// TokenVerifier checks HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier returns a verifier for secret. With an empty secret every
// token is rejected and only anonymous access works.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses token and returns its principal.
func (v *TokenVerifier) Verify(token string) (Principal, error) {
	if !v.Enabled() {
		return Principal{}, fmt.Errorf("%w: token authentication is not configured", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if p, ok := role.(Pharmacist); ok {
		p.RegistrationNo = claims.RegistrationNo
		role = p
	}

	return Principal{Subject: claims.Subject, Role: role}, nil
}

// Issue signs a token for subject with role, valid for ttl.
func (v *TokenVerifier) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("token authentication is not configured")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role.Name(),
	}
	if p, ok := role.(Pharmacist); ok {
		claims.RegistrationNo = p.RegistrationNo
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal in ctx, or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p.Role != nil {
		return p
	}
	return Anonymous
}
