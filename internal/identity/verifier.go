// Package identity verifies bearer credentials.
//
// Verification is pure: signature plus expiry against a configured key, no
// store lookups. Whether the account behind a structurally valid credential
// is still allowed in is the session layer's problem.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "invigil/pkg/domain"
)

// Verification failure reasons. All of them collapse to an unauthenticated
// outcome at the HTTP boundary; they stay distinct so logs can tell a clock
// problem from a forgery attempt.
var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrSignatureInvalid    = errors.New("credential signature invalid")
	ErrExpired             = errors.New("credential expired")
)

// Claims are the verified assertions carried by a credential.
// Never constructed from an unverified token.
type Claims struct {
	UserID   id.UserID
	Role     string
	IssuedAt time.Time
	Expiry   time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256-signed credentials.
type Verifier struct {
	signingKey []byte
	issuer     string
}

// NewVerifier constructs a Verifier for the given signing key and issuer.
func NewVerifier(signingKey, issuer string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey), issuer: issuer}
}

// Verify checks structural validity, signature, and expiry of a raw
// credential and extracts its claims. Fails closed: on any error no partial
// claims are returned.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrSignatureInvalid
		default:
			return nil, ErrMalformedCredential
		}
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, ErrMalformedCredential
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil || subject == uuid.Nil {
		return nil, ErrMalformedCredential
	}

	out := &Claims{
		UserID: id.UserID(subject),
		Role:   claims.Role,
		Expiry: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// Issue signs a credential for the given subject. Used by login flows and
// tests; verification never depends on it.
func (v *Verifier) Issue(userID id.UserID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(v.signingKey)
}
