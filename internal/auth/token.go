package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the authenticated principal. Subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

// TokenIssuer issues and verifies bearer tokens. Verify never returns an
// error: any malformed, forged or expired token is simply not valid.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
	Verify(token string) (*Claims, bool)
}

// JWTIssuer implements TokenIssuer with HS256-signed JWTs.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time // test seam
}

// NewJWTIssuer returns an issuer signing with secret; tokens expire after ttl.
func NewJWTIssuer(secret string, ttl time.Duration) (*JWTIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	return &JWTIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (j *JWTIssuer) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("jwt subject must not be empty")
	}
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
		Email: email,
	})
	return token.SignedString(j.secret)
}

func (j *JWTIssuer) Verify(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}
