package services

import (
	"errors"
	"time"

	"taskify/backend/internal/config"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "taskify-backend"

// Clock is the time source used for token issuance and verification.
type Clock func() time.Time

type SessionClaims struct {
	UserID      uuid.UUID
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type TokenCodec interface {
	Issue(userID uuid.UUID, fingerprint string) (string, error)
	Decode(token string) (*SessionClaims, error)
}

type sessionJWTClaims struct {
	Fingerprint string `json:"fgp"`
	jwt.RegisteredClaims
}

type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	now    Clock
}

func NewJWTCodec(cfg config.AuthConfig, now Clock) *JWTCodec {
	if now == nil {
		now = time.Now
	}
	return &JWTCodec{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		now:    now,
	}
}

func (c *JWTCodec) Issue(userID uuid.UUID, fingerprint string) (string, error) {
	issuedAt := c.now()
	claims := sessionJWTClaims{
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the signature before any time-based claim, so a forged
// token is reported as invalid even when it is also expired.
func (c *JWTCodec) Decode(raw string) (*SessionClaims, error) {
	claims := &sessionJWTClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	userID, err := uuid.FromString(claims.Subject)
	if err != nil || claims.Fingerprint == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	return &SessionClaims{
		UserID:      userID,
		Fingerprint: claims.Fingerprint,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
