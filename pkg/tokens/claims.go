package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

var ErrInvalidTokenType = errors.New("invalid token type")

// Claims is implemented by the two claim bundles this package issues.
type Claims interface {
	jwt.Claims
	Type() TokenType
	stamp(issuedAt, expiresAt time.Time)
}

type AccessClaims struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"tokenType"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) Type() TokenType { return c.TokenType }

func (c *AccessClaims) stamp(issuedAt, expiresAt time.Time) {
	c.IssuedAt = jwt.NewNumericDate(issuedAt)
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)
}

// RefreshClaims deliberately carry no role; it is reloaded from the identity store on refresh.
type RefreshClaims struct {
	Email     string    `json:"email"`
	TokenType TokenType `json:"tokenType"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) Type() TokenType { return c.TokenType }

func (c *RefreshClaims) stamp(issuedAt, expiresAt time.Time) {
	c.IssuedAt = jwt.NewNumericDate(issuedAt)
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)
}

// RequireType rejects a verified bundle that was issued for a different purpose.
func RequireType(got, want TokenType) error {
	if got != want {
		return ErrInvalidTokenType
	}
	return nil
}
