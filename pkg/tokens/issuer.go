package tokens

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs access and refresh tokens with two independent secrets.
type Issuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	Now func() time.Time
}

type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

func (i *Issuer) Validate() error {
	if len(i.AccessSecret) == 0 || len(i.RefreshSecret) == 0 {
		return ErrEmptySecret
	}
	if bytes.Equal(i.AccessSecret, i.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if i.AccessTTL <= 0 || i.RefreshTTL <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now().UTC()
	}
	return time.Now().UTC()
}

func (i *Issuer) IssuePair(subject, email, role string) (Pair, error) {
	now := i.now()

	access := &AccessClaims{
		Email:     email,
		Role:      role,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
			ID:      uuid.NewString(),
		},
	}
	accessToken, err := Issue(access, i.AccessSecret, i.AccessTTL, now)
	if err != nil {
		return Pair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh := &RefreshClaims{
		Email:     email,
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
			ID:      uuid.NewString(),
		},
	}
	refreshToken, err := Issue(refresh, i.RefreshSecret, i.RefreshTTL, now)
	if err != nil {
		return Pair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    access.ExpiresAt.Time,
		RefreshExp:   refresh.ExpiresAt.Time,
		ExpiresIn:    Seconds(i.AccessTTL),
	}, nil
}

func (i *Issuer) ParseAccess(token string) (*AccessClaims, error) {
	return AccessClaimsFromToken(token, i.AccessSecret)
}

func (i *Issuer) ParseRefresh(token string) (*RefreshClaims, error) {
	return RefreshClaimsFromToken(token, i.RefreshSecret)
}
