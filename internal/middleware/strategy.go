package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/refresh"
	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

// ErrUnauthenticated wraps every reason a bearer token is refused.
var ErrUnauthenticated = errors.New("unauthenticated")

type Principal struct {
	UserID string
	Email  string
	Role   models.Role
}

type Strategy interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// AccessStrategy accepts only access tokens signed with the access secret.
type AccessStrategy struct {
	Issuer *tokens.Issuer
}

func (s AccessStrategy) Verify(_ context.Context, token string) (*Principal, error) {
	claims, err := s.Issuer.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return &Principal{UserID: claims.Subject, Email: claims.Email, Role: models.Role(claims.Role)}, nil
}

// RefreshStrategy accepts only refresh tokens that are still the user's
// active one. The principal carries no role.
type RefreshStrategy struct {
	Issuer *tokens.Issuer
	Store  *refresh.Store
}

func (s RefreshStrategy) Verify(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.Issuer.ParseRefresh(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	ok, err := s.Store.Verify(ctx, claims.Subject, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: refresh token revoked or rotated", ErrUnauthenticated)
	}
	return &Principal{UserID: claims.Subject, Email: claims.Email}, nil
}
