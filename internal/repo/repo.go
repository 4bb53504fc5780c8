package repo

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/scenario_manager/internal/models"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserAlreadyExist = errors.New("user already exist")
)

// DefaultTimeout bounds every identity store call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// UserRepo is the identity store. Emails passed in are expected to be normalized.
type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserById(ctx context.Context, id string) (*models.User, error)
	// SetRefreshHash overwrites the stored hash; nil clears it.
	SetRefreshHash(ctx context.Context, id string, hash *string) error
	// SwapRefreshHash replaces oldHash with newHash only if oldHash is still the stored value.
	SwapRefreshHash(ctx context.Context, id, oldHash, newHash string) (bool, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context) error
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
