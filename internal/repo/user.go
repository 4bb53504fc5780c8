package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/scenario_manager/internal/models"
)

type GormRepo struct {
	DB      *gorm.DB
	Timeout time.Duration
}

var _ UserRepo = (*GormRepo)(nil)

func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&models.User{})
}

func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserAlreadyExist
		}
		return tx.Create(u).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserAlreadyExist), errors.Is(err, gorm.ErrDuplicatedKey):
		// a concurrent insert that won the race trips the unique index
		return ErrUserAlreadyExist
	default:
		return fmt.Errorf("create user: %w", err)
	}
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return r.CreateUserIfNotExists(ctx, u)
}

func (r *GormRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *GormRepo) GetUserById(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormRepo) first(ctx context.Context, query string, arg any) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	var user models.User
	if err := r.DB.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *GormRepo) SetRefreshHash(ctx context.Context, id string, hash *string) error {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("refresh_token_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("set refresh hash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormRepo) SwapRefreshHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token_hash = ?", id, oldHash).
		Update("refresh_token_hash", newHash)
	if res.Error != nil {
		return false, fmt.Errorf("swap refresh hash: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_at", at)
	if res.Error != nil {
		return fmt.Errorf("touch last login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
