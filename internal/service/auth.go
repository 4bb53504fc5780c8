package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/scenario_manager/internal/events"
	"github.com/Skotchmaster/scenario_manager/internal/metrics"
	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/refresh"
	"github.com/Skotchmaster/scenario_manager/internal/repo"
	"github.com/Skotchmaster/scenario_manager/pkg/hash"
	"github.com/Skotchmaster/scenario_manager/pkg/logging"
	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

const MinPasswordLength = 8

type AuthService struct {
	Users   repo.UserRepo
	Refresh *refresh.Store
	Hasher  hash.Hasher
	Issuer  *tokens.Issuer
	Events  events.Publisher
	Metrics *metrics.Metrics
	Now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func New(users repo.UserRepo, hasher hash.Hasher, issuer *tokens.Issuer, pub events.Publisher, m *metrics.Metrics) *AuthService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &AuthService{
		Users:   users,
		Refresh: refresh.New(users),
		Hasher:  hasher,
		Issuer:  issuer,
		Events:  pub,
		Metrics: m,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

type AuthResult struct {
	TokenPair
	User *models.User
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (res *AuthResult, err error) {
	defer func() { s.Metrics.AuthOp("register", err) }()

	in.Email = models.NormalizeEmail(in.Email)
	l := logging.FromContext(ctx).With("svc", "auth.register", "email", in.Email)

	if err := validateRegister(&in); err != nil {
		l.Warn("register_error", "status", 400, "reason", err.Error())
		return nil, err
	}

	pwHash, err := s.Hasher.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			l.Warn("register_error", "status", 400, "reason", "password too long")
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: pwHash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, ErrConflict
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot start session", "error", err)
		return nil, err
	}

	s.publish(ctx, events.UserRegistered, user)
	l.Info("register_successful", "user_id", user.ID, "role", user.Role)
	return &AuthResult{TokenPair: pair, User: user}, nil
}

func validateRegister(in *RegisterInput) error {
	if in.Email == "" || in.Password == "" {
		return fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if len(in.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters long", ErrValidation, MinPasswordLength)
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return fmt.Errorf("%w: invalid role", ErrValidation)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	defer func() { s.Metrics.AuthOp("login", err) }()

	email = models.NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || password == "" {
		l.Warn("login_failed", "status", 400, "reason", "email and password are required")
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			// same bcrypt work as a real mismatch
			s.Hasher.CheckPassword(s.dummy(), password)
			l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	if !s.Hasher.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot start session", "error", err)
		return nil, err
	}

	s.publish(ctx, events.UserLoggedIn, user)
	l.Info("login_successful", "user_id", user.ID)
	return &AuthResult{TokenPair: pair, User: user}, nil
}

// RefreshTokens issues a new pair for userID and rotates the stored refresh
// token. presented must be the caller's current refresh token; once it has
// been rotated or revoked it is rejected.
func (s *AuthService) RefreshTokens(ctx context.Context, userID, presented string) (res *TokenPair, err error) {
	defer func() { s.Metrics.AuthOp("refresh", err) }()

	l := logging.FromContext(ctx).With("svc", "auth.refresh", "user_id", userID)

	claims, err := s.Issuer.ParseRefresh(presented)
	if err != nil || claims.Subject != userID {
		l.Warn("refresh_failed", "status", 401, "reason", "invalid refresh token")
		return nil, ErrInvalidRefreshToken
	}

	// role is re-read so a role change applies from the next access token on
	user, err := s.Users.GetUserById(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("refresh_failed", "status", 404, "reason", "user not found")
			return nil, ErrNotFound
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	pair, err := s.Issuer.IssuePair(user.ID, user.Email, string(user.Role))
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	if err := s.Refresh.Rotate(ctx, user.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, refresh.ErrReused) {
			l.Warn("refresh_failed", "status", 401, "reason", "refresh token revoked or already used")
			return nil, ErrInvalidRefreshToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	if err := s.Users.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		l.Warn("touch_last_login_failed", "error", err)
	}

	s.publish(ctx, events.TokensRefreshed, user)
	l.Info("refresh_successful")
	return &TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// LogOut revokes the user's refresh token. Logging out twice, or logging out
// a user that no longer exists, is not an error.
func (s *AuthService) LogOut(ctx context.Context, userID string) (err error) {
	defer func() { s.Metrics.AuthOp("logout", err) }()

	if userID == "" {
		return nil
	}
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", userID)

	if err := s.Refresh.Revoke(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil
		}
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refresh token", "error", err)
		return err
	}

	s.publish(ctx, events.UserLoggedOut, &models.User{ID: userID})
	l.Info("logout_successful")
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.Users.GetUserById(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// startSession issues a pair, stores the refresh digest and stamps lastLoginAt.
func (s *AuthService) startSession(ctx context.Context, user *models.User) (TokenPair, error) {
	pair, err := s.Issuer.IssuePair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.Refresh.Store(ctx, user.ID, pair.RefreshToken); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	at := s.now()
	if err := s.Users.TouchLastLogin(ctx, user.ID, at); err != nil {
		return TokenPair{}, fmt.Errorf("touch last login: %w", err)
	}
	user.LastLoginAt = &at

	return TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, typ events.Type, user *models.User) {
	if s.Events == nil {
		return
	}
	ev := events.Event{Type: typ, UserID: user.ID, Email: user.Email, At: s.now()}
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("publish_event_failed", "type", typ, "user_id", user.ID, "error", err)
	}
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.Hasher.HashPassword(uuid.NewString())
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
