package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/scenario_manager/internal/events"
	"github.com/Skotchmaster/scenario_manager/internal/metrics"
	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/refresh"
	"github.com/Skotchmaster/scenario_manager/internal/repo"
	"github.com/Skotchmaster/scenario_manager/internal/testutil"
	"github.com/Skotchmaster/scenario_manager/pkg/hash"
	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	svc   *AuthService
	users *repo.GormRepo
	pub   *recordingPublisher
}

func newTestAuthService(t *testing.T) *testEnv {
	t.Helper()

	users := testutil.InitTestDB(t)
	pub := &recordingPublisher{}
	issuer := &tokens.Issuer{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	require.NoError(t, issuer.Validate())

	svc := New(users, hash.Hasher{Cost: hash.MinCost}, issuer, pub, metrics.New())
	return &testEnv{svc: svc, users: users, pub: pub}
}

func (env *testEnv) register(t *testing.T, email string, role models.Role) *AuthResult {
	t.Helper()
	res, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	return res
}

func TestAuthService_RegisterThenLogin(t *testing.T) {
	t.Parallel()

	for _, role := range []models.Role{models.RoleUser, models.RoleScenarioOwner, models.RoleAdmin} {
		role := role
		t.Run(string(role), func(t *testing.T) {
			t.Parallel()

			env := newTestAuthService(t)
			ctx := context.Background()

			reg := env.register(t, "Owner@Example.com", role)
			assert.Equal(t, "owner@example.com", reg.User.Email)
			assert.Equal(t, role, reg.User.Role)
			assert.NotEmpty(t, reg.User.ID)
			assert.NotEqual(t, "password123", reg.User.PasswordHash)
			require.NotNil(t, reg.User.LastLoginAt)
			assert.Equal(t, int64(3600), reg.ExpiresIn)

			res, err := env.svc.Login(ctx, "owner@example.com", "password123")
			require.NoError(t, err)
			assert.Equal(t, reg.User.ID, res.User.ID)
			assert.Equal(t, role, res.User.Role)

			claims, err := env.svc.Issuer.ParseAccess(res.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, string(role), claims.Role)
			assert.Equal(t, reg.User.ID, claims.Subject)
			assert.Equal(t, "owner@example.com", claims.Email)
		})
	}
}

func TestAuthService_Register_DefaultsToUserRole(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	res, err := env.svc.Register(context.Background(), RegisterInput{
		Email:     "plain@example.com",
		Password:  "password123",
		FirstName: " Ada ",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, res.User.Role)
	assert.Equal(t, "Ada", res.User.FirstName)
	assert.Equal(t, "Lovelace", res.User.LastName)
}

func TestAuthService_Register_Conflict(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	env.register(t, "dup@example.com", models.RoleUser)

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    "DUP@example.com",
		Password: "password123",
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestAuthService_Register_Validation(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{name: "empty email", in: RegisterInput{Email: "", Password: "password123"}},
		{name: "empty password", in: RegisterInput{Email: "a@example.com", Password: ""}},
		{name: "malformed email", in: RegisterInput{Email: "not-an-email", Password: "password123"}},
		{name: "display name email", in: RegisterInput{Email: "Bob <bob@example.com>", Password: "password123"}},
		{name: "short password", in: RegisterInput{Email: "a@example.com", Password: "short"}},
		{name: "too long password", in: RegisterInput{Email: "a@example.com", Password: strings.Repeat("x", 73)}},
		{name: "unknown role", in: RegisterInput{Email: "a@example.com", Password: "password123", Role: "player"}},
		{name: "role with different case", in: RegisterInput{Email: "a@example.com", Password: "password123", Role: "Admin"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.svc.Register(ctx, tt.in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

type failingSessionRepo struct {
	repo.UserRepo
	fail bool
}

func (r *failingSessionRepo) SetRefreshHash(ctx context.Context, id string, h *string) error {
	if r.fail {
		return errors.New("store unavailable")
	}
	return r.UserRepo.SetRefreshHash(ctx, id, h)
}

func TestAuthService_Register_SessionFailureLeavesUsableAccount(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	users := &failingSessionRepo{UserRepo: env.users, fail: true}
	env.svc.Users = users
	env.svc.Refresh = refresh.New(users)

	in := RegisterInput{Email: "half@example.com", Password: "password123"}
	_, err := env.svc.Register(ctx, in)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)

	_, err = env.users.FindByEmail(ctx, "half@example.com")
	require.NoError(t, err, "identity row is kept")

	users.fail = false
	_, err = env.svc.Register(ctx, in)
	require.ErrorIs(t, err, ErrConflict)

	res, err := env.svc.Login(ctx, "half@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, []events.Type{events.UserLoggedIn}, env.pub.types(), "no event for the failed registration")
}

func TestAuthService_Login_Validation(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "empty email", email: "", password: "secret"},
		{name: "empty password", email: "user@example.com", password: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.svc.Login(ctx, tt.email, tt.password)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	env.register(t, "known@example.com", models.RoleUser)

	_, wrongPassword := env.svc.Login(ctx, "known@example.com", "wrong-password")
	_, unknownEmail := env.svc.Login(ctx, "unknown@example.com", "password123")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthService_ExpiresInMatchesToken(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	res := env.register(t, "exp@example.com", models.RoleUser)

	claims, err := env.svc.Issuer.ParseAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.ExpiresIn, claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())
}

func TestAuthService_RefreshRotates(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	reg := env.register(t, "rot@example.com", models.RoleUser)

	pair, err := env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)
	assert.NotEqual(t, reg.AccessToken, pair.AccessToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	ok, err := env.svc.Refresh.Verify(ctx, reg.User.ID, reg.RefreshToken)
	require.NoError(t, err)
	assert.False(t, ok, "old refresh token must be invalid after rotation")

	_, err = env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = env.svc.RefreshTokens(ctx, reg.User.ID, pair.RefreshToken)
	require.NoError(t, err)
}

func TestAuthService_RefreshPicksUpRoleChange(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	reg := env.register(t, "promote@example.com", models.RoleUser)

	require.NoError(t, env.users.DB.Model(&models.User{}).
		Where("id = ?", reg.User.ID).
		Update("role", models.RoleScenarioOwner).Error)

	pair, err := env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.NoError(t, err)

	claims, err := env.svc.Issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleScenarioOwner), claims.Role)
}

func TestAuthService_LogOutRevokes(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	reg := env.register(t, "bye@example.com", models.RoleUser)

	require.NoError(t, env.svc.LogOut(ctx, reg.User.ID))
	require.NoError(t, env.svc.LogOut(ctx, reg.User.ID), "logout is idempotent")

	_, err := env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	u, err := env.users.GetUserById(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Nil(t, u.RefreshTokenHash)
	assert.NotNil(t, u.LastLoginAt)
}

func TestAuthService_LogOut_UnknownOrEmpty_NoError(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	require.NoError(t, env.svc.LogOut(context.Background(), ""))
	require.NoError(t, env.svc.LogOut(context.Background(), uuid.NewString()))
}

func TestAuthService_Refresh_InvalidToken(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com", models.RoleUser)
	bob := env.register(t, "bob@example.com", models.RoleUser)

	tests := []struct {
		name   string
		userID string
		token  string
	}{
		{name: "garbage", userID: alice.User.ID, token: "not-a-valid-jwt"},
		{name: "access token", userID: alice.User.ID, token: alice.AccessToken},
		{name: "someone else's token", userID: alice.User.ID, token: bob.RefreshToken},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.svc.RefreshTokens(ctx, tt.userID, tt.token)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		})
	}
}

func TestAuthService_Refresh_VanishedUser(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	reg := env.register(t, "gone@example.com", models.RoleUser)

	require.NoError(t, env.users.DB.Where("id = ?", reg.User.ID).Delete(&models.User{}).Error)

	_, err := env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.GetUser(ctx, reg.User.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAuthService_ConcurrentRefreshHasOneWinner(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	reg := env.register(t, "race@example.com", models.RoleUser)

	const n = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAuthService_PublishesEvents(t *testing.T) {
	t.Parallel()

	env := newTestAuthService(t)
	ctx := context.Background()
	reg := env.register(t, "events@example.com", models.RoleUser)

	_, err := env.svc.Login(ctx, "events@example.com", "password123")
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, "events@example.com", "wrong-password")
	require.Error(t, err)

	login, err := env.svc.Login(ctx, "events@example.com", "password123")
	require.NoError(t, err)
	_, err = env.svc.RefreshTokens(ctx, reg.User.ID, login.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, env.svc.LogOut(ctx, reg.User.ID))

	assert.Equal(t, []events.Type{
		events.UserRegistered,
		events.UserLoggedIn,
		events.UserLoggedIn,
		events.TokensRefreshed,
		events.UserLoggedOut,
	}, env.pub.types())
}
