package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/scenario_manager/internal/events"
	"github.com/Skotchmaster/scenario_manager/internal/models"
	"github.com/Skotchmaster/scenario_manager/internal/repo"
	"github.com/Skotchmaster/scenario_manager/internal/service"
	pkgdb "github.com/Skotchmaster/scenario_manager/pkg/db"
	"github.com/Skotchmaster/scenario_manager/pkg/hash"
	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

type integrationEnv struct {
	db  *gorm.DB
	svc *service.AuthService
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	dsn := os.Getenv("AUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTH_TEST_DATABASE_URL is required for tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pkgdb.Open(ctx, dsn)
	require.NoError(t, err)

	rp := &repo.GormRepo{DB: db, Timeout: 5 * time.Second}
	require.NoError(t, rp.Migrate(ctx))

	issuer := &tokens.Issuer{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}

	t.Cleanup(func() {
		db.Exec("TRUNCATE TABLE users")
		_ = pkgdb.Close(db)
	})

	return &integrationEnv{
		db:  db,
		svc: service.New(rp, hash.Hasher{}, issuer, events.Nop{}, nil),
	}
}

func uniqueEmail() string {
	return "u_" + uuid.NewString() + "@example.com"
}

func TestAuthService_Register_SuccessAndConflict(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	email := uniqueEmail()

	_, err := env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.NoError(t, err)

	_, err = env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestAuthService_Login_Success_IssuesTokens(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	email := uniqueEmail()

	_, err := env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.NoError(t, err)

	res, err := env.svc.Login(ctx, email, "Secret123")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(900), res.ExpiresIn)

	accessClaims, err := env.svc.Issuer.ParseAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleUser), accessClaims.Role)
	assert.True(t, accessClaims.ExpiresAt.Time.After(time.Now().UTC()))

	refreshClaims, err := env.svc.Issuer.ParseRefresh(res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshClaims.ID)
}

func TestAuthService_Refresh_RotatesAndLogoutRevokes(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	email := uniqueEmail()

	reg, err := env.svc.Register(ctx, service.RegisterInput{Email: email, Password: "Secret123"})
	require.NoError(t, err)

	pair, err := env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.NoError(t, err)

	_, err = env.svc.RefreshTokens(ctx, reg.User.ID, reg.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)

	require.NoError(t, env.svc.LogOut(ctx, reg.User.ID))
	_, err = env.svc.RefreshTokens(ctx, reg.User.ID, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}
