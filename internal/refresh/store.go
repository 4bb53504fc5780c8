package refresh

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/Skotchmaster/scenario_manager/internal/repo"
)

var ErrReused = errors.New("refresh token was already rotated")

// Store keeps a one-way digest of the user's current refresh token on the
// identity record. A user has at most one active refresh token.
type Store struct {
	Users repo.UserRepo
}

func New(users repo.UserRepo) *Store {
	return &Store{Users: users}
}

// Digest is hex(sha256(token)). JWTs are longer than bcrypt's 72 byte input
// limit, and the token already carries enough entropy for a fast hash.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Store) Store(ctx context.Context, userID, token string) error {
	h := Digest(token)
	return s.Users.SetRefreshHash(ctx, userID, &h)
}

// Verify reports whether token is the user's active refresh token.
// A user with no active token never matches.
func (s *Store) Verify(ctx context.Context, userID, token string) (bool, error) {
	u, err := s.Users.GetUserById(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.RefreshTokenHash == nil {
		return false, nil
	}
	got := Digest(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(*u.RefreshTokenHash)) == 1, nil
}

// Rotate replaces presented with next only if presented is still the active
// token. Of two concurrent rotations of the same token exactly one succeeds;
// the other gets ErrReused.
func (s *Store) Rotate(ctx context.Context, userID, presented, next string) error {
	ok, err := s.Users.SwapRefreshHash(ctx, userID, Digest(presented), Digest(next))
	if err != nil {
		return err
	}
	if !ok {
		return ErrReused
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, userID string) error {
	return s.Users.SetRefreshHash(ctx, userID, nil)
}
