package hash

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt cost accepted for stored credentials.
const MinCost = 10

var ErrPasswordTooLong = errors.New("password longer than 72 bytes")

type Hasher struct {
	Cost int
}

func (h Hasher) cost() int {
	if h.Cost < MinCost {
		return MinCost
	}
	if h.Cost > bcrypt.MaxCost {
		return bcrypt.MaxCost
	}
	return h.Cost
}

// HashPassword returns a salted bcrypt hash of password.
func (h Hasher) HashPassword(password string) (string, error) {
	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}

	return string(hashbytes), nil
}

// CheckPassword reports whether password matches hash. A malformed hash is a mismatch.
func (h Hasher) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
