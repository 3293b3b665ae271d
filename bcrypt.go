package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher is the PasswordAuthenticator backed by bcrypt.
type BcryptHasher struct {
	cost int
}

var _ PasswordAuthenticator = BcryptHasher{}

// NewBcryptHasher clamps cost into the bcrypt range; 0 selects the default.
func NewBcryptHasher(cost int) BcryptHasher {
	cost = clampBcryptCost(cost)
	if ceiling := passwordHashCostCeiling(); cost > ceiling {
		cost = ceiling
	}
	return BcryptHasher{cost: cost}
}

// Cost returns the effective work factor.
func (h BcryptHasher) Cost() int {
	if h.cost == 0 {
		return defaultBcryptCost
	}
	return h.cost
}

// HashPassword will generate a password hash
func (h BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(out), nil
}

// ComparePasswordAndHash returns ErrInvalidPassword on mismatch. Any other
// failure, such as a corrupt hash, is returned as an internal error.
func (h BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
}

// HashPassword hashes with the default cost.
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(0).HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return BcryptHasher{}.ComparePasswordAndHash(password, hash)
}
