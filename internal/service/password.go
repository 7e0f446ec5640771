package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/config"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/resilience"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements port.PasswordHasher. Hash and Verify share a
// bulkhead so a burst of logins cannot pin every CPU on bcrypt.
type BcryptHasher struct {
	cost     int
	bulkhead *resilience.Bulkhead
}

// NewBcryptHasher reads the cost from cfg. Out-of-range costs fall back
// to bcrypt.DefaultCost.
func NewBcryptHasher(cfg *config.AuthConfig, bulkhead *resilience.Bulkhead) *BcryptHasher {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost, bulkhead: bulkhead}
}

func (h *BcryptHasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.bulkhead.Acquire(ctx); err != nil {
		return "", err
	}
	defer h.bulkhead.Release()

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A mismatch is (false, nil).
func (h *BcryptHasher) Verify(ctx context.Context, plain, hash string) (bool, error) {
	if err := h.bulkhead.Acquire(ctx); err != nil {
		return false, err
	}
	defer h.bulkhead.Release()

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}
