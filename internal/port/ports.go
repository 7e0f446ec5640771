// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
)

// CustomerStore is the persistence capability the customer workflow needs.
// Implemented by the Postgres adapter and by the in-memory store.
//
// Lookups that find nothing return (nil, nil). Writes that violate the
// email or CPF uniqueness constraint return *domain.ErrDuplicateKey.
type CustomerStore interface {
	ExistsByCPF(ctx context.Context, cpf string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	FindByID(ctx context.Context, id int64) (*domain.Customer, error)
	FindByCPF(ctx context.Context, cpf string) (*domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (*domain.Customer, error)

	// Create assigns ID, CreatedAt and UpdatedAt on c.
	Create(ctx context.Context, c *domain.Customer) error
	// Update overwrites every mutable column. Returns false when id is unknown.
	Update(ctx context.Context, c *domain.Customer) (bool, error)
	// DeleteByID hard-deletes a row. Returns false when id is unknown.
	DeleteByID(ctx context.Context, id int64) (bool, error)

	// List returns customers ordered by id together with the total count.
	List(ctx context.Context, page domain.PageRequest) ([]domain.Customer, int64, error)
	// SearchByName matches a case-insensitive substring of the name, ordered by id.
	SearchByName(ctx context.Context, fragment string, page domain.PageRequest) ([]domain.Customer, int64, error)

	Ping(ctx context.Context) error
}

// PasswordHasher performs one-way credential hashing and verification.
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

// TokenIssuer issues and validates signed bearer tokens.
type TokenIssuer interface {
	Issue(subject string) (string, error)
	Validate(token string) (*domain.TokenClaims, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, key string)
}
