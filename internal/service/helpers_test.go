package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/config"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/cache"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/memory"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/resilience"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/port"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Fixtures ---

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:           "test-secret",
		JWTIssuer:           "cadastro-test",
		TokenTTL:            time.Hour,
		BcryptCost:          bcrypt.MinCost,
		MaxConcurrentHashes: 4,
	}
}

type fixture struct {
	store    *countingStore
	hasher   *service.BcryptHasher
	issuer   *service.JWTIssuer
	metrics  *observability.Metrics
	customer *service.CustomerService
	auth     *service.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testAuthConfig()
	store := &countingStore{Store: memory.NewStore()}
	hasher := service.NewBcryptHasher(cfg, resilience.NewBulkhead(cfg.MaxConcurrentHashes))
	issuer, err := service.NewJWTIssuer(cfg)
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	customerSvc := service.NewCustomerService(store, hasher, cache.New[domain.Customer](time.Minute), metrics, logger)
	customerSvc.SetClock(func() time.Time { return fixedNow })

	return &fixture{
		store:    store,
		hasher:   hasher,
		issuer:   issuer,
		metrics:  metrics,
		customer: customerSvc,
		auth:     service.NewAuthService(store, hasher, issuer, metrics, logger),
	}
}

// newCustomerService builds a service over an arbitrary store with a
// real in-process cache.
func newCustomerService(store port.CustomerStore, metrics *observability.Metrics) *service.CustomerService {
	cfg := testAuthConfig()
	svc := service.NewCustomerService(
		store,
		service.NewBcryptHasher(cfg, resilience.NewBulkhead(cfg.MaxConcurrentHashes)),
		cache.New[domain.Customer](time.Minute),
		metrics,
		zap.NewNop(),
	)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func mariaInput(t *testing.T) domain.CustomerInput {
	return domain.CustomerInput{
		Name:      "Maria Silva",
		Email:     "maria@email.com",
		CPF:       "12345678901",
		BirthDate: mustDate(t, "1990-05-15"),
		Password:  "senha123",
	}
}

// --- Mocks ---

// countingStore wraps the memory store and counts FindByID calls.
type countingStore struct {
	*memory.Store
	findByID atomic.Int64
}

func (c *countingStore) FindByID(ctx context.Context, id int64) (*domain.Customer, error) {
	c.findByID.Add(1)
	return c.Store.FindByID(ctx, id)
}

// failingStore fails every call with an infrastructure error.
type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) ExistsByCPF(context.Context, string) (bool, error) { return false, f.err }
func (f *failingStore) FindByID(context.Context, int64) (*domain.Customer, error) {
	return nil, f.err
}
func (f *failingStore) FindByEmail(context.Context, string) (*domain.Customer, error) {
	return nil, f.err
}

// blockingStore parks the next FindByID after arm until release is closed.
// The lookup reports the context error it observes once released.
type blockingStore struct {
	*memory.Store
	armed    atomic.Bool
	entered  chan struct{}
	release  chan struct{}
	findByID atomic.Int64
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingStore) arm() { b.armed.Store(true) }

func (b *blockingStore) FindByID(ctx context.Context, id int64) (*domain.Customer, error) {
	b.findByID.Add(1)
	if b.armed.CompareAndSwap(true, false) {
		close(b.entered)
		<-b.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return b.Store.FindByID(ctx, id)
}

// racingStore behaves like a concurrent writer that claimed the same email
// between the uniqueness check and the write.
type racingStore struct {
	*memory.Store
	field string
}

func (r *racingStore) Create(context.Context, *domain.Customer) error {
	return &domain.ErrDuplicateKey{Field: r.field}
}

func (r *racingStore) Update(context.Context, *domain.Customer) (bool, error) {
	return false, &domain.ErrDuplicateKey{Field: r.field}
}
