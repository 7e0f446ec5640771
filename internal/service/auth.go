package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const msgInvalidCredentials = "Credenciais inválidas"

// dummyPassword feeds the hash compared against when the email is unknown.
const dummyPassword = "cadastro-clientes-pf/unknown-user"

// AuthService verifies credentials and issues bearer tokens.
type AuthService struct {
	store   port.CustomerStore
	hasher  port.PasswordHasher
	tokens  port.TokenIssuer
	metrics *observability.Metrics
	logger  *zap.Logger

	dummyMu   sync.Mutex
	dummyHash string
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.CustomerStore, hasher port.PasswordHasher, tokens port.TokenIssuer, metrics *observability.Metrics, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		metrics: metrics,
		logger:  logger,
	}
}

// ============================================================
// Authenticate: POST /auth/login
// ============================================================

// Authenticate returns a signed token when email and password match a
// stored customer. Unknown email and wrong password yield the same error
// after the same amount of bcrypt work.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	email = strings.TrimSpace(email)

	c, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	hash := ""
	if c != nil {
		hash = c.PasswordHash
	} else {
		if hash, err = s.fallbackHash(ctx); err != nil {
			return "", fmt.Errorf("authenticate: %w", err)
		}
	}

	ok, err := s.hasher.Verify(ctx, password, hash)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if c == nil || !ok {
		s.metrics.IncrLogin("failure")
		s.logger.Warn("login: invalid credentials", zap.String("email", email))
		return "", &domain.ErrUnauthorized{Message: msgInvalidCredentials}
	}

	token, err := s.tokens.Issue(c.Email)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	s.metrics.IncrLogin("success")
	s.logger.Info("customer logged in",
		zap.Int64("customer_id", c.ID),
		zap.String("email", c.Email),
	)
	return token, nil
}

// ValidateToken is used by the bearer-token middleware.
func (s *AuthService) ValidateToken(token string) (*domain.TokenClaims, error) {
	return s.tokens.Validate(token)
}

// fallbackHash is computed on first use with the configured cost and kept
// once it succeeds.
func (s *AuthService) fallbackHash(ctx context.Context) (string, error) {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyHash != "" {
		return s.dummyHash, nil
	}
	hash, err := s.hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return "", err
	}
	s.dummyHash = hash
	return hash, nil
}
