// Package service provides the business logic layer (use cases).
// CustomerService handles registration, lookup, update and removal of
// natural-person customers.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var customerTracer = otel.Tracer("service/customer")

const (
	msgCPFTaken        = "CPF já cadastrado."
	msgEmailTaken      = "Email já cadastrado."
	msgDuplicateUnique = "CPF ou email já cadastrado."
	customerResource   = "Cliente"

	cacheStripes = 64
)

// cacheStripe guards cache writes for the ids that hash to it. gen is bumped
// on every write so a lookup that raced with it never repopulates the cache.
type cacheStripe struct {
	mu  sync.Mutex
	gen uint64
}

// CustomerService orchestrates customer CRUD over a CustomerStore.
type CustomerService struct {
	store   port.CustomerStore
	hasher  port.PasswordHasher
	cache   port.Cache[domain.Customer]
	metrics *observability.Metrics
	logger  *zap.Logger

	group   singleflight.Group
	stripes [cacheStripes]cacheStripe
	now     func() time.Time
}

// NewCustomerService creates a new customer service.
func NewCustomerService(
	store port.CustomerStore,
	hasher port.PasswordHasher,
	cache port.Cache[domain.Customer],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		store:   store,
		hasher:  hasher,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// ============================================================
// Register: POST /customers
// ============================================================

func (s *CustomerService) Register(ctx context.Context, in domain.CustomerInput) (*domain.CustomerResponse, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Register")
	defer span.End()
	defer s.observe("register", time.Now())

	now := s.now()
	normalizeInput(&in)
	if err := validateInput(&in, now); err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, 0, in.CPF, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	c := &domain.Customer{
		Name:         in.Name,
		Email:        in.Email,
		CPF:          in.CPF,
		BirthDate:    in.BirthDate.Time,
		PasswordHash: hash,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, s.storeError("register", err)
	}

	span.SetAttributes(attribute.Int64("customer.id", c.ID))
	s.metrics.IncrCustomerEvent("registered")
	s.logger.Info("customer registered",
		zap.Int64("customer_id", c.ID),
		zap.String("email", c.Email),
	)

	resp := domain.NewCustomerResponse(c, now)
	return &resp, nil
}

// ============================================================
// Update: PUT /customers/{id}
// ============================================================

// Update fully overwrites the customer, password included.
func (s *CustomerService) Update(ctx context.Context, id int64, in domain.CustomerInput) (*domain.CustomerResponse, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))
	defer s.observe("update", time.Now())

	now := s.now()
	normalizeInput(&in)
	if err := validateInput(&in, now); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError("update", err)
	}
	if existing == nil {
		return nil, notFound(id)
	}

	if err := s.ensureUnique(ctx, id, in.CPF, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	existing.Name = in.Name
	existing.Email = in.Email
	existing.CPF = in.CPF
	existing.BirthDate = in.BirthDate.Time
	existing.PasswordHash = hash

	found, err := s.store.Update(ctx, existing)
	if err != nil {
		return nil, s.storeError("update", err)
	}
	if !found {
		// deleted between lookup and write
		return nil, notFound(id)
	}
	s.invalidate(ctx, id)

	s.metrics.IncrCustomerEvent("updated")
	s.logger.Info("customer updated", zap.Int64("customer_id", id))

	resp := domain.NewCustomerResponse(existing, now)
	return &resp, nil
}

// ============================================================
// Delete: DELETE /customers/{id}
// ============================================================

func (s *CustomerService) Delete(ctx context.Context, id int64) error {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))
	defer s.observe("delete", time.Now())

	found, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return s.storeError("delete", err)
	}
	if !found {
		return notFound(id)
	}
	s.invalidate(ctx, id)

	s.metrics.IncrCustomerEvent("deleted")
	s.logger.Info("customer deleted", zap.Int64("customer_id", id))
	return nil
}

// ============================================================
// Reads
// ============================================================

// GetByID serves from cache when possible. Concurrent misses for the same
// id share one store lookup, which outlives a caller that gives up.
func (s *CustomerService) GetByID(ctx context.Context, id int64) (*domain.CustomerResponse, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.GetByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))
	defer s.observe("get_by_id", time.Now())

	key := cacheKey(id)
	if c, ok := s.cache.Get(ctx, key); ok {
		s.metrics.IncrCacheHit("customer")
		resp := domain.NewCustomerResponse(&c, s.now())
		return &resp, nil
	}
	s.metrics.IncrCacheMiss("customer")

	stripe := s.stripe(id)
	gen := stripe.generation()

	// a write bumps gen, so lookups started after it never join an older flight
	flightKey := key + "@" + strconv.FormatUint(gen, 10)
	lookupCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flightKey, func() (any, error) {
		c, err := s.store.FindByID(lookupCtx, id)
		if err != nil {
			return nil, s.storeError("get_by_id", err)
		}
		if c == nil {
			return nil, notFound(id)
		}
		stripe.setIfCurrent(gen, func() { s.cache.Set(lookupCtx, key, *c) })
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := domain.NewCustomerResponse(res.Val.(*domain.Customer), s.now())
		return &resp, nil
	}
}

// List returns one id-ordered page of customers.
func (s *CustomerService) List(ctx context.Context, page domain.PageRequest) (*domain.CustomerPage, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.List")
	defer span.End()
	defer s.observe("list", time.Now())

	page = page.Normalize()
	span.SetAttributes(attribute.Int("page", page.Page), attribute.Int("size", page.Size))

	items, total, err := s.store.List(ctx, page)
	if err != nil {
		return nil, s.storeError("list", err)
	}
	return domain.NewCustomerPage(items, total, page, s.now()), nil
}

// FindByCPF reports absence as found=false rather than an error.
func (s *CustomerService) FindByCPF(ctx context.Context, cpf string) (*domain.CustomerResponse, bool, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.FindByCPF")
	defer span.End()
	defer s.observe("find_by_cpf", time.Now())

	c, err := s.store.FindByCPF(ctx, cpf)
	return s.lookupResult(c, err, "find_by_cpf")
}

// FindByEmail reports absence as found=false rather than an error.
func (s *CustomerService) FindByEmail(ctx context.Context, email string) (*domain.CustomerResponse, bool, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.FindByEmail")
	defer span.End()
	defer s.observe("find_by_email", time.Now())

	c, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	return s.lookupResult(c, err, "find_by_email")
}

// SearchByName pages through customers whose name contains fragment,
// ignoring case.
func (s *CustomerService) SearchByName(ctx context.Context, fragment string, page domain.PageRequest) (*domain.CustomerPage, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.SearchByName")
	defer span.End()
	defer s.observe("search_by_name", time.Now())

	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "Informe parte do nome para a busca"}
	}
	page = page.Normalize()

	items, total, err := s.store.SearchByName(ctx, fragment, page)
	if err != nil {
		return nil, s.storeError("search_by_name", err)
	}
	return domain.NewCustomerPage(items, total, page, s.now()), nil
}

// ============================================================
// Internal helpers
// ============================================================

// ensureUnique rejects a CPF or email already owned by another customer.
// selfID 0 means a new registration. CPF is checked first.
func (s *CustomerService) ensureUnique(ctx context.Context, selfID int64, cpf, email string) error {
	cpfTaken, err := s.takenBy(ctx, selfID, cpf, s.store.ExistsByCPF, s.store.FindByCPF)
	if err != nil {
		return s.storeError("check_cpf", err)
	}
	if cpfTaken {
		return s.conflict("cpf", msgCPFTaken)
	}

	emailTaken, err := s.takenBy(ctx, selfID, email, s.store.ExistsByEmail, s.store.FindByEmail)
	if err != nil {
		return s.storeError("check_email", err)
	}
	if emailTaken {
		return s.conflict("email", msgEmailTaken)
	}
	return nil
}

func (s *CustomerService) takenBy(
	ctx context.Context,
	selfID int64,
	value string,
	exists func(context.Context, string) (bool, error),
	find func(context.Context, string) (*domain.Customer, error),
) (bool, error) {
	if selfID == 0 {
		return exists(ctx, value)
	}
	owner, err := find(ctx, value)
	if err != nil {
		return false, err
	}
	return owner != nil && owner.ID != selfID, nil
}

func (s *CustomerService) conflict(field, msg string) error {
	s.metrics.IncrCustomerEvent("conflict")
	s.logger.Warn("customer conflict", zap.String("field", field))
	return &domain.ErrConflict{Field: field, Message: msg}
}

// storeError maps a unique violation raised by the store to ErrConflict
// and counts infrastructure failures. Other errors are returned wrapped.
func (s *CustomerService) storeError(op string, err error) error {
	var dup *domain.ErrDuplicateKey
	if errors.As(err, &dup) {
		switch dup.Field {
		case "cpf":
			return s.conflict("cpf", msgCPFTaken)
		case "email":
			return s.conflict("email", msgEmailTaken)
		default:
			return s.conflict("", msgDuplicateUnique)
		}
	}

	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		s.metrics.IncrStoreError(op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *CustomerService) lookupResult(c *domain.Customer, err error, op string) (*domain.CustomerResponse, bool, error) {
	if err != nil {
		return nil, false, s.storeError(op, err)
	}
	if c == nil {
		return nil, false, nil
	}
	resp := domain.NewCustomerResponse(c, s.now())
	return &resp, true, nil
}

// invalidate drops the cached entry after a successful write.
func (s *CustomerService) invalidate(ctx context.Context, id int64) {
	stripe := s.stripe(id)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	stripe.gen++
	s.cache.Delete(context.WithoutCancel(ctx), cacheKey(id))
}

func (s *CustomerService) stripe(id int64) *cacheStripe {
	return &s.stripes[uint64(id)%cacheStripes]
}

func (c *cacheStripe) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *cacheStripe) setIfCurrent(gen uint64, set func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		set()
	}
}

func (s *CustomerService) observe(op string, start time.Time) {
	s.metrics.RecordOperationDuration(op, time.Since(start))
}

func notFound(id int64) error {
	return &domain.ErrNotFound{Resource: customerResource, ID: strconv.FormatInt(id, 10)}
}

func cacheKey(id int64) string {
	return "customer:" + strconv.FormatInt(id, 10)
}
