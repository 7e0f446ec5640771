package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/cache"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/memory"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/resilience"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================================
// Register
// ============================================================

func TestRegister_ThenGetByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, 34, created.Age)

	got, err := f.customer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)
	assert.Equal(t, "Maria Silva", got.Name)
	assert.Equal(t, "1990-05-15", got.BirthDate.Format(domain.DateLayout))
}

func TestRegister_StoresHashNotPlaintext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	stored, err := f.store.FindByEmail(ctx, "maria@email.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.PasswordHash)
	assert.NotEqual(t, "senha123", stored.PasswordHash)

	ok, err := f.hasher.Verify(ctx, "senha123", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_KeepsCPFVerbatim(t *testing.T) {
	f := newFixture(t)

	in := mariaInput(t)
	in.Name = "João Souza"
	in.Email = "joao@email.com"
	in.CPF = "98765432100"

	created, err := f.customer.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "98765432100", created.CPF)
}

func TestRegister_DuplicateCPF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	in := mariaInput(t)
	in.Email = "outra@email.com"
	_, err = f.customer.Register(ctx, in)

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "CPF já cadastrado.", conflict.Message)

	page, err := f.customer.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalElements, "no partial write")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	in := mariaInput(t)
	in.CPF = "11122233344"
	_, err = f.customer.Register(ctx, in)

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Email já cadastrado.", conflict.Message)
}

func TestRegister_CPFCheckedBeforeEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	_, err = f.customer.Register(ctx, mariaInput(t))

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "cpf", conflict.Field)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Conflicts)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.CustomerInput)
		wantField string
	}{
		{"blank name", func(in *domain.CustomerInput) { in.Name = "   " }, "name"},
		{"long name", func(in *domain.CustomerInput) { in.Name = strings.Repeat("a", 151) }, "name"},
		{"missing email", func(in *domain.CustomerInput) { in.Email = "" }, "email"},
		{"malformed email", func(in *domain.CustomerInput) { in.Email = "maria.email.com" }, "email"},
		{"short cpf", func(in *domain.CustomerInput) { in.CPF = "1234567890" }, "national_id"},
		{"formatted cpf", func(in *domain.CustomerInput) { in.CPF = "123.456.789-01" }, "national_id"},
		{"missing birth date", func(in *domain.CustomerInput) { in.BirthDate = domain.Date{} }, "birth_date"},
		{"future birth date", func(in *domain.CustomerInput) { in.BirthDate = mustDate(t, "2030-01-01") }, "birth_date"},
		{"empty password", func(in *domain.CustomerInput) { in.Password = "" }, "password"},
		{"password over 72 bytes", func(in *domain.CustomerInput) { in.Password = strings.Repeat("x", 73) }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := mariaInput(t)
			tt.mutate(&in)

			_, err := f.customer.Register(context.Background(), in)

			var validation *domain.ErrValidation
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.wantField, validation.Field)
		})
	}
}

func TestRegister_TrimsNameAndEmail(t *testing.T) {
	f := newFixture(t)

	in := mariaInput(t)
	in.Name = "  Maria Silva "
	in.Email = " maria@email.com  "

	created, err := f.customer.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", created.Name)
	assert.Equal(t, "maria@email.com", created.Email)
}

// ============================================================
// Update
// ============================================================

func TestUpdate_OverwritesAndRehashes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)
	before, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)

	in := mariaInput(t)
	in.Name = "Maria Oliveira"
	in.Email = "maria.oliveira@email.com"
	in.Password = "novaSenha"

	updated, err := f.customer.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Maria Oliveira", updated.Name)

	after, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)

	ok, err := f.hasher.Verify(ctx, "novaSenha", after.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdate_UnknownIDDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	in := mariaInput(t)
	in.Name = "Outra Pessoa"
	_, err = f.customer.Update(ctx, created.ID+100, in)

	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)

	page, err := f.customer.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Maria Silva", page.Content[0].Name)
}

func TestUpdate_KeepingOwnCPFAndEmailIsAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	_, err = f.customer.Update(ctx, created.ID, mariaInput(t))
	assert.NoError(t, err)
}

func TestUpdate_CPFOwnedByAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	joao := mariaInput(t)
	joao.Name = "João Souza"
	joao.Email = "joao@email.com"
	joao.CPF = "98765432100"
	created, err := f.customer.Register(ctx, joao)
	require.NoError(t, err)

	joao.CPF = "12345678901"
	_, err = f.customer.Update(ctx, created.ID, joao)

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "CPF já cadastrado.", conflict.Message)
}

func TestUpdate_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)
	_, err = f.customer.GetByID(ctx, created.ID) // warm the cache
	require.NoError(t, err)

	in := mariaInput(t)
	in.Name = "Maria Atualizada"
	_, err = f.customer.Update(ctx, created.ID, in)
	require.NoError(t, err)

	got, err := f.customer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Atualizada", got.Name)
}

// ============================================================
// Delete
// ============================================================

func TestDelete_ThenGetIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)
	_, err = f.customer.GetByID(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.customer.Delete(ctx, created.ID))

	_, err = f.customer.GetByID(ctx, created.ID)
	var notFound *domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDelete_UnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.customer.Delete(context.Background(), 99)

	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "99", notFound.ID)
}

func TestDelete_FreesCPFAndEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)
	require.NoError(t, f.customer.Delete(ctx, created.ID))

	_, err = f.customer.Register(ctx, mariaInput(t))
	assert.NoError(t, err)
}

// ============================================================
// Reads
// ============================================================

func TestGetByID_ServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.customer.GetByID(ctx, created.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), f.store.findByID.Load())
	snap := f.metrics.Snapshot()
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRate, 0.001)
}

func TestGetByID_ConcurrentReadsAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.customer.GetByID(ctx, created.ID)
			assert.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
		}()
	}
	wg.Wait()
}

func TestGetByID_DeleteDuringLookupDoesNotResurrect(t *testing.T) {
	store := newBlockingStore()
	svc := newCustomerService(store, observability.NewMetrics())
	ctx := context.Background()

	created, err := svc.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	store.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.GetByID(ctx, created.ID)
	}()
	<-store.entered

	require.NoError(t, svc.Delete(ctx, created.ID))
	close(store.release)
	<-done

	_, err = svc.GetByID(ctx, created.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestGetByID_UpdateDuringLookupIsNotOverwritten(t *testing.T) {
	store := newBlockingStore()
	svc := newCustomerService(store, observability.NewMetrics())
	ctx := context.Background()

	created, err := svc.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	store.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.GetByID(ctx, created.ID)
	}()
	<-store.entered

	in := mariaInput(t)
	in.Name = "Maria Oliveira"
	_, err = svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	close(store.release)
	<-done

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Oliveira", got.Name)
}

func TestGetByID_CanceledCallerDoesNotFailSharedLookup(t *testing.T) {
	store := newBlockingStore()
	svc := newCustomerService(store, observability.NewMetrics())

	created, err := svc.Register(context.Background(), mariaInput(t))
	require.NoError(t, err)

	store.arm()
	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetByID(ctx, created.ID)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		resp *domain.CustomerResponse
		err  error
	}
	second := make(chan result, 1)
	go func() {
		resp, err := svc.GetByID(context.Background(), created.ID)
		second <- result{resp, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.release)
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, created.ID, r.resp.ID)

	// the shared lookup completed and populated the cache
	calls := store.findByID.Load()
	_, err = svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, store.findByID.Load())
}

func TestList_PagesInIDOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, cpf := range []string{"00000000001", "00000000002", "00000000003"} {
		in := mariaInput(t)
		in.CPF = cpf
		in.Email = "cliente" + cpf + "@email.com"
		in.Name = []string{"Ana", "Bruno", "Carla"}[i]
		_, err := f.customer.Register(ctx, in)
		require.NoError(t, err)
	}

	page, err := f.customer.List(ctx, domain.PageRequest{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Carla", page.Content[0].Name)
}

func TestList_NormalizesPageRequest(t *testing.T) {
	f := newFixture(t)

	page, err := f.customer.List(context.Background(), domain.PageRequest{Page: -3, Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, domain.MaxPageSize, page.Size)
	assert.NotNil(t, page.Content)
}

func TestFindByCPFAndEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	got, found, err := f.customer.FindByCPF(ctx, "12345678901")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.ID, got.ID)

	got, found, err = f.customer.FindByEmail(ctx, "maria@email.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.ID, got.ID)

	_, found, err = f.customer.FindByCPF(ctx, "00000000000")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = f.customer.FindByEmail(ctx, "ninguem@email.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSearchByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.customer.Register(ctx, mariaInput(t))
	require.NoError(t, err)

	joao := mariaInput(t)
	joao.Name = "João Souza"
	joao.Email = "joao@email.com"
	joao.CPF = "98765432100"
	_, err = f.customer.Register(ctx, joao)
	require.NoError(t, err)

	page, err := f.customer.SearchByName(ctx, "SILVA", domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Maria Silva", page.Content[0].Name)

	_, err = f.customer.SearchByName(ctx, "  ", domain.PageRequest{})
	var validation *domain.ErrValidation
	assert.ErrorAs(t, err, &validation)
}

func TestRegister_StoreLevelDuplicateIsConflict(t *testing.T) {
	tests := []struct {
		field   string
		message string
	}{
		{"email", "Email já cadastrado."},
		{"cpf", "CPF já cadastrado."},
		{"", "CPF ou email já cadastrado."},
	}

	for _, tt := range tests {
		t.Run("field="+tt.field, func(t *testing.T) {
			store := &racingStore{Store: memory.NewStore(), field: tt.field}
			metrics := observability.NewMetrics()
			svc := newCustomerService(store, metrics)

			_, err := svc.Register(context.Background(), mariaInput(t))

			var conflict *domain.ErrConflict
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.message, conflict.Message)

			_, total, err := store.List(context.Background(), domain.PageRequest{Size: 10})
			require.NoError(t, err)
			assert.Equal(t, int64(0), total)
		})
	}
}

func TestUpdate_StoreLevelDuplicateIsConflict(t *testing.T) {
	mem := memory.NewStore()
	seed := newCustomerService(mem, observability.NewMetrics())
	created, err := seed.Register(context.Background(), mariaInput(t))
	require.NoError(t, err)

	svc := newCustomerService(&racingStore{Store: mem, field: "email"}, observability.NewMetrics())
	in := mariaInput(t)
	in.Email = "outra@email.com"
	_, err = svc.Update(context.Background(), created.ID, in)

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Email já cadastrado.", conflict.Message)

	stored, err := mem.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria@email.com", stored.Email)
}

// ============================================================
// Store failures
// ============================================================

func TestStoreFailureSurfacesAsExternalService(t *testing.T) {
	cfg := testAuthConfig()
	storeErr := &domain.ErrExternalService{Service: "postgres/find_by_id", Err: errors.New("connection refused")}
	store := &failingStore{Store: memory.NewStore(), err: storeErr}
	metrics := observability.NewMetrics()

	svc := service.NewCustomerService(
		store,
		service.NewBcryptHasher(cfg, resilience.NewBulkhead(1)),
		cache.New[domain.Customer](0),
		metrics,
		zap.NewNop(),
	)

	_, err := svc.GetByID(context.Background(), 1)
	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)

	_, err = svc.Register(context.Background(), mariaInput(t))
	require.ErrorAs(t, err, &ext)
}
