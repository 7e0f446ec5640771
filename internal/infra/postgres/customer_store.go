package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const pgUniqueViolation = "23505"

const customerColumns = `id, name, email, cpf, birth_date, password_hash, created_at, updated_at`

// DB is what the store needs from a pool: queries plus health checks.
type DB interface {
	Querier
	Ping(ctx context.Context) error
}

// CustomerStore implements port.CustomerStore over the customers table.
type CustomerStore struct {
	db     DB
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewCustomerStore creates the store. Every call runs through cb.
func NewCustomerStore(db DB, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *CustomerStore {
	return &CustomerStore{db: db, cb: cb, logger: logger}
}

// ============================================================
// Lookups
// ============================================================

func (s *CustomerStore) ExistsByCPF(ctx context.Context, cpf string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ExistsByCPF")
	defer span.End()
	return s.exists(ctx, "exists_by_cpf", `SELECT EXISTS (SELECT 1 FROM customers WHERE cpf = $1)`, cpf)
}

func (s *CustomerStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ExistsByEmail")
	defer span.End()
	return s.exists(ctx, "exists_by_email", `SELECT EXISTS (SELECT 1 FROM customers WHERE email = $1)`, email)
}

func (s *CustomerStore) FindByID(ctx context.Context, id int64) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Postgres.FindByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))
	return s.findOne(ctx, "find_by_id", `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

func (s *CustomerStore) FindByCPF(ctx context.Context, cpf string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Postgres.FindByCPF")
	defer span.End()
	return s.findOne(ctx, "find_by_cpf", `SELECT `+customerColumns+` FROM customers WHERE cpf = $1`, cpf)
}

func (s *CustomerStore) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Postgres.FindByEmail")
	defer span.End()
	return s.findOne(ctx, "find_by_email", `SELECT `+customerColumns+` FROM customers WHERE email = $1`, email)
}

// ============================================================
// Writes
// ============================================================

func (s *CustomerStore) Create(ctx context.Context, c *domain.Customer) error {
	ctx, span := tracer.Start(ctx, "Postgres.Create")
	defer span.End()

	const q = `
		INSERT INTO customers (name, email, cpf, birth_date, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	return s.execute("create", func() error {
		err := s.db.QueryRow(ctx, q, c.Name, c.Email, c.CPF, c.BirthDate, c.PasswordHash).
			Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		return mapWriteError(err)
	})
}

func (s *CustomerStore) Update(ctx context.Context, c *domain.Customer) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", c.ID))

	const q = `
		UPDATE customers
		SET name = $2, email = $3, cpf = $4, birth_date = $5, password_hash = $6, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	found := true
	err := s.execute("update", func() error {
		err := s.db.QueryRow(ctx, q, c.ID, c.Name, c.Email, c.CPF, c.BirthDate, c.PasswordHash).
			Scan(&c.CreatedAt, &c.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		return mapWriteError(err)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *CustomerStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))

	var affected int64
	err := s.execute("delete", func() error {
		tag, err := s.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ============================================================
// Pages
// ============================================================

func (s *CustomerStore) List(ctx context.Context, page domain.PageRequest) ([]domain.Customer, int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.List")
	defer span.End()

	return s.findPage(ctx, "list",
		`SELECT count(*) FROM customers`,
		`SELECT `+customerColumns+` FROM customers ORDER BY id LIMIT $1 OFFSET $2`,
		page,
	)
}

func (s *CustomerStore) SearchByName(ctx context.Context, fragment string, page domain.PageRequest) ([]domain.Customer, int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.SearchByName")
	defer span.End()

	pattern := "%" + escapeLike(fragment) + "%"
	return s.findPage(ctx, "search_by_name",
		`SELECT count(*) FROM customers WHERE name ILIKE $1`,
		`SELECT `+customerColumns+` FROM customers WHERE name ILIKE $1 ORDER BY id LIMIT $2 OFFSET $3`,
		page, pattern,
	)
}

func (s *CustomerStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ============================================================
// Internal helpers
// ============================================================

// execute runs fn through the circuit breaker. Duplicate-key errors pass
// through untouched; everything else becomes ErrExternalService.
func (s *CustomerStore) execute(op string, fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}

	var dup *domain.ErrDuplicateKey
	if errors.As(err, &dup) {
		return err
	}

	s.logger.Error("postgres: operation failed",
		zap.String("operation", op),
		zap.Error(err),
	)
	return &domain.ErrExternalService{Service: "postgres/" + op, Err: err}
}

func (s *CustomerStore) exists(ctx context.Context, op, q string, arg any) (bool, error) {
	var exists bool
	err := s.execute(op, func() error {
		return s.db.QueryRow(ctx, q, arg).Scan(&exists)
	})
	return exists, err
}

func (s *CustomerStore) findOne(ctx context.Context, op, q string, arg any) (*domain.Customer, error) {
	var found *domain.Customer
	err := s.execute(op, func() error {
		c, err := scanCustomer(s.db.QueryRow(ctx, q, arg))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// findPage runs a count query and a page query. Filter args bind first;
// the page query takes LIMIT and OFFSET right after them.
func (s *CustomerStore) findPage(ctx context.Context, op, countQ, pageQ string, page domain.PageRequest, filter ...any) ([]domain.Customer, int64, error) {
	var (
		items []domain.Customer
		total int64
	)
	err := s.execute(op, func() error {
		if err := s.db.QueryRow(ctx, countQ, filter...).Scan(&total); err != nil {
			return fmt.Errorf("count: %w", err)
		}

		args := append(append([]any{}, filter...), page.Size, page.Offset())
		rows, err := s.db.Query(ctx, pageQ, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		items = make([]domain.Customer, 0, page.Size)
		for rows.Next() {
			c, err := scanCustomer(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			items = append(items, *c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.CPF, &c.BirthDate, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// mapWriteError turns unique_violation into *domain.ErrDuplicateKey.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		field := ""
		switch pgErr.ConstraintName {
		case "customers_cpf_key":
			field = "cpf"
		case "customers_email_key":
			field = "email"
		}
		return &domain.ErrDuplicateKey{Field: field, Err: err}
	}
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
