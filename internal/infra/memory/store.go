// Package memory is an in-process CustomerStore used for local runs and tests.
// It enforces the same unique constraints as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
)

// Store keeps customers in maps guarded by a single RWMutex.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]domain.Customer
	byCPF   map[string]int64
	byEmail map[string]int64
	now     func() time.Time
}

// NewStore creates an empty store. IDs start at 1.
func NewStore() *Store {
	return &Store{
		nextID:  1,
		byID:    make(map[int64]domain.Customer),
		byCPF:   make(map[string]int64),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *Store) ExistsByCPF(_ context.Context, cpf string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byCPF[cpf]
	return ok, nil
}

func (s *Store) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *Store) FindByID(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) FindByCPF(_ context.Context, cpf string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCPF[cpf]
	if !ok {
		return nil, nil
	}
	c := s.byID[id]
	return &c, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	c := s.byID[id]
	return &c, nil
}

func (s *Store) Create(_ context.Context, c *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(0, c); err != nil {
		return err
	}

	now := s.now()
	c.ID = s.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	s.nextID++

	s.byID[c.ID] = *c
	s.byCPF[c.CPF] = c.ID
	s.byEmail[c.Email] = c.ID
	return nil
}

func (s *Store) Update(_ context.Context, c *domain.Customer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[c.ID]
	if !ok {
		return false, nil
	}
	if err := s.checkUnique(c.ID, c); err != nil {
		return false, err
	}

	delete(s.byCPF, old.CPF)
	delete(s.byEmail, old.Email)

	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = s.now()
	s.byID[c.ID] = *c
	s.byCPF[c.CPF] = c.ID
	s.byEmail[c.Email] = c.ID
	return true, nil
}

func (s *Store) DeleteByID(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	delete(s.byID, id)
	delete(s.byCPF, c.CPF)
	delete(s.byEmail, c.Email)
	return true, nil
}

func (s *Store) List(_ context.Context, page domain.PageRequest) ([]domain.Customer, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.sortedLocked(nil), page), int64(len(s.byID)), nil
}

func (s *Store) SearchByName(_ context.Context, fragment string, page domain.PageRequest) ([]domain.Customer, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(fragment)
	matches := s.sortedLocked(func(c *domain.Customer) bool {
		return strings.Contains(strings.ToLower(c.Name), needle)
	})
	return paginate(matches, page), int64(len(matches)), nil
}

func (s *Store) Ping(context.Context) error { return nil }

// checkUnique mirrors the cpf/email UNIQUE constraints. selfID is the row
// being updated (0 on insert).
func (s *Store) checkUnique(selfID int64, c *domain.Customer) error {
	if id, ok := s.byCPF[c.CPF]; ok && id != selfID {
		return &domain.ErrDuplicateKey{Field: "cpf"}
	}
	if id, ok := s.byEmail[c.Email]; ok && id != selfID {
		return &domain.ErrDuplicateKey{Field: "email"}
	}
	return nil
}

func (s *Store) sortedLocked(keep func(*domain.Customer) bool) []domain.Customer {
	out := make([]domain.Customer, 0, len(s.byID))
	for _, c := range s.byID {
		if keep == nil || keep(&c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func paginate(all []domain.Customer, page domain.PageRequest) []domain.Customer {
	start := page.Offset()
	if start < 0 || page.Size <= 0 || start >= len(all) {
		return []domain.Customer{}
	}
	end := len(all)
	if page.Size < end-start {
		end = start + page.Size
	}
	return all[start:end]
}
