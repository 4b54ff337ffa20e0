package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/artpar/filinggate/ports"
)

// ErrDuplicateEmail is returned when creating a user whose email exists.
var ErrDuplicateEmail = errors.New("email already exists")

// UserStore is an in-memory implementation of ports.UserStore.
type UserStore struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[int64]ports.User
	byEmail map[string]int64
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[int64]ports.User),
		byEmail: make(map[string]int64),
	}
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, id int64) (ports.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return ports.User{}, ports.ErrNotFound
	}
	return u, nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (ports.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return ports.User{}, ports.ErrNotFound
	}
	return s.users[id], nil
}

// Create stores a new user. A zero ID is assigned the next sequence value.
func (s *UserStore) Create(ctx context.Context, u ports.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return 0, ErrDuplicateEmail
	}
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	if u.Status == "" {
		u.Status = ports.UserActive
	}

	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u.ID, nil
}

// Update modifies an existing user.
func (s *UserStore) Update(ctx context.Context, u ports.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[u.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if old.Email != u.Email {
		delete(s.byEmail, old.Email)
		s.byEmail[u.Email] = u.ID
	}
	s.users[u.ID] = u
	return nil
}

// List returns users ordered by ID with pagination.
func (s *UserStore) List(ctx context.Context, limit, offset int) ([]ports.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]ports.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return []ports.User{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

var _ ports.UserStore = (*UserStore)(nil)
