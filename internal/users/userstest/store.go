// Package userstest provides an in-memory users.Store for tests.
package userstest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-backend/internal/users"
)

type Store struct {
	mu    sync.Mutex
	byID  map[string]users.User
	Err   error
	Calls int
}

var _ users.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{byID: make(map[string]users.User)}
}

func (s *Store) enter() error {
	s.Calls++
	return s.Err
}

func (s *Store) Create(_ context.Context, input users.NewUser) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return users.User{}, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	for _, u := range s.byID {
		if u.Email == email {
			return users.User{}, &users.DuplicateError{Field: "email"}
		}
		if u.Name == input.Name {
			return users.User{}, &users.DuplicateError{Field: "name"}
		}
	}

	role := input.Role
	if role == "" {
		role = users.DefaultRole
	}
	now := time.Now().UTC()
	u := users.User{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        email,
		PasswordHash: input.PasswordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	return u, nil
}

func (s *Store) FindByID(_ context.Context, id string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return users.User{}, err
	}

	u, ok := s.byID[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return users.User{}, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (s *Store) FindByEmailOrName(_ context.Context, email, name string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return users.User{}, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	var byName *users.User
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
		if u.Name == name {
			found := u
			byName = &found
		}
	}
	if byName != nil {
		return *byName, nil
	}
	return users.User{}, users.ErrNotFound
}

func (s *Store) Update(_ context.Context, id string, input users.ProfileUpdate) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return users.User{}, err
	}

	u, ok := s.byID[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		for otherID, other := range s.byID {
			if otherID != id && other.Name == name {
				return users.User{}, &users.DuplicateError{Field: "name"}
			}
		}
		u.Name = name
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		for otherID, other := range s.byID {
			if otherID != id && other.Email == email {
				return users.User{}, &users.DuplicateError{Field: "email"}
			}
		}
		u.Email = email
	}
	u.UpdatedAt = time.Now().UTC()
	s.byID[id] = u
	return u, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}

	if _, ok := s.byID[id]; !ok {
		return users.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return false, err
	}

	_, ok := s.byID[id]
	return ok, nil
}

// Put inserts or replaces a record directly, bypassing uniqueness checks.
func (s *Store) Put(u users.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.ID] = u
}

// ErrUnavailable is a convenience value for Store.Err.
var ErrUnavailable = errors.New("store unavailable")
