package users

import (
	"context"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// Update applies a partial profile change. Empty updates return the current profile.
func (s *Service) Update(ctx context.Context, id string, input ProfileUpdate) (Profile, error) {
	var v Validator
	if input.Name != nil {
		v.Name(*input.Name)
	}
	if input.Email != nil {
		v.Email(*input.Email)
	}
	if err := v.Err(); err != nil {
		return Profile{}, err
	}

	if input.Name == nil && input.Email == nil {
		return s.Get(ctx, id)
	}

	user, err := s.store.Update(ctx, id, input)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}
