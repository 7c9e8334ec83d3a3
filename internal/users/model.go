package users

import (
	"errors"
	"time"
)

const DefaultRole = "user"

// User is the stored identity record. PasswordHash never leaves this package
// except through the Store interface used by the session service.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the sanitized representation returned to clients.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

// ProfileUpdate carries a partial update; nil fields keep their stored value.
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

var ErrNotFound = errors.New("user not found")

// DuplicateError reports a unique-constraint collision on Field ("email" or "name").
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	if e.Field == "name" {
		return "name already taken"
	}
	return e.Field + " already registered"
}
