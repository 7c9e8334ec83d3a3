package users

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	minNameLength     = 2
	maxNameLength     = 64
	maxEmailLength    = 254
	minPasswordLength = 8
	maxPasswordLength = 72
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

type Validator struct {
	fields []FieldError
}

func (v *Validator) add(field, message string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: message})
}

func (v *Validator) Name(value string) {
	value = strings.TrimSpace(value)
	n := utf8.RuneCountInString(value)
	if n < minNameLength {
		v.add("name", "name must be at least 2 characters")
		return
	}
	if n > maxNameLength || !utf8.ValidString(value) {
		v.add("name", "name is invalid")
	}
}

func (v *Validator) Email(value string) {
	value = strings.TrimSpace(value)
	if len(value) > maxEmailLength || !emailRegex.MatchString(value) {
		v.add("email", "invalid email format")
	}
}

// Password enforces 8..72 characters (bcrypt input limit) with at least one
// lowercase letter, one uppercase letter and one digit.
func (v *Validator) Password(value string) {
	if len(value) < minPasswordLength || len(value) > maxPasswordLength {
		v.add("password", "password must be between 8 and 72 characters long")
		return
	}

	var lower, upper, digit bool
	for _, r := range value {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		v.add("password", "password must contain at least one uppercase letter, one lowercase letter, and one number")
	}
}

func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, field+" is required")
	}
}

// Err returns nil when every check passed.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
