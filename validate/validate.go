// Package validate checks form input before anything is sent over the
// network.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 100
	MinFullNameLength = 2
	MaxFullNameLength = 100
)

// ErrInvalid matches every *Error.
var ErrInvalid = errors.New("invalid input")

// Error is a user-facing validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return ErrInvalid }

func errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email checks that s looks like an email address.
func Email(s string) error {
	if !emailPattern.MatchString(s) {
		return errorf("email", "Please enter a valid email address")
	}
	return nil
}

// Password enforces the account password rules.
func Password(s string) error {
	n := utf8.RuneCountInString(s)
	if n < MinPasswordLength {
		return errorf("password", "Password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return errorf("password", "Password must be at most %d characters", MaxPasswordLength)
	}
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter {
		return errorf("password", "Password must contain at least one letter")
	}
	if !digit {
		return errorf("password", "Password must contain at least one number")
	}
	return nil
}

// FullName checks a display name.
func FullName(s string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < MinFullNameLength || n > MaxFullNameLength {
		return errorf("full_name", "Full name must be between %d and %d characters", MinFullNameLength, MaxFullNameLength)
	}
	return nil
}

// Login checks the login form. Only presence is required; the server
// decides whether the credentials are right.
func Login(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return errorf("", "Please enter email and password")
	}
	return nil
}

// Registration checks the registration form, including the password
// confirmation.
func Registration(email, password, confirm, fullName string) error {
	if strings.TrimSpace(email) == "" || password == "" || confirm == "" || strings.TrimSpace(fullName) == "" {
		return errorf("", "Please fill in all fields")
	}
	if password != confirm {
		return errorf("confirm", "Passwords do not match")
	}
	return Account(email, password, fullName)
}

// Account checks registration fields once the confirmation has been
// handled.
func Account(email, password, fullName string) error {
	if err := Email(email); err != nil {
		return err
	}
	if err := Password(password); err != nil {
		return err
	}
	return FullName(fullName)
}
