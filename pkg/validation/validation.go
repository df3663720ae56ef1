package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const layoutDate = "2006-01-02"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Error reports a rejected input field.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// IsValidation reports whether err carries a *Error.
func IsValidation(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// Trim strips surrounding whitespace from free-text input. Inner spacing
// is kept.
func Trim(s string) string {
	return strings.TrimSpace(s)
}

func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && emailRegex.MatchString(email) && len(email) <= 200
}

// OneOf reports whether v is one of the allowed values.
func OneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ISODate parses a calendar date or an RFC 3339 timestamp and returns the
// date-only YYYY-MM-DD form.
func ISODate(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(layoutDate, raw); err == nil {
		return t.Format(layoutDate), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(layoutDate), nil
	}
	return "", &Error{Field: field, Msg: "must be a date (YYYY-MM-DD)"}
}

// PositiveNumber parses raw as a number greater than zero.
func PositiveNumber(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return 0, &Error{Field: field, Msg: "must be a positive number"}
	}
	return v, nil
}
