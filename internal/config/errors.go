package config

import "fmt"

// FieldError names the offending field so the CLI can point the operator at
// the exact line to fix.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

func mirrorField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Mirror[].%s", field)
	}
	return fmt.Sprintf("Mirror[%s].%s", name, field)
}
