// Package tenant carries the company scope that isolates one account's data.
package tenant

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidScope indicates a missing or non-numeric tenant identifier.
var ErrInvalidScope = errors.New("tenant: scope must be a positive number")

// Scope identifies one company account. It is an opaque filter key and is
// always passed explicitly to persistence and catalog calls.
type Scope int64

// Parse reads a scope from request input.
func Parse(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidScope
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidScope
	}
	scope := Scope(id)
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	return scope, nil
}

// Validate reports whether the scope is present.
func (s Scope) Validate() error {
	if s <= 0 {
		return ErrInvalidScope
	}
	return nil
}

// String formats the scope for logs and cache keys.
func (s Scope) String() string {
	return strconv.FormatInt(int64(s), 10)
}
