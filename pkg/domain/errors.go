package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID matches every InvalidIDError via errors.Is.
	ErrInvalidID = errors.New("invalid id")
)

// NotFoundError is returned when a lookup misses: a record id in a backend,
// a storage driver name in the factory.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "record"
	}
	return fmt.Sprintf("%s %s not found", kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidIDError is raised while constructing an entity whose id is not a
// non-empty string.
type InvalidIDError struct {
	Reason string
}

func (e InvalidIDError) Error() string { return e.Reason }

// Is lets errors.Is(err, ErrInvalidID) match.
func (e InvalidIDError) Is(target error) bool { return target == ErrInvalidID }
