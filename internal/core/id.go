package core

import (
	"github.com/google/uuid"

	"graphsync/pkg/domain"
)

func newID() string { return uuid.NewString() }

func validateID(v any) (string, error) {
	id, ok := v.(string)
	if !ok {
		return "", domain.InvalidIDError{Reason: "id must be a string"}
	}
	if id == "" {
		return "", domain.InvalidIDError{Reason: "id cannot be empty"}
	}
	return id, nil
}
