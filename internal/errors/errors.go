// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ErrContentItemNotFound is returned when no item has the given ID.
type ErrContentItemNotFound struct {
	ID uuid.UUID
}

func (e *ErrContentItemNotFound) Error() string {
	return fmt.Sprintf("content item %s not found", e.ID)
}

func NewContentItemNotFound(id uuid.UUID) error {
	return &ErrContentItemNotFound{ID: id}
}

// ErrInvalidTransition is returned when a status change is not an edge of
// the lifecycle or the item no longer is in the expected status.
type ErrInvalidTransition struct {
	ID   uuid.UUID
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("content item %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func NewInvalidTransition(id uuid.UUID, from, to string) error {
	return &ErrInvalidTransition{ID: id, From: from, To: to}
}

// ErrPayloadLocked is returned when the payload is edited outside the mutable statuses.
type ErrPayloadLocked struct {
	ID     uuid.UUID
	Status string
}

func (e *ErrPayloadLocked) Error() string {
	return fmt.Sprintf("content item %s: payload is locked in status %s", e.ID, e.Status)
}

func NewPayloadLocked(id uuid.UUID, status string) error {
	return &ErrPayloadLocked{ID: id, Status: status}
}

// ErrValidation wraps bad caller input.
var ErrValidation = errors.New("validation error")

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PublishError is the failure reported by a publisher adapter.
type PublishError struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *PublishError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s publish failed (%d): %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s publish failed: %s", e.Platform, e.Message)
}

func IsNotFound(err error) bool {
	var target *ErrContentItemNotFound
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *ErrInvalidTransition
	return errors.As(err, &target)
}

func IsPayloadLocked(err error) bool {
	var target *ErrPayloadLocked
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// HTTPStatus maps err to the response code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidTransition(err), IsPayloadLocked(err):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
