package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError. Ticket workflow
// violations map to 409/422 so clients can distinguish retryable conflicts
// from invalid requests.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}

	var transitionErr *domain.InvalidTransitionError
	switch {
	case errors.As(err, &transitionErr):
		return &DomainError{
			Code:       "INVALID_TRANSITION",
			Message:    transitionErr.Error(),
			HTTPStatus: http.StatusUnprocessableEntity,
			Details: map[string]any{
				"type": string(transitionErr.Type),
				"from": string(transitionErr.From),
				"to":   string(transitionErr.To),
			},
			Err: err,
		}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &DomainError{
			Code:       "INVALID_TRANSITION",
			Message:    err.Error(),
			HTTPStatus: http.StatusUnprocessableEntity,
			Err:        err,
		}
	case errors.Is(err, domain.ErrTicketClosed):
		return &DomainError{
			Code:       "TICKET_CLOSED",
			Message:    err.Error(),
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	case errors.Is(err, domain.ErrStalePatchset):
		return &DomainError{
			Code:       "STALE_PATCHSET",
			Message:    err.Error(),
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	case errors.Is(err, domain.ErrDuplicatePatchset):
		return &DomainError{
			Code:       "DUPLICATE_PATCHSET",
			Message:    err.Error(),
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	case errors.Is(err, domain.ErrPatchsetRegression):
		return &DomainError{
			Code:       "PATCHSET_REGRESSION",
			Message:    err.Error(),
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	case errors.Is(err, domain.ErrNoPatchset):
		return &DomainError{
			Code:       "NO_PATCHSET",
			Message:    err.Error(),
			HTTPStatus: http.StatusUnprocessableEntity,
			Err:        err,
		}
	}

	if de, ok := NewInternalError(err).(*DomainError); ok {
		de.Err = err
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
