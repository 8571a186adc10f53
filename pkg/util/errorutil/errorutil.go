package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
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

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

var denialStatus = map[domain.DenialKind]int{
	domain.DenialInvalidTransition:      http.StatusUnprocessableEntity,
	domain.DenialSkipStateNotAllowed:    http.StatusUnprocessableEntity,
	domain.DenialReasonRequired:         http.StatusUnprocessableEntity,
	domain.DenialAssigneeRequired:       http.StatusUnprocessableEntity,
	domain.DenialReopenWindowExpired:    http.StatusUnprocessableEntity,
	domain.DenialForbiddenForRole:       http.StatusForbidden,
	domain.DenialNotOwnComplaint:        http.StatusForbidden,
	domain.DenialNotAssignedToActor:     http.StatusForbidden,
	domain.DenialTicketNotFound:         http.StatusNotFound,
	domain.DenialConcurrentModification: http.StatusConflict,
	domain.DenialPersistenceError:       http.StatusServiceUnavailable,
}

// FromTransitionError maps a lifecycle denial to its HTTP form. The denial
// kind is used as the error code.
func FromTransitionError(te *domain.TransitionError) *DomainError {
	status, ok := denialStatus[te.Kind]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	details := map[string]any{}
	if te.From != "" {
		details["from"] = te.From
	}
	if te.To != "" {
		details["to"] = te.To
	}
	return &DomainError{
		Code:       string(te.Kind),
		Message:    te.Kind.Message(),
		HTTPStatus: status,
		Retryable:  te.Retryable(),
		Details:    details,
		Err:        te.Err,
	}
}

// ToDomainError converts any error into a DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		return FromTransitionError(transitionErr)
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       strings.ToUpper(strings.ReplaceAll(http.StatusText(fiberErr.Code), " ", "_")),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}
	if errors.Is(err, domain.ErrUnknownStatus) || errors.Is(err, domain.ErrUnknownRole) || errors.Is(err, domain.ErrUnknownPriority) {
		return &DomainError{
			Code:       "VALIDATION_FAILED",
			Message:    err.Error(),
			HTTPStatus: http.StatusBadRequest,
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
