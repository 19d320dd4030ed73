package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialMissing is fatal for the attempt; callers must refresh credentials.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrNotConnected is returned by sends issued outside the Connected state.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectFailure marks a failed connect; the supervisor retries it.
	ErrConnectFailure = errors.New("connect failure")
	// ErrTransientDrop marks a drop of an established connection.
	ErrTransientDrop = errors.New("transient drop")
	// ErrSessionClosed is returned to waiters when the session is torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrDeliveryFailed is the sentinel behind DeliveryFailedError.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrPersistenceFailure is the sentinel behind PersistenceFailureError.
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// DomainError carries a stable code plus a message safe to show to users.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserMessage returns the message without internal details.
func (e *DomainError) UserMessage() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// DeliveryFailedError reports that a send over the live channel did not go
// through. The optimistic entry must be rolled back.
type DeliveryFailedError struct {
	Cause error
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Cause)
}

func (e *DeliveryFailedError) Unwrap() []error {
	return []error{ErrDeliveryFailed, e.Cause}
}

func NewDeliveryFailed(cause error) error {
	return &DeliveryFailedError{Cause: cause}
}

// PersistenceFailureError reports a failed write-behind to the REST store.
// The message stays visible: it was already delivered live.
type PersistenceFailureError struct {
	ClientTempID ClientTempID
	Cause        error
}

func (e *PersistenceFailureError) Error() string {
	return fmt.Sprintf("persisting message %s: %v", e.ClientTempID, e.Cause)
}

func (e *PersistenceFailureError) Unwrap() []error {
	return []error{ErrPersistenceFailure, e.Cause}
}

func NewPersistenceFailure(id ClientTempID, cause error) error {
	return &PersistenceFailureError{ClientTempID: id, Cause: cause}
}

func NewInvalidInputError(message string) error {
	return &DomainError{
		Code:    "INVALID_INPUT",
		Message: message,
		Err:     ErrInvalidInput,
	}
}

func NewNotFoundError(resourceType, name string) error {
	return &DomainError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s '%s' not found", resourceType, name),
		Err:     ErrNotFound,
	}
}

func IsCredentialMissing(err error) bool {
	return errors.Is(err, ErrCredentialMissing)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

func IsDeliveryFailed(err error) bool {
	return errors.Is(err, ErrDeliveryFailed)
}

func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
