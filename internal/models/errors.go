package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the desk core. None of them are fatal to a running session.
var (
	// ErrNetworkFailure is returned when a request to the store did not complete
	ErrNetworkFailure = errors.New("network failure")

	// ErrMalformedSnapshot is returned when a read payload is not a list of records
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrUnauthenticated is returned when a mutation is attempted with no current operator
	ErrUnauthenticated = errors.New("no operator selected")

	// ErrRemoteRejected is returned when the store answers with an explicit failure
	ErrRemoteRejected = errors.New("rejected by store")

	// ErrConfirmationDeclined is returned when the operator declines a confirmation gate
	ErrConfirmationDeclined = errors.New("confirmation declined")

	// ErrTransitionFailed is returned when a status change could not be confirmed
	ErrTransitionFailed = errors.New("status transition failed")

	// ErrRecordNotFound is returned when no record matches a creation timestamp
	ErrRecordNotFound = errors.New("withdrawal not found")

	// ErrValidation is returned when request attributes fail validation
	ErrValidation = errors.New("validation failed")
)

// RemoteRejectedError carries the store's failure message verbatim.
type RemoteRejectedError struct {
	Action  string
	Message string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Action, ErrRemoteRejected)
	}
	return fmt.Sprintf("%s: %s: %s", e.Action, ErrRemoteRejected, e.Message)
}

// Unwrap lets errors.Is match ErrRemoteRejected.
func (e *RemoteRejectedError) Unwrap() error {
	return ErrRemoteRejected
}

// RemoteMessage extracts the store message from err, if any.
func RemoteMessage(err error) string {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	return ""
}

// FailureKind names the error kind for events and metrics labels.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransitionFailed):
		return "transition"
	case errors.Is(err, ErrNetworkFailure):
		return "network"
	case errors.Is(err, ErrMalformedSnapshot):
		return "malformed"
	case errors.Is(err, ErrRemoteRejected):
		return "rejected"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrConfirmationDeclined):
		return "declined"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	default:
		return "other"
	}
}
