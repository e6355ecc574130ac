package registry

import "errors"

var (
	// ErrInvalidRegistration is returned when a ServiceRegistration fails
	// its static shape validation.
	ErrInvalidRegistration = errors.New("invalid service registration")
	// ErrVersionConflict is returned when an update's Version does not
	// equal the stored service's Version + 1.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnauthorized is returned when the acting permissions do not carry
	// the authority a register/unregister call requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServiceNotFound is returned by unregister and update-path register
	// calls against an id that does not exist.
	ErrServiceNotFound = errors.New("service not found")
)
