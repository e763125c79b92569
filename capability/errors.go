package capability

import "errors"

var (
	// ErrUnknownCapability is returned by Lookup for names that were never registered.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrDuplicateCapability is returned when a name is registered twice. The
	// first registration stays in place.
	ErrDuplicateCapability = errors.New("capability already registered")
	// ErrInvalidDescriptor is returned for descriptors that break structural rules.
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")
	// ErrNilExecutor is returned when registering a descriptor without an executor.
	ErrNilExecutor = errors.New("capability has no executor")
	// ErrRegistryClosed is returned by Register after Close.
	ErrRegistryClosed = errors.New("registry closed")
)
