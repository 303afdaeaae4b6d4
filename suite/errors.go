package suite

import "errors"

var (
	// ErrUnknownPlatform is returned when a platform name is not in the profile table.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrUnknownScheduler is returned when a profile names an unsupported scheduler family.
	ErrUnknownScheduler = errors.New("unknown scheduler family")
	// ErrInvalidTask marks a malformed sweep specification.
	ErrInvalidTask = errors.New("invalid task spec")
	// ErrTemplate marks a job template that cannot be rendered.
	ErrTemplate = errors.New("invalid job template")
)
