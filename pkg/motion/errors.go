package motion

import "errors"

var (
	// ErrBindingGap is logged when a clip animates a joint the skeleton lacks.
	// The channel stays inert; it never fails a motion.
	ErrBindingGap = errors.New("joint not on skeleton")

	// ErrAlreadyRegistered is returned when registering a second constructor for an id.
	ErrAlreadyRegistered = errors.New("motion already registered")
)
