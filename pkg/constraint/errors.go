package constraint

import "errors"

var (
	// ErrMissingVolume is returned when a source or target volume is not on the skeleton.
	ErrMissingVolume = errors.New("collision volume not found")

	// ErrChainUnbound is returned when a chain joint has no state in the motion's pose.
	ErrChainUnbound = errors.New("constraint chain joint not animated")
)
