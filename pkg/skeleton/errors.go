package skeleton

import "errors"

var (
	// ErrDuplicateJoint is returned when a joint or volume name is reused.
	ErrDuplicateJoint = errors.New("duplicate joint name")

	// ErrBadParent is returned when a parent index does not precede the child.
	ErrBadParent = errors.New("invalid parent joint")

	// ErrUnknownJoint is returned when a joint index is out of range.
	ErrUnknownJoint = errors.New("unknown joint")
)
