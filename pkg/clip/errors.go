package clip

import "errors"

var (
	// ErrFetch is returned when clip bytes could not be retrieved.
	ErrFetch = errors.New("clip fetch failed")

	// ErrDecode is returned for version mismatches, truncation and invalid fields.
	ErrDecode = errors.New("clip decode failed")

	// ErrEncode is returned when a clip cannot be represented in the binary format.
	ErrEncode = errors.New("clip encode failed")

	// ErrNotFound is returned when a clip is not in the cache.
	ErrNotFound = errors.New("clip not found")

	// ErrInUse is returned when flushing a clip that still has subscribers.
	ErrInUse = errors.New("clip still referenced")

	// ErrNoAnimation is returned when a glTF document has no usable animation.
	ErrNoAnimation = errors.New("no animation in document")
)
