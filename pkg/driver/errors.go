package driver

import "errors"

var (
	// ErrDuplicate is returned when a character id is added twice.
	ErrDuplicate = errors.New("driver: duplicate character")
	// ErrUnknownCharacter is returned for ids the driver does not hold.
	ErrUnknownCharacter = errors.New("driver: unknown character")
	// ErrRunning is returned when Run is called on a running driver.
	ErrRunning = errors.New("driver: already running")
)
