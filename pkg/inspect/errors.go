package inspect

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-motion/pkg/driver"
)

var (
	// ErrUnknownClip is returned when a clip reference is neither an id nor a known name.
	ErrUnknownClip = errors.New("inspect: unknown clip")
	// ErrNotPlayable is returned when a clip failed to load or has no constructor.
	ErrNotPlayable = errors.New("inspect: clip cannot be played")
	// ErrNotPlaying is returned when stopping a clip that has no live instance.
	ErrNotPlaying = errors.New("inspect: clip not playing")
	// ErrUnknownCommand is returned for control messages that are not commands.
	ErrUnknownCommand = errors.New("inspect: unknown command")
)

// status maps an error to an HTTP status code.
func status(err error) int {
	switch {
	case errors.Is(err, driver.ErrUnknownCharacter), errors.Is(err, ErrUnknownClip):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotPlayable):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrNotPlaying):
		return fiber.StatusConflict
	case errors.Is(err, ErrUnknownCommand):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
