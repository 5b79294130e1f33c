package controller

// Config holds controller tuning.
type Config struct {
	// TimeStep quantizes controller time when non-zero. Motions are then
	// evaluated once per step and the blender interpolates in between.
	TimeStep float32

	// MaxInstances caps loaded motions that are neither active nor loading.
	MaxInstances int

	// SkipClaimed skips evaluating full-weight motions whose joints are all
	// claimed by earlier motions of equal or higher priority.
	SkipClaimed bool

	// FadeTimeConstant is the half-life of level-of-detail fades, in seconds.
	FadeTimeConstant float32
}

// DefaultConfig returns the standard controller settings.
func DefaultConfig() Config {
	return Config{
		TimeStep:         0,
		MaxInstances:     32,
		SkipClaimed:      true,
		FadeTimeConstant: 0.15,
	}
}
