package inspect

// Config holds inspection server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8090".
	Addr string
	// PoseEvery publishes a pose frame every n ticks per character.
	PoseEvery uint64
	// CORS enables permissive cross-origin headers for browser viewers.
	CORS bool
}

// DefaultConfig listens on :8090 and streams every other tick.
func DefaultConfig() Config {
	return Config{
		Addr:      ":8090",
		PoseEvery: 2,
		CORS:      true,
	}
}
