package driver

import "time"

// Config holds loop settings.
type Config struct {
	// Rate is the tick interval.
	Rate time.Duration
	// HeartbeatEvery logs loop counters every n ticks at debug level. Zero disables.
	HeartbeatEvery uint64
}

// DefaultConfig ticks at 30Hz with a heartbeat every ten seconds.
func DefaultConfig() Config {
	return Config{
		Rate:           33 * time.Millisecond,
		HeartbeatEvery: 300,
	}
}
