package skeleton

// Priority ranks competing joint contributions. Higher wins.
type Priority int

const (
	// UseMotionPriority defers to the owning clip's base priority.
	UseMotionPriority Priority = -1
	Low               Priority = 0
	Medium            Priority = 1
	High              Priority = 2
	Higher            Priority = 3
	Highest           Priority = 4
	// Additive marks contributions layered on top of the normal blend.
	Additive Priority = 7
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case UseMotionPriority:
		return "use-motion"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Higher:
		return "higher"
	case Highest:
		return "highest"
	case Additive:
		return "additive"
	default:
		return "custom"
	}
}

// Signature returns the per-joint claim bits for p: every bit up to and
// including p is set, so a higher priority claim covers a lower one.
func (p Priority) Signature() uint8 {
	if p < 0 {
		return 0
	}
	if p > Additive {
		p = Additive
	}
	return 0xff >> (7 - uint(p))
}
