package watch

// Phase is a tick's position in IDLE -> FETCHING -> PROCESSING -> NOTIFYING -> IDLE.
// A failed fetch goes straight back to IDLE.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseProcessing
	PhaseNotifying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseProcessing:
		return "processing"
	case PhaseNotifying:
		return "notifying"
	default:
		return "unknown"
	}
}
