package state

// Phase はキャプチャセッションの段階
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseConfiguring Phase = "configuring"
	PhaseRunning     Phase = "running"
)

// ValidTransition は from から to への遷移が許されるかを返す
func ValidTransition(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseConfiguring
	case PhaseConfiguring:
		return to == PhaseRunning || to == PhaseIdle
	case PhaseRunning:
		return to == PhaseIdle || to == PhaseConfiguring
	default:
		return false
	}
}
