package state

import "testing"

func TestValidTransition(t *testing.T) {
	phases := []Phase{PhaseIdle, PhaseConfiguring, PhaseRunning}
	allowed := map[[2]Phase]bool{
		{PhaseIdle, PhaseConfiguring}:    true,
		{PhaseConfiguring, PhaseRunning}: true,
		{PhaseConfiguring, PhaseIdle}:    true,
		{PhaseRunning, PhaseIdle}:        true,
		{PhaseRunning, PhaseConfiguring}: true,
	}

	for _, from := range phases {
		for _, to := range phases {
			want := allowed[[2]Phase{from, to}]
			if got := ValidTransition(from, to); got != want {
				t.Errorf("ValidTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}

	if ValidTransition("bogus", PhaseIdle) {
		t.Error("unknown phase must not transition")
	}
}
