// Package policy applies deterministic nudges to the control state based on
// the turn reward. It is the adaptation step of the control loop; there is
// no learned component.
package policy

import "github.com/MissVz/EQiLevel/internal/mcp"

// Update returns a new control state with reward-driven nudges applied.
// The input is never mutated; the orchestrator relies on this to re-derive
// the final state from the original baseline without compounding nudges.
// Thresholds are non-overlapping: reward < 0 eases off, reward > 0.5
// raises the challenge, everything in between leaves the state untouched.
func Update(state mcp.ControlState, reward float64) mcp.ControlState {
	next := state
	switch {
	case reward < 0:
		next.Pacing = "slow"
		next.Difficulty = "down"
		next.Tone = "warm"
		next.NextStep = "example"
	case reward > 0.5:
		next.Pacing = "fast"
		next.Difficulty = "up"
		next.Tone = "encouraging"
		next.NextStep = "quiz"
	}
	return next
}
