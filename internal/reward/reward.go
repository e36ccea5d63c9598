// Package reward computes the scalar reward for a turn and applies the
// one-question shaping contract to generated replies.
package reward

import (
	"math"
	"strings"

	"github.com/MissVz/EQiLevel/internal/emotion"
	"github.com/MissVz/EQiLevel/internal/mcp"
)

// maxQuestionSpan is the longest acceptable terminal-question sentence.
const maxQuestionSpan = 160

func clampRound(v float64) float64 {
	v = math.Max(-1.0, math.Min(1.0, v))
	return math.Round(v*1000) / 1000
}

// Compute maps the turn's signals to a reward in [-1,1]. Deterministic.
// Unknown performance fields contribute nothing.
func Compute(em emotion.Signal, perf emotion.Performance) float64 {
	base := 0.05
	if perf.Correct != nil {
		if *perf.Correct {
			base += 0.5
		} else {
			base -= 0.1
		}
	}
	if perf.TimeToSolveSec != nil {
		// faster solves score higher, diminishing, capped at 30s
		t := math.Min(*perf.TimeToSolveSec, 30)
		base += math.Max(0, 0.25-t/120)
	}
	switch em.Label {
	case "frustrated":
		base -= 0.1
	case "engaged":
		base += 0.15
	case "bored":
		base -= 0.05
	}
	return clampRound(base)
}

// ShapeWithReply adjusts the base reward from structural properties of the
// generated reply. When the policy asked for a quiz or prompt, exactly one
// question mark is rewarded; otherwise questions are discouraged. This
// shapes future policy nudges, not the displayed reply.
func ShapeWithReply(base float64, state mcp.ControlState, reply string) float64 {
	n := strings.Count(reply, "?")
	r := base
	if state.NextStep == "quiz" || state.NextStep == "prompt" {
		switch {
		case n == 1:
			r += 0.10
		case n == 0:
			r -= 0.25
		default:
			r -= math.Min(0.4, 0.15*float64(n-1))
		}
	} else if n > 0 {
		r -= 0.10
	}
	if n > 0 && lastQuestionSpan(reply) > maxQuestionSpan {
		r -= 0.10
	}
	return clampRound(r)
}

// lastQuestionSpan estimates the length of the sentence ending at the last
// question mark by scanning back to the previous sentence boundary.
func lastQuestionSpan(reply string) int {
	end := strings.LastIndex(reply, "?")
	if end < 0 {
		return 0
	}
	start := 0
	for i := end - 1; i >= 0; i-- {
		if c := reply[i]; c == '.' || c == '!' || c == '?' || c == '\n' {
			start = i + 1
			break
		}
	}
	return end - start + 1
}
