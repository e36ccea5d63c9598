// Package mcp holds the per-turn control state (the "MCP") that steers
// tutoring style, and builds its baseline from the turn's signals.
package mcp

import "github.com/MissVz/EQiLevel/internal/emotion"

// LearningStyle weights; all zero means no known preference.
type LearningStyle struct {
	Visual         float64 `json:"visual"`
	Auditory       float64 `json:"auditory"`
	ReadingWriting float64 `json:"reading_writing"`
	Kinesthetic    float64 `json:"kinesthetic"`
}

// ControlState is rebuilt fresh each turn and transformed by the policy.
// Every enum-like field always holds a valid member.
type ControlState struct {
	Emotion       emotion.Signal      `json:"emotion"`
	Performance   emotion.Performance `json:"performance"`
	LearningStyle LearningStyle       `json:"learning_style"`
	Tone          string              `json:"tone"`       // warm | encouraging | neutral | concise
	Pacing        string              `json:"pacing"`     // slow | medium | fast
	Difficulty    string              `json:"difficulty"` // down | hold | up
	Style         string              `json:"style"`      // visual | auditory | reading_writing | kinesthetic | mixed
	NextStep      string              `json:"next_step"`  // explain | example | prompt | quiz | review
}

func chooseTone(em emotion.Signal) string {
	switch em.Label {
	case "frustrated":
		return "warm"
	case "engaged":
		return "encouraging"
	}
	return "neutral"
}

func choosePacing(em emotion.Signal) string {
	switch em.Label {
	case "frustrated":
		return "slow"
	case "engaged":
		return "fast"
	}
	return "medium"
}

func chooseDifficulty(em emotion.Signal, perf emotion.Performance) string {
	if em.Label == "frustrated" {
		return "down"
	}
	if perf.Correct != nil && *perf.Correct {
		return "up"
	}
	return "hold"
}

// chooseStyle picks the strongest learning style; all-zero weights mean mixed.
func chooseStyle(ls LearningStyle) string {
	best, bestV := "mixed", 0.0
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"visual", ls.Visual},
		{"auditory", ls.Auditory},
		{"reading_writing", ls.ReadingWriting},
		{"kinesthetic", ls.Kinesthetic},
	} {
		if c.v > bestV {
			best, bestV = c.name, c.v
		}
	}
	return best
}

func chooseNextStep(em emotion.Signal, perf emotion.Performance) string {
	if em.Label == "frustrated" {
		return "example"
	}
	if perf.Correct != nil && *perf.Correct {
		return "quiz"
	}
	return "explain"
}

// Build derives the baseline control state for a turn from its signals.
// The learning style defaults to no preference; it can be set elsewhere.
func Build(em emotion.Signal, perf emotion.Performance) ControlState {
	var ls LearningStyle
	return ControlState{
		Emotion:       em,
		Performance:   perf,
		LearningStyle: ls,
		Tone:          chooseTone(em),
		Pacing:        choosePacing(em),
		Difficulty:    chooseDifficulty(em, perf),
		Style:         chooseStyle(ls),
		NextStep:      chooseNextStep(em, perf),
	}
}
