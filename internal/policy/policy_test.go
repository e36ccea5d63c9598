package policy

import (
	"reflect"
	"testing"

	"github.com/MissVz/EQiLevel/internal/emotion"
	"github.com/MissVz/EQiLevel/internal/mcp"
)

func TestUpdate_NegativeRewardEasesOff(t *testing.T) {
	st := mcp.Build(emotion.Signal{Label: "engaged", Sentiment: 0.5}, emotion.Performance{})
	out := Update(st, -0.2)
	if out.Pacing != "slow" || out.Difficulty != "down" || out.Tone != "warm" || out.NextStep != "example" {
		t.Fatalf("unexpected nudges: %+v", out)
	}
	// untouched fields pass through
	if out.Emotion != st.Emotion || out.Style != st.Style {
		t.Fatalf("expected emotion/style passthrough")
	}
}

func TestUpdate_HighRewardRaisesChallenge(t *testing.T) {
	st := mcp.Build(emotion.Signal{Label: "calm"}, emotion.Performance{})
	out := Update(st, 0.75)
	if out.Pacing != "fast" || out.Difficulty != "up" || out.Tone != "encouraging" || out.NextStep != "quiz" {
		t.Fatalf("unexpected nudges: %+v", out)
	}
}

func TestUpdate_MidRangeUnchanged(t *testing.T) {
	st := mcp.Build(emotion.Signal{Label: "calm"}, emotion.Performance{})
	out := Update(st, 0.3)
	if !reflect.DeepEqual(out, st) {
		t.Fatalf("expected state unchanged for mid-range reward")
	}
}

func TestUpdate_PureAndRepeatable(t *testing.T) {
	st := mcp.Build(emotion.Signal{Label: "frustrated", Sentiment: -0.4}, emotion.Performance{})
	snapshot := st

	a := Update(st, -0.5)
	b := Update(st, -0.5)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical inputs must yield identical outputs")
	}
	if !reflect.DeepEqual(st, snapshot) {
		t.Fatalf("input state was mutated")
	}
}
