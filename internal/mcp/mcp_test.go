package mcp

import (
	"testing"

	"github.com/MissVz/EQiLevel/internal/emotion"
)

func TestBuild_FrustratedDefaults(t *testing.T) {
	st := Build(emotion.Signal{Label: "frustrated", Sentiment: -0.4}, emotion.Performance{})
	if st.Tone != "warm" || st.Pacing != "slow" || st.Difficulty != "down" || st.NextStep != "example" {
		t.Fatalf("unexpected frustrated baseline: %+v", st)
	}
	if st.Style != "mixed" {
		t.Fatalf("expected mixed style with zero weights, got %s", st.Style)
	}
}

func TestBuild_EngagedCorrect(t *testing.T) {
	correct := true
	st := Build(emotion.Signal{Label: "engaged", Sentiment: 0.5}, emotion.Performance{Correct: &correct})
	if st.Tone != "encouraging" || st.Pacing != "fast" {
		t.Fatalf("unexpected engaged baseline: %+v", st)
	}
	if st.Difficulty != "up" || st.NextStep != "quiz" {
		t.Fatalf("correct=true should raise difficulty and quiz: %+v", st)
	}
}

func TestBuild_CalmUnknown(t *testing.T) {
	st := Build(emotion.Signal{Label: "calm"}, emotion.Performance{})
	if st.Tone != "neutral" || st.Pacing != "medium" || st.Difficulty != "hold" || st.NextStep != "explain" {
		t.Fatalf("unexpected calm baseline: %+v", st)
	}
}

func TestChooseStyle_PicksStrongest(t *testing.T) {
	got := chooseStyle(LearningStyle{Visual: 0.2, Kinesthetic: 0.7})
	if got != "kinesthetic" {
		t.Fatalf("expected kinesthetic, got %s", got)
	}
}
