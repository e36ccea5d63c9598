package tutor

import (
	"strings"
	"testing"

	"github.com/MissVz/EQiLevel/internal/emotion"
	"github.com/MissVz/EQiLevel/internal/mcp"
)

func TestSystemPrompt_ReflectsControlState(t *testing.T) {
	c := NewClient("", "gpt-4o-mini", nil)
	st := mcp.Build(emotion.Signal{Label: "frustrated", Sentiment: -0.4}, emotion.Performance{})
	p := c.systemPrompt(st, "")
	for _, want := range []string{"Tone: warm", "Pacing: slow", "Difficulty: down", "Next Step: example"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestSystemPrompt_UnknownObjectiveIgnored(t *testing.T) {
	c := NewClient("", "gpt-4o-mini", nil)
	st := mcp.Build(emotion.Signal{Label: "calm"}, emotion.Performance{})
	if p := c.systemPrompt(st, "alg1.eq.2step"); strings.Contains(p, "Curriculum objectives") {
		t.Fatalf("nil catalog must not add objectives block")
	}
}
