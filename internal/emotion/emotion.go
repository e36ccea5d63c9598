package emotion

import (
	"regexp"
	"strings"
)

// Signal is the per-turn emotional read of the learner's utterance.
type Signal struct {
	Label     string  `json:"label"` // frustrated | engaged | bored | calm
	Sentiment float64 `json:"sentiment"`
}

// Performance carries optional self-reported performance cues. Nil means
// unknown, which is distinct from false/zero and must stay that way all the
// way to the reward function.
type Performance struct {
	Correct        *bool    `json:"correct"`
	Attempts       *int     `json:"attempts"`
	TimeToSolveSec *float64 `json:"time_to_solve_sec"`
	AccuracyPct    *float64 `json:"accuracy_pct"`
}

// negWords and posWords are fixed keyword sets; membership is substring
// matching on the normalized text. Negative wins over positive.
var negWords = []string{"stuck", "confused", "lost", "hard", "difficult", "messing up", "frustrated"}
var posWords = []string{"great", "got it", "clear", "easy", "makes sense", "understand"}

// successRe matches phrases that imply the learner solved the problem.
var successRe = regexp.MustCompile(`got it|i solved|solved it|worked`)

// punctReplacer folds common Unicode punctuation variants to ASCII so that
// keyword matching works on text pasted from word processors or produced by
// speech recognition.
var punctReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
	"…", "...",
	" ", " ",
)

func normalize(text string) string {
	return strings.ToLower(punctReplacer.Replace(text))
}

// Classify maps an utterance to an emotion signal using the keyword tables.
// It always returns a value; unmatched text is calm/neutral.
func Classify(text string) Signal {
	t := normalize(text)
	for _, w := range negWords {
		if strings.Contains(t, w) {
			return Signal{Label: "frustrated", Sentiment: -0.4}
		}
	}
	for _, w := range posWords {
		if strings.Contains(t, w) {
			return Signal{Label: "engaged", Sentiment: 0.5}
		}
	}
	return Signal{Label: "calm", Sentiment: 0.0}
}

// EstimatePerformance is a rough heuristic: success phrases such as
// "got it" or "i solved" mark the turn correct. Anything else leaves every
// field unknown.
func EstimatePerformance(text string) Performance {
	var perf Performance
	if successRe.MatchString(normalize(text)) {
		correct := true
		accuracy := 1.0
		attempts := 1
		perf.Correct = &correct
		perf.AccuracyPct = &accuracy
		perf.Attempts = &attempts
	}
	return perf
}
