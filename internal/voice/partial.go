package voice

import "strings"

// partialTail bounds partial transcript growth; only the trailing characters
// are kept and emitted.
const partialTail = 220

// minGrowth is the least a partial must extend the previous one by to be
// worth emitting.
const minGrowth = 8

// fillerWords are acknowledgement noises the recognizer tends to repeat when
// fed overlapping audio windows.
var fillerWords = map[string]bool{
	"yeah": true, "yes": true, "ok": true, "okay": true,
	"uh": true, "um": true, "mhm": true, "hmm": true, "right": true,
}

// sanitizePartial collapses whitespace, squashes runs of three or more
// repeated filler words into one, and keeps only the trailing portion.
func sanitizePartial(text string) string {
	words := strings.Fields(text)
	out := words[:0]
	run := 0
	for i, w := range words {
		key := strings.ToLower(strings.Trim(w, ".,!?"))
		if i > 0 && key == strings.ToLower(strings.Trim(words[i-1], ".,!?")) && fillerWords[key] {
			run++
		} else {
			run = 0
		}
		if run >= 2 {
			// third and later repeats fold into the first occurrence
			if run == 2 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, w)
	}
	s := strings.Join(out, " ")
	if len(s) > partialTail {
		// cut on a rune boundary within the trailing window
		cut := len(s) - partialTail
		for cut < len(s) && !isRuneStart(s[cut]) {
			cut++
		}
		s = s[cut:]
	}
	return s
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// shouldEmit suppresses partials that repeat the last emitted text or only
// extend it by a few characters.
func shouldEmit(prev, next string) bool {
	if next == "" || next == prev {
		return false
	}
	if prev != "" && strings.HasPrefix(next, prev) && len(next)-len(prev) < minGrowth {
		return false
	}
	return true
}
