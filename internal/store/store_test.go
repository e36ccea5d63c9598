package store

import "testing"

func TestSafeReply(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Here you go.", "Here you go."},
		{"  trimmed  ", "trimmed"},
		{"", "[no_reply]"},
		{"   \n\t", "[no_reply]"},
	}
	for _, c := range cases {
		if got := safeReply(c.in); got != c.want {
			t.Fatalf("safeReply(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRound4(t *testing.T) {
	if got := round4(0.123456); got != 0.1235 {
		t.Fatalf("expected 0.1235, got %v", got)
	}
	if got := round4(0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
