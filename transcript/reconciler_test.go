package transcript

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestMergeCases(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		incoming string
		want     string
	}{
		{
			name:     "first fragment",
			previous: "",
			incoming: "hello there",
			want:     "hello there",
		},
		{
			name:     "duplicate response",
			previous: "hello there",
			incoming: "hello there",
			want:     "hello there",
		},
		{
			name:     "streaming prefix growth",
			previous: "hello",
			incoming: "hello there",
			want:     "hello there",
		},
		{
			name:     "superset mid-string",
			previous: "quick brown",
			incoming: "the quick brown fox",
			want:     "the quick brown fox",
		},
		{
			name:     "regression rejected",
			previous: "a fully formed sentence.",
			incoming: "a fully",
			want:     "a fully formed sentence.",
		},
		{
			name:     "suffix prefix overlap",
			previous: "the quick brown",
			incoming: "brown fox jumps",
			want:     "the quick brown fox jumps",
		},
		{
			name:     "five char overlap",
			previous: "hello world",
			incoming: "world peace",
			want:     "hello world peace",
		},
		{
			name:     "overlap below minimum ignored",
			previous: "went to",
			incoming: "tomorrow we leave",
			want:     "went to tomorrow we leave",
		},
		{
			name:     "disjoint append",
			previous: "first sentence.",
			incoming: "second sentence.",
			want:     "first sentence. second sentence.",
		},
		{
			name:     "case sensitive no overlap",
			previous: "HELLO WORLD",
			incoming: "world peace",
			want:     "HELLO WORLD world peace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.previous, tt.incoming); got != tt.want {
				t.Errorf("Merge(%q, %q) = %q, want %q", tt.previous, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestMergePrefersLongestOverlap(t *testing.T) {
	// "no no no " repeats; the longest match must win or legitimate repeated
	// words get truncated.
	previous := "he said no no no "
	incoming := "no no no way"
	want := "he said no no no way"
	if got := Merge(previous, incoming); got != want {
		t.Errorf("Merge = %q, want %q", got, want)
	}
}

func TestMergeIdentityProperty(t *testing.T) {
	f := func(s string) bool {
		return Merge(s, s) == s
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestMergeNeverShrinksProperty(t *testing.T) {
	f := func(prev, inc string) bool {
		return len(Merge(prev, inc)) >= len(prev)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestMergeAlwaysEndsWithNewTail(t *testing.T) {
	// Unless rejected as a regression, the merged transcript ends with the
	// incoming fragment's tail.
	f := func(prev, inc string) bool {
		merged := Merge(prev, inc)
		if strings.Contains(prev, inc) {
			return merged == prev
		}
		return strings.HasSuffix(merged, inc) || strings.Contains(merged, inc)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestReconcilerAccumulates(t *testing.T) {
	r := NewReconciler(DefaultMinOverlap, DefaultMaxOverlap)

	fragments := []string{
		"the quick",
		"the quick brown fox",
		"brown fox jumps over",
		"brown fox", // regression, ignored
		"the lazy dog.",
	}
	want := "the quick brown fox jumps over the lazy dog."

	var got string
	for _, f := range fragments {
		got = r.Apply(f)
	}
	if got != want {
		t.Errorf("accumulated = %q, want %q", got, want)
	}
	if r.Snapshot() != want {
		t.Errorf("snapshot = %q, want %q", r.Snapshot(), want)
	}

	r.Reset()
	if r.Snapshot() != "" {
		t.Error("reset should clear the accumulated transcript")
	}
}
