package transcript

import "strings"

// Overlap scan bounds, in characters. The scan window caps the per-merge
// work at O(window) regardless of transcript length; the minimum keeps a
// coincidental shared letter or two from being treated as overlap.
const (
	DefaultMinOverlap = 5
	DefaultMaxOverlap = 100
)

// Merge folds an incoming transcription fragment into the previously
// accumulated transcript. Streaming transcription of a sliding audio window
// produces fragments that repeat, regress, grow, or re-send trailing
// context; Merge resolves those cases in order, first match wins:
//
//  1. incoming equals previous: duplicate response, keep previous.
//  2. previous is empty: incoming is the first fragment.
//  3. incoming contains previous: the service re-sent a grown version of
//     everything known, take incoming.
//  4. previous contains incoming: a regression artifact, keep previous.
//  5. the end of previous overlaps the start of incoming: append only the
//     non-overlapping remainder.
//  6. no structural relationship: treat as a disjoint utterance and append
//     with a separating space.
//
// Comparison is case- and whitespace-sensitive; fragments are merged
// exactly as the service returned them.
func Merge(previous, incoming string) string {
	return MergeBounded(previous, incoming, DefaultMinOverlap, DefaultMaxOverlap)
}

// MergeBounded is Merge with explicit overlap scan bounds.
func MergeBounded(previous, incoming string, minOverlap, maxOverlap int) string {
	if incoming == previous {
		return previous
	}
	if previous == "" {
		return incoming
	}
	if strings.Contains(incoming, previous) {
		return incoming
	}
	if strings.Contains(previous, incoming) {
		return previous
	}

	if k := longestOverlap(previous, incoming, minOverlap, maxOverlap); k > 0 {
		return previous + incoming[k:]
	}

	return previous + " " + incoming
}

// longestOverlap finds the largest k in [minOverlap, maxOverlap] such that
// the last k characters of previous equal the first k of incoming. Scanning
// from the longest candidate down keeps legitimate repeated short words out
// of the overlap.
func longestOverlap(previous, incoming string, minOverlap, maxOverlap int) int {
	max := maxOverlap
	if len(previous) < max {
		max = len(previous)
	}
	if len(incoming) < max {
		max = len(incoming)
	}
	for k := max; k >= minOverlap; k-- {
		if previous[len(previous)-k:] == incoming[:k] {
			return k
		}
	}
	return 0
}

// Reconciler owns the accumulated transcript for one capture session. It is
// the only writer; consumers read snapshots.
type Reconciler struct {
	accumulated string
	minOverlap  int
	maxOverlap  int
}

// NewReconciler creates a Reconciler with the given overlap scan bounds.
func NewReconciler(minOverlap, maxOverlap int) *Reconciler {
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	if maxOverlap <= 0 {
		maxOverlap = DefaultMaxOverlap
	}
	return &Reconciler{minOverlap: minOverlap, maxOverlap: maxOverlap}
}

// Apply merges a fragment into the accumulated transcript and returns the
// updated transcript.
func (r *Reconciler) Apply(fragment string) string {
	r.accumulated = MergeBounded(r.accumulated, fragment, r.minOverlap, r.maxOverlap)
	return r.accumulated
}

// Snapshot returns the current accumulated transcript.
func (r *Reconciler) Snapshot() string {
	return r.accumulated
}

// Reset clears the accumulated transcript. Called at session start.
func (r *Reconciler) Reset() {
	r.accumulated = ""
}
