package logic

// DebounceFilter turns noisy per-cycle classifications into stable results
// using a temporal majority vote. It keeps an ordered log of inference tuples
// that is cleared after every vote and whenever the log goes stale.
// Not safe for concurrent use; the scoring loop owns it.
type DebounceFilter struct {
	source ThresholdSource
	valid  LabelSet
	log    []InferenceTuple
}

// NewDebounceFilter creates a filter reading live thresholds from source.
// A nil valid set means DefaultLabels.
func NewDebounceFilter(source ThresholdSource, valid LabelSet) *DebounceFilter {
	if valid == nil {
		valid = DefaultLabels
	}
	return &DebounceFilter{
		source: source,
		valid:  valid,
	}
}

// Record appends (tick, label) to the log if label is in the valid set.
// Returns false if the label was discarded.
func (f *DebounceFilter) Record(tick Ticks, label Label) bool {
	if !f.valid.Contains(label) {
		return false
	}
	f.log = append(f.log, InferenceTuple{Tick: tick, Label: label})
	return true
}

// Evaluate applies the debounce rule, then the cleanup rule.
// It returns a vote when enough tuples spanning enough time have accumulated;
// the whole log is cleared in that case.
func (f *DebounceFilter) Evaluate() (Vote, bool) {
	th := f.source.Thresholds()
	span := f.span()

	if len(f.log) >= th.MinTuples && span > th.TimeDiffThresholdMs {
		votes := make([]Label, th.MinTuples)
		for i := range votes {
			votes[i] = f.log[i].Label
		}
		f.Reset()
		return Vote{
			Label:  MajorityLabel(votes),
			Votes:  votes,
			SpanMs: span,
		}, true
	}

	// Too few and too old: drop them so they cannot feed a late vote.
	if len(f.log) <= th.CleanMaxTuples && span >= th.CleanMaxTimeDiffMs {
		f.Reset()
	}
	return Vote{}, false
}

// span returns the tick distance between the oldest and newest tuples,
// or 0 if fewer than two tuples are logged.
func (f *DebounceFilter) span() int64 {
	if len(f.log) < 2 {
		return 0
	}
	return TicksDiff(f.log[len(f.log)-1].Tick, f.log[0].Tick)
}

// Len returns the number of logged tuples.
func (f *DebounceFilter) Len() int {
	return len(f.log)
}

// Reset clears the log.
func (f *DebounceFilter) Reset() {
	f.log = f.log[:0]
}

// MajorityLabel returns the most frequent label in labels. Ties go to the
// label that comes first in labels among those with the maximal count.
// Returns 0 for an empty slice.
func MajorityLabel(labels []Label) Label {
	counts := make(map[Label]int, len(labels))
	best := 0
	for _, l := range labels {
		counts[l]++
		if counts[l] > best {
			best = counts[l]
		}
	}
	for _, l := range labels {
		if counts[l] == best {
			return l
		}
	}
	return 0
}
