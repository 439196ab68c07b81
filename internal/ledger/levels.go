package ledger

// defaultLevelThresholds maps cumulative points to gamification levels.
// Index i holds the minimum total for level i+1; thresholds are ascending.
var defaultLevelThresholds = []int64{0, 100, 250, 500, 1000, 2500, 5000}

// Levels computes the gamification level for a point total.
type Levels struct {
	thresholds []int64
}

// NewLevels builds a level table from ascending thresholds. Empty input
// falls back to the default table.
func NewLevels(thresholds []int64) Levels {
	if len(thresholds) == 0 {
		thresholds = defaultLevelThresholds
	}
	return Levels{thresholds: thresholds}
}

// For returns the level for the given total. Totals below the first
// threshold (possible after deductions) are level 1.
func (l Levels) For(total int64) int {
	level := 1
	for i, min := range l.thresholds {
		if total >= min {
			level = i + 1
		} else {
			break
		}
	}
	return level
}

// Crossed reports whether moving from prev to next total crosses into a
// higher level, and the level reached.
func (l Levels) Crossed(prev, next int64) (int, bool) {
	before, after := l.For(prev), l.For(next)
	if after > before {
		return after, true
	}
	return after, false
}
