// Package numset implements NumSet, the canonical union-of-half-open-
// intervals representation over dense time used by the PMTL oracle to track,
// for each subformula, the set of dense-time instants at which it holds.
//
// Dense time is a lexicographic (tick, step) pair: tick is the logical clock
// tick count, step breaks ties between events occurring at the same tick.
// A NumSet is stored as a sorted sequence of (bound, occupied) pairs: each
// bound is the upper endpoint of a left-open, right-closed interval, and
// occupied records whether that interval belongs to the set. The implicit
// lower bound of the first interval is (0, 0), and (0, 0) itself never
// belongs to any interval.
package numset

import "math"

// Time is a dense-time tick or step coordinate.
type Time uint64

// MaxTime is the sentinel "infinity" coordinate, mirroring usize::MAX.
const MaxTime = Time(math.MaxUint64)

// DenseTime is a lexicographically ordered (tick, step) instant.
type DenseTime struct {
	Tick Time
	Step Time
}

// MaxDenseTime is the sentinel instant past which every interval is closed.
var MaxDenseTime = DenseTime{Tick: MaxTime, Step: MaxTime}

// Zero is the dense-time origin; it never belongs to any interval.
var Zero = DenseTime{}

func (a DenseTime) Less(b DenseTime) bool {
	if a.Tick != b.Tick {
		return a.Tick < b.Tick
	}
	return a.Step < b.Step
}

func (a DenseTime) LessEq(b DenseTime) bool {
	return a == b || a.Less(b)
}

// bound is one (upper endpoint, occupied) pair of the run-length encoding.
type bound struct {
	at       DenseTime
	occupied bool
}

// DenseBound is the exported (instant, occupied) view of one bound pair,
// used by callers and tests inspecting a NumSet's structure.
type DenseBound struct {
	At       DenseTime
	Occupied bool
}

// NumSet is a sorted run-length encoding of a subset of dense time.
type NumSet struct {
	bounds []bound
}

// New returns the empty set.
func New() *NumSet { return &NumSet{} }

// Full returns the set containing every dense-time instant.
func Full() *NumSet {
	return &NumSet{bounds: []bound{{at: MaxDenseTime, occupied: true}}}
}

// Len reports the number of bound pairs, exposed for tests.
func (s *NumSet) Len() int { return len(s.bounds) }

// BoundAt returns the i-th (bound, occupied) pair, exposed for tests.
func (s *NumSet) BoundAt(i int) (DenseTime, bool) {
	b := s.bounds[i]
	return b.at, b.occupied
}

// search performs the equivalent of Rust's binary_search_by_key over bounds
// starting at index hint, returning (index, found).
func (s *NumSet) search(val DenseTime, hint int) (int, bool) {
	lo, hi := hint, len(s.bounds)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.bounds[mid].at.Less(val) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.bounds) && s.bounds[lo].at == val {
		return lo, true
	}
	return lo, false
}

// Contains reports whether val belongs to the set. (0,0) never belongs to
// any interval, matching the left-open convention of the first interval.
func (s *NumSet) Contains(val DenseTime) bool {
	if val == Zero {
		return false
	}
	idx, _ := s.search(val, 0)
	if idx == len(s.bounds) {
		return false
	}
	return s.bounds[idx].occupied
}

// Cut restricts the set to (lowerBound, upperBound], discarding bounds
// outside that window and marking the new lower edge unoccupied.
func (s *NumSet) Cut(lowerBound, upperBound DenseTime) {
	if lowerBound != Zero {
		idx, found := s.search(lowerBound, 0)
		if found {
			s.bounds[idx].occupied = false
			s.bounds = append([]bound(nil), s.bounds[idx:]...)
		} else {
			s.bounds = insertBound(s.bounds, idx, bound{at: lowerBound, occupied: false})
			s.bounds = append([]bound(nil), s.bounds[idx:]...)
		}
	}
	if upperBound != MaxDenseTime {
		idx, found := s.search(upperBound, 0)
		if found {
			s.bounds = s.bounds[:idx+1]
		} else {
			occ := false
			if idx < len(s.bounds) {
				occ = s.bounds[idx].occupied
			}
			s.bounds = insertBound(s.bounds, idx, bound{at: upperBound, occupied: occ})
			s.bounds = s.bounds[:idx+1]
		}
	}
}

func insertBound(bs []bound, idx int, b bound) []bound {
	bs = append(bs, bound{})
	copy(bs[idx+1:], bs[idx:])
	bs[idx] = b
	return bs
}

// FromRange builds the set containing exactly (lowerBound, upperBound],
// or the empty set if the range is degenerate.
func FromRange(lowerBound, upperBound DenseTime) *NumSet {
	if !lowerBound.Less(upperBound) {
		return New()
	}
	if lowerBound == Zero {
		return &NumSet{bounds: []bound{{at: upperBound, occupied: true}}}
	}
	return &NumSet{bounds: []bound{
		{at: lowerBound, occupied: false},
		{at: upperBound, occupied: true},
	}}
}

// hintedInsertBound inserts bound b (searching from index hint onward) if
// absent, returning its resulting index either way.
func (s *NumSet) hintedInsertBound(b DenseTime, hint int) int {
	idx, found := s.search(b, hint)
	if found {
		return idx
	}
	occ := false
	if idx < len(s.bounds) {
		occ = s.bounds[idx].occupied
	}
	s.bounds = insertBound(s.bounds, idx, bound{at: b, occupied: occ})
	return idx
}

// InsertBound inserts a bound with no hint, preserving whichever occupancy
// already held at that point, and returns its index.
func (s *NumSet) InsertBound(b DenseTime) int {
	return s.hintedInsertBound(b, 0)
}

// AddInterval marks (lowerBound, upperBound] as occupied, merging with any
// existing structure.
func (s *NumSet) AddInterval(lowerBound, upperBound DenseTime) {
	switch {
	case !lowerBound.Less(upperBound):
		return
	case len(s.bounds) == 0:
		*s = *FromRange(lowerBound, upperBound)
	case lowerBound == Zero:
		uIdx := s.InsertBound(upperBound)
		for i := 0; i <= uIdx; i++ {
			s.bounds[i].occupied = true
		}
	default:
		lIdx := s.InsertBound(lowerBound)
		uIdx := s.hintedInsertBound(upperBound, lIdx+1)
		for i := lIdx + 1; i <= uIdx; i++ {
			s.bounds[i].occupied = true
		}
	}
}

// Complement inverts occupancy over the whole dense timeline.
func (s *NumSet) Complement() {
	n := len(s.bounds)
	if n > 0 && s.bounds[n-1].at == MaxDenseTime && s.bounds[n-1].occupied {
		s.bounds = s.bounds[:n-1]
		for i := range s.bounds {
			s.bounds[i].occupied = !s.bounds[i].occupied
		}
	} else {
		for i := range s.bounds {
			s.bounds[i].occupied = !s.bounds[i].occupied
		}
		s.bounds = append(s.bounds, bound{at: MaxDenseTime, occupied: true})
	}
}

// Union merges other into s in place.
func (s *NumSet) Union(other *NumSet) {
	lowerBound := Zero
	for _, b := range other.bounds {
		if b.occupied {
			s.AddInterval(lowerBound, b.at)
		}
		lowerBound = b.at
	}
}

// Intersection computes the intersection of sets via De Morgan: complement
// each, union the complements, complement the result.
func Intersection(sets []*NumSet) *NumSet {
	result := New()
	for _, set := range sets {
		c := set.Clone()
		c.Complement()
		result.Union(c)
	}
	result.Complement()
	return result
}

// Sync inserts every bound of other into s (without altering occupancy at
// those new points beyond inheriting the interval they land in), so the two
// sets share a common refinement of bound points.
func (s *NumSet) Sync(other *NumSet) {
	hint := 0
	for _, b := range other.bounds {
		hint = s.hintedInsertBound(b.at, hint) + 1
	}
}

// Simplify returns a copy with consecutive bounds at the same instant, and
// consecutive intervals of identical occupancy, collapsed away.
//
// This mirrors the source's two-pass filter: a forward pass drops bounds
// repeating the previous kept instant, then a backward pass over the result
// drops runs of identical occupancy, keeping only each run's latest bound
// (a trailing unoccupied run is dropped entirely).
func (s *NumSet) Simplify() *NumSet {
	timeDeduped := make([]bound, 0, len(s.bounds))
	prevT := Zero
	for _, b := range s.bounds {
		if b.at == prevT {
			continue
		}
		prevT = b.at
		timeDeduped = append(timeDeduped, b)
	}

	reversedOut := make([]bound, 0, len(timeDeduped))
	prevB := false
	for i := len(timeDeduped) - 1; i >= 0; i-- {
		b := timeDeduped[i]
		if b.occupied == prevB {
			continue
		}
		prevB = b.occupied
		reversedOut = append(reversedOut, b)
	}
	for i, j := 0, len(reversedOut)-1; i < j; i, j = i+1, j-1 {
		reversedOut[i], reversedOut[j] = reversedOut[j], reversedOut[i]
	}
	return &NumSet{bounds: reversedOut}
}

// Clone returns a deep copy.
func (s *NumSet) Clone() *NumSet {
	bs := make([]bound, len(s.bounds))
	copy(bs, s.bounds)
	return &NumSet{bounds: bs}
}

// Any reports whether any interval of the set is occupied.
func (s *NumSet) Any() bool {
	for _, b := range s.bounds {
		if b.occupied {
			return true
		}
	}
	return false
}

// ContinuousTrueBackFrom returns the earliest instant x such that the set's
// indicator holds continuously on (x, t]. If the set does not contain t,
// it returns t itself (an empty continuity window).
func (s *NumSet) ContinuousTrueBackFrom(t DenseTime) DenseTime {
	if !s.Contains(t) {
		return t
	}
	i, _ := s.search(t, 0)
	for i > 0 && s.bounds[i-1].occupied {
		i--
	}
	if i == 0 {
		return Zero
	}
	return s.bounds[i-1].at
}

// AddTicks shifts a DenseTime forward by a tick count, saturating at
// MaxDenseTime on overflow.
func AddTicks(t DenseTime, ticks Time) DenseTime {
	if ticks == MaxTime || t.Tick > MaxTime-ticks {
		return MaxDenseTime
	}
	return DenseTime{Tick: t.Tick + ticks, Step: t.Step}
}

// SubTicks shifts a DenseTime backward by a tick count, clamping at the
// dense-time origin.
func SubTicks(t DenseTime, ticks Time) DenseTime {
	if ticks > t.Tick {
		return Zero
	}
	return DenseTime{Tick: t.Tick - ticks, Step: t.Step}
}

// MaxDT returns the later of two dense times.
func MaxDT(a, b DenseTime) DenseTime {
	if a.Less(b) {
		return b
	}
	return a
}
