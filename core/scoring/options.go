package scoring

import "sort"

// OptionSet is a set of answer option IDs.
type OptionSet map[int]struct{}

func NewOptionSet(ids ...int) OptionSet {
	set := make(OptionSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s OptionSet) Len() int { return len(s) }

func (s OptionSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Equal reports whether both sets hold the same IDs, order irrelevant.
func (s OptionSet) Equal(other OptionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Intersect returns the number of IDs present in both sets.
func (s OptionSet) Intersect(other OptionSet) int {
	var n int
	for id := range s {
		if other.Has(id) {
			n++
		}
	}
	return n
}

// Difference returns the number of IDs in s that are not in other.
func (s OptionSet) Difference(other OptionSet) int {
	return len(s) - s.Intersect(other)
}

// Sorted returns the IDs in ascending order.
func (s OptionSet) Sorted() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
