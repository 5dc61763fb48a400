// Package lcs aligns an old and a new key sequence for keyed list
// reconciliation.
//
// Keys are unique within one sequence. With unique keys the longest common
// subsequence of the two sequences equals the longest increasing run of old
// positions taken in new order, which is found in O(n log n). Entries on that
// run stay where they are; every other surviving key is moved, so a pure
// reordering reuses every entry.
package lcs

// OpKind classifies one step of a Plan.
type OpKind int

const (
	// Keep reuses an old entry that is part of the common subsequence.
	Keep OpKind = iota + 1
	// Move reuses an old entry that changed relative position.
	Move
	// Insert creates an entry for a key absent from the old sequence.
	Insert
	// Delete removes an old entry whose key is absent from the new sequence.
	Delete
)

// String returns the lowercase op name.
func (k OpKind) String() string {
	switch k {
	case Keep:
		return "keep"
	case Move:
		return "move"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one alignment step. Old is -1 for Insert; New is -1 for Delete.
type Op struct {
	Kind OpKind
	Old  int
	New  int
}

// Plan is the alignment of two key sequences. Ops holds one entry per new
// position, in new order, followed by the Delete ops in old order.
type Plan struct {
	Ops []Op

	Kept     int
	Moved    int
	Inserted int
	Deleted  int
}

// Reused returns the number of old entries carried into the new sequence.
func (p Plan) Reused() int {
	return p.Kept + p.Moved
}

// Diff aligns old against new. A key repeated within new is matched at
// most once; later repeats are inserted. A key repeated within old matches
// its first occurrence; later repeats are deleted.
func Diff[K comparable](old, new []K) Plan {
	index := make(map[K]int, len(old))
	for i, k := range old {
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}

	matched := make([]int, len(new))
	used := make([]bool, len(old))
	for j, k := range new {
		matched[j] = -1
		if i, ok := index[k]; ok && !used[i] {
			matched[j] = i
			used[i] = true
		}
	}

	stay := increasingRun(matched)

	plan := Plan{Ops: make([]Op, 0, len(new)+len(old))}
	for j, i := range matched {
		switch {
		case i < 0:
			plan.Ops = append(plan.Ops, Op{Kind: Insert, Old: -1, New: j})
			plan.Inserted++
		case stay[j]:
			plan.Ops = append(plan.Ops, Op{Kind: Keep, Old: i, New: j})
			plan.Kept++
		default:
			plan.Ops = append(plan.Ops, Op{Kind: Move, Old: i, New: j})
			plan.Moved++
		}
	}
	for i := range old {
		if !used[i] {
			plan.Ops = append(plan.Ops, Op{Kind: Delete, Old: i, New: -1})
			plan.Deleted++
		}
	}
	return plan
}

// increasingRun marks the positions of seq that form a longest strictly
// increasing subsequence, ignoring negative entries.
func increasingRun(seq []int) []bool {
	// tails[l] is the index in seq of the smallest tail of a run of length l+1.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for j, v := range seq {
		prev[j] = -1
		if v < 0 {
			continue
		}
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[j] = tails[lo-1]
		}
		if lo == len(tails) {
			tails = append(tails, j)
		} else {
			tails[lo] = j
		}
	}

	out := make([]bool, len(seq))
	if len(tails) == 0 {
		return out
	}
	for j := tails[len(tails)-1]; j >= 0; j = prev[j] {
		out[j] = true
	}
	return out
}
