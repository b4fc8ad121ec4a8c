package bplustree

import "bytes"

// Comparator orders two fixed-width keys, returning <0, 0, >0 the way
// bytes.Compare does. It must be pure, deterministic, and given the
// same key_size buffers the index was constructed with (spec.md §6).
type Comparator func(a, b []byte) int

// BytesComparator is the default Comparator: lexicographic byte order.
func BytesComparator(a, b []byte) int { return bytes.Compare(a, b) }

// Search returns (found, pos): pos is the key's slot if found is true,
// otherwise the insertion position that keeps the leaf sorted
// (standard lower-bound semantics).
func (v LeafView) Search(cmp Comparator, key []byte) (found bool, pos int) {
	n := v.Size()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(v.Key(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < n && cmp(v.Key(lo), key) == 0, lo
}

// Search returns the largest slot index i in [0, Size()] with
// key(i) <= target, treating key(0) as -infinity. This is the child
// to descend into: the subtree rooted at child i holds keys >=
// key(i) (or all keys, for i == 0), and < key(i+1) if it exists.
func (v InternalView) Search(cmp Comparator, target []byte) int {
	n := v.Size()
	lo, hi := 1, n+1
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(v.Key(mid), target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}
