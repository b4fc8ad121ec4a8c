package bplustree

import (
	"github.com/pagestore/dbcore/page"
	"github.com/pagestore/dbcore/rid"
)

// Iterator is a forward cursor over the leaf sibling chain. It is
// move-only (copying one and advancing both would double-unpin the
// same page) and holds at most one leaf's read latch at a time.
// Only the root-to-leaf descent in Begin/BeginAt holds the tree's
// shared latch; once constructed, the iterator holds only the current
// leaf's own read latch, per spec.md §5's documented
// concurrent-iteration limitation. A tree mutation concurrent with a
// live Iterator can invalidate it.
type Iterator struct {
	tree *BPlusTree
	leaf *page.ReadGuard
	pos  int
}

// Begin returns an iterator positioned at the first entry of the
// tree's leftmost leaf. Valid() is false immediately if the tree is
// empty.
func (t *BPlusTree) Begin() *Iterator {
	t.latch.RLock()
	leaf := t.descendLeftmostRead()
	t.latch.RUnlock()

	it := &Iterator{tree: t, leaf: leaf, pos: 0}
	it.skipToValid()
	return it
}

// BeginAt returns an iterator positioned at the first entry whose key
// is >= key (standard lower-bound semantics), in the leaf that would
// contain key.
func (t *BPlusTree) BeginAt(key []byte) *Iterator {
	t.latch.RLock()
	leaf := t.descendRead(key)
	t.latch.RUnlock()

	lv := NewLeafView(leaf.Data())
	_, pos := lv.Search(t.cmp, key)
	it := &Iterator{tree: t, leaf: leaf, pos: pos}
	it.skipToValid()
	return it
}

// descendLeftmostRead walks Child(0) from the root down to the
// leftmost leaf, holding one page's read latch at a time.
func (t *BPlusTree) descendLeftmostRead() *page.ReadGuard {
	cur := page.FetchReadPage(t.pool, t.RootPageID())
	for PageKind(cur.Data()) != KindLeaf {
		iv := NewInternalView(cur.Data())
		next := page.FetchReadPage(t.pool, iv.Child(0))
		cur.Drop()
		cur = next
	}
	return cur
}

// Valid reports whether the iterator currently denotes an entry.
func (it *Iterator) Valid() bool {
	return it.leaf != nil
}

// Key returns the current entry's key. Only valid while Valid().
func (it *Iterator) Key() []byte {
	lv := NewLeafView(it.leaf.Data())
	return lv.Key(it.pos)
}

// RID returns the current entry's record id. Only valid while Valid().
func (it *Iterator) RID() rid.RID {
	lv := NewLeafView(it.leaf.Data())
	return lv.RID(it.pos)
}

// Next advances the iterator by one entry, crossing into the next
// leaf (and releasing the current one) as needed. After the last
// entry of the last leaf, the iterator becomes invalid.
func (it *Iterator) Next() {
	if it.leaf == nil {
		return
	}
	it.pos++
	it.skipToValid()
}

// skipToValid advances across exhausted leaves until pos points at a
// real entry, or the chain is exhausted (leaf set to nil).
func (it *Iterator) skipToValid() {
	for it.leaf != nil {
		lv := NewLeafView(it.leaf.Data())
		if it.pos < lv.Size() {
			return
		}
		next := lv.NextLeaf()
		it.leaf.Drop()
		it.leaf = nil
		it.pos = 0
		if next == page.InvalidID {
			return
		}
		it.leaf = page.FetchReadPage(it.tree.pool, next)
	}
}

// Close releases the iterator's currently-held leaf latch, if any. It
// is safe to call more than once and safe to skip if the iterator was
// exhausted naturally (Next already dropped it).
func (it *Iterator) Close() {
	if it.leaf != nil {
		it.leaf.Drop()
		it.leaf = nil
	}
}
