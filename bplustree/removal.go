package bplustree

import "github.com/pagestore/dbcore/page"

// pathFrame is one level of a root-to-leaf descent, held write-latched
// for the duration of a Remove call. childIdx is this node's position
// within its parent's child array (-1 for the root, which has none).
type pathFrame struct {
	id       int32
	wg       *page.WriteGuard
	childIdx int
}

// fixActionKind describes what a lower level's removal requires of its
// parent.
type fixActionKind int

const (
	fixNone fixActionKind = iota
	fixDeleteChild
	fixUpdateSeparator
)

type fixAction struct {
	kind   fixActionKind
	idx    int    // child index within the parent this action targets
	newKey []byte // for fixUpdateSeparator
}

// Remove deletes key from the tree. Returns false if key is absent.
func (t *BPlusTree) Remove(key []byte) bool {
	t.latch.Lock()
	defer t.latch.Unlock()

	stack := t.descendWritePath(key)
	var toFree []int32

	// Registered before the guard-drop defer so it runs after: a page
	// scheduled for release must have its pin fully dropped first
	// (deferred LIFO order handles this).
	defer func() {
		for _, id := range toFree {
			t.pool.ReleaseBack(id)
		}
	}()
	defer func() {
		for _, f := range stack {
			f.wg.Drop()
		}
	}()

	leaf := stack[len(stack)-1]
	lv := NewLeafView(leaf.wg.Data())
	found, pos := lv.Search(t.cmp, key)
	if !found {
		for _, f := range stack {
			f.wg.SetDirty(false)
		}
		return false
	}

	act := t.processLeafRemoval(stack, pos, &toFree)

	for level := len(stack) - 2; level >= 0 && act != nil; level-- {
		act = t.applyFixAction(stack, level, act, &toFree)
	}

	t.collapseRootIfNeeded(stack, &toFree)

	return true
}

// descendWritePath walks from the root to the leaf that would contain
// key, write-latching every page along the way and recording each
// node's child index within its parent.
func (t *BPlusTree) descendWritePath(key []byte) []pathFrame {
	var stack []pathFrame
	curID := t.RootPageID()
	childIdx := -1
	for {
		wg := page.FetchWritePage(t.pool, curID)
		stack = append(stack, pathFrame{id: curID, wg: wg, childIdx: childIdx})
		if PageKind(wg.Data()) == KindLeaf {
			return stack
		}
		iv := NewInternalView(wg.Data())
		idx := iv.Search(t.cmp, key)
		childIdx = idx
		curID = iv.Child(idx)
	}
}

// processLeafRemoval removes the already-located key (pos) from the
// leaf at the bottom of stack, handling emptiness/separator-update/
// underflow, and returns the action (if any) the parent must perform.
func (t *BPlusTree) processLeafRemoval(stack []pathFrame, pos int, toFree *[]int32) *fixAction {
	level := len(stack) - 1
	frame := stack[level]
	lv := NewLeafView(frame.wg.Data())
	lv.RemoveAt(pos)

	if lv.Size() == 0 {
		if level == 0 {
			// Root leaf with nothing left: an empty leaf root is the
			// valid representation of an empty tree. Nothing to unlink
			// or free.
			return nil
		}
		t.unlinkEmptyLeaf(stack, frame.id, lv)
		*toFree = append(*toFree, frame.id)
		frame.wg.SetDirty(false)
		return &fixAction{kind: fixDeleteChild, idx: frame.childIdx}
	}

	if level > 0 && lv.Size() <= lv.Max()/2 {
		return t.rebalanceLeaf(stack, level, toFree)
	}

	if pos == 0 {
		newKey := cloneBytes(lv.Key(0))
		if level == 0 || frame.childIdx == 0 {
			return nil
		}
		return &fixAction{kind: fixUpdateSeparator, idx: frame.childIdx, newKey: newKey}
	}

	return nil
}

// applyFixAction applies act (reported by the level below) to
// stack[level], then checks whether stack[level] itself now needs
// rebalancing, returning the action (if any) for stack[level]'s own
// parent.
func (t *BPlusTree) applyFixAction(stack []pathFrame, level int, act *fixAction, toFree *[]int32) *fixAction {
	frame := stack[level]
	iv := NewInternalView(frame.wg.Data())

	switch act.kind {
	case fixDeleteChild:
		if act.idx == 0 {
			// Slot 0 has no real key: deleting the leftmost child means
			// promoting child 1 into its place and dropping the now
			// irrelevant separator that used to sit between them.
			iv.SetFirstChild(iv.Child(1))
			iv.RemoveAt(1)
		} else {
			iv.RemoveAt(act.idx)
		}
	case fixUpdateSeparator:
		iv.SetKeyAt(act.idx, act.newKey)
		return nil
	}

	if level == 0 {
		return nil // root underflow (size 0) handled by collapseRootIfNeeded
	}
	if iv.Size() < iv.Max()/2 {
		return t.rebalanceInternal(stack, level, toFree)
	}
	return nil
}

// unlinkEmptyLeaf removes emptyID from the leaf sibling chain. Per
// spec.md §9's open question, this is done by scanning the chain from
// the global leftmost leaf to find the leaf pointing at emptyID,
// rather than via a direct predecessor pointer (leaves only carry a
// next pointer). stack holds the write latches already taken for this
// Remove call; the leftmost-leaf descent consults it instead of
// re-fetching pages it already owns (re-locking an already
// write-latched page would deadlock).
func (t *BPlusTree) unlinkEmptyLeaf(stack []pathFrame, emptyID int32, empty LeafView) {
	next := empty.NextLeaf()

	leftmost := t.leftmostLeafIDUsing(stack)
	if leftmost == emptyID {
		// No predecessor: the tree's new leftmost leaf is discovered
		// structurally, via ordinary descent, once the parent slot
		// pointing at emptyID is removed.
		return
	}

	cur := page.FetchWritePage(t.pool, leftmost)
	for {
		lv := NewLeafView(cur.Data())
		if lv.NextLeaf() == emptyID {
			lv.SetNextLeaf(next)
			cur.Drop()
			return
		}
		n := lv.NextLeaf()
		cur.SetDirty(false)
		cur.Drop()
		if n == page.InvalidID {
			return
		}
		cur = page.FetchWritePage(t.pool, n)
	}
}

// leftmostLeafIDUsing descends from the root to the leftmost leaf,
// reading any page already held in stack directly (no re-fetch) and
// falling back to a fresh read latch for pages outside it.
func (t *BPlusTree) leftmostLeafIDUsing(stack []pathFrame) int32 {
	id := t.RootPageID()
	for {
		if data, ok := stackData(stack, id); ok {
			if PageKind(data) == KindLeaf {
				return id
			}
			id = NewInternalView(data).Child(0)
			continue
		}
		g := page.FetchReadPage(t.pool, id)
		if PageKind(g.Data()) == KindLeaf {
			g.Drop()
			return id
		}
		next := NewInternalView(g.Data()).Child(0)
		g.Drop()
		id = next
	}
}

func stackData(stack []pathFrame, id int32) ([]byte, bool) {
	for _, f := range stack {
		if f.id == id {
			return f.wg.Data(), true
		}
	}
	return nil, false
}

// leftmostKeyUsing returns the first key of the leftmost leaf
// descending from childID, used to synthesize the separator key when
// merging two internal subtrees or redistributing a child between
// them (spec.md §4.2's "leftmost_key"). Like leftmostLeafIDUsing, it
// consults stack before fetching, since part of childID's path may
// already be write-latched by the in-progress Remove call.
func (t *BPlusTree) leftmostKeyUsing(stack []pathFrame, childID int32) []byte {
	id := childID
	for {
		if data, ok := stackData(stack, id); ok {
			if PageKind(data) == KindLeaf {
				return cloneBytes(NewLeafView(data).Key(0))
			}
			id = NewInternalView(data).Child(0)
			continue
		}
		g := page.FetchReadPage(t.pool, id)
		if PageKind(g.Data()) == KindLeaf {
			key := cloneBytes(NewLeafView(g.Data()).Key(0))
			g.Drop()
			return key
		}
		next := NewInternalView(g.Data()).Child(0)
		g.Drop()
		id = next
	}
}

// rebalanceLeaf merges or redistributes the underflowing leaf at
// stack[level] with a sibling. If a right sibling exists it is used:
// merge-right when it is at or below half capacity, otherwise
// redistribute-right. Only a leaf with no right sibling uses its left
// sibling, by merge-left or else redistribute-left.
func (t *BPlusTree) rebalanceLeaf(stack []pathFrame, level int, toFree *[]int32) *fixAction {
	frame := stack[level]
	parent := stack[level-1]
	piv := NewInternalView(parent.wg.Data())
	lv := NewLeafView(frame.wg.Data())

	if frame.childIdx < piv.Size() {
		rightID := piv.Child(frame.childIdx + 1)
		rg := page.FetchWritePage(t.pool, rightID)
		rv := NewLeafView(rg.Data())
		if rv.Size() <= rv.Max()/2 {
			mergeLeaves(lv, rv)
			lv.SetNextLeaf(rv.NextLeaf())
			rg.SetDirty(false)
			rg.Drop()
			*toFree = append(*toFree, rightID)
			return &fixAction{kind: fixDeleteChild, idx: frame.childIdx + 1}
		}
		// redistribute: borrow right's first item
		borrowKey := cloneBytes(rv.Key(0))
		borrowRID := rv.RID(0)
		rv.RemoveAt(0)
		lv.InsertAt(lv.Size(), borrowKey, borrowRID)
		rg.Drop()
		newSep := cloneBytes(rv.Key(0))
		return &fixAction{kind: fixUpdateSeparator, idx: frame.childIdx + 1, newKey: newSep}
	}

	if frame.childIdx > 0 {
		leftID := piv.Child(frame.childIdx - 1)
		lg := page.FetchWritePage(t.pool, leftID)
		llv := NewLeafView(lg.Data())
		if llv.Size() <= llv.Max()/2 {
			mergeLeaves(llv, lv)
			llv.SetNextLeaf(lv.NextLeaf())
			frame.wg.SetDirty(false)
			lg.Drop()
			*toFree = append(*toFree, frame.id)
			return &fixAction{kind: fixDeleteChild, idx: frame.childIdx}
		}
		// redistribute: borrow left's last item
		li := llv.Size() - 1
		borrowKey := cloneBytes(llv.Key(li))
		borrowRID := llv.RID(li)
		llv.RemoveAt(li)
		lg.Drop()
		lv.InsertAt(0, borrowKey, borrowRID)
		newSep := cloneBytes(lv.Key(0))
		return &fixAction{kind: fixUpdateSeparator, idx: frame.childIdx, newKey: newSep}
	}

	return nil
}

func mergeLeaves(dst, src LeafView) {
	base := dst.Size()
	for i := 0; i < src.Size(); i++ {
		dst.setAt(base+i, src.Key(i), src.RID(i))
	}
	dst.setSize(base + src.Size())
}

// rebalanceInternal mirrors rebalanceLeaf for internal nodes. Merging
// two internal nodes requires synthesizing the separator key that
// used to live in the parent (the merge boundary key), which becomes
// the leftmost key of the subtree rooted at the right node's first
// child.
func (t *BPlusTree) rebalanceInternal(stack []pathFrame, level int, toFree *[]int32) *fixAction {
	frame := stack[level]
	parent := stack[level-1]
	piv := NewInternalView(parent.wg.Data())
	iv := NewInternalView(frame.wg.Data())

	if frame.childIdx < piv.Size() {
		rightID := piv.Child(frame.childIdx + 1)
		rg := page.FetchWritePage(t.pool, rightID)
		riv := NewInternalView(rg.Data())
		if riv.Size() <= riv.Max()/2 {
			boundary := t.leftmostKeyUsing(stack, riv.Child(0))
			mergeInternals(iv, riv, boundary)
			rg.SetDirty(false)
			rg.Drop()
			*toFree = append(*toFree, rightID)
			return &fixAction{kind: fixDeleteChild, idx: frame.childIdx + 1}
		}
		// redistribute: move right's first child to iv's new last slot,
		// using the old parent separator as its key; the new parent
		// separator becomes the leftmost key of right's new first child.
		oldSep := cloneBytes(piv.Key(frame.childIdx + 1))
		borrowChild := riv.Child(0)
		newFirstChild := riv.Child(1)
		riv.RemoveAt(1)
		riv.SetFirstChild(newFirstChild)
		rg.Drop()
		iv.InsertAt(iv.Size()+1, oldSep, borrowChild)
		newSep := t.leftmostKeyUsing(stack, newFirstChild)
		return &fixAction{kind: fixUpdateSeparator, idx: frame.childIdx + 1, newKey: newSep}
	}

	if frame.childIdx > 0 {
		leftID := piv.Child(frame.childIdx - 1)
		lg := page.FetchWritePage(t.pool, leftID)
		liv := NewInternalView(lg.Data())
		if liv.Size() <= liv.Max()/2 {
			boundary := t.leftmostKeyUsing(stack, iv.Child(0))
			mergeInternals(liv, iv, boundary)
			frame.wg.SetDirty(false)
			lg.Drop()
			*toFree = append(*toFree, frame.id)
			return &fixAction{kind: fixDeleteChild, idx: frame.childIdx}
		}
		// redistribute: move left's last child to iv's new first slot,
		// using the old parent separator as the key for iv's displaced
		// old first child; the new parent separator becomes the
		// leftmost key of the borrowed child.
		li := liv.Size()
		oldSep := cloneBytes(piv.Key(frame.childIdx))
		borrowChild := liv.Child(li)
		liv.RemoveAt(li)
		lg.Drop()
		oldFirstChild := iv.Child(0)
		iv.InsertAt(1, oldSep, oldFirstChild)
		iv.SetFirstChild(borrowChild)
		newSep := t.leftmostKeyUsing(stack, borrowChild)
		return &fixAction{kind: fixUpdateSeparator, idx: frame.childIdx, newKey: newSep}
	}

	return nil
}

func mergeInternals(dst, src InternalView, boundaryKey []byte) {
	base := dst.Size()
	dst.setAt(base+1, boundaryKey, src.Child(0))
	for i := 1; i <= src.Size(); i++ {
		dst.setAt(base+1+i, src.Key(i), src.Child(i))
	}
	dst.setSize(base + 1 + src.Size())
}

// collapseRootIfNeeded implements: "when the root's size drops to 0
// (i.e. it retains only one child pointer), the child becomes the new
// root."
func (t *BPlusTree) collapseRootIfNeeded(stack []pathFrame, toFree *[]int32) {
	root := stack[0]
	if PageKind(root.wg.Data()) == KindLeaf {
		return
	}
	iv := NewInternalView(root.wg.Data())
	if iv.Size() != 0 {
		return
	}
	newRoot := iv.Child(0)
	root.wg.SetDirty(false)
	*toFree = append(*toFree, root.id)
	t.setRoot(newRoot)
}
