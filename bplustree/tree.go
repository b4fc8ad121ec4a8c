// Package bplustree implements an on-disk-page-shaped (but RAM-pool
// backed) B+ tree: leaf/internal page layouts, split/merge/redistribute,
// the leaf sibling chain, a forward range iterator, and a single
// tree-level shared/exclusive latch guarding Insert/Remove/GetValue.
package bplustree

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/pagestore/dbcore/dbcorelog"
	"github.com/pagestore/dbcore/dbcoreerr"
	"github.com/pagestore/dbcore/page"
	"github.com/pagestore/dbcore/rid"
)

// BPlusTree is an ordered, range-scannable index over fixed-width
// binary keys, built entirely on top of page.Pool guards. Insert and
// Remove take the tree's latch exclusive; GetValue takes it shared.
// Leaf-chain iteration takes this latch shared only for the initial
// descent in Begin/BeginAt; advancing and reading hold only the
// per-page read latch of the leaf currently being visited, matching
// spec.md §5's documented concurrent-iteration limitation.
type BPlusTree struct {
	pool        page.Source
	cmp         Comparator
	keySize     int
	leafMax     int
	internalMax int

	latch sync.RWMutex

	rootMu     sync.Mutex // protects rootPageID itself (set under tree latch, read under either)
	rootPageID int32

	log logr.Logger
}

// New constructs a B+ tree over pool, allocating a single empty leaf
// page as the root. leafMax/internalMax of 0 derive a capacity from
// page.Size and keySize.
func New(pool page.Source, cmp Comparator, keySize, leafMax, internalMax int, log *logr.Logger) (*BPlusTree, error) {
	if cmp == nil {
		cmp = BytesComparator
	}
	if leafMax <= 0 {
		leafMax = (page.Size - leafHeaderSize) / (keySize + rid.Size)
	}
	if internalMax <= 0 {
		internalMax = (page.Size-internalHeaderSize)/(keySize+4) - 1
	}

	t := &BPlusTree{
		pool:        pool,
		cmp:         cmp,
		keySize:     keySize,
		leafMax:     leafMax,
		internalMax: internalMax,
		log:         dbcorelog.Named(log, "bplustree.BPlusTree"),
	}

	wg, err := page.NewWritePage(pool)
	if err != nil {
		return nil, err
	}
	InitLeaf(wg.Data(), keySize, leafMax)
	t.rootPageID = wg.PageID()
	wg.Drop()

	return t, nil
}

// RootPageID returns the current root page id. Test/debug helper, not
// part of the external contract in spec.md §6.
func (t *BPlusTree) RootPageID() int32 {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.rootPageID
}

func (t *BPlusTree) setRoot(id int32) {
	t.rootMu.Lock()
	t.rootPageID = id
	t.rootMu.Unlock()
}

// Height returns the number of levels from the root to the leaves,
// inclusive (a tree with only a root leaf has height 1). Test/debug
// helper, not part of the external contract in spec.md §6; it exists
// so tests can walk live page contents to check size-bound invariants
// directly instead of inferring them from the absence of a panic.
func (t *BPlusTree) Height() int {
	t.latch.RLock()
	defer t.latch.RUnlock()
	return t.height(t.RootPageID())
}

func (t *BPlusTree) height(nodeID int32) int {
	g := page.FetchReadPage(t.pool, nodeID)
	defer g.Drop()
	if PageKind(g.Data()) == KindLeaf {
		return 1
	}
	iv := NewInternalView(g.Data())
	return 1 + t.height(iv.Child(0))
}

// GetValue performs a point lookup under the tree's shared latch.
func (t *BPlusTree) GetValue(key []byte) (rid.RID, bool) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	leaf := t.descendRead(key)
	defer leaf.Drop()

	lv := NewLeafView(leaf.Data())
	found, pos := lv.Search(t.cmp, key)
	if !found {
		return rid.RID{}, false
	}
	return lv.RID(pos), true
}

// descendRead walks from the root to the leaf that would contain key,
// holding at most two read latches at a time: the child is fetched,
// then the parent is dropped, so at least one page stays pinned
// throughout the walk.
func (t *BPlusTree) descendRead(key []byte) *page.ReadGuard {
	cur := page.FetchReadPage(t.pool, t.RootPageID())
	for {
		if PageKind(cur.Data()) == KindLeaf {
			return cur
		}
		iv := NewInternalView(cur.Data())
		childID := iv.Child(iv.Search(t.cmp, key))
		next := page.FetchReadPage(t.pool, childID)
		cur.Drop()
		cur = next
	}
}

// insertResult communicates a completed split back up the recursive
// call stack: the parent frame is responsible for inserting the
// separator key into its own page (spec.md §4.2).
type insertResult struct {
	splitKey   []byte
	splitChild int32
	split      bool
}

// Insert adds (key, r) to the tree. Returns (false, nil) if the key is
// already present (DuplicateKey), and (false, err) if a split could
// not proceed because the pool is exhausted.
func (t *BPlusTree) Insert(key []byte, r rid.RID) (bool, error) {
	t.latch.Lock()
	defer t.latch.Unlock()

	res, err := t.insertRecursive(t.RootPageID(), key, r)
	if err != nil {
		if errors.Is(err, dbcoreerr.ErrDuplicateKey) {
			return false, nil
		}
		return false, err
	}
	if res.split {
		wg, err := page.NewWritePage(t.pool)
		if err != nil {
			return false, err
		}
		iv := InitInternal(wg.Data(), t.keySize, t.internalMax)
		iv.SetFirstChild(t.RootPageID())
		iv.InsertAt(1, res.splitKey, res.splitChild)
		t.setRoot(wg.PageID())
		wg.Drop()
		t.log.V(1).Info("root split", "newRoot", t.RootPageID())
	}
	return true, nil
}

func (t *BPlusTree) insertRecursive(nodeID int32, key []byte, r rid.RID) (insertResult, error) {
	wg := page.FetchWritePage(t.pool, nodeID)

	if PageKind(wg.Data()) == KindLeaf {
		lv := NewLeafView(wg.Data())
		found, pos := lv.Search(t.cmp, key)
		if found {
			wg.SetDirty(false)
			wg.Drop()
			return insertResult{}, dbcoreerr.Wrapf(dbcoreerr.ErrDuplicateKey, "key %x in leaf page %d", key, nodeID)
		}
		if lv.Size() < lv.Max() {
			lv.InsertAt(pos, key, r)
			wg.Drop()
			return insertResult{}, nil
		}
		res, err := t.splitLeaf(wg, lv, pos, key, r)
		return res, err
	}

	iv := NewInternalView(wg.Data())
	childID := iv.Child(iv.Search(t.cmp, key))

	childRes, err := t.insertRecursive(childID, key, r)
	if err != nil {
		wg.SetDirty(false)
		wg.Drop()
		return insertResult{}, err
	}
	if !childRes.split {
		wg.SetDirty(false)
		wg.Drop()
		return insertResult{}, nil
	}

	insPos := iv.Search(t.cmp, childRes.splitKey) + 1
	if iv.Size() < iv.Max() {
		iv.InsertAt(insPos, childRes.splitKey, childRes.splitChild)
		wg.Drop()
		return insertResult{}, nil
	}
	return t.splitInternal(wg, iv, insPos, childRes.splitKey, childRes.splitChild)
}

type leafEntry struct {
	key []byte
	r   rid.RID
}

// splitLeaf splits a full leaf (Size() == Max()) to make room for
// (key, r) at slot pos: it builds the Max()+1 logical entries,
// allocates a new right-sibling leaf, and divides the entries at the
// midpoint so both halves end up within [max/2, max] (spec.md §8 P8).
// The new leaf is spliced into the next-leaf chain immediately.
func (t *BPlusTree) splitLeaf(wg *page.WriteGuard, lv LeafView, pos int, key []byte, r rid.RID) (insertResult, error) {
	n := lv.Size()
	entries := make([]leafEntry, 0, n+1)
	for i := 0; i < pos; i++ {
		entries = append(entries, leafEntry{cloneBytes(lv.Key(i)), lv.RID(i)})
	}
	entries = append(entries, leafEntry{cloneBytes(key), r})
	for i := pos; i < n; i++ {
		entries = append(entries, leafEntry{cloneBytes(lv.Key(i)), lv.RID(i)})
	}

	mid := len(entries) / 2

	rightGuard, err := page.NewWritePage(t.pool)
	if err != nil {
		wg.SetDirty(false)
		wg.Drop()
		return insertResult{}, err
	}
	rv := InitLeaf(rightGuard.Data(), lv.KeySize(), lv.Max())

	for i, e := range entries[:mid] {
		lv.setAt(i, e.key, e.r)
	}
	lv.setSize(mid)

	for i, e := range entries[mid:] {
		rv.setAt(i, e.key, e.r)
	}
	rv.setSize(len(entries) - mid)

	rv.SetNextLeaf(lv.NextLeaf())
	lv.SetNextLeaf(rightGuard.PageID())

	separator := cloneBytes(entries[mid].key)

	t.log.V(1).Info("leaf split", "left", wg.PageID(), "right", rightGuard.PageID(), "separator", separator)

	rightID := rightGuard.PageID()
	wg.Drop()
	rightGuard.Drop()

	return insertResult{splitKey: separator, splitChild: rightID, split: true}, nil
}

type internalEntry struct {
	key   []byte // unused for entry 0 (placeholder)
	child int32
}

// splitInternal mirrors splitLeaf for internal pages, with one twist:
// the middle entry's key is the separator pushed up to the parent and
// is NOT duplicated into either child (standard B+ tree internal
// split), unlike the leaf case where the separator stays copied into
// the right leaf.
func (t *BPlusTree) splitInternal(wg *page.WriteGuard, iv InternalView, insPos int, key []byte, childID int32) (insertResult, error) {
	n := iv.Size()
	entries := make([]internalEntry, 0, n+2)
	entries = append(entries, internalEntry{child: iv.Child(0)})
	for i := 1; i <= n; i++ {
		if i == insPos {
			entries = append(entries, internalEntry{key: cloneBytes(key), child: childID})
		}
		entries = append(entries, internalEntry{key: cloneBytes(iv.Key(i)), child: iv.Child(i)})
	}
	if insPos == n+1 {
		entries = append(entries, internalEntry{key: cloneBytes(key), child: childID})
	}

	mid := len(entries) / 2
	separator := cloneBytes(entries[mid].key)

	rightGuard, err := page.NewWritePage(t.pool)
	if err != nil {
		wg.SetDirty(false)
		wg.Drop()
		return insertResult{}, err
	}
	rv := InitInternal(rightGuard.Data(), iv.KeySize(), iv.Max())

	// left keeps entries[0:mid) -- mid entries, i.e. mid-1 keys
	iv.SetFirstChild(entries[0].child)
	for i := 1; i < mid; i++ {
		iv.setAt(i, entries[i].key, entries[i].child)
	}
	iv.setSize(mid - 1)

	// right gets entries[mid:) -- entries[mid].child becomes slot 0
	rv.SetFirstChild(entries[mid].child)
	for i, j := mid+1, 1; i < len(entries); i, j = i+1, j+1 {
		rv.setAt(j, entries[i].key, entries[i].child)
	}
	rv.setSize(len(entries) - mid - 1)

	t.log.V(1).Info("internal split", "left", wg.PageID(), "right", rightGuard.PageID(), "separator", separator)

	rightID := rightGuard.PageID()
	wg.Drop()
	rightGuard.Drop()

	return insertResult{splitKey: separator, splitChild: rightID, split: true}, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
