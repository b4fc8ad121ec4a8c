package hashtable

import (
	"bytes"
	"sync"

	"github.com/go-logr/logr"
	"github.com/spaolacci/murmur3"

	"github.com/pagestore/dbcore/dbcorelog"
	"github.com/pagestore/dbcore/dbcoreerr"
	"github.com/pagestore/dbcore/page"
	"github.com/pagestore/dbcore/rid"
)

// Comparator orders two fixed-width keys; see bplustree.Comparator.
type Comparator func(a, b []byte) int

// BytesComparator is the default Comparator: lexicographic byte order.
func BytesComparator(a, b []byte) int { return bytes.Compare(a, b) }

// HashFunc maps a key buffer to an unsigned 32-bit hash. Murmur3Hash
// is the reference functor (spec.md §4.3); callers may supply their
// own as long as it is pure and deterministic.
type HashFunc func(key []byte) uint32

// Murmur3Hash is the default HashFunc.
func Murmur3Hash(key []byte) uint32 { return murmur3.Sum32(key) }

const (
	defaultHeaderMaxDepth    = 9
	defaultDirectoryMaxDepth = 9
	defaultBucketMaxSize     = 64
)

// ExtendibleHashTable is a hash index over page.Pool, laid out as a
// header page pointing at directory pages, each pointing at bucket
// pages (spec.md §4.3). Insert/Remove take the table latch exclusive;
// GetValue takes it shared.
type ExtendibleHashTable struct {
	pool page.Source
	cmp  Comparator
	hash HashFunc

	keySize            int
	headerMaxDepth     int
	directoryMaxDepth  int
	bucketMaxSize      int

	latch      sync.RWMutex
	headerPage int32

	log logr.Logger
}

// New constructs a table over pool. headerMaxDepth/directoryMaxDepth/
// bucketMaxSize of 0 take the reference defaults from spec.md §6.
func New(pool page.Source, cmp Comparator, hash HashFunc, keySize, headerMaxDepth, directoryMaxDepth, bucketMaxSize int, log *logr.Logger) (*ExtendibleHashTable, error) {
	if cmp == nil {
		cmp = BytesComparator
	}
	if hash == nil {
		hash = Murmur3Hash
	}
	if headerMaxDepth <= 0 {
		headerMaxDepth = defaultHeaderMaxDepth
	}
	if directoryMaxDepth <= 0 {
		directoryMaxDepth = defaultDirectoryMaxDepth
	}
	if bucketMaxSize <= 0 {
		bucketMaxSize = defaultBucketMaxSize
	}

	t := &ExtendibleHashTable{
		pool:              pool,
		cmp:               cmp,
		hash:              hash,
		keySize:           keySize,
		headerMaxDepth:    headerMaxDepth,
		directoryMaxDepth: directoryMaxDepth,
		bucketMaxSize:     bucketMaxSize,
		log:               dbcorelog.Named(log, "hashtable.ExtendibleHashTable"),
	}

	wg, err := page.NewWritePage(pool)
	if err != nil {
		return nil, err
	}
	InitHeader(wg.Data(), headerMaxDepth)
	t.headerPage = wg.PageID()
	wg.Drop()

	return t, nil
}

// GetValue performs a point lookup under the table's shared latch.
func (t *ExtendibleHashTable) GetValue(key []byte) (rid.RID, bool) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	h := t.hash(key)
	hg := page.FetchReadPage(t.pool, t.headerPage)
	defer hg.Drop()
	hv := NewHeaderView(hg.Data())

	dirID := hv.DirectoryPageID(hv.HashToDirectoryIndex(h))
	if dirID == page.InvalidID {
		return rid.RID{}, false
	}
	dg := page.FetchReadPage(t.pool, dirID)
	defer dg.Drop()
	dv := NewDirectoryView(dg.Data())

	bucketID := dv.BucketPageID(dv.HashToBucketIndex(h))
	if bucketID == page.InvalidID {
		return rid.RID{}, false
	}
	bg := page.FetchReadPage(t.pool, bucketID)
	defer bg.Drop()
	bv := NewBucketView(bg.Data())

	found, pos := bv.Search(t.cmp, key)
	if !found {
		return rid.RID{}, false
	}
	return bv.RID(pos), true
}

// Insert adds (key, r). Returns (false, nil) if key is already
// present, and (false, dbcoreerr.ErrCapacity) if the directory has
// exhausted max_depth and cannot grow further to accommodate a split.
func (t *ExtendibleHashTable) Insert(key []byte, r rid.RID) (bool, error) {
	t.latch.Lock()
	defer t.latch.Unlock()

	h := t.hash(key)

	hg := page.FetchWritePage(t.pool, t.headerPage)
	defer func() { hg.Drop() }()
	hv := NewHeaderView(hg.Data())

	dirIdx := hv.HashToDirectoryIndex(h)
	dirID := hv.DirectoryPageID(dirIdx)
	if dirID == page.InvalidID {
		dwg, err := page.NewWritePage(t.pool)
		if err != nil {
			return false, err
		}
		InitDirectory(dwg.Data(), t.directoryMaxDepth)
		dirID = dwg.PageID()
		hv.SetDirectoryPageID(dirIdx, dirID)
		dwg.Drop()
	} else {
		hg.SetDirty(false)
	}

	return t.insertIntoDirectory(dirID, h, key, r)
}

func (t *ExtendibleHashTable) insertIntoDirectory(dirID int32, h uint32, key []byte, r rid.RID) (bool, error) {
	dg := page.FetchWritePage(t.pool, dirID)
	defer dg.Drop()
	dv := NewDirectoryView(dg.Data())

	bucketIdx := dv.HashToBucketIndex(h)
	bucketID := dv.BucketPageID(bucketIdx)
	if bucketID == page.InvalidID {
		bwg, err := page.NewWritePage(t.pool)
		if err != nil {
			return false, err
		}
		InitBucket(bwg.Data(), t.keySize, t.bucketMaxSize)
		bucketID = bwg.PageID()
		dv.SetBucketPageID(bucketIdx, bucketID)
		dv.SetLocalDepth(bucketIdx, 0)
		bwg.Drop()
	}

	for {
		bg := page.FetchWritePage(t.pool, bucketID)
		bv := NewBucketView(bg.Data())

		found, pos := bv.Search(t.cmp, key)
		if found {
			bg.SetDirty(false)
			bg.Drop()
			return false, nil
		}
		if bv.NumItems() < bv.MaxNumItems() {
			bv.InsertAt(pos, key, r)
			bg.Drop()
			return true, nil
		}

		localDepth := int(dv.LocalDepth(bucketIdx))
		if localDepth == dv.GlobalDepth() {
			if dv.GlobalDepth() == dv.MaxDepth() {
				bg.SetDirty(false)
				bg.Drop()
				return false, dbcoreerr.Wrapf(dbcoreerr.ErrCapacity, "key %x at max depth %d", key, dv.MaxDepth())
			}
			dv.Grow()
			t.log.V(1).Info("directory grown", "globalDepth", dv.GlobalDepth())
		}

		newBucketID, err := t.splitBucket(dv, bucketIdx, bg, bv)
		bg.Drop()
		if err != nil {
			return false, err
		}
		t.log.V(1).Info("bucket split", "original", bucketID, "new", newBucketID)

		bucketIdx = dv.HashToBucketIndex(h)
		bucketID = dv.BucketPageID(bucketIdx)
	}
}

// splitBucket implements spec.md §4.3 step 2-3: allocate a split
// bucket, bump the original's local depth, re-tag every directory
// index that shared the original bucket and now falls on the split
// side, and rehash the original bucket's items between the two.
func (t *ExtendibleHashTable) splitBucket(dv DirectoryView, bucketIdx int, origGuard *page.WriteGuard, origView BucketView) (int32, error) {
	oldLocalDepth := int(dv.LocalDepth(bucketIdx))
	newLocalDepth := oldLocalDepth + 1

	origBucketID := origGuard.PageID()

	swg, err := page.NewWritePage(t.pool)
	if err != nil {
		return page.InvalidID, err
	}
	InitBucket(swg.Data(), origView.KeySize(), origView.MaxNumItems())
	splitBucketID := swg.PageID()

	// Every directory index currently pointing at the original bucket
	// shares its old local depth; re-tag the half of those indices
	// whose split bit is set to point at the new bucket instead.
	for i := 0; i < dv.Size(); i++ {
		if dv.BucketPageID(i) != origBucketID {
			continue
		}
		if i&(1<<uint(newLocalDepth-1)) != 0 {
			dv.SetBucketPageID(i, splitBucketID)
			dv.SetLocalDepth(i, uint8(newLocalDepth))
		} else {
			dv.SetLocalDepth(i, uint8(newLocalDepth))
		}
	}

	items := origView.itemsSnapshot()
	origView.setNumItems(0)
	mask := uint32(dv.Size() - 1)
	for _, it := range items {
		h := t.hash(it.key)
		if int(h&mask)&(1<<uint(newLocalDepth-1)) != 0 {
			sv := NewBucketView(swg.Data())
			_, pos := sv.Search(t.cmp, it.key)
			sv.InsertAt(pos, it.key, it.r)
		} else {
			_, pos := origView.Search(t.cmp, it.key)
			origView.InsertAt(pos, it.key, it.r)
		}
	}

	swg.Drop()
	return splitBucketID, nil
}

// Remove deletes key. Returns false if absent.
func (t *ExtendibleHashTable) Remove(key []byte) bool {
	t.latch.Lock()
	defer t.latch.Unlock()

	h := t.hash(key)

	hg := page.FetchWritePage(t.pool, t.headerPage)
	hg.SetDirty(false)
	defer hg.Drop()
	hv := NewHeaderView(hg.Data())

	dirID := hv.DirectoryPageID(hv.HashToDirectoryIndex(h))
	if dirID == page.InvalidID {
		return false
	}

	dg := page.FetchWritePage(t.pool, dirID)
	defer dg.Drop()
	dv := NewDirectoryView(dg.Data())

	bucketIdx := dv.HashToBucketIndex(h)
	bucketID := dv.BucketPageID(bucketIdx)
	if bucketID == page.InvalidID {
		dg.SetDirty(false)
		return false
	}

	bg := page.FetchWritePage(t.pool, bucketID)
	bv := NewBucketView(bg.Data())
	found, pos := bv.Search(t.cmp, key)
	if !found {
		bg.SetDirty(false)
		bg.Drop()
		dg.SetDirty(false)
		return false
	}
	bv.RemoveAt(pos)

	if bv.NumItems() > 0 || dv.GlobalDepth() == 0 {
		bg.Drop()
		return true
	}

	localDepth := int(dv.LocalDepth(bucketIdx))
	if localDepth == 0 {
		bg.SetDirty(false)
		bg.Drop()
		return true
	}
	imageIdx := dv.SplitImageIndex(bucketIdx, localDepth)
	imageBucketID := dv.BucketPageID(imageIdx)
	if int(dv.LocalDepth(imageIdx)) != localDepth {
		bg.Drop()
		return true
	}
	newDepth := dv.LocalDepth(imageIdx) - 1

	// Unify every index referencing either the now-empty bucket or its
	// split image under the image's page id at the decremented depth,
	// preserving the "same bucket id => same local depth" invariant.
	for i := 0; i < dv.Size(); i++ {
		if dv.BucketPageID(i) == imageBucketID || dv.BucketPageID(i) == bucketID {
			dv.SetBucketPageID(i, imageBucketID)
			dv.SetLocalDepth(i, newDepth)
		}
	}

	bg.SetDirty(false)
	bg.Drop()
	t.pool.ReleaseBack(bucketID)

	for dv.CanShrink() {
		dv.Shrink()
		t.log.V(1).Info("directory shrunk", "globalDepth", dv.GlobalDepth())
	}

	return true
}

// VerifyIntegrity walks the header and every live directory page,
// checking spec.md §4.3's three invariants: (a) every local_depth <=
// global_depth, (b) indices sharing a bucket page id share the same
// local depth, (c) each bucket page id is referenced exactly
// 2^(global_depth - local_depth) times.
func (t *ExtendibleHashTable) VerifyIntegrity() bool {
	t.latch.RLock()
	defer t.latch.RUnlock()

	hg := page.FetchReadPage(t.pool, t.headerPage)
	defer hg.Drop()
	hv := NewHeaderView(hg.Data())

	ok := true
	for i := 0; i < (1 << uint(hv.MaxDepth())); i++ {
		dirID := hv.DirectoryPageID(i)
		if dirID == page.InvalidID {
			continue
		}
		if !t.verifyDirectory(dirID) {
			ok = false
		}
	}
	if !ok {
		t.log.Error(nil, "hash table integrity check failed")
	}
	return ok
}

func (t *ExtendibleHashTable) verifyDirectory(dirID int32) bool {
	dg := page.FetchReadPage(t.pool, dirID)
	defer dg.Drop()
	dv := NewDirectoryView(dg.Data())

	size := dv.Size()
	refCount := make(map[int32]int, size)
	depthByBucket := make(map[int32]uint8, size)

	for i := 0; i < size; i++ {
		ld := dv.LocalDepth(i)
		if int(ld) > dv.GlobalDepth() {
			return false
		}
		bucketID := dv.BucketPageID(i)
		if bucketID == page.InvalidID {
			continue
		}
		if d, ok := depthByBucket[bucketID]; ok && d != ld {
			return false
		}
		depthByBucket[bucketID] = ld
		refCount[bucketID]++
	}

	for bucketID, count := range refCount {
		want := 1 << uint(dv.GlobalDepth()-int(depthByBucket[bucketID]))
		if count != want {
			return false
		}
	}
	return true
}
