// Package hashtable implements an extendible hash table over
// page.Pool: a three-tier header/directory/bucket page hierarchy with
// directory doubling/halving and bucket splitting, matching spec.md
// §4.3/§6's page layouts and algorithms. Like bplustree, page
// contents are exposed as zero-copy typed views over a raw []byte
// rather than struct overlays.
package hashtable

import (
	"encoding/binary"

	"github.com/pagestore/dbcore/page"
	"github.com/pagestore/dbcore/rid"
)

func le32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }
func putLe32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// HeaderView: [max_depth:4] [directory_page_id:4]*, array sized
// 2^max_depth.
type HeaderView struct {
	buf []byte
}

func NewHeaderView(buf []byte) HeaderView { return HeaderView{buf: buf} }

// InitHeader formats buf with maxDepth and every directory slot set to
// page.InvalidID.
func InitHeader(buf []byte, maxDepth int) HeaderView {
	v := HeaderView{buf: buf}
	putLe32(v.buf[0:], uint32(maxDepth))
	n := 1 << uint(maxDepth)
	for i := 0; i < n; i++ {
		v.SetDirectoryPageID(i, page.InvalidID)
	}
	return v
}

func (v HeaderView) MaxDepth() int { return int(le32(v.buf[0:])) }

func (v HeaderView) dirOffset(i int) int { return 4 + i*4 }

func (v HeaderView) DirectoryPageID(i int) int32 {
	return int32(le32(v.buf[v.dirOffset(i):]))
}

func (v HeaderView) SetDirectoryPageID(i int, id int32) {
	putLe32(v.buf[v.dirOffset(i):], uint32(id))
}

// HashToDirectoryIndex returns the top MaxDepth() bits of hash.
func (v HeaderView) HashToDirectoryIndex(hash uint32) int {
	if v.MaxDepth() == 0 {
		return 0
	}
	return int(hash >> (32 - uint(v.MaxDepth())))
}

// DirectoryView: [max_depth:4|global_depth:4] [local_depth:1]*[bucket_page_id:4]*,
// both arrays sized 2^max_depth (the directory's own max depth, a
// distinct constant from the header's).
type DirectoryView struct {
	buf []byte
}

func NewDirectoryView(buf []byte) DirectoryView { return DirectoryView{buf: buf} }

// InitDirectory formats buf with the given max depth, global depth 0,
// and every slot pointing at page.InvalidID with local depth 0.
func InitDirectory(buf []byte, maxDepth int) DirectoryView {
	v := DirectoryView{buf: buf}
	putLe32(v.buf[0:], uint32(maxDepth))
	putLe32(v.buf[4:], 0)
	n := 1 << uint(maxDepth)
	for i := 0; i < n; i++ {
		v.SetLocalDepth(i, 0)
		v.SetBucketPageID(i, page.InvalidID)
	}
	return v
}

func (v DirectoryView) MaxDepth() int    { return int(le32(v.buf[0:])) }
func (v DirectoryView) GlobalDepth() int { return int(le32(v.buf[4:])) }
func (v DirectoryView) SetGlobalDepth(d int) { putLe32(v.buf[4:], uint32(d)) }

func (v DirectoryView) localDepthOffset(i int) int { return 8 + i }
func (v DirectoryView) bucketArrayBase() int       { return 8 + (1 << uint(v.MaxDepth())) }
func (v DirectoryView) bucketOffset(i int) int      { return v.bucketArrayBase() + i*4 }

func (v DirectoryView) LocalDepth(i int) uint8 {
	return v.buf[v.localDepthOffset(i)]
}

func (v DirectoryView) SetLocalDepth(i int, d uint8) {
	v.buf[v.localDepthOffset(i)] = d
}

func (v DirectoryView) BucketPageID(i int) int32 {
	return int32(le32(v.buf[v.bucketOffset(i):]))
}

func (v DirectoryView) SetBucketPageID(i int, id int32) {
	putLe32(v.buf[v.bucketOffset(i):], uint32(id))
}

// Size is the active portion of the directory: 2^GlobalDepth entries.
func (v DirectoryView) Size() int { return 1 << uint(v.GlobalDepth()) }

// HashToBucketIndex returns the low GlobalDepth() bits of hash.
func (v DirectoryView) HashToBucketIndex(hash uint32) int {
	return int(hash & uint32(v.Size()-1))
}

// SplitImageIndex returns the index that shares every bit of idx
// except the newest distinguishing one (bit localDepth-1).
func (v DirectoryView) SplitImageIndex(idx int, localDepth int) int {
	return idx ^ (1 << uint(localDepth-1))
}

// Grow doubles the active directory size: each index i in
// [0, oldSize) is copied to i+oldSize (spec.md §9's "Directory
// doubling"), then GlobalDepth is incremented.
func (v DirectoryView) Grow() {
	oldSize := v.Size()
	for i := 0; i < oldSize; i++ {
		v.SetBucketPageID(i+oldSize, v.BucketPageID(i))
		v.SetLocalDepth(i+oldSize, v.LocalDepth(i))
	}
	v.SetGlobalDepth(v.GlobalDepth() + 1)
}

// CanShrink reports whether every pair of indices in the upper and
// lower halves of the active directory agree on bucket page id and
// local depth, meaning GlobalDepth can be decremented without losing
// information.
func (v DirectoryView) CanShrink() bool {
	if v.GlobalDepth() == 0 {
		return false
	}
	half := v.Size() / 2
	for i := 0; i < half; i++ {
		if v.BucketPageID(i) != v.BucketPageID(i+half) || v.LocalDepth(i) != v.LocalDepth(i+half) {
			return false
		}
	}
	return true
}

// Shrink halves the active directory size by decrementing GlobalDepth.
// Caller must have already verified CanShrink.
func (v DirectoryView) Shrink() {
	v.SetGlobalDepth(v.GlobalDepth() - 1)
}

// BucketView: [key_size:4|num_items:4|max_num_items:4] [key|rid]*,
// sorted ascending by key.
type BucketView struct {
	buf []byte
}

func NewBucketView(buf []byte) BucketView { return BucketView{buf: buf} }

// InitBucket formats buf as an empty bucket with the given key width
// and item capacity.
func InitBucket(buf []byte, keySize, maxItems int) BucketView {
	v := BucketView{buf: buf}
	putLe32(v.buf[0:], uint32(keySize))
	putLe32(v.buf[4:], 0)
	putLe32(v.buf[8:], uint32(maxItems))
	return v
}

func (v BucketView) KeySize() int      { return int(le32(v.buf[0:])) }
func (v BucketView) NumItems() int     { return int(le32(v.buf[4:])) }
func (v BucketView) MaxNumItems() int  { return int(le32(v.buf[8:])) }
func (v BucketView) setNumItems(n int) { putLe32(v.buf[4:], uint32(n)) }

func (v BucketView) itemSize() int      { return v.KeySize() + rid.Size }
func (v BucketView) itemOffset(i int) int { return 12 + i*v.itemSize() }

func (v BucketView) Key(i int) []byte {
	off := v.itemOffset(i)
	ks := v.KeySize()
	return v.buf[off : off+ks]
}

func (v BucketView) RID(i int) rid.RID {
	off := v.itemOffset(i) + v.KeySize()
	return rid.Decode(v.buf[off : off+rid.Size])
}

func (v BucketView) setAt(i int, key []byte, r rid.RID) {
	off := v.itemOffset(i)
	ks := v.KeySize()
	copy(v.buf[off:off+ks], key)
	rid.Encode(r, v.buf[off+ks:off+ks+rid.Size])
}

// Search uses fast-path checks against the first/last item before
// falling back to binary search, per spec.md §4.3's bucket operation
// description. Returns (found, pos): the insertion position keeping
// the bucket sorted when not found.
func (v BucketView) Search(cmp Comparator, key []byte) (found bool, pos int) {
	n := v.NumItems()
	if n == 0 {
		return false, 0
	}
	if c := cmp(key, v.Key(0)); c < 0 {
		return false, 0
	} else if c == 0 {
		return true, 0
	}
	if c := cmp(key, v.Key(n-1)); c > 0 {
		return false, n
	} else if c == 0 {
		return true, n - 1
	}

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

// InsertAt shifts items [pos, NumItems) right by one and writes
// (key, r) at pos. Caller must ensure NumItems() < MaxNumItems().
func (v BucketView) InsertAt(pos int, key []byte, r rid.RID) {
	n := v.NumItems()
	is := v.itemSize()
	for i := n; i > pos; i-- {
		copy(v.buf[v.itemOffset(i):v.itemOffset(i)+is], v.buf[v.itemOffset(i-1):v.itemOffset(i-1)+is])
	}
	v.setAt(pos, key, r)
	v.setNumItems(n + 1)
}

// RemoveAt shifts items (pos, NumItems) left by one.
func (v BucketView) RemoveAt(pos int) {
	n := v.NumItems()
	is := v.itemSize()
	for i := pos; i < n-1; i++ {
		copy(v.buf[v.itemOffset(i):v.itemOffset(i)+is], v.buf[v.itemOffset(i+1):v.itemOffset(i+1)+is])
	}
	v.setNumItems(n - 1)
}

// itemsSnapshot returns a copy of every item in the bucket, in slot
// order -- used by splitBucket to partition an overflowing bucket's
// items between the original and the new split bucket.
func (v BucketView) itemsSnapshot() []bucketItem {
	out := make([]bucketItem, v.NumItems())
	for i := range out {
		out[i] = bucketItem{key: cloneBytes(v.Key(i)), r: v.RID(i)}
	}
	return out
}

type bucketItem struct {
	key []byte
	r   rid.RID
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
