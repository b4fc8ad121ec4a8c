package bplustree

import (
	"encoding/binary"

	"github.com/pagestore/dbcore/page"
	"github.com/pagestore/dbcore/rid"
)

// Kind tags the shared header prefix of every B+ tree page, per
// spec.md §3.
type Kind uint32

const (
	KindInvalid  Kind = 0
	KindLeaf     Kind = 1
	KindInternal Kind = 2
)

// Shared header offsets (spec.md §6):
//   [kind:4|size:4|max:4|key_size:4|next:4] for leaves
//   [kind:4|size:4|max:4|key_size:4]        for internal pages
const (
	offKind    = 0
	offSize    = 4
	offMax     = 8
	offKeySize = 12
	offNext    = 16 // leaf only

	internalHeaderSize = 16
	leafHeaderSize     = 20
)

func le32(b []byte) uint32      { return binary.LittleEndian.Uint32(b) }
func putLe32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// PageKind reads the kind tag out of a raw page buffer without
// requiring the caller to know the layout otherwise. Used when
// descending the tree: a child's kind determines whether to build a
// LeafView or an InternalView over it.
func PageKind(buf []byte) Kind {
	return Kind(le32(buf[offKind:]))
}

// LeafView is a zero-copy accessor over a raw page buffer laid out as
// the shared header plus packed [key(k)|rid(6)] items in strictly
// ascending key order, plus a next-leaf page id forming the leaf
// chain.
type LeafView struct {
	buf []byte
}

// NewLeafView wraps buf (typically a WriteGuard's or ReadGuard's Data())
// as a leaf page view.
func NewLeafView(buf []byte) LeafView { return LeafView{buf: buf} }

// InitLeaf formats buf as a fresh, empty leaf page with the given
// capacity and key width.
func InitLeaf(buf []byte, keySize int, maxSize int) LeafView {
	v := LeafView{buf: buf}
	putLe32(v.buf[offKind:], uint32(KindLeaf))
	putLe32(v.buf[offSize:], 0)
	putLe32(v.buf[offMax:], uint32(maxSize))
	putLe32(v.buf[offKeySize:], uint32(keySize))
	v.SetNextLeaf(page.InvalidID)
	return v
}

func (v LeafView) Kind() Kind    { return Kind(le32(v.buf[offKind:])) }
func (v LeafView) Size() int     { return int(le32(v.buf[offSize:])) }
func (v LeafView) Max() int      { return int(le32(v.buf[offMax:])) }
func (v LeafView) KeySize() int  { return int(le32(v.buf[offKeySize:])) }
func (v LeafView) NextLeaf() int32 { return int32(le32(v.buf[offNext:])) }

func (v LeafView) setSize(n int)       { putLe32(v.buf[offSize:], uint32(n)) }
func (v LeafView) SetNextLeaf(id int32) { putLe32(v.buf[offNext:], uint32(id)) }

func (v LeafView) itemSize() int { return v.KeySize() + rid.Size }

func (v LeafView) itemOffset(i int) int { return leafHeaderSize + i*v.itemSize() }

// Key returns the key at slot i (0-based).
func (v LeafView) Key(i int) []byte {
	off := v.itemOffset(i)
	ks := v.KeySize()
	return v.buf[off : off+ks]
}

// RID returns the record id at slot i.
func (v LeafView) RID(i int) rid.RID {
	off := v.itemOffset(i) + v.KeySize()
	return rid.Decode(v.buf[off : off+rid.Size])
}

func (v LeafView) setAt(i int, key []byte, r rid.RID) {
	off := v.itemOffset(i)
	ks := v.KeySize()
	copy(v.buf[off:off+ks], key)
	rid.Encode(r, v.buf[off+ks:off+ks+rid.Size])
}

// InsertAt shifts items [pos, size) right by one and writes (key, r)
// at pos, then increments size. Caller must ensure Size() < Max().
func (v LeafView) InsertAt(pos int, key []byte, r rid.RID) {
	n := v.Size()
	is := v.itemSize()
	for i := n; i > pos; i-- {
		copy(v.buf[v.itemOffset(i):v.itemOffset(i)+is], v.buf[v.itemOffset(i-1):v.itemOffset(i-1)+is])
	}
	v.setAt(pos, key, r)
	v.setSize(n + 1)
}

// RemoveAt shifts items (pos, size) left by one, overwriting pos, then
// decrements size.
func (v LeafView) RemoveAt(pos int) {
	n := v.Size()
	is := v.itemSize()
	for i := pos; i < n-1; i++ {
		copy(v.buf[v.itemOffset(i):v.itemOffset(i)+is], v.buf[v.itemOffset(i+1):v.itemOffset(i+1)+is])
	}
	v.setSize(n - 1)
}

// CopyRangeTo copies items [from, to) of v into dst starting at dst
// slot 0, setting dst's size accordingly. Used by split/merge.
func (v LeafView) CopyRangeTo(from, to int, dst LeafView) {
	for i, j := from, 0; i < to; i, j = i+1, j+1 {
		dst.setAt(j, v.Key(i), v.RID(i))
	}
	dst.setSize(to - from)
}

// Truncate sets Size() to n, discarding any items at or beyond n
// (their bytes remain but are no longer addressable).
func (v LeafView) Truncate(n int) { v.setSize(n) }

// InternalView is a zero-copy accessor over a raw page buffer laid
// out as the shared header plus packed [key(k)|child_page_id(4)]
// items. An internal page of current size n stores n keys and n+1
// children at slots 0..n; the key at slot 0 is an unused placeholder.
type InternalView struct {
	buf []byte
}

func NewInternalView(buf []byte) InternalView { return InternalView{buf: buf} }

// InitInternal formats buf as a fresh internal page with zero keys
// (one child slot, slot 0, populated by the caller).
func InitInternal(buf []byte, keySize int, maxSize int) InternalView {
	v := InternalView{buf: buf}
	putLe32(v.buf[offKind:], uint32(KindInternal))
	putLe32(v.buf[offSize:], 0)
	putLe32(v.buf[offMax:], uint32(maxSize))
	putLe32(v.buf[offKeySize:], uint32(keySize))
	return v
}

func (v InternalView) Kind() Kind   { return Kind(le32(v.buf[offKind:])) }
func (v InternalView) Size() int    { return int(le32(v.buf[offSize:])) } // n keys, n+1 children
func (v InternalView) Max() int     { return int(le32(v.buf[offMax:])) }
func (v InternalView) KeySize() int { return int(le32(v.buf[offKeySize:])) }

func (v InternalView) setSize(n int) { putLe32(v.buf[offSize:], uint32(n)) }

func (v InternalView) itemSize() int { return v.KeySize() + 4 }
func (v InternalView) itemOffset(i int) int { return internalHeaderSize + i*v.itemSize() }

// Key returns the key stored at slot i (1 <= i <= Size()); slot 0's
// key is an unused placeholder and callers must not rely on it.
func (v InternalView) Key(i int) []byte {
	off := v.itemOffset(i)
	ks := v.KeySize()
	return v.buf[off : off+ks]
}

// Child returns the child page id stored at slot i (0 <= i <= Size()).
func (v InternalView) Child(i int) int32 {
	off := v.itemOffset(i) + v.KeySize()
	return int32(le32(v.buf[off:]))
}

func (v InternalView) SetChild(i int, childID int32) {
	off := v.itemOffset(i) + v.KeySize()
	putLe32(v.buf[off:], uint32(childID))
}

func (v InternalView) setAt(i int, key []byte, childID int32) {
	off := v.itemOffset(i)
	ks := v.KeySize()
	copy(v.buf[off:off+ks], key)
	putLe32(v.buf[off+ks:], uint32(childID))
}

// SetKeyAt overwrites the key at slot i without touching its child.
func (v InternalView) SetKeyAt(i int, key []byte) {
	off := v.itemOffset(i)
	copy(v.buf[off:off+v.KeySize()], key)
}

// SetFirstChild initializes slot 0: leftmost child, placeholder key.
func (v InternalView) SetFirstChild(childID int32) {
	v.SetChild(0, childID)
}

// InsertAt inserts (key, childID) at slot pos (1 <= pos <= Size()+1),
// shifting slots [pos, Size()] right by one, then increments Size().
func (v InternalView) InsertAt(pos int, key []byte, childID int32) {
	n := v.Size()
	is := v.itemSize()
	for i := n + 1; i > pos; i-- {
		copy(v.buf[v.itemOffset(i):v.itemOffset(i)+is], v.buf[v.itemOffset(i-1):v.itemOffset(i-1)+is])
	}
	v.setAt(pos, key, childID)
	v.setSize(n + 1)
}

// RemoveAt removes slot pos (1 <= pos <= Size()), shifting slots
// (pos, Size()] left by one, then decrements Size().
func (v InternalView) RemoveAt(pos int) {
	n := v.Size()
	is := v.itemSize()
	for i := pos; i < n; i++ {
		copy(v.buf[v.itemOffset(i):v.itemOffset(i)+is], v.buf[v.itemOffset(i+1):v.itemOffset(i+1)+is])
	}
	v.setSize(n - 1)
}

// CopyRangeTo copies slots [from, to] (inclusive of both key and
// child) of v into dst starting at dst slot 0 (dst slot 0's key is
// the usual ignored placeholder; its child is v.Child(from)), setting
// dst's size to (to-from).
func (v InternalView) CopyRangeTo(from, to int, dst InternalView) {
	dst.SetFirstChild(v.Child(from))
	for i, j := from+1, 1; i <= to; i, j = i+1, j+1 {
		dst.setAt(j, v.Key(i), v.Child(i))
	}
	dst.setSize(to - from)
}

// Truncate sets Size() to n.
func (v InternalView) Truncate(n int) { v.setSize(n) }
