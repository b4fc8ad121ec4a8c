// Package page implements the pages manager: a fixed pool of equally
// sized in-memory pages, pin/free-list accounting, and RAII-style
// guarded handles with reader/writer latching. It has no notion of
// what a page's bytes mean — leaf, internal, header, directory, or
// bucket layouts are all just []byte views built on top of Page.Data().
package page

import "sync"

// Size is the fixed page size in bytes. 16 KiB, matching the reference
// implementation in spec.md §3.
const Size = 16 * 1024

// InvalidID is the sentinel page id meaning "no page".
const InvalidID int32 = -1

// Page is a fixed-size byte buffer plus the bookkeeping the pages
// manager needs: its id, outstanding pin count, an advisory dirty
// flag carried across unpin, and a reader/writer latch.
//
// Page never interprets its own bytes; it is purely "pinned memory
// with a latch". The pages manager's invariant is: pages in the free
// list have PinCount() == 0.
type Page struct {
	id       int32
	pinCount uint32
	dirty    bool
	data     []byte
	latch    sync.RWMutex
}

// ID returns the page's id, or InvalidID if the page is currently free.
func (p *Page) ID() int32 { return p.id }

// PinCount returns the current pin count. Only meaningful while the
// pages manager's lock is held or via a pinned guard.
func (p *Page) PinCount() uint32 { return p.pinCount }

// Dirty reports the advisory dirty flag carried from the last Unpin.
func (p *Page) Dirty() bool { return p.dirty }

// Data returns the page's fixed-size backing buffer. Callers build
// typed views (bplustree.LeafView, hashtable.BucketView, ...) directly
// on top of this slice; Page does no interpretation of its own.
func (p *Page) Data() []byte { return p.data }

// RLock acquires the page's read latch. Used by ReadGuard.
func (p *Page) RLock() { p.latch.RLock() }

// RUnlock releases the page's read latch.
func (p *Page) RUnlock() { p.latch.RUnlock() }

// Lock acquires the page's write latch. Used by WriteGuard.
func (p *Page) Lock() { p.latch.Lock() }

// Unlock releases the page's write latch.
func (p *Page) Unlock() { p.latch.Unlock() }
