package page

// Guard is the unguarded handle: it owns exactly one pin on a page and
// nothing else. It may be upgraded to a ReadGuard or a WriteGuard,
// which transfers both the pin and the page pointer — after an
// upgrade, the source Guard is empty and its Drop is a no-op.
//
// Guards are conceptually move-only: Go does not enforce this at
// compile time, but Drop is idempotent-safe to call more than once,
// matching spec.md §4.1's "handle drop is always safe to call multiple
// times" contract. AsRead/AsWrite on an already dropped or upgraded
// Guard panic.
type Guard struct {
	pool    Source
	pg      *Page
	dropped bool
}

// NewPage allocates a fresh page from the pool and wraps it in an
// unguarded handle holding the one pin NextFreePage grants.
func NewPage(pool Source) (*Guard, error) {
	pg, err := pool.NextFreePage()
	if err != nil {
		return nil, err
	}
	return &Guard{pool: pool, pg: pg}, nil
}

// FetchPage pins the page at id and wraps it in an unguarded handle.
// Panics if id is out of range or not currently in use (programmer
// errors per spec.md §7).
func FetchPage(pool Source, id int32) *Guard {
	pg := pool.GetPagePinned(id)
	return &Guard{pool: pool, pg: pg}
}

// PageID returns the underlying page's id, or InvalidID if the handle
// has been dropped or consumed by an upgrade.
func (g *Guard) PageID() int32 {
	if g.dropped || g.pg == nil {
		return InvalidID
	}
	return g.pg.ID()
}

// Data exposes the raw page buffer for unlatched access (e.g.
// immediately after NewPage, before any concurrent reader could see
// the page — its id is not yet published anywhere).
func (g *Guard) Data() []byte {
	if g.pg == nil {
		return nil
	}
	return g.pg.Data()
}

// Drop releases the pin this handle owns. Safe to call more than once.
func (g *Guard) Drop() {
	if g.dropped || g.pg == nil {
		return
	}
	g.pool.Unpin(g.pg.ID(), g.pg.Dirty())
	g.dropped = true
}

// AsRead upgrades this handle to a ReadGuard, transferring the pin and
// acquiring the page's read latch. g becomes empty.
func (g *Guard) AsRead() *ReadGuard {
	pg := g.consume()
	pg.RLock()
	return &ReadGuard{pool: g.pool, pg: pg}
}

// AsWrite upgrades this handle to a WriteGuard, transferring the pin
// and acquiring the page's write latch. g becomes empty.
func (g *Guard) AsWrite() *WriteGuard {
	pg := g.consume()
	pg.Lock()
	return &WriteGuard{pool: g.pool, pg: pg, dirty: true}
}

func (g *Guard) consume() *Page {
	if g.dropped || g.pg == nil {
		panic("page: guard already dropped or upgraded")
	}
	pg := g.pg
	g.pg = nil
	g.dropped = true
	return pg
}

// ReadGuard owns one pin and holds the page's read latch for its
// lifetime.
type ReadGuard struct {
	pool    Source
	pg      *Page
	dropped bool
}

// NewReadPage allocates a fresh page and immediately latches it for
// reading (used by callers that only need to publish a just-created
// page, e.g. to initialize then hand off — rare; WriteGuard is the
// common case for a fresh page).
func NewReadPage(pool Source) (*ReadGuard, error) {
	g, err := NewPage(pool)
	if err != nil {
		return nil, err
	}
	return g.AsRead(), nil
}

// FetchReadPage pins id and latches it for reading.
func FetchReadPage(pool Source, id int32) *ReadGuard {
	return FetchPage(pool, id).AsRead()
}

// PageID returns the underlying page's id, or InvalidID once dropped.
func (r *ReadGuard) PageID() int32 {
	if r.dropped || r.pg == nil {
		return InvalidID
	}
	return r.pg.ID()
}

// Data returns the page's buffer, valid for read-only access while the
// guard is held.
func (r *ReadGuard) Data() []byte {
	if r.pg == nil {
		return nil
	}
	return r.pg.Data()
}

// Drop releases the read latch and the pin. Safe to call more than once.
func (r *ReadGuard) Drop() {
	if r.dropped || r.pg == nil {
		return
	}
	r.pg.RUnlock()
	r.pool.Unpin(r.pg.ID(), false)
	r.dropped = true
}

// WriteGuard owns one pin and holds the page's write latch for its
// lifetime. Dirty defaults to true on any WriteGuard, matching the
// common case (callers take a WriteGuard to mutate); SetDirty(false)
// opts out for write-locked-but-unmodified accesses.
type WriteGuard struct {
	pool    Source
	pg      *Page
	dirty   bool
	dropped bool
}

// NewWritePage allocates a fresh page and latches it for writing.
func NewWritePage(pool Source) (*WriteGuard, error) {
	g, err := NewPage(pool)
	if err != nil {
		return nil, err
	}
	return g.AsWrite(), nil
}

// FetchWritePage pins id and latches it for writing.
func FetchWritePage(pool Source, id int32) *WriteGuard {
	return FetchPage(pool, id).AsWrite()
}

// PageID returns the underlying page's id, or InvalidID once dropped.
func (w *WriteGuard) PageID() int32 {
	if w.dropped || w.pg == nil {
		return InvalidID
	}
	return w.pg.ID()
}

// Data returns the page's mutable buffer.
func (w *WriteGuard) Data() []byte {
	if w.pg == nil {
		return nil
	}
	return w.pg.Data()
}

// SetDirty overrides the dirty flag carried into Unpin on Drop.
func (w *WriteGuard) SetDirty(dirty bool) { w.dirty = dirty }

// Drop releases the write latch and the pin, propagating the carried
// dirty flag into Unpin. Safe to call more than once.
func (w *WriteGuard) Drop() {
	if w.dropped || w.pg == nil {
		return
	}
	id := w.pg.ID()
	dirty := w.dirty
	w.pg.Unlock()
	w.pool.Unpin(id, dirty)
	w.dropped = true
}
