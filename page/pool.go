package page

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/pagestore/dbcore/dbcorelog"
	"github.com/pagestore/dbcore/dbcoreerr"
)

// Pool is a contiguous array of Pages sized at construction; page ids
// are indices into this array. It tracks which ids are currently free
// (both as a set, for membership tests, and as a queue, to preserve
// the order pages were added to the free list) and guarantees that
// every page id is in exactly one of {free, in-use} at all times.
//
// The backing bytes for every page frame live in one contiguous []byte
// allocated once at construction — individual pages are simply
// fixed-size slices into that one buffer, handed out as live mutable
// views (Page.Data()) rather than copied in and out through a file-like
// API: every typed page view in bplustree/hashtable mutates Page.Data()
// directly with no separate flush step, so the backing store has to stay
// addressable as plain memory, not behind Read/WriteAt.
type Pool struct {
	mu       sync.Mutex
	pages    []Page
	store    []byte
	freeSet  map[int32]struct{}
	freeList *list.List // FIFO of free int32 ids, front = next to hand out
	log      logr.Logger
}

// NewPool allocates a pool of n pages, all initially free.
func NewPool(n int, log *logr.Logger) *Pool {
	if n <= 0 {
		panic("page: pool size must be positive")
	}

	store := make([]byte, n*Size)

	p := &Pool{
		pages:    make([]Page, n),
		store:    store,
		freeSet:  make(map[int32]struct{}, n),
		freeList: list.New(),
		log:      dbcorelog.Named(log, "page.Pool"),
	}

	for i := 0; i < n; i++ {
		p.pages[i].id = InvalidID
		p.pages[i].data = store[i*Size : (i+1)*Size]
		p.freeSet[int32(i)] = struct{}{}
		p.freeList.PushBack(int32(i))
	}

	return p
}

// Len returns the total number of pages in the pool (N in spec.md §4.1).
func (p *Pool) Len() int { return len(p.pages) }

func (p *Pool) inRange(id int32) bool {
	return id >= 0 && int(id) < len(p.pages)
}

// NextFreePage dequeues the front of the free-id queue, removes it
// from the free set, sets its pin count to 1, and returns it. The
// page's bytes are not zeroed here: the caller's Init overwrites the
// header. Returns dbcoreerr.ErrPoolExhausted if no page is free.
func (p *Pool) NextFreePage() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	front := p.freeList.Front()
	if front == nil {
		p.log.V(1).Info("pool exhausted", "size", len(p.pages))
		return nil, dbcoreerr.Wrapf(dbcoreerr.ErrPoolExhausted, "pool size %d", len(p.pages))
	}
	id := p.freeList.Remove(front).(int32)
	delete(p.freeSet, id)

	pg := &p.pages[id]
	pg.id = id
	pg.pinCount = 1
	pg.dirty = false
	return pg, nil
}

// GetPage returns the page at id without touching its pin count. It
// rejects ids outside [0, N) and ids currently in the free set — both
// are programmer errors per spec.md §7 and panic rather than return
// an error.
func (p *Pool) GetPage(id int32) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getPageLocked(id)
}

func (p *Pool) getPageLocked(id int32) *Page {
	if !p.inRange(id) {
		panic(fmt.Sprintf("page: invalid page id %d (pool size %d)", id, len(p.pages)))
	}
	if _, free := p.freeSet[id]; free {
		panic(fmt.Sprintf("page: page %d is not in use", id))
	}
	return &p.pages[id]
}

// GetPagePinned is GetPage but increments the pin count.
func (p *Pool) GetPagePinned(id int32) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg := p.getPageLocked(id)
	pg.pinCount++
	return pg
}

// Unpin decrements the pin count if it is > 0 and overwrites the dirty
// flag with dirty. Returns false if the page is currently free or its
// pin count is already 0; an out-of-range id panics.
func (p *Pool) Unpin(id int32, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inRange(id) {
		panic(fmt.Sprintf("page: invalid page id %d (pool size %d)", id, len(p.pages)))
	}
	if _, free := p.freeSet[id]; free {
		return false
	}
	pg := &p.pages[id]
	if pg.pinCount == 0 {
		return false
	}
	pg.pinCount--
	pg.dirty = dirty
	return true
}

// ReleaseBack requires pin count == 0 and the page currently in use;
// it pushes id onto the free queue and re-inserts it into the free
// set. Returns false if those preconditions do not hold.
func (p *Pool) ReleaseBack(id int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inRange(id) {
		panic(fmt.Sprintf("page: invalid page id %d (pool size %d)", id, len(p.pages)))
	}
	if _, free := p.freeSet[id]; free {
		return false
	}
	pg := &p.pages[id]
	if pg.pinCount != 0 {
		return false
	}

	pg.id = InvalidID
	pg.dirty = false
	p.freeSet[id] = struct{}{}
	p.freeList.PushBack(id)
	return true
}
