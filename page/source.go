package page

// Source is the minimal pool contract a guard depends on: allocate,
// fetch-and-pin, unpin, and release-to-free. It generalizes the
// teacher's embedding contract (interfaces.ParentBufMgr/ParentPage in
// the original bltree-go-for-embedding package, which let the B-link
// tree run on top of a host-supplied buffer manager) so that
// bplustree and hashtable depend on this interface rather than the
// concrete *Pool, and any conforming implementation — not just Pool —
// can back them.
type Source interface {
	NextFreePage() (*Page, error)
	GetPagePinned(id int32) *Page
	Unpin(id int32, dirty bool) bool
	ReleaseBack(id int32) bool
}

var _ Source = (*Pool)(nil)
