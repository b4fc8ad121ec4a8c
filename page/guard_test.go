package page_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/dbcore/page"
)

func TestNewPageThenDrop(t *testing.T) {
	p := page.NewPool(1, nil)
	g, err := page.NewPage(p)
	require.NoError(t, err)

	id := g.PageID()
	require.NotEqual(t, page.InvalidID, id)

	g.Drop()
	require.Equal(t, page.InvalidID, g.PageID())

	// drop again is a no-op
	require.NotPanics(t, g.Drop)

	require.True(t, p.ReleaseBack(id))
}

func TestWriteGuardDirtyDefaultsTrue(t *testing.T) {
	p := page.NewPool(1, nil)
	wg, err := page.NewWritePage(p)
	require.NoError(t, err)
	wg.Data()[0] = 42
	wg.Drop()
	require.True(t, p.GetPage(0).Dirty())

	// A second write guard opts out with SetDirty(false), which Drop
	// carries into Unpin.
	wg2 := page.FetchWritePage(p, 0)
	wg2.SetDirty(false)
	wg2.Drop()
	require.False(t, p.GetPage(0).Dirty())
}

func TestFetchReadPageSharedAccess(t *testing.T) {
	p := page.NewPool(1, nil)
	wg, err := page.NewWritePage(p)
	require.NoError(t, err)
	id := wg.PageID()
	wg.Data()[0] = 7
	wg.Drop()

	r1 := page.FetchReadPage(p, id)
	r2 := page.FetchReadPage(p, id)
	require.Equal(t, byte(7), r1.Data()[0])
	require.Equal(t, byte(7), r2.Data()[0])
	r1.Drop()
	r2.Drop()
}

func TestAsWriteUpgradeConsumesGuard(t *testing.T) {
	p := page.NewPool(1, nil)
	g, err := page.NewPage(p)
	require.NoError(t, err)

	wg := g.AsWrite()
	require.Equal(t, page.InvalidID, g.PageID()) // g consumed
	wg.Data()[0] = 1
	wg.Drop()
}

func TestConsumeAlreadyDroppedPanics(t *testing.T) {
	p := page.NewPool(1, nil)
	g, err := page.NewPage(p)
	require.NoError(t, err)
	g.Drop()
	require.Panics(t, func() { g.AsWrite() })
}
