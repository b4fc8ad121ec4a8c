package bplustree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/dbcore/bplustree"
	"github.com/pagestore/dbcore/page"
)

// walkSizes descends the whole tree from root and records, for every
// page visited, its depth (0 = root) and (size, max) pair -- so the
// test can assert every non-root node's item count stays in
// [max/2, max] directly against live page contents, rather than
// inferring the bound from split/merge never having panicked.
func walkSizes(t *testing.T, pool *page.Pool, nodeID int32, depth int, out *[]nodeSize) {
	t.Helper()
	g := page.FetchReadPage(pool, nodeID)
	defer g.Drop()

	switch bplustree.PageKind(g.Data()) {
	case bplustree.KindLeaf:
		lv := bplustree.NewLeafView(g.Data())
		*out = append(*out, nodeSize{depth: depth, size: lv.Size(), max: lv.Max()})
	case bplustree.KindInternal:
		iv := bplustree.NewInternalView(g.Data())
		*out = append(*out, nodeSize{depth: depth, size: iv.Size(), max: iv.Max()})
		for i := 0; i <= iv.Size(); i++ {
			walkSizes(t, pool, iv.Child(i), depth+1, out)
		}
	default:
		t.Fatalf("page %d has unrecognized kind", nodeID)
	}
}

type nodeSize struct {
	depth int
	size  int
	max   int
}

// TestNonRootNodesStayWithinSizeBounds directly checks P8 (every
// non-root node's item count stays in [max/2, max]) against live page
// contents after enough inserts and removals to force splits, merges,
// and redistribution at more than one level.
func TestNonRootNodesStayWithinSizeBounds(t *testing.T) {
	pool := page.NewPool(256, nil)
	tree, err := bplustree.New(pool, bplustree.BytesComparator, testKeySize, 4, 4, nil)
	require.NoError(t, err)

	const n = 200
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < n; i += 3 {
		require.True(t, tree.Remove(keyOf(i)))
	}

	require.GreaterOrEqual(t, tree.Height(), 2, "small max sizes over 200 keys should build more than one level")

	var sizes []nodeSize
	walkSizes(t, pool, tree.RootPageID(), 0, &sizes)

	for _, ns := range sizes {
		if ns.depth == 0 {
			continue // root is exempt from the lower bound
		}
		require.GreaterOrEqualf(t, ns.size, ns.max/2, "depth %d node below min occupancy: size=%d max=%d", ns.depth, ns.size, ns.max)
		require.LessOrEqualf(t, ns.size, ns.max, "depth %d node above capacity: size=%d max=%d", ns.depth, ns.size, ns.max)
	}
}
