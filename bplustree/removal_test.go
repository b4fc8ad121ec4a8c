package bplustree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/dbcore/bplustree"
	"github.com/pagestore/dbcore/page"
)

func TestRemoveAbsentKeyReturnsFalse(t *testing.T) {
	tree := newSmallTree(t)
	ok, err := tree.Insert(keyOf(1), ridOf(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.False(t, tree.Remove(keyOf(2)))
}

func TestRemoveSingleKeyLeavesEmptyRootLeaf(t *testing.T) {
	tree := newSmallTree(t)
	ok, err := tree.Insert(keyOf(1), ridOf(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, tree.Remove(keyOf(1)))
	_, found := tree.GetValue(keyOf(1))
	require.False(t, found)

	// tree is still usable after emptying
	ok, err = tree.Insert(keyOf(2), ridOf(2))
	require.NoError(t, err)
	require.True(t, ok)
	got, found := tree.GetValue(keyOf(2))
	require.True(t, found)
	require.Equal(t, ridOf(2), got)
}

func TestInsertThenRemoveAllInAscendingOrder(t *testing.T) {
	tree := newSmallTree(t)
	const n = 150
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < n; i++ {
		require.True(t, tree.Remove(keyOf(i)), "remove %d", i)
		_, found := tree.GetValue(keyOf(i))
		require.False(t, found)
	}
	for i := 0; i < n; i++ {
		_, found := tree.GetValue(keyOf(i))
		require.False(t, found)
	}
}

func TestInsertThenRemoveAllInDescendingOrder(t *testing.T) {
	tree := newSmallTree(t)
	const n = 150
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := n - 1; i >= 0; i-- {
		require.True(t, tree.Remove(keyOf(i)), "remove %d", i)
	}
	for i := 0; i < n; i++ {
		_, found := tree.GetValue(keyOf(i))
		require.False(t, found)
	}
}

func TestRemoveInterleavedWithInsertPreservesRemainingKeys(t *testing.T) {
	tree := newSmallTree(t)
	const n = 100
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	removed := map[int]bool{}
	for i := 0; i < n; i += 2 {
		require.True(t, tree.Remove(keyOf(i)))
		removed[i] = true
	}

	for i := 0; i < n; i++ {
		got, found := tree.GetValue(keyOf(i))
		if removed[i] {
			require.False(t, found, "key %d should be gone", i)
		} else {
			require.True(t, found, "key %d should remain", i)
			require.Equal(t, ridOf(i), got)
		}
	}
}

func TestRemoveTriggersMergeAcrossLevels(t *testing.T) {
	// internalMax/leafMax of 3 forces multiple levels with very few
	// keys, so removing most of them forces merges up through an
	// internal level, not just within one leaf.
	pool := page.NewPool(256, nil)
	tree, err := bplustree.New(pool, bplustree.BytesComparator, testKeySize, 3, 3, nil)
	require.NoError(t, err)

	const n = 60
	for i := 0; i < n; i++ {
		ok, ierr := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, ierr)
		require.True(t, ok)
	}
	for i := 0; i < n-3; i++ {
		require.True(t, tree.Remove(keyOf(i)))
	}
	for i := 0; i < n-3; i++ {
		_, found := tree.GetValue(keyOf(i))
		require.False(t, found)
	}
	for i := n - 3; i < n; i++ {
		got, found := tree.GetValue(keyOf(i))
		require.True(t, found)
		require.Equal(t, ridOf(i), got)
	}
}
