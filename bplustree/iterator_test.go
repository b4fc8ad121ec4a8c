package bplustree_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIteratorBeginScansAllInOrder(t *testing.T) {
	tree := newSmallTree(t)
	const n = 80
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it := tree.Begin()
	defer it.Close()

	count := 0
	for it.Valid() {
		require.Equal(t, ridOf(count), it.RID())
		count++
		it.Next()
	}
	require.Equal(t, n, count)
}

func TestIteratorBeginAtLowerBound(t *testing.T) {
	tree := newSmallTree(t)
	for _, i := range []int{0, 2, 4, 6, 8, 10} {
		ok, err := tree.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it := tree.BeginAt(keyOf(5)) // not present; lower bound is 6
	defer it.Close()
	require.True(t, it.Valid())
	require.Equal(t, ridOf(6), it.RID())
}

func TestIteratorOnEmptyTreeIsInvalid(t *testing.T) {
	tree := newSmallTree(t)
	it := tree.Begin()
	defer it.Close()
	require.False(t, it.Valid())
}

func TestIteratorCloseIsIdempotent(t *testing.T) {
	tree := newSmallTree(t)
	ok, err := tree.Insert(keyOf(1), ridOf(1))
	require.NoError(t, err)
	require.True(t, ok)

	it := tree.Begin()
	it.Close()
	require.NotPanics(t, it.Close)
}
