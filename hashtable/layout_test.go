package hashtable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/dbcore/hashtable"
	"github.com/pagestore/dbcore/page"
)

func TestDirectoryGrowDoublesAndCopies(t *testing.T) {
	buf := make([]byte, page.Size)
	dv := hashtable.InitDirectory(buf, 4)
	dv.SetBucketPageID(0, 7)
	dv.SetLocalDepth(0, 1)

	require.Equal(t, 1, dv.Size()) // 2^0

	dv.Grow()
	require.Equal(t, 1, dv.GlobalDepth())
	require.Equal(t, 2, dv.Size())
	require.Equal(t, int32(7), dv.BucketPageID(1))
	require.Equal(t, uint8(1), dv.LocalDepth(1))
}

func TestDirectoryCanShrinkAndShrink(t *testing.T) {
	buf := make([]byte, page.Size)
	dv := hashtable.InitDirectory(buf, 4)
	dv.SetBucketPageID(0, 1)
	dv.Grow() // global depth 1, size 2: both point at bucket 1, local depth 0

	require.True(t, dv.CanShrink())
	dv.Shrink()
	require.Equal(t, 0, dv.GlobalDepth())
}

func TestDirectoryCannotShrinkWhenHalvesDiffer(t *testing.T) {
	buf := make([]byte, page.Size)
	dv := hashtable.InitDirectory(buf, 4)
	dv.SetBucketPageID(0, 1)
	dv.Grow()
	dv.SetBucketPageID(1, 2) // now halves disagree
	dv.SetLocalDepth(1, 1)
	dv.SetLocalDepth(0, 1)

	require.False(t, dv.CanShrink())
}

func TestSplitImageIndex(t *testing.T) {
	buf := make([]byte, page.Size)
	dv := hashtable.InitDirectory(buf, 4)
	// idx 0b010 at local depth 2 -> flips bit 1 -> 0b000
	require.Equal(t, 0, dv.SplitImageIndex(2, 2))
	require.Equal(t, 3, dv.SplitImageIndex(1, 2))
}

func TestHeaderDirectoryPageIDRoundTrip(t *testing.T) {
	buf := make([]byte, page.Size)
	hv := hashtable.InitHeader(buf, 4)
	require.Equal(t, page.InvalidID, hv.DirectoryPageID(0))
	hv.SetDirectoryPageID(0, 42)
	require.Equal(t, int32(42), hv.DirectoryPageID(0))
}

func TestBucketInsertSearchRemove(t *testing.T) {
	buf := make([]byte, page.Size)
	bv := hashtable.InitBucket(buf, testKeySize, 8)

	_, pos := bv.Search(hashtable.BytesComparator, keyOf(5))
	bv.InsertAt(pos, keyOf(5), ridOf(5))
	_, pos = bv.Search(hashtable.BytesComparator, keyOf(1))
	bv.InsertAt(pos, keyOf(1), ridOf(1))
	_, pos = bv.Search(hashtable.BytesComparator, keyOf(9))
	bv.InsertAt(pos, keyOf(9), ridOf(9))

	require.Equal(t, 3, bv.NumItems())
	found, p := bv.Search(hashtable.BytesComparator, keyOf(5))
	require.True(t, found)
	require.Equal(t, ridOf(5), bv.RID(p))

	bv.RemoveAt(p)
	require.Equal(t, 2, bv.NumItems())
	found, _ = bv.Search(hashtable.BytesComparator, keyOf(5))
	require.False(t, found)
}
