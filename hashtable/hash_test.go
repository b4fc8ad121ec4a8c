package hashtable_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/dbcore/hashtable"
	"github.com/pagestore/dbcore/page"
	"github.com/pagestore/dbcore/rid"
)

const testKeySize = 4

func keyOf(i int) []byte {
	b := make([]byte, testKeySize)
	binary.BigEndian.PutUint32(b, uint32(i))
	return b
}

func ridOf(i int) rid.RID {
	return rid.RID{PageID: int32(i), SlotID: 0}
}

// newSmallTable uses a tiny bucket capacity so a handful of keys is
// enough to force directory growth and bucket splits.
func newSmallTable(t *testing.T) *hashtable.ExtendibleHashTable {
	t.Helper()
	pool := page.NewPool(512, nil)
	ht, err := hashtable.New(pool, hashtable.BytesComparator, hashtable.Murmur3Hash, testKeySize, 9, 9, 4, nil)
	require.NoError(t, err)
	return ht
}

func TestInsertAndGetValue(t *testing.T) {
	ht := newSmallTable(t)

	ok, err := ht.Insert(keyOf(1), ridOf(1))
	require.NoError(t, err)
	require.True(t, ok)

	got, found := ht.GetValue(keyOf(1))
	require.True(t, found)
	require.Equal(t, ridOf(1), got)

	_, found = ht.GetValue(keyOf(2))
	require.False(t, found)
}

func TestInsertDuplicateRejected(t *testing.T) {
	ht := newSmallTable(t)

	ok, err := ht.Insert(keyOf(1), ridOf(1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ht.Insert(keyOf(1), ridOf(999))
	require.NoError(t, err)
	require.False(t, ok)

	got, _ := ht.GetValue(keyOf(1))
	require.Equal(t, ridOf(1), got)
}

func TestInsertManyKeysForcesDirectoryGrowthAndSplits(t *testing.T) {
	ht := newSmallTable(t)
	const n = 300
	for i := 0; i < n; i++ {
		ok, err := ht.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok, "insert %d", i)
	}
	for i := 0; i < n; i++ {
		got, found := ht.GetValue(keyOf(i))
		require.True(t, found, "key %d should be found", i)
		require.Equal(t, ridOf(i), got)
	}
	require.True(t, ht.VerifyIntegrity())
}

func TestRemoveAbsentKeyReturnsFalse(t *testing.T) {
	ht := newSmallTable(t)
	ok, err := ht.Insert(keyOf(1), ridOf(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.False(t, ht.Remove(keyOf(2)))
}

func TestInsertThenRemoveAll(t *testing.T) {
	ht := newSmallTable(t)
	const n = 200
	for i := 0; i < n; i++ {
		ok, err := ht.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < n; i++ {
		require.True(t, ht.Remove(keyOf(i)), "remove %d", i)
	}
	for i := 0; i < n; i++ {
		_, found := ht.GetValue(keyOf(i))
		require.False(t, found)
	}
	require.True(t, ht.VerifyIntegrity())
}

func TestRemoveInterleavedPreservesRemainingKeysAndIntegrity(t *testing.T) {
	ht := newSmallTable(t)
	const n = 150
	for i := 0; i < n; i++ {
		ok, err := ht.Insert(keyOf(i), ridOf(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	removed := map[int]bool{}
	for i := 0; i < n; i += 3 {
		require.True(t, ht.Remove(keyOf(i)))
		removed[i] = true
	}
	require.True(t, ht.VerifyIntegrity())

	for i := 0; i < n; i++ {
		got, found := ht.GetValue(keyOf(i))
		if removed[i] {
			require.False(t, found, "key %d should be gone", i)
		} else {
			require.True(t, found, "key %d should remain", i)
			require.Equal(t, ridOf(i), got)
		}
	}
}

func TestVerifyIntegrityOnEmptyTable(t *testing.T) {
	ht := newSmallTable(t)
	require.True(t, ht.VerifyIntegrity())
}
