package hashtable_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentInsertsAndReadsAreSafe mirrors bplustree's concurrent
// latch exercise: disjoint-key writers plus a reader hammering a
// stable key throughout, verifying every key is findable once writers
// finish and that directory integrity still holds afterward.
func TestConcurrentInsertsAndReadsAreSafe(t *testing.T) {
	ht := newSmallTable(t)
	ok, err := ht.Insert(keyOf(-1), ridOf(-1))
	require.NoError(t, err)
	require.True(t, ok)

	const writers = 8
	const perWriter = 40

	stop := make(chan struct{})
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-stop:
				return
			default:
				ht.GetValue(keyOf(-1))
			}
		}
	}()

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				key := w*perWriter + i
				if _, err := ht.Insert(keyOf(key), ridOf(key)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	close(stop)
	readerWG.Wait()

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			key := w*perWriter + i
			got, found := ht.GetValue(keyOf(key))
			require.True(t, found, "key %d should be findable", key)
			require.Equal(t, ridOf(key), got)
		}
	}
	require.True(t, ht.VerifyIntegrity())
}
