package rid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/dbcore/rid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []rid.RID{
		{PageID: 0, SlotID: 0},
		{PageID: 1, SlotID: 65535},
		{PageID: 1<<31 - 1, SlotID: 1},
		rid.Invalid,
	}
	for _, want := range cases {
		buf := make([]byte, rid.Size)
		rid.Encode(want, buf)
		got := rid.Decode(buf)
		require.Equal(t, want, got)
	}
}

func TestIsValid(t *testing.T) {
	require.False(t, rid.Invalid.IsValid())
	require.True(t, rid.RID{PageID: 0, SlotID: 0}.IsValid())
}

func TestEncodeLittleEndian(t *testing.T) {
	buf := make([]byte, rid.Size)
	rid.Encode(rid.RID{PageID: 1, SlotID: 2}, buf)
	require.Equal(t, []byte{1, 0, 0, 0, 2, 0}, buf)
}
