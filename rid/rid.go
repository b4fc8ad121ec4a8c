// Package rid defines the record identifier shared by the B+ tree and
// the extendible hash table: a (page id, slot id) pair, opaque to both
// index structures beyond equality.
package rid

import "encoding/binary"

// InvalidPageID is the sentinel page id marking "no page".
const InvalidPageID int32 = -1

// Size is the number of bytes an RID occupies on the wire: a 4-byte
// signed page id followed by a 2-byte unsigned slot id, native byte
// order (the engine never transports pages across machines).
const Size = 6

// RID is a record identifier: a page id paired with a slot id within
// that page. It is opaque to the index structures beyond equality.
type RID struct {
	PageID int32
	SlotID uint16
}

// Invalid is the zero-value-free "no record" RID.
var Invalid = RID{PageID: InvalidPageID, SlotID: 0}

// IsValid reports whether r refers to a real page.
func (r RID) IsValid() bool {
	return r.PageID != InvalidPageID
}

// Encode writes the 6-byte wire representation of r into buf, which
// must be at least Size bytes.
func Encode(r RID, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.PageID))
	binary.LittleEndian.PutUint16(buf[4:6], r.SlotID)
}

// Decode reads an RID from the first Size bytes of buf.
func Decode(buf []byte) RID {
	return RID{
		PageID: int32(binary.LittleEndian.Uint32(buf[0:4])),
		SlotID: binary.LittleEndian.Uint16(buf[4:6]),
	}
}
