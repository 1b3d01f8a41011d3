// Node encoding: internal and leaf nodes serialize into a page's
// 4064-byte data section with a length-prefixed, field-tagged format.
// Decoding re-encodes the result and compares it against the original
// bytes (ignoring trailing zero padding) so that a payload which does
// not round-trip identically is rejected rather than silently accepted.
package bptree

import (
	"encoding/binary"
	"fmt"

	"github.com/reedbase/reedbase/internal/page"
)

// node is the in-memory representation of one B+-tree page, decoded
// from its serialized form. Internal nodes carry children; leaves carry
// parallel values and a next-leaf pointer.
type node struct {
	id       uint32
	leaf     bool
	keys     [][]byte
	values   [][]byte // leaf only, parallel to keys
	children []uint32 // internal only, len == len(keys)+1
	next     uint32   // leaf only
}

func encodeNode(n *node) ([]byte, error) {
	var buf []byte
	if n.leaf {
		for i, k := range n.keys {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(k)))
			buf = append(buf, k...)
			v := n.values[i]
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
		}
	} else {
		for _, k := range n.keys {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(k)))
			buf = append(buf, k...)
		}
		for _, c := range n.children {
			buf = binary.BigEndian.AppendUint32(buf, c)
		}
	}
	if len(buf) > page.DataSize {
		return nil, fmt.Errorf("bptree: encoded node exceeds page data size: %d > %d", len(buf), page.DataSize)
	}
	return buf, nil
}

// decodeNode parses a page's data section. numKeys and nextPage come
// from the page header (they are mirrored there on write). It verifies
// that re-encoding the decoded node reproduces the original payload
// exactly (with the remainder being zero padding), rejecting any page
// whose data does not round-trip.
func decodeNode(id uint32, isLeaf bool, numKeys uint16, nextPage uint32, data []byte) (*node, error) {
	n := &node{id: id, leaf: isLeaf, next: nextPage}

	off := 0
	readChunk := func() ([]byte, error) {
		if off+4 > len(data) {
			return nil, fmt.Errorf("bptree: truncated length prefix")
		}
		l := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		if off+int(l) > len(data) {
			return nil, fmt.Errorf("bptree: truncated field")
		}
		v := data[off : off+int(l)]
		off += int(l)
		return v, nil
	}

	if isLeaf {
		for i := 0; i < int(numKeys); i++ {
			k, err := readChunk()
			if err != nil {
				return nil, err
			}
			v, err := readChunk()
			if err != nil {
				return nil, err
			}
			n.keys = append(n.keys, append([]byte(nil), k...))
			n.values = append(n.values, append([]byte(nil), v...))
		}
	} else {
		for i := 0; i < int(numKeys); i++ {
			k, err := readChunk()
			if err != nil {
				return nil, err
			}
			n.keys = append(n.keys, append([]byte(nil), k...))
		}
		for i := 0; i < int(numKeys)+1; i++ {
			if off+4 > len(data) {
				return nil, fmt.Errorf("bptree: truncated child pointer")
			}
			n.children = append(n.children, binary.BigEndian.Uint32(data[off:off+4]))
			off += 4
		}
	}

	reencoded, err := encodeNode(n)
	if err != nil {
		return nil, fmt.Errorf("bptree: re-encode failed: %w", err)
	}
	if len(reencoded) != off {
		return nil, fmt.Errorf("bptree: decode/encode length mismatch")
	}
	for i, b := range reencoded {
		if data[i] != b {
			return nil, fmt.Errorf("bptree: decode/encode payload mismatch at byte %d", i)
		}
	}
	for i := off; i < len(data); i++ {
		if data[i] != 0 {
			return nil, fmt.Errorf("bptree: non-zero padding at byte %d", i)
		}
	}

	return n, nil
}
