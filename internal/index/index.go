// Package index provides the polymorphic index facade: a common Index
// interface over an in-memory hash backend and a persistent B+-tree
// backend, both keyed by string and valued by a compact row-id set.
package index

import (
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/reedbase/reedbase/internal/bptree"
)

// Index is the common operation set the query planner drives,
// regardless of backend.
type Index interface {
	Get(key string) (*roaring.Bitmap, bool, error)
	Range(start, end string) ([]RangeEntry, error)
	Insert(key string, rowID uint64) error
	Delete(key string, rowID uint64) error
	Iter() ([]RangeEntry, error)
	BackendType() string
	MemoryUsage() int64
	DiskUsage() int64
	Close() error
}

// RangeEntry is one key and its associated row-id set, as returned by
// Range and Iter.
type RangeEntry struct {
	Key  string
	Rows *roaring.Bitmap
}

// HashIndex is an in-memory, non-persistent backend with O(1) exact
// lookup. Range and Iter are emulated by filtering the map and return
// entries in no particular order; the executor re-applies every
// condition after an index fetch, so unordered results stay correct.
type HashIndex struct {
	data map[string]*roaring.Bitmap
}

// NewHash returns an empty in-memory hash index.
func NewHash() *HashIndex {
	return &HashIndex{data: make(map[string]*roaring.Bitmap)}
}

func (h *HashIndex) Get(key string) (*roaring.Bitmap, bool, error) {
	b, ok := h.data[key]
	return b, ok, nil
}

func (h *HashIndex) Range(start, end string) ([]RangeEntry, error) {
	var out []RangeEntry
	for k, v := range h.data {
		if k >= start && k < end {
			out = append(out, RangeEntry{Key: k, Rows: v})
		}
	}
	return out, nil
}

func (h *HashIndex) Insert(key string, rowID uint64) error {
	b, ok := h.data[key]
	if !ok {
		b = roaring.New()
		h.data[key] = b
	}
	b.Add(uint32(rowID))
	return nil
}

func (h *HashIndex) Delete(key string, rowID uint64) error {
	if b, ok := h.data[key]; ok {
		b.Remove(uint32(rowID))
		if b.IsEmpty() {
			delete(h.data, key)
		}
	}
	return nil
}

func (h *HashIndex) Iter() ([]RangeEntry, error) {
	var out []RangeEntry
	for k, v := range h.data {
		out = append(out, RangeEntry{Key: k, Rows: v})
	}
	return out, nil
}

func (h *HashIndex) BackendType() string { return "hash" }

// MemoryUsage sums the serialized size of every bitmap plus its key
// bytes — an estimate, not an accounting of Go runtime overhead.
func (h *HashIndex) MemoryUsage() int64 {
	var total int64
	for k, v := range h.data {
		total += int64(len(k)) + int64(v.GetSizeInBytes())
	}
	return total
}

func (h *HashIndex) DiskUsage() int64 { return 0 }
func (h *HashIndex) Close() error     { return nil }

// BTreeIndex is a persistent, ordered backend over internal/bptree.
// Values are stored as the roaring bitmap's serialized bytes so the
// underlying tree only ever deals in []byte.
type BTreeIndex struct {
	tree *bptree.Tree
}

// OpenBTree opens (or creates) a persistent index rooted at
// <dir>/<table>.<column>.btree with its sibling .wal file, using the
// given tree order.
func OpenBTree(dir, table, column string, order int) (*BTreeIndex, error) {
	base := filepath.Join(dir, table+"."+column)
	tree, err := bptree.Open(base+".btree", base+".wal", order)
	if err != nil {
		return nil, err
	}
	return &BTreeIndex{tree: tree}, nil
}

func decodeBitmap(b []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(b) == 0 {
		return bm, nil
	}
	if _, err := bm.FromBuffer(b); err != nil {
		return nil, err
	}
	return bm, nil
}

func (b *BTreeIndex) Get(key string) (*roaring.Bitmap, bool, error) {
	v, ok, err := b.tree.Get([]byte(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	bm, err := decodeBitmap(v)
	return bm, true, err
}

func (b *BTreeIndex) Range(start, end string) ([]RangeEntry, error) {
	kvs, err := b.tree.Range([]byte(start), []byte(end))
	if err != nil {
		return nil, err
	}
	out := make([]RangeEntry, 0, len(kvs))
	for _, kv := range kvs {
		bm, err := decodeBitmap(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, RangeEntry{Key: string(kv.Key), Rows: bm})
	}
	return out, nil
}

func (b *BTreeIndex) Insert(key string, rowID uint64) error {
	bm, ok, err := b.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		bm = roaring.New()
	}
	bm.Add(uint32(rowID))
	buf, err := bm.ToBytes()
	if err != nil {
		return err
	}
	return b.tree.Insert([]byte(key), buf)
}

func (b *BTreeIndex) Delete(key string, rowID uint64) error {
	bm, ok, err := b.Get(key)
	if err != nil || !ok {
		return err
	}
	bm.Remove(uint32(rowID))
	if bm.IsEmpty() {
		return b.tree.Delete([]byte(key))
	}
	buf, err := bm.ToBytes()
	if err != nil {
		return err
	}
	return b.tree.Insert([]byte(key), buf)
}

func (b *BTreeIndex) Iter() ([]RangeEntry, error) {
	kvs, err := b.tree.Iter()
	if err != nil {
		return nil, err
	}
	out := make([]RangeEntry, 0, len(kvs))
	for _, kv := range kvs {
		bm, err := decodeBitmap(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, RangeEntry{Key: string(kv.Key), Rows: bm})
	}
	return out, nil
}

func (b *BTreeIndex) BackendType() string { return "btree" }
func (b *BTreeIndex) MemoryUsage() int64  { return b.tree.MemoryUsage() }
func (b *BTreeIndex) DiskUsage() int64    { return b.tree.DiskUsage() }
func (b *BTreeIndex) Close() error        { return b.tree.Close() }
