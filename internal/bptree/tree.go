// Package bptree implements the persistent, memory-mapped, write-ahead
// logged B+-tree used as the ordered index backend. Keys and values
// are opaque []byte, compared with bytes.Compare; typed callers
// (internal/index) layer their own encode/decode on top.
//
// Durability: every insert/delete is WAL-logged and fsynced before the
// in-page mutation is applied, so Open's WAL replay recovers any
// mutation whose page write did not survive a crash.
package bptree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/reedbase/reedbase/internal/page"
	"github.com/reedbase/reedbase/internal/walrec"
)

// ErrCorruptedIndex signals a fatal integrity failure (bad magic, CRC
// mismatch, or an undecodable node payload) encountered during descent.
type ErrCorruptedIndex struct {
	Reason string
}

func (e *ErrCorruptedIndex) Error() string { return "corrupted index: " + e.Reason }

// Tree is a persistent ordered index over []byte keys and values.
// Tree is NOT safe for concurrent use; callers serialize access.
type Tree struct {
	store *page.Store
	wal   *walrec.WAL
	order int
}

// The root lives at page 0 for the life of the file. Root splits
// relocate the lower half to a fresh page and rewrite page 0 as the new
// internal root, so reopening never has to recover a root pointer.
const rootPageID = 0

// Open creates or attaches to a B+-tree at treePath with a sibling WAL
// at walPath. New files get an empty root leaf at page 0; existing
// files validate page 0 and replay the WAL.
func Open(treePath, walPath string, order int) (*Tree, error) {
	if order < 3 {
		return nil, fmt.Errorf("bptree: order must be >= 3, got %d", order)
	}

	store, err := page.Open(treePath)
	if err != nil {
		return nil, err
	}
	w, err := walrec.Open(walPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	t := &Tree{store: store, wal: w, order: order}

	// A brand-new file gets an empty root leaf via Allocate (not a raw
	// write) so the store's free-page counter advances past it. An
	// existing file must present a valid root page — an unreadable page
	// 0 there is corruption, never a reason to re-initialize.
	if store.Fresh() {
		rootID, err := store.Allocate(page.TypeLeaf)
		if err != nil {
			w.Close()
			store.Close()
			return nil, err
		}
		if rootID != rootPageID {
			w.Close()
			store.Close()
			return nil, fmt.Errorf("bptree: expected fresh root at page %d, got %d", rootPageID, rootID)
		}
	} else if _, err := store.Read(rootPageID); err != nil {
		w.Close()
		store.Close()
		return nil, &ErrCorruptedIndex{err.Error()}
	}

	if err := t.replayWAL(); err != nil {
		w.Close()
		store.Close()
		return nil, err
	}

	return t, nil
}

// Close flushes and releases the tree's page store and WAL.
func (t *Tree) Close() error {
	werr := t.wal.Close()
	serr := t.store.Close()
	if serr != nil {
		return serr
	}
	return werr
}

func (t *Tree) readNode(id uint32) (*node, error) {
	p, err := t.store.Read(id)
	if err != nil {
		return nil, &ErrCorruptedIndex{err.Error()}
	}
	n, err := decodeNode(id, p.Header.Type == page.TypeLeaf, p.Header.NumKeys, p.Header.NextPage, p.Data[:])
	if err != nil {
		return nil, &ErrCorruptedIndex{err.Error()}
	}
	return n, nil
}

func (t *Tree) writeNode(n *node) error {
	encoded, err := encodeNode(n)
	if err != nil {
		return err
	}
	data, err := page.SetData(encoded)
	if err != nil {
		return err
	}
	hdr := page.Header{NumKeys: uint16(len(n.keys)), NextPage: n.next}
	if n.leaf {
		hdr.Type = page.TypeLeaf
	} else {
		hdr.Type = page.TypeInternal
	}
	return t.store.Write(n.id, hdr, data)
}

func (t *Tree) allocNode(leaf bool) (*node, error) {
	typ := page.TypeInternal
	if leaf {
		typ = page.TypeLeaf
	}
	id, err := t.store.Allocate(typ)
	if err != nil {
		return nil, err
	}
	return &node{id: id, leaf: leaf}, nil
}

// replayWAL re-applies every record from the sibling WAL and then
// truncates it: the crash-recovery path for mutations whose page
// writes never made it to disk.
func (t *Tree) replayWAL() error {
	entries, err := t.wal.Replay()
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Tag {
		case walrec.TagInsert:
			if err := t.apply(e.Key, e.Value); err != nil {
				return err
			}
		case walrec.TagDelete:
			if err := t.applyDelete(e.Key); err != nil {
				return err
			}
		}
	}
	return t.wal.Truncate()
}

// descend returns the leaf that would contain k, along with the path
// of internal nodes visited (for split propagation).
func (t *Tree) descend(k []byte) (*node, []*node, error) {
	var path []*node
	cur, err := t.readNode(rootPageID)
	if err != nil {
		return nil, nil, err
	}
	for !cur.leaf {
		path = append(path, cur)
		i := searchKeys(cur.keys, k)
		var childID uint32
		if i < len(cur.keys) && bytes.Equal(cur.keys[i], k) {
			childID = cur.children[i+1]
		} else {
			childID = cur.children[i]
		}
		cur, err = t.readNode(childID)
		if err != nil {
			return nil, nil, err
		}
	}
	return cur, path, nil
}

// searchKeys returns the smallest index i such that keys[i] >= k
// (the position binary_search would return as Err(i), or the position
// of an exact match as Ok-equivalent — callers check equality at i).
func searchKeys(keys [][]byte, k []byte) int {
	return sort.Search(len(keys), func(i int) bool {
		return bytes.Compare(keys[i], k) >= 0
	})
}

// Get returns the value for k, if present.
func (t *Tree) Get(k []byte) ([]byte, bool, error) {
	leaf, _, err := t.descend(k)
	if err != nil {
		return nil, false, err
	}
	i := searchKeys(leaf.keys, k)
	if i < len(leaf.keys) && bytes.Equal(leaf.keys[i], k) {
		return leaf.values[i], true, nil
	}
	return nil, false, nil
}

// Range returns all (key,value) pairs with start <= k < end (half-open).
func (t *Tree) Range(start, end []byte) ([]KV, error) {
	leaf, _, err := t.descend(start)
	if err != nil {
		return nil, err
	}

	var out []KV
	for leaf != nil {
		for i, k := range leaf.keys {
			if bytes.Compare(k, start) < 0 {
				continue
			}
			if bytes.Compare(k, end) >= 0 {
				return out, nil
			}
			out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), leaf.values[i]...)})
		}
		if leaf.next == 0 {
			break
		}
		leaf, err = t.readNode(leaf.next)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// KV is a decoded key/value pair, used by Range and Iter.
type KV struct {
	Key   []byte
	Value []byte
}

// Iter returns every (key,value) pair in ascending key order.
func (t *Tree) Iter() ([]KV, error) {
	cur, err := t.readNode(rootPageID)
	if err != nil {
		return nil, err
	}
	for !cur.leaf {
		cur, err = t.readNode(cur.children[0])
		if err != nil {
			return nil, err
		}
	}

	var out []KV
	for {
		for i, k := range cur.keys {
			out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), cur.values[i]...)})
		}
		if cur.next == 0 {
			break
		}
		cur, err = t.readNode(cur.next)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Insert logs, fsyncs, then applies the mutation: replaces the value on
// an exact key match, otherwise inserts in sorted position, splitting
// leaves (and propagating splits upward) on overflow.
func (t *Tree) Insert(k, v []byte) error {
	if err := t.wal.LogInsert(k, v); err != nil {
		return err
	}
	if err := t.wal.Sync(); err != nil {
		return err
	}
	return t.apply(k, v)
}

func (t *Tree) apply(k, v []byte) error {
	leaf, path, err := t.descend(k)
	if err != nil {
		return err
	}

	i := searchKeys(leaf.keys, k)
	if i < len(leaf.keys) && bytes.Equal(leaf.keys[i], k) {
		leaf.values[i] = v
		return t.writeNode(leaf)
	}

	leaf.keys = insertAt(leaf.keys, i, k)
	leaf.values = insertAtBytes(leaf.values, i, v)

	if len(leaf.keys) < t.order {
		return t.writeNode(leaf)
	}
	return t.splitLeaf(leaf, path)
}

func insertAt(s [][]byte, i int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertAtBytes(s [][]byte, i int, v []byte) [][]byte {
	return insertAt(s, i, v)
}

func insertAtUint32(s []uint32, i int, v uint32) []uint32 {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// splitLeaf splits an overflowing leaf at its midpoint: left keeps the
// lower half, right takes the upper half and inherits the old
// next-leaf pointer, and left's next becomes right's new page id. The
// separator (right's first key) is promoted into the parent. If the
// leaf is the root, the lower half is relocated to a fresh page so
// page 0 can become the new internal root.
func (t *Tree) splitLeaf(leaf *node, path []*node) error {
	mid := len(leaf.keys) / 2

	right, err := t.allocNode(true)
	if err != nil {
		return err
	}
	right.keys = append([][]byte(nil), leaf.keys[mid:]...)
	right.values = append([][]byte(nil), leaf.values[mid:]...)
	right.next = leaf.next

	sep := append([]byte(nil), right.keys[0]...)

	if len(path) == 0 {
		left, err := t.allocNode(true)
		if err != nil {
			return err
		}
		left.keys = append([][]byte(nil), leaf.keys[:mid]...)
		left.values = append([][]byte(nil), leaf.values[:mid]...)
		left.next = right.id

		if err := t.writeNode(left); err != nil {
			return err
		}
		if err := t.writeNode(right); err != nil {
			return err
		}
		return t.writeRoot(sep, left.id, right.id)
	}

	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.next = right.id

	if err := t.writeNode(leaf); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}

	return t.insertIntoParent(leaf.id, right.id, sep, path)
}

// writeRoot rewrites page 0 as an internal node with a single separator
// over two children.
func (t *Tree) writeRoot(sep []byte, leftID, rightID uint32) error {
	root := &node{id: rootPageID, keys: [][]byte{sep}, children: []uint32{leftID, rightID}}
	return t.writeNode(root)
}

// insertIntoParent inserts the separator key and right-child pointer
// into the last node on path, splitting it in turn on overflow.
func (t *Tree) insertIntoParent(leftID, rightID uint32, sep []byte, path []*node) error {
	parent := path[len(path)-1]
	i := searchKeys(parent.keys, sep)
	parent.keys = insertAt(parent.keys, i, sep)
	parent.children = insertAtUint32(parent.children, i+1, rightID)

	if len(parent.keys) < t.order {
		return t.writeNode(parent)
	}
	return t.splitInternal(parent, path[:len(path)-1])
}

// splitInternal splits an overflowing internal node: keys[mid] is
// promoted, left keeps keys[:mid]/children[:mid+1], right takes
// keys[mid+1:]/children[mid+1:]. A root split relocates the left half
// the same way splitLeaf does.
func (t *Tree) splitInternal(n *node, path []*node) error {
	mid := len(n.keys) / 2
	sep := append([]byte(nil), n.keys[mid]...)

	right, err := t.allocNode(false)
	if err != nil {
		return err
	}
	right.keys = append([][]byte(nil), n.keys[mid+1:]...)
	right.children = append([]uint32(nil), n.children[mid+1:]...)

	if len(path) == 0 {
		left, err := t.allocNode(false)
		if err != nil {
			return err
		}
		left.keys = append([][]byte(nil), n.keys[:mid]...)
		left.children = append([]uint32(nil), n.children[:mid+1]...)

		if err := t.writeNode(left); err != nil {
			return err
		}
		if err := t.writeNode(right); err != nil {
			return err
		}
		return t.writeRoot(sep, left.id, right.id)
	}

	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	if err := t.writeNode(n); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}

	return t.insertIntoParent(n.id, right.id, sep, path)
}

// Delete logs, fsyncs, then applies the removal. It is a no-op if k is
// absent. No merge or borrow rebalancing is performed on underflow:
// search correctness only depends on internal separators remaining
// valid thresholds, not on every leaf staying at or above min_keys.
func (t *Tree) Delete(k []byte) error {
	if err := t.wal.LogDelete(k); err != nil {
		return err
	}
	if err := t.wal.Sync(); err != nil {
		return err
	}
	return t.applyDelete(k)
}

func (t *Tree) applyDelete(k []byte) error {
	leaf, _, err := t.descend(k)
	if err != nil {
		return err
	}
	i := searchKeys(leaf.keys, k)
	if i >= len(leaf.keys) || !bytes.Equal(leaf.keys[i], k) {
		return nil
	}
	leaf.keys = append(leaf.keys[:i], leaf.keys[i+1:]...)
	leaf.values = append(leaf.values[:i], leaf.values[i+1:]...)
	return t.writeNode(leaf)
}

// BackendType reports the index backend kind for C5/reporting.
func (t *Tree) BackendType() string { return "btree" }

// DiskUsage returns the current size in bytes of the page file.
func (t *Tree) DiskUsage() int64 {
	return int64(t.store.NumPages()) * page.Size
}

// MemoryUsage is reporting-only; the tree itself holds no persistent
// in-memory cache beyond the OS page cache backing the mmap.
func (t *Tree) MemoryUsage() int64 { return 0 }
