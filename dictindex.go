package pgpickle

import (
	"fmt"
	"hash/maphash"
	"math/big"

	"github.com/aristanetworks/gomap"
)

// DictIndex is a hash-backed key lookup over a Dict, for callers that need
// to look up entries by key rather than walk Entries linearly (the ZODB
// adapter's schema/attribute lookups being the expected caller). It is
// built lazily and kept separate from Dict itself because decode only
// ever appends (see Dict.Set_), never looks up: SETITEM/SETITEMS index by
// stack position, not by key.
//
// Keys compare by this package's structural Equal, not Python's
// cross-type numeric equality (1 == 1.0 == True) — two dicts built from
// decoded pickles are compared the way this codec compares everything
// else, structurally.
type DictIndex struct {
	m *gomap.Map[Value, Value]
}

// NewDictIndex builds an index over d's entries. Later entries win ties,
// matching Python dict semantics when a key is written more than once.
func NewDictIndex(d *Dict) *DictIndex {
	idx := &DictIndex{m: gomap.NewHint[Value, Value](len(d.Entries), dictKeyEqual, dictKeyHash)}
	for _, e := range d.Entries {
		idx.m.Set(e.Key, e.Val)
	}
	return idx
}

// Get returns the value associated with a structurally-equal key.
func (idx *DictIndex) Get(key Value) (Value, bool) {
	return idx.m.Get(key)
}

// Set inserts or overwrites the entry for key.
func (idx *DictIndex) Set(key, value Value) {
	idx.m.Set(key, value)
}

// Len returns the number of distinct keys in the index.
func (idx *DictIndex) Len() int {
	return idx.m.Len()
}

// ToDict renders the index back into a Dict. Order follows the
// underlying map's iteration order, which is not the original decode
// order — callers that need insertion order should keep using the
// Dict's own Entries instead of round-tripping through an index.
func (idx *DictIndex) ToDict() *Dict {
	d := &Dict{}
	it := idx.m.Iter()
	for it.Next() {
		d.Entries = append(d.Entries, DictEntry{Key: it.Key(), Val: it.Elem()})
	}
	return d
}

func dictKeyEqual(a, b Value) bool {
	return Equal(a, b)
}

// dictKeyHash hashes a Value consistently with dictKeyEqual (Equal):
// equal keys must hash the same. Only the scalar kinds that are actually
// usable as pickle dict keys in practice (str, bytes, int, bigint, float,
// bool, None, tuple-of-these) are given real hashes; anything else falls
// back to a per-type constant, which is correct (if slower) since
// gomap's chaining still compares every candidate with dictKeyEqual.
func dictKeyHash(seed maphash.Seed, v Value) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)

	switch x := v.(type) {
	case *None:
		h.WriteString("None")
	case *Bool:
		if x.V {
			h.WriteString("bool:1")
		} else {
			h.WriteString("bool:0")
		}
	case *Int:
		writeUint64(&h, uint64(x.V))
	case *BigInt:
		bi, ok := new(big.Int).SetString(x.Digits, 10)
		if ok && bi.IsInt64() {
			writeUint64(&h, uint64(bi.Int64()))
		} else if ok {
			h.WriteString("bigint:")
			h.WriteString(bi.String())
		} else {
			h.WriteString("bigint:")
			h.WriteString(x.Digits)
		}
	case *Float:
		i := int64(x.V)
		if float64(i) == x.V {
			writeUint64(&h, uint64(i))
		} else {
			h.WriteString(fmt.Sprintf("float:%v", x.V))
		}
	case *Str:
		h.WriteString("str:")
		h.WriteString(x.V)
	case *Bytes:
		h.WriteString("bytes:")
		h.Write(x.V)
	case *Tuple:
		h.WriteString("tuple")
		for _, item := range x.Items {
			writeUint64(&h, dictKeyHash(seed, item))
		}
	default:
		h.WriteString(fmt.Sprintf("other:%T", v))
	}
	return h.Sum64()
}

func writeUint64(h *maphash.Hash, u uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	h.Write(b[:])
}
