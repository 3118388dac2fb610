package pgpickle

// Value is the pickle AST — the tagged union every decoded pickle object is
// represented as. Every concrete node type is a pointer type so that the
// Go pointer itself can serve as the node's stable identity: the decoder
// pushes the same pointer onto the stack whenever GET/BINGET/LONG_BINGET
// retrieves a previously-memoized value, and the encoder keys its own
// emission-time memo off that same pointer (see encoder.go), giving every
// node a stable identity without needing a synthetic per-node integer.
//
// All composite variants preserve insertion/emission order; pickle's memo
// depends on position, so reordering a tree before re-encoding would be
// incorrect.
type Value interface {
	// pickleNode is unexported so Value is a closed (sealed) interface:
	// only the types defined in this file can satisfy it.
	pickleNode()
}

// None represents Python's None.
type None struct{}

func (*None) pickleNode() {}

// NewNone returns a fresh None node.
func NewNone() *None { return &None{} }

// Bool represents a Python bool.
type Bool struct {
	V bool
}

func (*Bool) pickleNode() {}

// NewBool returns a Bool node wrapping v.
func NewBool(v bool) *Bool { return &Bool{V: v} }

// Int represents a Python int that fits in a signed 64-bit word.
type Int struct {
	V int64
}

func (*Int) pickleNode() {}

// NewInt returns an Int node wrapping v.
func NewInt(v int64) *Int { return &Int{V: v} }

// BigInt represents a Python int outside the signed-64-bit range, carried
// as its base-10 decimal string (with an optional leading '-').
type BigInt struct {
	Digits string
}

func (*BigInt) pickleNode() {}

// NewBigInt returns a BigInt node for the given decimal digit string.
func NewBigInt(digits string) *BigInt { return &BigInt{Digits: digits} }

// Float represents a Python float (IEEE-754 double).
type Float struct {
	V float64
}

func (*Float) pickleNode() {}

// NewFloat returns a Float node wrapping v.
func NewFloat(v float64) *Float { return &Float{V: v} }

// Str represents a Python str (unicode text).
type Str struct {
	V string
}

func (*Str) pickleNode() {}

// NewStr returns a Str node wrapping v.
func NewStr(v string) *Str { return &Str{V: v} }

// Bytes represents a Python bytes object.
type Bytes struct {
	V []byte
}

func (*Bytes) pickleNode() {}

// NewBytes returns a Bytes node wrapping v.
func NewBytes(v []byte) *Bytes { return &Bytes{V: v} }

// List represents a Python list: an ordered, mutable sequence.
type List struct {
	Items []Value
}

func (*List) pickleNode() {}

// NewList returns a List node wrapping items.
func NewList(items ...Value) *List { return &List{Items: items} }

// Tuple represents a Python tuple: an ordered, immutable sequence.
type Tuple struct {
	Items []Value
}

func (*Tuple) pickleNode() {}

// NewTuple returns a Tuple node wrapping items.
func NewTuple(items ...Value) *Tuple { return &Tuple{Items: items} }

// Set represents a Python set.
type Set struct {
	Items []Value
}

func (*Set) pickleNode() {}

// NewSet returns a Set node wrapping items.
func NewSet(items ...Value) *Set { return &Set{Items: items} }

// FrozenSet represents a Python frozenset.
type FrozenSet struct {
	Items []Value
}

func (*FrozenSet) pickleNode() {}

// NewFrozenSet returns a FrozenSet node wrapping items.
func NewFrozenSet(items ...Value) *FrozenSet { return &FrozenSet{Items: items} }

// DictEntry is one key/value pair of a Dict, in emission order.
type DictEntry struct {
	Key Value
	Val Value
}

// Dict represents a Python dict. Keys may be any Value, not just strings;
// insertion order is preserved (as CPython dicts have done since 3.7, and
// as the pickle wire form always has).
type Dict struct {
	Entries []DictEntry
}

func (*Dict) pickleNode() {}

// NewDict returns an empty Dict node.
func NewDict() *Dict { return &Dict{} }

// Set_ appends a key/value pair; it does not look for an existing entry
// with the same key, so a key set twice appears twice. Pickle's SETITEM/SETITEMS opcodes never need true
// Python equality here — they index by stack position, not by key lookup —
// so a simple append is correct for decode. Callers that need to look an
// entry up by key rather than by position should build a DictIndex
// (dictindex.go) over the finished Dict instead.
func (d *Dict) Set_(k, v Value) {
	d.Entries = append(d.Entries, DictEntry{Key: k, Val: v})
}

// Global represents a reference to a Python class or function: the
// (module, name) pair pushed by GLOBAL/STACK_GLOBAL. It is never resolved
// to a runtime symbol — see doc.go's safety-floor note.
type Global struct {
	Module string
	Name   string
}

func (*Global) pickleNode() {}

// NewGlobal returns a Global node for the given module/name pair.
func NewGlobal(module, name string) *Global { return &Global{Module: module, Name: name} }

// Reduce is the result of REDUCE, optionally followed by BUILD (State),
// APPENDS (ListItems), and/or SETITEMS (DictItems) applied to it.
type Reduce struct {
	Callable  Value
	Args      *Tuple
	State     Value // nil if no BUILD was applied
	ListItems []Value
	DictItems []DictEntry
}

func (*Reduce) pickleNode() {}

// NewReduce returns a Reduce node for callable(args...), with no state yet.
func NewReduce(callable Value, args *Tuple) *Reduce {
	return &Reduce{Callable: callable, Args: args}
}

// PersistentRef is the payload of PERSID/BINPERSID: a pointer by
// out-of-band id to another stored object (a ZODB OID, typically).
type PersistentRef struct {
	Pid Value
}

func (*PersistentRef) pickleNode() {}

// NewPersistentRef returns a PersistentRef node wrapping pid.
func NewPersistentRef(pid Value) *PersistentRef { return &PersistentRef{Pid: pid} }
