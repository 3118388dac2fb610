package pgpickle

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"github.com/rs/zerolog"
)

// EncoderConfig tunes an Encoder. The zero value is a usable default.
type EncoderConfig struct {
	// PersistentRef, if non-nil, is consulted for every node before its
	// normal encoding; a non-nil return value is emitted as PERSID/
	// BINPERSID instead of encoding the node itself.
	PersistentRef func(Value) *PersistentRef

	// Limits bounds recursion depth. The zero Limits is replaced with
	// DefaultLimits().
	Limits Limits

	// Log is the diagnostic logger slot matching DecoderConfig.Log; the
	// Encoder does not write any events to it.
	Log zerolog.Logger
}

// Encoder serializes a Value tree to pickle bytes. The stream starts with a
// PROTO 2 header, but its body also uses opcodes introduced by later
// protocols: BINBYTES (protocol 3) and SHORT_BINUNICODE, EMPTY_SET,
// ADDITEMS, FROZENSET, STACK_GLOBAL and MEMOIZE (protocol 4). Memo slots are
// assigned with MEMOIZE and read back with BINGET/LONG_BINGET.
//
// An Encoder is single-use per logical transcode, like Decoder.
type Encoder struct {
	w      *bytes.Buffer
	config *EncoderConfig
	limits Limits
	memo   map[Value]int
}

// NewEncoder constructs an Encoder with default configuration.
func NewEncoder() *Encoder {
	return NewEncoderWithConfig(&EncoderConfig{})
}

// NewEncoderWithConfig constructs an Encoder tuned by config.
func NewEncoderWithConfig(config *EncoderConfig) *Encoder {
	if config == nil {
		config = &EncoderConfig{}
	}
	limits := config.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Encoder{
		w:      new(bytes.Buffer),
		config: config,
		limits: limits,
		memo:   make(map[Value]int),
	}
}

// Encode renders v as a complete protocol-2 pickle: PROTO header, body,
// STOP.
func (e *Encoder) Encode(v Value) ([]byte, error) {
	e.w.Reset()
	e.w.WriteByte(opProto)
	e.w.WriteByte(2)
	if err := e.encode(v, 0); err != nil {
		return nil, err
	}
	e.w.WriteByte(opStop)
	out := make([]byte, e.w.Len())
	copy(out, e.w.Bytes())
	return out, nil
}

// EncodeTo writes v's pickle encoding to w.
func (e *Encoder) EncodeTo(w io.Writer, v Value) error {
	data, err := e.Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Encode is the package-level convenience wrapper around a fresh Encoder.
func Encode(v Value) ([]byte, error) {
	return NewEncoder().Encode(v)
}

// EncodeTwoBytes serializes class and state as two concatenated
// protocol-2 pickles sharing one memo table, the same ZODB class‖state
// record layout DecodeTwoBytes reads.
func EncodeTwoBytes(class, state Value) ([]byte, error) {
	e := NewEncoder()
	e.w.Reset()
	e.w.WriteByte(opProto)
	e.w.WriteByte(2)
	if err := e.encode(class, 0); err != nil {
		return nil, err
	}
	e.w.WriteByte(opStop)
	e.w.WriteByte(opProto)
	e.w.WriteByte(2)
	if err := e.encode(state, 0); err != nil {
		return nil, err
	}
	e.w.WriteByte(opStop)
	out := make([]byte, e.w.Len())
	copy(out, e.w.Bytes())
	return out, nil
}

// EncodeTwoTo writes class and state to w as two concatenated protocol-2
// pickles sharing one memo table, the streaming counterpart to
// EncodeTwoBytes (mirroring EncodeTo next to Encode).
func EncodeTwoTo(w io.Writer, class, state Value) error {
	data, err := EncodeTwoBytes(class, state)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (e *Encoder) encode(v Value, depth int) error {
	if depth > e.limits.MaxDepth {
		return newCodecError(DepthLimit, "encode exceeded depth %d", e.limits.MaxDepth)
	}
	if v == nil {
		e.w.WriteByte(opNone)
		return nil
	}

	if e.config.PersistentRef != nil {
		if ref := e.config.PersistentRef(v); ref != nil {
			return e.encodeRef(ref, depth)
		}
	}

	if slot, ok := e.memo[v]; ok {
		return e.emitGet(slot)
	}

	var err error
	switch t := v.(type) {
	case *None:
		e.w.WriteByte(opNone)
		return nil
	case *Bool:
		err = e.encodeBool(t)
	case *Int:
		err = e.encodeInt(t)
	case *BigInt:
		err = e.encodeBigInt(t)
	case *Float:
		err = e.encodeFloat(t)
	case *Str:
		err = e.encodeStr(t)
	case *Bytes:
		err = e.encodeBytes(t)
	case *List:
		err = e.encodeList(t, depth)
	case *Tuple:
		err = e.encodeTuple(t, depth)
	case *Set:
		err = e.encodeSet(t, depth)
	case *FrozenSet:
		err = e.encodeFrozenSet(t, depth)
	case *Dict:
		err = e.encodeDict(t, depth)
	case *Global:
		err = e.encodeGlobal(t)
	case *Reduce:
		err = e.encodeReduce(t, depth)
	case *PersistentRef:
		err = e.encodeRef(t, depth)
	default:
		return newCodecError(UnsupportedOpcode, "encode: unhandled node type %T", v)
	}
	if err != nil {
		return err
	}

	// None, bools and Tuple() (the empty tuple) are not memoized, as in
	// CPython's own pickler; every other node, scalars included, gets
	// exactly one memo slot so later GET/BINGET can reference it and so
	// repeated sharing round-trips instead of duplicating. Containers that
	// memoize themselves before their items already hold their slot here,
	// and remember leaves them as they are.
	if memoWorthy(v) {
		e.remember(v)
	}
	return nil
}

func memoWorthy(v Value) bool {
	switch t := v.(type) {
	case *None, *Bool:
		return false
	case *Tuple:
		return len(t.Items) > 0
	default:
		return true
	}
}

func (e *Encoder) remember(v Value) {
	if _, done := e.memo[v]; done {
		return
	}
	slot := len(e.memo)
	e.memo[v] = slot
	e.emitPut(slot)
}

func (e *Encoder) emitPut(slot int) {
	e.w.WriteByte(opMemoize)
}

func (e *Encoder) emitGet(slot int) error {
	if slot < 256 {
		e.w.WriteByte(opBinget)
		e.w.WriteByte(byte(slot))
		return nil
	}
	e.w.WriteByte(opLongBinget)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(slot))
	e.w.Write(b[:])
	return nil
}

func (e *Encoder) encodeBool(b *Bool) error {
	if b.V {
		e.w.WriteByte(opNewtrue)
	} else {
		e.w.WriteByte(opNewfalse)
	}
	return nil
}

func (e *Encoder) encodeInt(i *Int) error {
	v := i.V
	switch {
	case v >= 0 && v <= 0xff:
		e.w.WriteByte(opBinint1)
		e.w.WriteByte(byte(v))
	case v >= 0 && v <= 0xffff:
		e.w.WriteByte(opBinint2)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		e.w.Write(b[:])
	case v >= math.MinInt32 && v <= math.MaxInt32:
		e.w.WriteByte(opBinint)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
		e.w.Write(b[:])
	default:
		return e.encodeBigInt(&BigInt{Digits: big.NewInt(v).String()})
	}
	return nil
}

func (e *Encoder) encodeBigInt(bi *BigInt) error {
	v, ok := new(big.Int).SetString(bi.Digits, 10)
	if !ok {
		return newCodecError(BadLength, "invalid BigInt digits %q", truncateLongText(bi.Digits, e.limits.MaxLongTextChars))
	}
	data := encodeTwosComplementLE(v)
	if len(data) < 256 {
		e.w.WriteByte(opLong1)
		e.w.WriteByte(byte(len(data)))
	} else {
		e.w.WriteByte(opLong4)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(data)))
		e.w.Write(b[:])
	}
	e.w.Write(data)
	return nil
}

// encodeTwosComplementLE is the inverse of decodeTwosComplementLE: render v
// as the shortest little-endian two's complement byte string whose sign
// bit matches v's sign.
func encodeTwosComplementLE(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	neg := v.Sign() < 0
	mag := new(big.Int).Abs(v)
	be := mag.Bytes()
	n := len(be)
	if neg {
		full := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
		twos := new(big.Int).Add(full, v) // v is negative
		be = twos.Bytes()
		// twos.Bytes() may be shorter than n if high bytes are 0xff-free;
		// left-pad to n bytes.
		for len(be) < n {
			be = append([]byte{0}, be...)
		}
		if be[0]&0x80 == 0 {
			be = append([]byte{0xff}, be...)
			n++
		}
	} else if be[0]&0x80 != 0 {
		be = append([]byte{0}, be...)
		n++
	}
	le := make([]byte, n)
	for i, b := range be {
		le[n-1-i] = b
	}
	return le
}

func (e *Encoder) encodeFloat(f *Float) error {
	e.w.WriteByte(opBinfloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f.V))
	e.w.Write(b[:])
	return nil
}

func (e *Encoder) encodeStr(s *Str) error {
	data := []byte(s.V)
	switch {
	case len(data) < 256:
		e.w.WriteByte(opShortBinUnicode)
		e.w.WriteByte(byte(len(data)))
	case len(data) <= math.MaxUint32:
		e.w.WriteByte(opBinunicode)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(data)))
		e.w.Write(b[:])
	default:
		e.w.WriteByte(opBinunicode8)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(len(data)))
		e.w.Write(b[:])
	}
	e.w.Write(data)
	return nil
}

func (e *Encoder) encodeBytes(by *Bytes) error {
	n := len(by.V)
	switch {
	case n < 256:
		e.w.WriteByte(opShortBinbytes)
		e.w.WriteByte(byte(n))
	case n <= math.MaxUint32:
		e.w.WriteByte(opBinbytes)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		e.w.Write(b[:])
	default:
		e.w.WriteByte(opBinbytes8)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		e.w.Write(b[:])
	}
	e.w.Write(by.V)
	return nil
}

func (e *Encoder) encodeList(l *List, depth int) error {
	e.w.WriteByte(opEmptyList)
	e.remember(l)
	if len(l.Items) == 0 {
		return nil
	}
	return e.encodeAppends(l.Items, depth)
}

// encodeAppends emits a previously-memoized container's items via
// MARK ... APPENDS, the form CPython's pickler uses for any list longer
// than one element (a single element uses bare APPEND; we always use
// APPENDS for simplicity, which decodes identically).
func (e *Encoder) encodeAppends(items []Value, depth int) error {
	e.w.WriteByte(opMark)
	for _, it := range items {
		if err := e.encode(it, depth+1); err != nil {
			return err
		}
	}
	e.w.WriteByte(opAppends)
	return nil
}

func (e *Encoder) encodeTuple(t *Tuple, depth int) error {
	switch len(t.Items) {
	case 0:
		e.w.WriteByte(opEmptyTuple)
		return nil
	case 1, 2, 3:
		for _, it := range t.Items {
			if err := e.encode(it, depth+1); err != nil {
				return err
			}
		}
		switch len(t.Items) {
		case 1:
			e.w.WriteByte(opTuple1)
		case 2:
			e.w.WriteByte(opTuple2)
		case 3:
			e.w.WriteByte(opTuple3)
		}
		return nil
	default:
		e.w.WriteByte(opMark)
		for _, it := range t.Items {
			if err := e.encode(it, depth+1); err != nil {
				return err
			}
		}
		e.w.WriteByte(opTuple)
		return nil
	}
}

func (e *Encoder) encodeSet(s *Set, depth int) error {
	e.w.WriteByte(opEmptySet)
	e.remember(s)
	if len(s.Items) == 0 {
		return nil
	}
	e.w.WriteByte(opMark)
	for _, it := range s.Items {
		if err := e.encode(it, depth+1); err != nil {
			return err
		}
	}
	e.w.WriteByte(opAdditems)
	return nil
}

func (e *Encoder) encodeFrozenSet(fs *FrozenSet, depth int) error {
	e.w.WriteByte(opMark)
	for _, it := range fs.Items {
		if err := e.encode(it, depth+1); err != nil {
			return err
		}
	}
	e.w.WriteByte(opFrozenset)
	e.remember(fs)
	return nil
}

func (e *Encoder) encodeDict(d *Dict, depth int) error {
	e.w.WriteByte(opEmptyDict)
	e.remember(d)
	if len(d.Entries) == 0 {
		return nil
	}
	e.w.WriteByte(opMark)
	for _, ent := range d.Entries {
		if err := e.encode(ent.Key, depth+1); err != nil {
			return err
		}
		if err := e.encode(ent.Val, depth+1); err != nil {
			return err
		}
	}
	e.w.WriteByte(opSetitems)
	return nil
}

// encodeGlobal emits STACK_GLOBAL, which takes its module/name off the
// stack rather than as inline text (unlike the legacy GLOBAL opcode), so
// the two strings are pushed first.
func (e *Encoder) encodeGlobal(g *Global) error {
	if err := e.encodeStr(&Str{V: g.Module}); err != nil {
		return err
	}
	if err := e.encodeStr(&Str{V: g.Name}); err != nil {
		return err
	}
	e.w.WriteByte(opStackGlobal)
	return nil
}

func (e *Encoder) encodeReduce(r *Reduce, depth int) error {
	if err := e.encode(r.Callable, depth+1); err != nil {
		return err
	}
	args := r.Args
	if args == nil {
		args = &Tuple{}
	}
	if err := e.encode(args, depth+1); err != nil {
		return err
	}
	e.w.WriteByte(opReduce)
	e.remember(r)

	if len(r.ListItems) > 0 {
		if err := e.encodeAppends(r.ListItems, depth); err != nil {
			return err
		}
	}
	if len(r.DictItems) > 0 {
		e.w.WriteByte(opMark)
		for _, ent := range r.DictItems {
			if err := e.encode(ent.Key, depth+1); err != nil {
				return err
			}
			if err := e.encode(ent.Val, depth+1); err != nil {
				return err
			}
		}
		e.w.WriteByte(opSetitems)
	}
	if r.State != nil {
		if err := e.encode(r.State, depth+1); err != nil {
			return err
		}
		e.w.WriteByte(opBuild)
	}
	return nil
}

func (e *Encoder) encodeRef(ref *PersistentRef, depth int) error {
	if s, ok := ref.Pid.(*Str); ok {
		// Textual pid: PERSID takes it inline as a newline-terminated
		// string rather than pushing it on the stack first.
		if !bytes.ContainsRune([]byte(s.V), '\n') {
			e.w.WriteByte(opPersid)
			e.w.WriteString(s.V)
			e.w.WriteByte('\n')
			return nil
		}
	}
	if err := e.encode(ref.Pid, depth+1); err != nil {
		return err
	}
	e.w.WriteByte(opBinpersid)
	return nil
}
