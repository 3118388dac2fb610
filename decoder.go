package pgpickle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/rs/zerolog"
)

// bytesReader adapts a byte slice to io.Reader for the []byte-taking
// package-level entry points.
func bytesReader(data []byte) io.Reader { return bytes.NewReader(data) }

// DecoderConfig tunes a Decoder. The zero value is a usable default: no
// persistent-reference hook, DefaultLimits, and a disabled logger.
type DecoderConfig struct {
	// PersistentLoad, if non-nil, is called whenever PERSID/BINPERSID is
	// encountered. If it returns a non-nil Value, that value replaces the
	// PersistentRef node on the stack; if it returns (nil, nil) the plain
	// PersistentRef is pushed instead.
	PersistentLoad func(ref *PersistentRef) (Value, error)

	// Limits bounds memo size, blob length, and LONG text rendering. The
	// zero Limits is replaced with DefaultLimits().
	Limits Limits

	// Log receives diagnostic (non-error) events. The only event the
	// Decoder emits is a debug message when the memo reaches 90% of
	// Limits.MaxMemoEntries. The zero Logger is zerolog's disabled logger,
	// so this is safe to leave unset.
	Log zerolog.Logger
}

// Decoder executes a pickle opcode stream into a Value tree.
//
// A Decoder is single-use per logical transcode: construct one, call
// Decode (or DecodeTwo) once, discard it. It is not safe for concurrent
// use from multiple goroutines.
type Decoder struct {
	r      *bufio.Reader
	config *DecoderConfig
	limits Limits

	stack     []Value
	markStack []int
	memo      map[int]Value

	insn int // opcode count so far, used as the error Pos

	// line is a reusable buffer for readLine; valid only until the next call.
	line []byte
}

// NewDecoder constructs a Decoder with default configuration.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithConfig(r, &DecoderConfig{})
}

// NewDecoderWithConfig constructs a Decoder tuned by config.
func NewDecoderWithConfig(r io.Reader, config *DecoderConfig) *Decoder {
	if config == nil {
		config = &DecoderConfig{}
	}
	limits := config.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Decoder{
		r:      bufio.NewReader(r),
		config: config,
		limits: limits,
		stack:  make([]Value, 0, 16),
		memo:   make(map[int]Value),
	}
}

// Decode reads one pickle (through its terminating STOP) and returns the
// resulting Value tree.
func (d *Decoder) Decode() (Value, error) {
	return d.decodeOne()
}

// DecodeTwo reads two concatenated pickles from the same underlying
// stream, sharing one memo table across both — the ZODB class-pickle /
// state-pickle discipline a storage record uses.
func (d *Decoder) DecodeTwo() (class Value, state Value, err error) {
	class, err = d.decodeOne()
	if err != nil {
		return nil, nil, err
	}
	state, err = d.decodeOne()
	if err != nil {
		return nil, nil, err
	}
	return class, state, nil
}

// Decode decodes a single pickle from data and returns the resulting tree.
func Decode(data []byte) (Value, error) {
	return NewDecoder(bytesReader(data)).Decode()
}

// DecodeTwoBytes decodes two concatenated pickles sharing one memo from a
// single byte slice, as a ZODB record's class‖state payload is laid out.
func DecodeTwoBytes(data []byte) (class Value, state Value, err error) {
	return NewDecoder(bytesReader(data)).DecodeTwo()
}

func (d *Decoder) decodeOne() (Value, error) {
loop:
	for {
		key, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, newCodecErrorAt(Truncated, d.insn, "unexpected end of input")
			}
			return nil, err
		}
		d.insn++

		switch key {
		case opMark:
			d.pushMark()
		case opStop:
			break loop
		case opPop:
			_, err = d.pop()
		case opPopMark:
			err = d.popMark()
		case opDup:
			err = d.dup()
		case opNone:
			d.push(&None{})
		case opNewtrue:
			d.push(&Bool{V: true})
		case opNewfalse:
			d.push(&Bool{V: false})
		case opBinint:
			err = d.loadBinInt()
		case opBinint1:
			err = d.loadBinInt1()
		case opBinint2:
			err = d.loadBinInt2()
		case opLong:
			err = d.loadLong()
		case opLong1:
			err = d.loadLong1()
		case opLong4:
			err = d.loadLong4()
		case opBinfloat:
			err = d.loadBinFloat()
		case opShortBinstring:
			err = d.loadCountedString(1, false)
		case opBinstring:
			err = d.loadCountedString(4, false)
		case opShortBinUnicode:
			err = d.loadCountedString(1, true)
		case opBinunicode:
			err = d.loadCountedString(4, true)
		case opBinunicode8:
			err = d.loadCountedString(8, true)
		case opShortBinbytes:
			err = d.loadCountedBytes(1)
		case opBinbytes:
			err = d.loadCountedBytes(4)
		case opBinbytes8:
			err = d.loadCountedBytes(8)
		case opEmptyList:
			d.push(&List{})
		case opAppend:
			err = d.loadAppend()
		case opAppends:
			err = d.loadAppends()
		case opEmptyTuple:
			d.push(&Tuple{})
		case opTuple:
			err = d.loadTuple()
		case opTuple1:
			err = d.loadTupleN(1)
		case opTuple2:
			err = d.loadTupleN(2)
		case opTuple3:
			err = d.loadTupleN(3)
		case opEmptyDict:
			d.push(&Dict{})
		case opSetitem:
			err = d.loadSetitem()
		case opSetitems:
			err = d.loadSetitems()
		case opEmptySet:
			d.push(&Set{})
		case opAdditems:
			err = d.loadAdditems()
		case opFrozenset:
			err = d.loadFrozenset()
		case opGlobal:
			err = d.loadGlobal()
		case opStackGlobal:
			err = d.loadStackGlobal()
		case opReduce:
			err = d.loadReduce()
		case opBuild:
			err = d.loadBuild()
		case opObj:
			err = d.loadObj()
		case opInst:
			err = d.loadInst()
		case opGet:
			err = d.loadGet()
		case opBinget:
			err = d.loadBinGet()
		case opLongBinget:
			err = d.loadLongBinGet()
		case opPut:
			err = d.loadPut()
		case opBinput:
			err = d.loadBinPut()
		case opLongBinput:
			err = d.loadLongBinPut()
		case opMemoize:
			err = d.loadMemoize()
		case opPersid:
			err = d.loadPersid()
		case opBinpersid:
			err = d.loadBinPersid()
		case opProto:
			_, err = d.r.ReadByte()
		case opFrame:
			err = d.loadFrame()
		default:
			return nil, newCodecErrorAt(UnsupportedOpcode, d.insn, "opcode %d (%q) %s", key, key, opName(key))
		}

		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, newCodecErrorAt(Truncated, d.insn, "unexpected end of input")
			}
			return nil, err
		}
	}
	return d.pop()
}

// ---- stack/mark/memo plumbing ----

func (d *Decoder) push(v Value) { d.stack = append(d.stack, v) }

func (d *Decoder) pop() (Value, error) {
	n := len(d.stack) - 1
	if n < 0 {
		return nil, newCodecErrorAt(StackUnderflow, d.insn, "pop of empty stack")
	}
	v := d.stack[n]
	d.stack = d.stack[:n]
	return v, nil
}

func (d *Decoder) top() (Value, error) {
	n := len(d.stack) - 1
	if n < 0 {
		return nil, newCodecErrorAt(StackUnderflow, d.insn, "peek of empty stack")
	}
	return d.stack[n], nil
}

func (d *Decoder) pushMark() {
	d.markStack = append(d.markStack, len(d.stack))
}

// popMarkPos pops and returns the most recent mark position.
func (d *Decoder) popMarkPos() (int, error) {
	n := len(d.markStack) - 1
	if n < 0 {
		return 0, newCodecErrorAt(StackUnderflow, d.insn, "no marker on mark stack")
	}
	k := d.markStack[n]
	d.markStack = d.markStack[:n]
	return k, nil
}

func (d *Decoder) popMark() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	if k > len(d.stack) {
		return newCodecErrorAt(StackUnderflow, d.insn, "mark position past stack top")
	}
	d.stack = d.stack[:k]
	return nil
}

func (d *Decoder) dup() error {
	v, err := d.top()
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) memoPut(slot int, v Value) error {
	_, exists := d.memo[slot]
	if !exists && len(d.memo) >= d.limits.MaxMemoEntries {
		return newCodecErrorAt(MemoLimit, d.insn, "memo exceeded %d entries", d.limits.MaxMemoEntries)
	}
	if !exists && len(d.memo) == d.limits.MaxMemoEntries*9/10 {
		d.config.Log.Debug().Int("entries", len(d.memo)).Int("limit", d.limits.MaxMemoEntries).Msg("pgpickle: memo approaching configured limit")
	}
	d.memo[slot] = v
	return nil
}

func (d *Decoder) memoGet(slot int) (Value, error) {
	v, ok := d.memo[slot]
	if !ok {
		return nil, newCodecErrorAt(MemoMiss, d.insn, "memo slot %d not set", slot)
	}
	return v, nil
}

// readLine reads up to and including the next '\n', returning the line
// without its terminator. The returned slice is valid only until the next
// call to readLine, which reuses the backing buffer to avoid an allocation
// per line.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	for {
		chunk, isPrefix, err := d.r.ReadLine()
		if err != nil {
			return nil, err
		}
		d.line = append(d.line, chunk...)
		if !isPrefix {
			break
		}
	}
	return d.line, nil
}

// ---- numeric opcodes ----

func (d *Decoder) loadBinInt() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	v := int32(binary.LittleEndian.Uint32(b[:]))
	d.push(&Int{V: int64(v)})
	return nil
}

func (d *Decoder) loadBinInt1() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	d.push(&Int{V: int64(b)})
	return nil
}

func (d *Decoder) loadBinInt2() error {
	var b [2]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	d.push(&Int{V: int64(binary.LittleEndian.Uint16(b[:]))})
	return nil
}

func (d *Decoder) loadBinFloat() error {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	u := binary.BigEndian.Uint64(b[:])
	d.push(&Float{V: math.Float64frombits(u)})
	return nil
}

// loadLong handles the protocol-0 LONG opcode: a decimal string suffixed
// with 'L', e.g. "12345L\n".
func (d *Decoder) loadLong() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	if len(line) < 1 || line[len(line)-1] != 'L' {
		return newCodecErrorAt(Truncated, d.insn, "LONG: missing trailing 'L'")
	}
	v, ok := new(big.Int).SetString(string(line[:len(line)-1]), 10)
	if !ok {
		return newCodecErrorAt(BadLength, d.insn, "LONG: invalid decimal %q", truncateLongText(string(line[:len(line)-1]), d.limits.MaxLongTextChars))
	}
	d.pushBigInt(v)
	return nil
}

func (d *Decoder) loadLong1() error {
	n, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.loadLongBytes(int(n))
}

func (d *Decoder) loadLong4() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(b[:]))
	if n < 0 {
		return newCodecErrorAt(BadLength, d.insn, "LONG4: negative length %d", n)
	}
	return d.loadLongBytes(int(n))
}

func (d *Decoder) loadLongBytes(n int) error {
	if n == 0 {
		d.pushBigInt(big.NewInt(0))
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return err
	}
	d.pushBigInt(decodeTwosComplementLE(buf))
	return nil
}

func (d *Decoder) pushBigInt(v *big.Int) {
	if v.IsInt64() {
		d.push(&Int{V: v.Int64()})
		return
	}
	d.push(&BigInt{Digits: v.String()})
}

// decodeTwosComplementLE interprets data as a little-endian two's
// complement integer, matching Python's pickle LONG1/LONG4 encoding.
func decodeTwosComplementLE(data []byte) *big.Int {
	n := len(data)
	be := make([]byte, n)
	for i, b := range data {
		be[n-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if n > 0 && data[n-1]&0x80 != 0 {
		// negative: v - 2^(8n)
		full := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
		v.Sub(v, full)
	}
	return v
}

// ---- string/bytes opcodes ----

// loadCountedString reads a length-prefixed string of lenBytes (1, 4, or 8
// bytes) and pushes a Str node. The bytes are taken as they are and are not
// checked for valid UTF-8, neither for the BINUNICODE family (unicode=true)
// nor for the legacy BINSTRING family (unicode=false); ToJSON in json.go
// passes a Str's bytes through unchecked as well.
func (d *Decoder) loadCountedString(lenBytes int, unicode bool) error {
	n, err := d.readLength(lenBytes)
	if err != nil {
		return err
	}
	buf, err := d.readCounted(n)
	if err != nil {
		return err
	}
	_ = unicode
	d.push(&Str{V: string(buf)})
	return nil
}

func (d *Decoder) loadCountedBytes(lenBytes int) error {
	n, err := d.readLength(lenBytes)
	if err != nil {
		return err
	}
	buf, err := d.readCounted(n)
	if err != nil {
		return err
	}
	d.push(&Bytes{V: buf})
	return nil
}

// readLength reads a lenBytes-wide little-endian length prefix, rejecting
// negative (for the 4-byte signed forms) and over-cap (for the 8-byte
// forms, checked before allocation: CODEC-M3) lengths.
func (d *Decoder) readLength(lenBytes int) (int64, error) {
	switch lenBytes {
	case 1:
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		return int64(b), nil
	case 4:
		var b [4]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return 0, err
		}
		n := int32(binary.LittleEndian.Uint32(b[:]))
		if n < 0 {
			return 0, newCodecErrorAt(BadLength, d.insn, "negative length %d", n)
		}
		return int64(n), nil
	case 8:
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return 0, err
		}
		n := int64(binary.LittleEndian.Uint64(b[:]))
		if n < 0 {
			return 0, newCodecErrorAt(BadLength, d.insn, "negative length %d", n)
		}
		if n > d.limits.MaxBlobBytes {
			return 0, newCodecErrorAt(SizeLimit, d.insn, "length %d exceeds limit %d", n, d.limits.MaxBlobBytes)
		}
		return n, nil
	default:
		panic("pgpickle: readLength: bad lenBytes")
	}
}

func (d *Decoder) readCounted(n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ---- container opcodes ----

// appendInto appends v to the target's list-like storage: a literal List,
// or the ListItems of a Reduce (a reduced object, such as a list subclass
// or an OrderedDict-like container, that receives its elements via APPEND
// instead of through its constructor args).
func appendInto(target Value, vs ...Value) bool {
	switch t := target.(type) {
	case *List:
		t.Items = append(t.Items, vs...)
		return true
	case *Reduce:
		t.ListItems = append(t.ListItems, vs...)
		return true
	default:
		return false
	}
}

func (d *Decoder) loadAppend() error {
	v, err := d.pop()
	if err != nil {
		return err
	}
	top, err := d.top()
	if err != nil {
		return err
	}
	if !appendInto(top, v) {
		return newCodecErrorAt(StackUnderflow, d.insn, "APPEND: expected list below, got %T", top)
	}
	return nil
}

func (d *Decoder) loadAppends() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	if k < 1 {
		return newCodecErrorAt(StackUnderflow, d.insn, "APPENDS: no list below mark")
	}
	if !appendInto(d.stack[k-1], d.stack[k:]...) {
		return newCodecErrorAt(StackUnderflow, d.insn, "APPENDS: expected list below mark, got %T", d.stack[k-1])
	}
	d.stack = d.stack[:k]
	return nil
}

func (d *Decoder) loadTuple() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	items := append([]Value{}, d.stack[k:]...)
	d.stack = d.stack[:k]
	d.push(&Tuple{Items: items})
	return nil
}

func (d *Decoder) loadTupleN(n int) error {
	if len(d.stack) < n {
		return newCodecErrorAt(StackUnderflow, d.insn, "TUPLE%d: stack too short", n)
	}
	k := len(d.stack) - n
	items := append([]Value{}, d.stack[k:]...)
	d.stack = d.stack[:k]
	d.push(&Tuple{Items: items})
	return nil
}

// setitemInto stores k/v into the target's dict-like storage: a literal
// Dict, or the DictItems of a Reduce (e.g. a reduced defaultdict/OrderedDict
// that receives its entries via SETITEM/SETITEMS rather than constructor args).
func setitemInto(target Value, k, v Value) bool {
	switch t := target.(type) {
	case *Dict:
		t.Set_(k, v)
		return true
	case *Reduce:
		t.DictItems = append(t.DictItems, DictEntry{Key: k, Val: v})
		return true
	default:
		return false
	}
}

func (d *Decoder) loadSetitem() error {
	if len(d.stack) < 3 {
		return newCodecErrorAt(StackUnderflow, d.insn, "SETITEM: stack too short")
	}
	v, err := d.pop()
	if err != nil {
		return err
	}
	k, err := d.pop()
	if err != nil {
		return err
	}
	top, err := d.top()
	if err != nil {
		return err
	}
	if !setitemInto(top, k, v) {
		return newCodecErrorAt(StackUnderflow, d.insn, "SETITEM: expected dict below, got %T", top)
	}
	return nil
}

func (d *Decoder) loadSetitems() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	if k < 1 {
		return newCodecErrorAt(StackUnderflow, d.insn, "SETITEMS: no dict below mark")
	}
	target := d.stack[k-1]
	items := d.stack[k:]
	if len(items)%2 != 0 {
		return newCodecErrorAt(BadLength, d.insn, "SETITEMS: odd number of elements")
	}
	for i := 0; i < len(items); i += 2 {
		if !setitemInto(target, items[i], items[i+1]) {
			return newCodecErrorAt(StackUnderflow, d.insn, "SETITEMS: expected dict below mark, got %T", target)
		}
	}
	d.stack = d.stack[:k]
	return nil
}

func (d *Decoder) loadAdditems() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	if k < 1 {
		return newCodecErrorAt(StackUnderflow, d.insn, "ADDITEMS: no set below mark")
	}
	s, ok := d.stack[k-1].(*Set)
	if !ok {
		return newCodecErrorAt(StackUnderflow, d.insn, "ADDITEMS: expected set below mark, got %T", d.stack[k-1])
	}
	s.Items = append(s.Items, d.stack[k:]...)
	d.stack = d.stack[:k]
	return nil
}

func (d *Decoder) loadFrozenset() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	items := append([]Value{}, d.stack[k:]...)
	d.stack = d.stack[:k]
	d.push(&FrozenSet{Items: items})
	return nil
}

// ---- classes / reduce / build ----

func (d *Decoder) loadGlobal() error {
	module, err := d.readLine()
	if err != nil {
		return err
	}
	smodule := string(module)
	name, err := d.readLine()
	if err != nil {
		return err
	}
	d.push(&Global{Module: smodule, Name: string(name)})
	return nil
}

func (d *Decoder) loadStackGlobal() error {
	name, err := d.pop()
	if err != nil {
		return err
	}
	module, err := d.pop()
	if err != nil {
		return err
	}
	ns, ok := name.(*Str)
	if !ok {
		return newCodecErrorAt(BadLength, d.insn, "STACK_GLOBAL: name is %T, not string", name)
	}
	ms, ok := module.(*Str)
	if !ok {
		return newCodecErrorAt(BadLength, d.insn, "STACK_GLOBAL: module is %T, not string", module)
	}
	d.push(&Global{Module: ms.V, Name: ns.V})
	return nil
}

func (d *Decoder) loadReduce() error {
	if len(d.stack) < 2 {
		return newCodecErrorAt(StackUnderflow, d.insn, "REDUCE: stack too short")
	}
	args, err := d.pop()
	if err != nil {
		return err
	}
	callable, err := d.pop()
	if err != nil {
		return err
	}
	argsTuple, ok := args.(*Tuple)
	if !ok {
		return newCodecErrorAt(BadLength, d.insn, "REDUCE: args is %T, not tuple", args)
	}
	d.push(&Reduce{Callable: callable, Args: argsTuple})
	return nil
}

// loadBuild attaches a popped state value to the Reduce below it. Because
// Reduce nodes are pointers, mutating it in place automatically "updates"
// any memo slot that already points at this same node — there is nothing
// extra to do, even when BUILD targets an object memoized before the
// state was attached.
func (d *Decoder) loadBuild() error {
	state, err := d.pop()
	if err != nil {
		return err
	}
	top, err := d.top()
	if err != nil {
		return err
	}
	r, ok := top.(*Reduce)
	if !ok {
		return newCodecErrorAt(StackUnderflow, d.insn, "BUILD: expected reduce below, got %T", top)
	}
	r.State = state
	return nil
}

// loadObj implements the pre-protocol-2 OBJ opcode: MARK klass arg1 ... argN OBJ.
func (d *Decoder) loadObj() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	if k >= len(d.stack) {
		return newCodecErrorAt(StackUnderflow, d.insn, "OBJ: missing class after mark")
	}
	class := d.stack[k]
	args := append([]Value{}, d.stack[k+1:]...)
	d.stack = d.stack[:k]
	d.push(&Reduce{Callable: class, Args: &Tuple{Items: args}})
	return nil
}

// loadInst implements the pre-protocol-2 INST opcode: MARK arg1 ... argN INST <module>\n<name>\n.
func (d *Decoder) loadInst() error {
	k, err := d.popMarkPos()
	if err != nil {
		return err
	}
	module, err := d.readLine()
	if err != nil {
		return err
	}
	smodule := string(module)
	name, err := d.readLine()
	if err != nil {
		return err
	}
	args := append([]Value{}, d.stack[k:]...)
	d.stack = d.stack[:k]
	d.push(&Reduce{Callable: &Global{Module: smodule, Name: string(name)}, Args: &Tuple{Items: args}})
	return nil
}

// ---- memo ----

func (d *Decoder) loadGet() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	slot, err := strconv.Atoi(string(line))
	if err != nil {
		return newCodecErrorAt(MemoMiss, d.insn, "GET: invalid slot %q", line)
	}
	v, err := d.memoGet(slot)
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) loadBinGet() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	v, err := d.memoGet(int(b))
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) loadLongBinGet() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	v, err := d.memoGet(int(binary.LittleEndian.Uint32(b[:])))
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) loadPut() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	slot, err := strconv.Atoi(string(line))
	if err != nil {
		return newCodecErrorAt(MemoMiss, d.insn, "PUT: invalid slot %q", line)
	}
	v, err := d.top()
	if err != nil {
		return err
	}
	return d.memoPut(slot, v)
}

func (d *Decoder) loadBinPut() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	v, err := d.top()
	if err != nil {
		return err
	}
	return d.memoPut(int(b), v)
}

func (d *Decoder) loadLongBinPut() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	v, err := d.top()
	if err != nil {
		return err
	}
	return d.memoPut(int(binary.LittleEndian.Uint32(b[:])), v)
}

func (d *Decoder) loadMemoize() error {
	v, err := d.top()
	if err != nil {
		return err
	}
	return d.memoPut(len(d.memo), v)
}

// ---- persistent references ----

func (d *Decoder) loadPersid() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	return d.handlePersistentRef(&PersistentRef{Pid: &Str{V: string(line)}})
}

func (d *Decoder) loadBinPersid() error {
	pid, err := d.pop()
	if err != nil {
		return err
	}
	return d.handlePersistentRef(&PersistentRef{Pid: pid})
}

func (d *Decoder) handlePersistentRef(ref *PersistentRef) error {
	if load := d.config.PersistentLoad; load != nil {
		v, err := load(ref)
		if err != nil {
			return err
		}
		if v == nil {
			v = ref
		}
		d.push(v)
		return nil
	}
	d.push(ref)
	return nil
}

// ---- framing ----

// loadFrame discards the FRAME opcode's 8-byte length: framing is a
// transport-level optimisation (one large read instead of many small
// ones) and carries no semantic content.
func (d *Decoder) loadFrame() error {
	var b [8]byte
	_, err := io.ReadFull(d.r, b[:])
	return err
}
