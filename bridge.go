package pgpickle

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math"
	"strings"
)

// This file implements a direct host-value bridge: a second decode path
// that, for the common case, produces Go native values
// (map[string]interface{}, []interface{}, string, int64, float64, ...)
// directly off the wire instead of building a Value tree first. It is
// observationally equivalent to Decode followed by ToJSON: whenever the
// fast path meets an opcode it does not special-case (GLOBAL, REDUCE,
// BUILD, OBJ, INST, PERSID/BINPERSID, markers requiring the full Value
// model), it abandons the fast decode and falls back to the real one, so
// correctness never depends on the fast path's coverage.
var errBridgeFallback = newCodecError(UnsupportedOpcode, "bridge: opcode needs the full decoder")

// BridgeDecode decodes a single pickle straight into Go native values,
// skipping PickleValue construction for inputs made only of opcodes the
// fast path understands (scalars, lists, tuples, dicts). Anything else is
// decoded normally and converted via ToJSON, so the result shape always
// matches PickleToValue.
func BridgeDecode(data []byte) (interface{}, error) {
	v, err := (&bridgeDecoder{r: bufio.NewReader(bytesReader(data))}).decode()
	if err == nil {
		return v, nil
	}
	if !isBridgeFallback(err) {
		return nil, err
	}
	full, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return ToJSON(full)
}

func isBridgeFallback(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == UnsupportedOpcode && err == errBridgeFallback
}

type bridgeDecoder struct {
	r         *bufio.Reader
	stack     []interface{}
	markStack []int
	memo      map[int]interface{}
	insn      int
}

func (d *bridgeDecoder) decode() (interface{}, error) {
	d.memo = make(map[int]interface{})
	for {
		op, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, newCodecError(Truncated, "bridge: unexpected EOF before STOP")
			}
			return nil, err
		}
		d.insn++

		switch op {
		case opProto:
			if _, err := d.r.ReadByte(); err != nil {
				return nil, newCodecError(Truncated, "bridge: truncated PROTO")
			}
		case opFrame:
			if _, err := d.readN(8); err != nil {
				return nil, err
			}
		case opStop:
			return d.pop()
		case opNone:
			d.push(nil)
		case opNewtrue:
			d.push(true)
		case opNewfalse:
			d.push(false)
		case opMark:
			d.markStack = append(d.markStack, len(d.stack))
		case opPopMark:
			mark, err := d.popMarkPos()
			if err != nil {
				return nil, err
			}
			d.stack = d.stack[:mark]
		case opBinint:
			b, err := d.readN(4)
			if err != nil {
				return nil, err
			}
			d.push(int64(int32(binary.LittleEndian.Uint32(b))))
		case opBinint1:
			b, err := d.readN(1)
			if err != nil {
				return nil, err
			}
			d.push(int64(b[0]))
		case opBinint2:
			b, err := d.readN(2)
			if err != nil {
				return nil, err
			}
			d.push(int64(binary.LittleEndian.Uint16(b)))
		case opLong1, opLong4:
			n := int64(1)
			if op == opLong4 {
				b, err := d.readN(4)
				if err != nil {
					return nil, err
				}
				n = int64(int32(binary.LittleEndian.Uint32(b)))
				if n < 0 {
					return nil, newCodecError(BadLength, "bridge: negative LONG4 length")
				}
			} else {
				b, err := d.readN(1)
				if err != nil {
					return nil, err
				}
				n = int64(b[0])
			}
			raw, err := d.readN(int(n))
			if err != nil {
				return nil, err
			}
			bi := decodeTwosComplementLE(raw)
			if !bi.IsInt64() || bi.Int64() <= -safeIntBound || bi.Int64() >= safeIntBound {
				// ToJSON renders these as an "@bi" marker.
				return nil, errBridgeFallback
			}
			d.push(bi.Int64())
		case opBinfloat:
			b, err := d.readN(8)
			if err != nil {
				return nil, err
			}
			d.push(math.Float64frombits(binary.BigEndian.Uint64(b)))
		case opShortBinUnicode:
			s, err := d.readCountedString(1)
			if err != nil {
				return nil, err
			}
			d.push(s)
		case opBinunicode:
			s, err := d.readCountedString(4)
			if err != nil {
				return nil, err
			}
			d.push(s)
		case opBinunicode8:
			s, err := d.readCountedString(8)
			if err != nil {
				return nil, err
			}
			d.push(s)
		case opShortBinbytes:
			b, err := d.readCountedBytes(1)
			if err != nil {
				return nil, err
			}
			d.push(map[string]interface{}{"@b": base64.StdEncoding.EncodeToString(b)})
		case opBinbytes:
			b, err := d.readCountedBytes(4)
			if err != nil {
				return nil, err
			}
			d.push(map[string]interface{}{"@b": base64.StdEncoding.EncodeToString(b)})
		case opBinbytes8:
			b, err := d.readCountedBytes(8)
			if err != nil {
				return nil, err
			}
			d.push(map[string]interface{}{"@b": base64.StdEncoding.EncodeToString(b)})
		case opEmptyList:
			d.push([]interface{}{})
		case opEmptyTuple:
			d.push(map[string]interface{}{"@t": []interface{}{}})
		case opEmptyDict:
			d.push(map[string]interface{}{})
		case opTuple1:
			if err := d.tupleN(1); err != nil {
				return nil, err
			}
		case opTuple2:
			if err := d.tupleN(2); err != nil {
				return nil, err
			}
		case opTuple3:
			if err := d.tupleN(3); err != nil {
				return nil, err
			}
		case opTuple:
			mark, err := d.popMarkPos()
			if err != nil {
				return nil, err
			}
			items := append([]interface{}{}, d.stack[mark:]...)
			d.stack = d.stack[:mark]
			d.push(map[string]interface{}{"@t": items})
		case opAppend:
			v, err := d.pop()
			if err != nil {
				return nil, err
			}
			if err := d.appendTop(v); err != nil {
				return nil, err
			}
		case opAppends:
			mark, err := d.popMarkPos()
			if err != nil {
				return nil, err
			}
			items := d.stack[mark:]
			d.stack = d.stack[:mark]
			for _, it := range items {
				if err := d.appendTop(it); err != nil {
					return nil, err
				}
			}
		case opSetitem:
			v, err := d.pop()
			if err != nil {
				return nil, err
			}
			k, err := d.pop()
			if err != nil {
				return nil, err
			}
			if err := d.setitemTop(k, v); err != nil {
				return nil, err
			}
		case opSetitems:
			mark, err := d.popMarkPos()
			if err != nil {
				return nil, err
			}
			pairs := d.stack[mark:]
			d.stack = d.stack[:mark]
			if len(pairs)%2 != 0 {
				return nil, newCodecError(BadMarker, "bridge: odd SETITEMS pair count")
			}
			for i := 0; i < len(pairs); i += 2 {
				if err := d.setitemTop(pairs[i], pairs[i+1]); err != nil {
					return nil, err
				}
			}
		case opDup:
			if len(d.stack) == 0 {
				return nil, newCodecError(StackUnderflow, "bridge: DUP on empty stack")
			}
			d.push(d.stack[len(d.stack)-1])
		case opPop:
			if _, err := d.pop(); err != nil {
				return nil, err
			}
		case opBinput:
			b, err := d.readN(1)
			if err != nil {
				return nil, err
			}
			d.memoPut(int(b[0]))
		case opLongBinput:
			b, err := d.readN(4)
			if err != nil {
				return nil, err
			}
			d.memoPut(int(binary.LittleEndian.Uint32(b)))
		case opMemoize:
			d.memoPut(len(d.memo))
		case opBinget:
			b, err := d.readN(1)
			if err != nil {
				return nil, err
			}
			if err := d.memoGet(int(b[0])); err != nil {
				return nil, err
			}
		case opLongBinget:
			b, err := d.readN(4)
			if err != nil {
				return nil, err
			}
			if err := d.memoGet(int(binary.LittleEndian.Uint32(b))); err != nil {
				return nil, err
			}
		default:
			return nil, errBridgeFallback
		}
	}
}

func (d *bridgeDecoder) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, newCodecErrorAt(Truncated, d.insn, "bridge: truncated read of %d bytes", n)
	}
	return buf, nil
}

func (d *bridgeDecoder) readCountedString(lenBytes int) (string, error) {
	b, err := d.readCountedBytes(lenBytes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *bridgeDecoder) readCountedBytes(lenBytes int) ([]byte, error) {
	lb, err := d.readN(lenBytes)
	if err != nil {
		return nil, err
	}
	var n int64
	switch lenBytes {
	case 1:
		n = int64(lb[0])
	case 4:
		n = int64(int32(binary.LittleEndian.Uint32(lb)))
	case 8:
		n = int64(binary.LittleEndian.Uint64(lb))
	}
	if n < 0 {
		return nil, newCodecError(BadLength, "bridge: negative string/bytes length")
	}
	return d.readN(int(n))
}

func (d *bridgeDecoder) push(v interface{}) { d.stack = append(d.stack, v) }

func (d *bridgeDecoder) pop() (interface{}, error) {
	if len(d.stack) == 0 {
		return nil, newCodecError(StackUnderflow, "bridge: pop on empty stack")
	}
	v := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return v, nil
}

func (d *bridgeDecoder) popMarkPos() (int, error) {
	if len(d.markStack) == 0 {
		return 0, newCodecError(BadMarker, "bridge: mark stack empty")
	}
	mark := d.markStack[len(d.markStack)-1]
	d.markStack = d.markStack[:len(d.markStack)-1]
	if mark > len(d.stack) {
		return 0, newCodecError(BadMarker, "bridge: corrupt mark")
	}
	return mark, nil
}

func (d *bridgeDecoder) tupleN(n int) error {
	if len(d.stack) < n {
		return newCodecError(StackUnderflow, "bridge: tuple needs %d items", n)
	}
	items := append([]interface{}{}, d.stack[len(d.stack)-n:]...)
	d.stack = d.stack[:len(d.stack)-n]
	d.push(map[string]interface{}{"@t": items})
	return nil
}

func (d *bridgeDecoder) appendTop(v interface{}) error {
	if len(d.stack) == 0 {
		return newCodecError(StackUnderflow, "bridge: APPEND on empty stack")
	}
	top := d.stack[len(d.stack)-1]
	list, ok := top.([]interface{})
	if !ok {
		return errBridgeFallback
	}
	d.stack[len(d.stack)-1] = append(list, v)
	return nil
}

func (d *bridgeDecoder) setitemTop(k, v interface{}) error {
	if len(d.stack) == 0 {
		return newCodecError(StackUnderflow, "bridge: SETITEM on empty stack")
	}
	top := d.stack[len(d.stack)-1]
	m, ok := top.(map[string]interface{})
	if !ok {
		return errBridgeFallback
	}
	ks, ok := k.(string)
	if !ok || strings.HasPrefix(ks, "@") {
		// Non-string keys, and string keys that would read as markers,
		// can't round-trip through a plain JSON object; the full
		// JSON-marker path (@d pairs) is required.
		return errBridgeFallback
	}
	m[ks] = v
	return nil
}

func (d *bridgeDecoder) memoPut(slot int) {
	if len(d.stack) == 0 {
		return
	}
	d.memo[slot] = d.stack[len(d.stack)-1]
}

func (d *bridgeDecoder) memoGet(slot int) error {
	v, ok := d.memo[slot]
	if !ok {
		return newCodecError(MemoMiss, "bridge: memo slot %d not set", slot)
	}
	if _, isList := v.([]interface{}); isList {
		// The memo holds the list slice as it was at PUT time; items
		// appended to the list since then are not visible through it.
		return errBridgeFallback
	}
	d.push(v)
	return nil
}
