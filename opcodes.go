package pgpickle

// Opcodes understood by Decoder/Encoder. Byte values are fixed by the
// pickle wire format itself (see CPython's pickle.py).
const (
	// Protocol 0-1

	opMark           byte = '(' // push markobject on the stack
	opStop           byte = '.' // every pickle ends with STOP
	opPop            byte = '0' // discard topmost stack item
	opPopMark        byte = '1' // discard stack top through topmost markobject
	opDup            byte = '2' // duplicate top stack item
	opBinint         byte = 'J' // push four-byte signed int
	opBinint1        byte = 'K' // push 1-byte unsigned int
	opLong           byte = 'L' // push long; decimal string argument with trailing 'L' (see loadLong)
	opBinint2        byte = 'M' // push 2-byte unsigned int
	opNone           byte = 'N' // push None
	opPersid         byte = 'P' // push persistent object; id taken from string arg
	opBinpersid      byte = 'Q' //  "        "         "  ;  "    "   "     "  stack
	opReduce         byte = 'R' // apply callable to argtuple, both on stack
	opBinstring      byte = 'T' // push string; counted binary string argument
	opShortBinstring byte = 'U' //   "     "  ;    "      "       "      " < 256 bytes
	opBinunicode     byte = 'X' // push Unicode string; counted UTF-8 string argument
	opAppend         byte = 'a' // append stack top to list below it
	opBuild          byte = 'b' // call __setstate__ or __dict__.update()
	opGlobal         byte = 'c' // push Global(modname, name); 2 newline-terminated string args
	opAppends        byte = 'e' // extend list on stack by topmost stack slice
	opGet            byte = 'g' // push item from memo on stack; index is string arg
	opBinget         byte = 'h' //  "    "    "    "   "   "  ;   "    " 1-byte arg
	opInst           byte = 'i' // build & push class instance (pre-2 combination of MARK+args+klass+REDUCE)
	opLongBinget     byte = 'j' //  "    "    "    "   "   "  ;   "    " 4-byte arg
	opEmptyList      byte = ']' // push empty list
	opObj            byte = 'o' // build & push class instance (stack-based variant of INST)
	opPut            byte = 'p' // store stack top in memo; index is string arg
	opBinput         byte = 'q' //   "     "    "   "   " ;   "    " 1-byte arg
	opLongBinput     byte = 'r' //   "     "    "   "   " ;   "    " 4-byte arg
	opSetitem        byte = 's' // add key+value pair to dict
	opTuple          byte = 't' // build tuple from topmost stack items (mark-delimited)
	opEmptyTuple     byte = ')' // push empty tuple
	opEmptyDict      byte = '}' // push empty dict
	opSetitems       byte = 'u' // modify dict by adding topmost key+value pairs
	opBinfloat       byte = 'G' // push float; arg is 8-byte big-endian float encoding

	// Protocol 2

	opProto    byte = '\x80' // identify pickle protocol; 1-byte arg
	opTuple1   byte = '\x85' // build 1-tuple from stack top
	opTuple2   byte = '\x86' // build 2-tuple from two topmost stack items
	opTuple3   byte = '\x87' // build 3-tuple from three topmost stack items
	opNewtrue  byte = '\x88' // push True
	opNewfalse byte = '\x89' // push False
	opLong1    byte = '\x8a' // push long from < 256 bytes
	opLong4    byte = '\x8b' // push really big long; 4-byte length prefix

	// Protocol 3 (Python 3.x bytes support)

	opBinbytes      byte = 'B' // push bytes; 4-byte length prefix
	opShortBinbytes byte = 'C' // push bytes; 1-byte length prefix, < 256 bytes

	// Protocol 4

	opShortBinUnicode byte = '\x8c' // push short string; 1-byte length prefix, UTF-8 length < 256 bytes
	opBinunicode8     byte = '\x8d' // push Unicode string; 8-byte length prefix
	opBinbytes8       byte = '\x8e' // push bytes; 8-byte length prefix
	opEmptySet        byte = '\x8f' // push empty set
	opAdditems        byte = '\x90' // modify set by adding topmost stack slice
	opFrozenset       byte = '\x91' // build frozenset from topmost stack items (mark-delimited)
	opStackGlobal     byte = '\x93' // same as GLOBAL but module/name taken from the stack
	opMemoize         byte = '\x94' // store top of the stack in memo at the next free slot
	opFrame           byte = '\x95' // begin a new framing unit; 8-byte frame length, skipped transparently
)

// opName renders an opcode byte for diagnostics and error messages.
func opName(op byte) string {
	switch op {
	case opMark:
		return "MARK"
	case opStop:
		return "STOP"
	case opPop:
		return "POP"
	case opPopMark:
		return "POP_MARK"
	case opDup:
		return "DUP"
	case opBinint:
		return "BININT"
	case opBinint1:
		return "BININT1"
	case opLong:
		return "LONG"
	case opBinint2:
		return "BININT2"
	case opNone:
		return "NONE"
	case opPersid:
		return "PERSID"
	case opBinpersid:
		return "BINPERSID"
	case opReduce:
		return "REDUCE"
	case opBinstring:
		return "BINSTRING"
	case opShortBinstring:
		return "SHORT_BINSTRING"
	case opBinunicode:
		return "BINUNICODE"
	case opAppend:
		return "APPEND"
	case opBuild:
		return "BUILD"
	case opGlobal:
		return "GLOBAL"
	case opAppends:
		return "APPENDS"
	case opGet:
		return "GET"
	case opBinget:
		return "BINGET"
	case opInst:
		return "INST"
	case opLongBinget:
		return "LONG_BINGET"
	case opEmptyList:
		return "EMPTY_LIST"
	case opObj:
		return "OBJ"
	case opPut:
		return "PUT"
	case opBinput:
		return "BINPUT"
	case opLongBinput:
		return "LONG_BINPUT"
	case opSetitem:
		return "SETITEM"
	case opTuple:
		return "TUPLE"
	case opEmptyTuple:
		return "EMPTY_TUPLE"
	case opEmptyDict:
		return "EMPTY_DICT"
	case opSetitems:
		return "SETITEMS"
	case opBinfloat:
		return "BINFLOAT"
	case opProto:
		return "PROTO"
	case opTuple1:
		return "TUPLE1"
	case opTuple2:
		return "TUPLE2"
	case opTuple3:
		return "TUPLE3"
	case opNewtrue:
		return "NEWTRUE"
	case opNewfalse:
		return "NEWFALSE"
	case opLong1:
		return "LONG1"
	case opLong4:
		return "LONG4"
	case opBinbytes:
		return "BINBYTES"
	case opShortBinbytes:
		return "SHORT_BINBYTES"
	case opShortBinUnicode:
		return "SHORT_BINUNICODE"
	case opBinunicode8:
		return "BINUNICODE8"
	case opBinbytes8:
		return "BINBYTES8"
	case opEmptySet:
		return "EMPTY_SET"
	case opAdditems:
		return "ADDITEMS"
	case opFrozenset:
		return "FROZENSET"
	case opStackGlobal:
		return "STACK_GLOBAL"
	case opMemoize:
		return "MEMOIZE"
	case opFrame:
		return "FRAME"
	default:
		return "?"
	}
}
