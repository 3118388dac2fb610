package pgpickle

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorKind enumerates the ways a transcode operation can fail. Every
// failure the codec raises itself is a *CodecError; callers should switch
// on Kind (or use errors.Is with a *CodecError carrying the wanted Kind)
// rather than matching on message text. Errors from outside the codec are
// returned as they come: those of a DecoderConfig.PersistentLoad hook, of
// a caller's io.Reader or io.Writer, and (wrapped) those of LoadLimits'
// TOML parsing.
type ErrorKind int

const (
	// Truncated means the decoder read past the end of the input.
	Truncated ErrorKind = iota + 1
	// UnsupportedOpcode means the opcode byte is not one Decoder implements.
	UnsupportedOpcode
	// BadLength means a length-prefixed field declared a negative length.
	BadLength
	// SizeLimit means a declared length exceeded the configured maximum
	// before any allocation was attempted.
	SizeLimit
	// MemoLimit means the memo grew past its configured entry cap.
	MemoLimit
	// MemoMiss means GET/BINGET/LONG_BINGET referenced an absent slot.
	MemoMiss
	// StackUnderflow means an opcode popped more values than were present.
	StackUnderflow
	// DepthLimit means recursion (tree walk, or encode) exceeded its cap.
	DepthLimit
	// MalformedBTree means a BTree/Bucket/Set/TreeSet pickled shape could
	// not be flattened or reconstructed (e.g. an odd-length item list).
	MalformedBTree
	// InvalidUTF8 means a byte string required to be UTF-8 was not.
	InvalidUTF8
	// InvalidUTF8Key is like InvalidUTF8 but for a dict/map key position.
	InvalidUTF8Key
	// BadMarker means a JSON marker payload was ill-formed for its key.
	BadMarker
)

func (k ErrorKind) String() string {
	switch k {
	case Truncated:
		return "Truncated"
	case UnsupportedOpcode:
		return "UnsupportedOpcode"
	case BadLength:
		return "BadLength"
	case SizeLimit:
		return "SizeLimit"
	case MemoLimit:
		return "MemoLimit"
	case MemoMiss:
		return "MemoMiss"
	case StackUnderflow:
		return "StackUnderflow"
	case DepthLimit:
		return "DepthLimit"
	case MalformedBTree:
		return "MalformedBTree"
	case InvalidUTF8:
		return "InvalidUTF8"
	case InvalidUTF8Key:
		return "InvalidUTF8Key"
	case BadMarker:
		return "BadMarker"
	default:
		return "Unknown"
	}
}

// CodecError is the error type of every failure the codec raises itself
// (see ErrorKind). Pos, when >= 0, is the opcode index (not byte offset) at
// which the error was raised.
type CodecError struct {
	Kind ErrorKind
	Pos  int
	msg  string
	// cause carries a cockroachdb/errors-wrapped stack trace; it is never
	// nil once a CodecError has been constructed through newCodecError, so
	// an embedding shell can log a useful trace without this package
	// performing any I/O of its own.
	cause error
}

func (e *CodecError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("pgpickle: %s at opcode %d: %s", e.Kind, e.Pos, e.msg)
	}
	return fmt.Sprintf("pgpickle: %s: %s", e.Kind, e.msg)
}

// Unwrap exposes the cockroachdb/errors-wrapped cause so errors.Is/As from
// both this package and the standard library work against it.
func (e *CodecError) Unwrap() error { return e.cause }

// Is reports whether target is a *CodecError with the same Kind, so
// embedding shells can do errors.Is(err, &pgpickle.CodecError{Kind: pgpickle.Truncated}).
func (e *CodecError) Is(target error) bool {
	t, ok := target.(*CodecError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// newCodecError builds a CodecError with a stack-carrying cause, with pos
// set to -1 (no associated opcode position).
func newCodecError(kind ErrorKind, format string, args ...interface{}) *CodecError {
	return newCodecErrorAt(kind, -1, format, args...)
}

// newCodecErrorAt is like newCodecError but records the opcode index the
// failure occurred at.
func newCodecErrorAt(kind ErrorKind, pos int, format string, args ...interface{}) *CodecError {
	msg := fmt.Sprintf(format, args...)
	return &CodecError{
		Kind:  kind,
		Pos:   pos,
		msg:   msg,
		cause: errors.WithStack(errors.Newf("%s: %s", kind, msg)),
	}
}

// KindOf extracts the ErrorKind from err if it is a *CodecError (following
// Unwrap chains), and reports ok=false otherwise.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}
