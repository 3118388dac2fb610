package pgpickle

import (
	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Limits bounds the resources a single decode/encode call may consume.
// Every field has a zero-value-safe default (see DefaultLimits); a caller
// only needs to override what they want tightened or loosened.
type Limits struct {
	// MaxMemoEntries caps the number of distinct memo slots a single
	// decode may assign. Exceeding it fails with MemoLimit.
	MaxMemoEntries int `toml:"max_memo_entries"`

	// MaxDepth caps recursion frames during encode. Exceeding it fails
	// with DepthLimit. The JSON mapper (ToJSON/FromJSON) and Walk/ref
	// extraction do not read a configured Limits; they always apply
	// DefaultLimits().MaxDepth.
	MaxDepth int `toml:"max_depth"`

	// MaxBlobBytes caps any single BINUNICODE8/BINBYTES8-declared length,
	// checked against the declaration before allocation. Exceeding it
	// fails with SizeLimit.
	MaxBlobBytes int64 `toml:"max_blob_bytes"`

	// MaxLongTextChars caps how many characters a LONG integer's decimal
	// text form may occupy in an error message; the value itself is never
	// truncated, only its rendering in diagnostics.
	MaxLongTextChars int `toml:"max_long_text_chars"`
}

// DefaultLimits returns conservative bounds suitable for decoding
// untrusted input: memo <= 100_000 entries, recursion <= 1_000 frames, any
// single length-prefixed blob <= 256 MiB, and LONG error-text rendering
// capped at 10_000 characters.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoEntries:   100_000,
		MaxDepth:         1_000,
		MaxBlobBytes:     256 << 20,
		MaxLongTextChars: 10_000,
	}
}

// LoadLimits parses a TOML document (as produced by, e.g., a storage
// adapter's config file) into a Limits, starting from DefaultLimits so
// that a partial document only overrides the fields it mentions.
//
// LoadLimits takes bytes, never a path: pgpickle performs no file I/O.
func LoadLimits(data []byte) (Limits, error) {
	l := DefaultLimits()
	if err := toml.Unmarshal(data, &l); err != nil {
		return Limits{}, errors.Wrap(err, "pgpickle: parsing limits TOML")
	}
	return l, nil
}

// truncateLongText bounds s to at most max characters for inclusion in an
// error message, appending an elision marker when it cuts anything off. A
// LONG opcode's declared length can be up to 2^31-1 bytes, so an invalid or
// adversarial one must never be echoed back in full.
func truncateLongText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
