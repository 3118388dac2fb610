package pgpickle

import "testing"

func firstOpcodeAfterProto(data []byte) byte {
	// PROTO opcode, version byte, then the first real opcode.
	if len(data) > 2 && data[0] == opProto {
		return data[2]
	}
	if len(data) > 0 {
		return data[0]
	}
	return 0
}

func TestEncodeIntOpcodeTiering(t *testing.T) {
	cases := []struct {
		v    int64
		want byte
	}{
		{0, opBinint1},
		{255, opBinint1},
		{256, opBinint2},
		{65535, opBinint2},
		{65536, opBinint},
		{-1, opBinint},
	}
	for _, c := range cases {
		data, err := Encode(&Int{V: c.v})
		if err != nil {
			t.Fatalf("Encode(%d): %v", c.v, err)
		}
		if got := firstOpcodeAfterProto(data); got != c.want {
			t.Errorf("Encode(%d) opcode = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestEncodeStrOpcodeTiering(t *testing.T) {
	short, err := Encode(&Str{V: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got := firstOpcodeAfterProto(short); got != opShortBinUnicode {
		t.Errorf("short string opcode = %q, want SHORT_BINUNICODE", got)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	data, err := Encode(&Str{V: string(long)})
	if err != nil {
		t.Fatal(err)
	}
	if got := firstOpcodeAfterProto(data); got != opBinunicode {
		t.Errorf("long string opcode = %q, want BINUNICODE", got)
	}
}

func TestEncodeEmptyTupleNoMemo(t *testing.T) {
	// Empty tuple is a singleton in CPython and is never memoized.
	tup := &Tuple{}
	outer := &List{Items: []Value{tup, tup}}
	data, err := Encode(outer)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(outer, got) {
		t.Fatalf("roundtrip mismatch: %#v", got)
	}
}

func TestEncodeDepthLimit(t *testing.T) {
	var v Value = &None{}
	for i := 0; i < 10; i++ {
		v = &List{Items: []Value{v}}
	}
	limits := DefaultLimits()
	limits.MaxDepth = 3
	enc := NewEncoderWithConfig(&EncoderConfig{Limits: limits})
	_, err := enc.Encode(v)
	if err == nil {
		t.Fatal("expected DepthLimit error")
	}
	kind, ok := KindOf(err)
	if !ok || kind != DepthLimit {
		t.Fatalf("expected DepthLimit, got %v", err)
	}
}

func TestEncodePersistentRefHook(t *testing.T) {
	type marker struct{}
	target := &Str{V: "payload"}
	calls := 0
	enc := NewEncoderWithConfig(&EncoderConfig{
		PersistentRef: func(v Value) *PersistentRef {
			calls++
			if v == Value(target) {
				return &PersistentRef{Pid: &Str{V: "oid:1"}}
			}
			return nil
		},
	})
	data, err := enc.Encode(target)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := got.(*PersistentRef)
	if !ok {
		t.Fatalf("expected PersistentRef, got %#v", got)
	}
	if !Equal(ref.Pid, &Str{V: "oid:1"}) {
		t.Fatalf("unexpected pid: %#v", ref.Pid)
	}
	if calls == 0 {
		t.Fatal("PersistentRef hook was never called")
	}
}
