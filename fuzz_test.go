package pgpickle

import "testing"

// FuzzDecodeEncode decodes arbitrary bytes, and whenever that succeeds,
// asserts that re-encoding and decoding again reaches the same tree
// (decode(encode(decode(data))) == decode(data)). It doesn't assert
// encode(decode(data)) == data byte-for-byte since Encoder always emits
// its own canonical opcode choices.
func FuzzDecodeEncode(f *testing.F) {
	seed, err := Encode(&Dict{Entries: []DictEntry{
		{Key: &Str{V: "a"}, Val: &List{Items: []Value{&Int{V: 1}, &Str{V: "x"}}}},
	}})
	if err == nil {
		f.Add(seed)
	}
	f.Add([]byte{opProto, 2, opNone, opStop})
	f.Add([]byte{opProto, 2, opMark, opEmptyList, opStop})

	f.Fuzz(func(t *testing.T, data []byte) {
		obj, err := Decode(data)
		if err != nil {
			return
		}

		reencoded, err := Encode(obj)
		if err != nil {
			t.Fatalf("re-encode of a successfully decoded tree failed: %v", err)
		}

		obj2, err := Decode(reencoded)
		if err != nil {
			t.Fatalf("decode of our own re-encoded output failed: %v\npickle: %x", err, reencoded)
		}

		if !Equal(obj, obj2) {
			t.Fatalf("decode -> encode -> decode changed the tree:\nhave: %#v\nwant: %#v", obj2, obj)
		}
	})
}
