package pgpickle

import "testing"

func TestBridgeDecodeScalarsAndContainers(t *testing.T) {
	v := &Dict{Entries: []DictEntry{
		{Key: &Str{V: "name"}, Val: &Str{V: "alice"}},
		{Key: &Str{V: "tags"}, Val: &List{Items: []Value{&Int{V: 1}, &Int{V: 2}, &Str{V: "x"}}}},
		{Key: &Str{V: "coords"}, Val: &Tuple{Items: []Value{&Float{V: 1.5}, &Float{V: 2.5}}}},
		{Key: &Str{V: "active"}, Val: &Bool{V: true}},
		{Key: &Str{V: "missing"}, Val: &None{}},
	}}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}

	want, err := ToJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := BridgeDecode(data)
	if err != nil {
		t.Fatal(err)
	}
	gotBack, err := FromJSON(got)
	if err != nil {
		t.Fatal(err)
	}
	wantBack, err := FromJSON(want)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(gotBack, wantBack) {
		t.Fatalf("bridge decode diverged from full decode:\nbridge=%#v\nfull=%#v", got, want)
	}
}

func TestBridgeDecodeFallsBackOnGlobal(t *testing.T) {
	v := &Global{Module: "mymod", Name: "MyClass"}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := BridgeDecode(data)
	if err != nil {
		t.Fatal(err)
	}
	want, err := ToJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	gotBack, _ := FromJSON(got)
	wantBack, _ := FromJSON(want)
	if !Equal(gotBack, wantBack) {
		t.Fatalf("fallback result diverged: %#v vs %#v", got, want)
	}
}

func TestBridgeDecodeFallsBackOnNonStringDictKey(t *testing.T) {
	v := &Dict{Entries: []DictEntry{{Key: &Int{V: 1}, Val: &Str{V: "one"}}}}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := BridgeDecode(data)
	if err != nil {
		t.Fatal(err)
	}
	want, err := ToJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	gotBack, _ := FromJSON(got)
	wantBack, _ := FromJSON(want)
	if !Equal(gotBack, wantBack) {
		t.Fatalf("non-string-key dict should fall back consistently: %#v vs %#v", got, want)
	}
}

func TestBridgeDecodeFallsBackOnPersistentRef(t *testing.T) {
	v := &PersistentRef{Pid: &Str{V: "oid:1"}}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := BridgeDecode(data)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := ToJSON(v)
	gotBack, _ := FromJSON(got)
	wantBack, _ := FromJSON(want)
	if !Equal(gotBack, wantBack) {
		t.Fatalf("persistent ref should fall back: %#v vs %#v", got, want)
	}
}

func TestBridgeDecodeSharedSubtree(t *testing.T) {
	shared := &List{Items: []Value{&Int{V: 1}, &Int{V: 2}}}
	v := &Tuple{Items: []Value{shared, shared}}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := BridgeDecode(data)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.(map[string]interface{})
	items, isArr := m["@t"].([]interface{})
	if !ok || !isArr || len(items) != 2 {
		t.Fatalf("expected 2-item @t array, got %#v", got)
	}
	a, ok1 := items[0].([]interface{})
	b, ok2 := items[1].([]interface{})
	if !ok1 || !ok2 || len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected both shared elements to decode as lists: %#v", got)
	}
}

func TestBridgeDecodeTruncated(t *testing.T) {
	_, err := BridgeDecode([]byte{})
	if err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestBridgeDecodeBigIntOverflowsInt64(t *testing.T) {
	v := &BigInt{Digits: "123456789012345678901234567890"}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := BridgeDecode(data)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := ToJSON(v)
	gotBack, _ := FromJSON(got)
	wantBack, _ := FromJSON(want)
	if !Equal(gotBack, wantBack) {
		t.Fatalf("big int roundtrip mismatch: %#v vs %#v", got, want)
	}
}
