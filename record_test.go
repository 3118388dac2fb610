package pgpickle

import "testing"

func TestZODBRecordPlainClassRoundtrip(t *testing.T) {
	class := &Global{Module: "myapp.models", Name: "Widget"}
	state := &Dict{Entries: []DictEntry{
		{Key: &Str{V: "name"}, Val: &Str{V: "gizmo"}},
		{Key: &Str{V: "count"}, Val: &Int{V: 3}},
	}}
	data, err := EncodeTwoBytes(class, state)
	if err != nil {
		t.Fatalf("EncodeTwoBytes: %v", err)
	}

	tree, err := DecodeZODBRecord(data)
	if err != nil {
		t.Fatalf("DecodeZODBRecord: %v", err)
	}
	m, ok := tree.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %#v", tree)
	}
	cls, ok := m["@cls"].([]interface{})
	if !ok || cls[0] != "myapp.models" || cls[1] != "Widget" {
		t.Fatalf("unexpected @cls: %#v", m)
	}

	back, err := EncodeZODBRecord(tree)
	if err != nil {
		t.Fatalf("EncodeZODBRecord: %v", err)
	}
	gotClass, gotState, err := DecodeTwoBytes(back)
	if err != nil {
		t.Fatalf("DecodeTwoBytes(reencoded): %v", err)
	}
	if !Equal(class, gotClass) {
		t.Fatalf("class mismatch after reencode: %#v", gotClass)
	}
	if !Equal(state, gotState) {
		t.Fatalf("state mismatch after reencode: %#v", gotState)
	}
}

func TestZODBRecordReconstructorWrappedClass(t *testing.T) {
	innerClass := &Global{Module: "myapp.legacy", Name: "OldStyleThing"}
	class := &Reduce{
		Callable: &Global{Module: reconstructorModule, Name: reconstructorName},
		Args: &Tuple{Items: []Value{
			innerClass,
			&Global{Module: "__builtin__", Name: "object"},
			&None{},
		}},
	}
	state := &Dict{Entries: []DictEntry{{Key: &Str{V: "x"}, Val: &Int{V: 7}}}}

	data, err := EncodeTwoBytes(class, state)
	if err != nil {
		t.Fatalf("EncodeTwoBytes: %v", err)
	}
	tree, err := DecodeZODBRecord(data)
	if err != nil {
		t.Fatalf("DecodeZODBRecord: %v", err)
	}
	m := tree.(map[string]interface{})
	cls := m["@cls"].([]interface{})
	if cls[0] != "myapp.legacy" || cls[1] != "OldStyleThing" {
		t.Fatalf("expected inner class name to surface at @cls, got %#v", cls)
	}

	back, err := EncodeZODBRecord(tree)
	if err != nil {
		t.Fatalf("EncodeZODBRecord: %v", err)
	}
	gotClass, gotState, err := DecodeTwoBytes(back)
	if err != nil {
		t.Fatalf("DecodeTwoBytes(reencoded): %v", err)
	}
	if !Equal(class, gotClass) {
		t.Fatalf("class mismatch after reencode:\n in=%#v\nout=%#v", class, gotClass)
	}
	if !Equal(state, gotState) {
		t.Fatalf("state mismatch after reencode: %#v", gotState)
	}
}

func TestZODBRecordWithRefsAndSanitization(t *testing.T) {
	ref := &PersistentRef{Pid: &Str{V: "0x01"}}
	state := &Dict{Entries: []DictEntry{
		{Key: &Str{V: "link"}, Val: ref},
		{Key: &Str{V: "label"}, Val: &Str{V: "bad\x00label"}},
	}}
	class := &Global{Module: "myapp", Name: "Link"}
	data, err := EncodeTwoBytes(class, state)
	if err != nil {
		t.Fatal(err)
	}

	tree, refs, err := DecodeZODBRecordWithRefs(data, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || !Equal(refs[0], ref.Pid) {
		t.Fatalf("unexpected refs: %#v", refs)
	}
	m := tree.(map[string]interface{})
	s := m["@s"].(map[string]interface{})
	if s["label"] != "bad�label" {
		t.Fatalf("NUL byte was not sanitized: %#v", s["label"])
	}
}

func TestPickleToValueAndBack(t *testing.T) {
	v := &List{Items: []Value{&Int{V: 1}, &Str{V: "x"}}}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	tree, err := PickleToValue(data)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ValueToPickle(tree)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(back)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(v, got) {
		t.Fatalf("roundtrip mismatch: %#v", got)
	}
}

func TestPickleToJSONTextAndBack(t *testing.T) {
	v := &Dict{Entries: []DictEntry{{Key: &Str{V: "a"}, Val: &Int{V: 1}}}}
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	text, err := PickleToJSONText(data)
	if err != nil {
		t.Fatal(err)
	}
	back, err := JSONTextToPickle(text)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(back)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(v, got) {
		t.Fatalf("roundtrip mismatch: %#v", got)
	}
}

func TestEncodeZODBRecordMissingCls(t *testing.T) {
	_, err := EncodeZODBRecord(map[string]interface{}{"@s": map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected error for missing @cls")
	}
}
