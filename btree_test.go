package pgpickle

import "testing"

func TestBTreeBucketRoundtrip(t *testing.T) {
	// BTrees.OOBTree.OOBucket state: ((k1,v1,k2,v2), nextBucket)
	r := &Reduce{
		Callable: &Global{Module: "BTrees.OOBTree", Name: "OOBucket"},
		Args:     &Tuple{},
	}
	r.State = &Tuple{Items: []Value{
		&Tuple{Items: []Value{&Str{V: "a"}, &Int{V: 1}, &Str{V: "b"}, &Int{V: 2}}},
	}}

	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := j.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %#v", j)
	}
	cls, ok := m["@cls"].([]interface{})
	if !ok || cls[0] != "BTrees.OOBTree" || cls[1] != "OOBucket" {
		t.Fatalf("unexpected @cls: %#v", m)
	}
	s, ok := m["@s"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected @s object, got %#v", m["@s"])
	}
	kv, ok := s["@kv"].([]interface{})
	if !ok || len(kv) != 2 {
		t.Fatalf("unexpected @kv: %#v", s)
	}

	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch:\n in=%#v\nout=%#v", r, back)
	}
}

func TestBTreeSetRoundtrip(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "BTrees.IFBTree", Name: "IFTreeSet"},
		Args:     &Tuple{},
	}
	r.State = &Tuple{Items: []Value{
		&Tuple{Items: []Value{&Int{V: 1}, &Int{V: 2}, &Int{V: 3}}},
	}}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestBTreeInternalNodeRoundtrip(t *testing.T) {
	leaf1 := &Reduce{
		Callable: &Global{Module: "BTrees.OOBTree", Name: "OOBucket"},
		Args:     &Tuple{},
	}
	leaf1.State = &Tuple{Items: []Value{&Tuple{Items: []Value{&Str{V: "a"}, &Int{V: 1}}}}}
	leaf2 := &Reduce{
		Callable: &Global{Module: "BTrees.OOBTree", Name: "OOBucket"},
		Args:     &Tuple{},
	}
	leaf2.State = &Tuple{Items: []Value{&Tuple{Items: []Value{&Str{V: "z"}, &Int{V: 2}}}}}

	root := &Reduce{
		Callable: &Global{Module: "BTrees.OOBTree", Name: "OOBTree"},
		Args:     &Tuple{},
	}
	root.State = &Tuple{Items: []Value{
		&Tuple{Items: []Value{leaf1, &Str{V: "m"}, leaf2}},
		leaf1,
	}}

	j, err := ToJSON(root)
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(root, back) {
		t.Fatalf("roundtrip mismatch:\n in=%#v\nout=%#v", root, back)
	}
}

func TestBTreeLengthRoundtrip(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "BTrees.Length", Name: "Length"},
		Args:     &Tuple{},
	}
	r.State = &Int{V: 42}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	if m["@s"] != int64(42) {
		t.Fatalf("unexpected @s for Length: %#v", m["@s"])
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestDetectBTreeShapeRejectsUnknown(t *testing.T) {
	if _, ok := detectBTreeShape(&Global{Module: "BTrees.OOBTree", Name: "Weird"}); ok {
		t.Fatal("unrecognized class name should not match")
	}
	if _, ok := detectBTreeShape(&Global{Module: "not.BTrees", Name: "OOBTree"}); ok {
		t.Fatal("unrecognized module should not match")
	}
}

func TestMalformedBTreeState(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "BTrees.OOBTree", Name: "OOBucket"},
		Args:     &Tuple{},
	}
	// Odd-length flat item tuple: malformed for a map-kind leaf.
	r.State = &Tuple{Items: []Value{
		&Tuple{Items: []Value{&Str{V: "a"}, &Int{V: 1}, &Str{V: "b"}}},
	}}
	_, err := ToJSON(r)
	if err == nil {
		t.Fatal("expected MalformedBTree error")
	}
	kind, ok := KindOf(err)
	if !ok || kind != MalformedBTree {
		t.Fatalf("expected MalformedBTree, got %v", err)
	}
}
