package pgpickle

import "testing"

func TestEqualBasics(t *testing.T) {
	cases := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"none", &None{}, &None{}, true},
		{"bool same", &Bool{V: true}, &Bool{V: true}, true},
		{"bool diff", &Bool{V: true}, &Bool{V: false}, false},
		{"int same", &Int{V: 5}, &Int{V: 5}, true},
		{"int diff", &Int{V: 5}, &Int{V: 6}, false},
		{"int vs float", &Int{V: 5}, &Float{V: 5}, false},
		{"bigint same digits", &BigInt{Digits: "123"}, &BigInt{Digits: "123"}, true},
		{"bigint canonical", &BigInt{Digits: "+123"}, &BigInt{Digits: "123"}, true},
		{"bigint diff magnitude", &BigInt{Digits: "123"}, &BigInt{Digits: "124"}, false},
		{"str same", &Str{V: "x"}, &Str{V: "x"}, true},
		{"bytes same", &Bytes{V: []byte{1, 2}}, &Bytes{V: []byte{1, 2}}, true},
		{"different kinds", &Str{V: "1"}, &Int{V: 1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Equal(c.a, c.b); got != c.equal {
				t.Errorf("Equal(%#v, %#v) = %v, want %v", c.a, c.b, got, c.equal)
			}
		})
	}
}

func TestEqualSetsIgnoreOrder(t *testing.T) {
	a := &Set{Items: []Value{&Int{V: 1}, &Int{V: 2}, &Int{V: 3}}}
	b := &Set{Items: []Value{&Int{V: 3}, &Int{V: 1}, &Int{V: 2}}}
	if !Equal(a, b) {
		t.Fatal("sets with same members in different order should be equal")
	}
	c := &Set{Items: []Value{&Int{V: 1}, &Int{V: 2}}}
	if Equal(a, c) {
		t.Fatal("sets with different sizes should not be equal")
	}
}

func TestEqualDictsIgnoreOrder(t *testing.T) {
	a := &Dict{Entries: []DictEntry{
		{Key: &Str{V: "a"}, Val: &Int{V: 1}},
		{Key: &Str{V: "b"}, Val: &Int{V: 2}},
	}}
	b := &Dict{Entries: []DictEntry{
		{Key: &Str{V: "b"}, Val: &Int{V: 2}},
		{Key: &Str{V: "a"}, Val: &Int{V: 1}},
	}}
	if !Equal(a, b) {
		t.Fatal("dicts with same entries in different order should be equal")
	}
}

func TestEqualSelfReferentialReduce(t *testing.T) {
	a := &Reduce{Callable: &Global{Module: "m", Name: "C"}, Args: &Tuple{}}
	a.State = a
	b := &Reduce{Callable: &Global{Module: "m", Name: "C"}, Args: &Tuple{}}
	b.State = b
	if !Equal(a, b) {
		t.Fatal("structurally identical self-referential reduces should be equal")
	}
}

func TestEqualPointerIdentityShortcut(t *testing.T) {
	shared := &List{Items: []Value{&Int{V: 1}}}
	if !Equal(shared, shared) {
		t.Fatal("a value must equal itself")
	}
}
