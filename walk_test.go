package pgpickle

import "testing"

func TestWalkVisitsEveryNode(t *testing.T) {
	leaf := &Int{V: 1}
	tree := &Dict{Entries: []DictEntry{
		{Key: &Str{V: "k"}, Val: &List{Items: []Value{leaf, &Str{V: "v"}}}},
	}}
	count := 0
	err := Walk(tree, func(v Value) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// dict, key str, list, int, str = 5
	if count != 5 {
		t.Fatalf("visited %d nodes, want 5", count)
	}
}

func TestWalkHandlesSharedAndCyclicNodes(t *testing.T) {
	shared := &List{Items: []Value{&Int{V: 1}}}
	outer := &Tuple{Items: []Value{shared, shared}}

	visited := map[Value]int{}
	err := Walk(outer, func(v Value) error {
		visited[v]++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if visited[shared] != 1 {
		t.Fatalf("shared node visited %d times, want 1", visited[shared])
	}

	// A Reduce whose State points back at itself (as loadBuild produces
	// in-place) must not loop forever.
	self := &Reduce{Callable: &Global{Module: "m", Name: "C"}, Args: &Tuple{}}
	self.State = self
	done := make(chan error, 1)
	go func() { done <- Walk(self, func(Value) error { return nil }) }()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestExtractRefs(t *testing.T) {
	ref1 := &PersistentRef{Pid: &Str{V: "oid:1"}}
	ref2 := &PersistentRef{Pid: &Str{V: "oid:2"}}
	tree := &List{Items: []Value{ref1, &Dict{Entries: []DictEntry{{Key: &Str{V: "k"}, Val: ref2}}}}}

	refs, err := ExtractRefs(tree)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if !Equal(refs[0], ref1.Pid) || !Equal(refs[1], ref2.Pid) {
		t.Fatalf("unexpected refs: %#v", refs)
	}
}

func TestWalkDepthLimit(t *testing.T) {
	var v Value = &Int{V: 0}
	for i := 0; i < 10; i++ {
		v = &List{Items: []Value{v}}
	}
	err := WalkDepth(v, 3, func(Value) error { return nil })
	if err == nil {
		t.Fatal("expected depth limit error")
	}
}
