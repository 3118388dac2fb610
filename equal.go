package pgpickle

import "math/big"

// Equal reports whether a and b are structurally identical pickle trees:
// same node kind at every position, same scalar values. List and Tuple
// children must match in the same order (position is significant for
// sequences); Set, FrozenSet, and Dict members are compared as unordered
// collections, since pickle's own member order for these is hash-dependent
// and not something an encoder reconstructs. Equal does not implement
// Python's cross-type numeric equality (1 == 1.0 == True) for dict keys —
// round-trip fidelity only needs to tell "the same tree" from "a different
// tree", not emulate a Python comparison operator.
//
// Equal treats two nodes reached via different memo paths but pointing at
// the same underlying pointer as trivially equal without recursing, both
// as a cheap shortcut and to stay correct in the presence of shared
// substructure or a BUILD-induced self-reference.
func Equal(a, b Value) bool {
	return equalDepth(a, b, make(map[[2]Value]bool), 0)
}

func equalDepth(a, b Value, inProgress map[[2]Value]bool, depth int) bool {
	if depth > DefaultLimits().MaxDepth {
		return false
	}
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	key := [2]Value{a, b}
	if inProgress[key] {
		// Already comparing this exact pair further up the call stack:
		// assume equal and let the outer frames decide (breaks cycles).
		return true
	}
	inProgress[key] = true
	defer delete(inProgress, key)

	switch av := a.(type) {
	case *None:
		_, ok := b.(*None)
		return ok
	case *Bool:
		bv, ok := b.(*Bool)
		return ok && av.V == bv.V
	case *Int:
		bv, ok := b.(*Int)
		return ok && av.V == bv.V
	case *BigInt:
		bv, ok := b.(*BigInt)
		if !ok {
			return false
		}
		return bigIntEqual(av.Digits, bv.Digits)
	case *Float:
		bv, ok := b.(*Float)
		return ok && av.V == bv.V
	case *Str:
		bv, ok := b.(*Str)
		return ok && av.V == bv.V
	case *Bytes:
		bv, ok := b.(*Bytes)
		return ok && bytesEqual(av.V, bv.V)
	case *List:
		bv, ok := b.(*List)
		return ok && equalSlice(av.Items, bv.Items, inProgress, depth)
	case *Tuple:
		bv, ok := b.(*Tuple)
		return ok && equalSlice(av.Items, bv.Items, inProgress, depth)
	case *Set:
		bv, ok := b.(*Set)
		return ok && equalUnordered(av.Items, bv.Items, inProgress, depth)
	case *FrozenSet:
		bv, ok := b.(*FrozenSet)
		return ok && equalUnordered(av.Items, bv.Items, inProgress, depth)
	case *Dict:
		bv, ok := b.(*Dict)
		return ok && equalEntries(av.Entries, bv.Entries, inProgress, depth)
	case *Global:
		bv, ok := b.(*Global)
		return ok && av.Module == bv.Module && av.Name == bv.Name
	case *Reduce:
		bv, ok := b.(*Reduce)
		if !ok {
			return false
		}
		if !equalDepth(av.Callable, bv.Callable, inProgress, depth+1) {
			return false
		}
		if !equalDepth(av.Args, bv.Args, inProgress, depth+1) {
			return false
		}
		if (av.State == nil) != (bv.State == nil) {
			return false
		}
		if av.State != nil && !equalDepth(av.State, bv.State, inProgress, depth+1) {
			return false
		}
		if !equalSlice(av.ListItems, bv.ListItems, inProgress, depth) {
			return false
		}
		return equalEntries(av.DictItems, bv.DictItems, inProgress, depth)
	case *PersistentRef:
		bv, ok := b.(*PersistentRef)
		return ok && equalDepth(av.Pid, bv.Pid, inProgress, depth+1)
	default:
		return false
	}
}

func equalSlice(a, b []Value, inProgress map[[2]Value]bool, depth int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalDepth(a[i], b[i], inProgress, depth+1) {
			return false
		}
	}
	return true
}

// equalUnordered compares two set-like item lists ignoring order. Pickle
// always emits set members in a fixed (hash) order, but that order is
// Python-runtime-dependent and not something an encoder reconstructs, so
// round-trip equality for Set/FrozenSet must not depend on it.
func equalUnordered(a, b []Value, inProgress map[[2]Value]bool, depth int) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for j, bv := range b {
			if used[j] {
				continue
			}
			if equalDepth(av, bv, inProgress, depth+1) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equalEntries(a, b []DictEntry, inProgress map[[2]Value]bool, depth int) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, ae := range a {
		found := false
		for j, be := range b {
			if used[j] {
				continue
			}
			if equalDepth(ae.Key, be.Key, inProgress, depth+1) && equalDepth(ae.Val, be.Val, inProgress, depth+1) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bigIntEqual(a, b string) bool {
	if a == b {
		return true
	}
	ai, ok1 := new(big.Int).SetString(a, 10)
	bi, ok2 := new(big.Int).SetString(b, 10)
	return ok1 && ok2 && ai.Cmp(bi) == 0
}
