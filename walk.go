package pgpickle

// Walk visits every node reachable from root exactly once in pre-order,
// calling visit on each. Nodes already visited (detected by pointer
// identity, the same mechanism the decoder's memo uses) are skipped rather
// than re-descended, so a pickle whose memo makes the logical tree a DAG —
// or, with a self-referential BUILD, an outright cycle — still terminates.
//
// Walk stops and returns visit's error the first time visit returns one.
func Walk(root Value, visit func(Value) error) error {
	seen := make(map[Value]bool)
	return walk(root, seen, visit, 0, DefaultLimits().MaxDepth)
}

// WalkDepth is like Walk but fails with DepthLimit once recursion exceeds
// maxDepth, the same bound the encoder enforces via Limits.MaxDepth.
func WalkDepth(root Value, maxDepth int, visit func(Value) error) error {
	seen := make(map[Value]bool)
	return walk(root, seen, visit, 0, maxDepth)
}

func walk(v Value, seen map[Value]bool, visit func(Value) error, depth, maxDepth int) error {
	if v == nil {
		return nil
	}
	if depth > maxDepth {
		return newCodecError(DepthLimit, "tree walk exceeded depth %d", maxDepth)
	}
	if seen[v] {
		return nil
	}
	seen[v] = true

	if err := visit(v); err != nil {
		return err
	}

	switch t := v.(type) {
	case *List:
		for _, it := range t.Items {
			if err := walk(it, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case *Tuple:
		for _, it := range t.Items {
			if err := walk(it, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case *Set:
		for _, it := range t.Items {
			if err := walk(it, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case *FrozenSet:
		for _, it := range t.Items {
			if err := walk(it, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case *Dict:
		for _, e := range t.Entries {
			if err := walk(e.Key, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
			if err := walk(e.Val, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case *Reduce:
		if err := walk(t.Callable, seen, visit, depth+1, maxDepth); err != nil {
			return err
		}
		if t.Args != nil {
			if err := walk(t.Args, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
		if t.State != nil {
			if err := walk(t.State, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
		for _, it := range t.ListItems {
			if err := walk(it, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
		for _, e := range t.DictItems {
			if err := walk(e.Key, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
			if err := walk(e.Val, seen, visit, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case *PersistentRef:
		if err := walk(t.Pid, seen, visit, depth+1, maxDepth); err != nil {
			return err
		}
	}
	return nil
}

// ExtractRefs collects the Pid of every PersistentRef reachable from root,
// in encounter order. This is how the ZODB record layer (record.go) finds
// the OIDs a state pickle points at for a storage adapter's foreign-key
// bookkeeping.
func ExtractRefs(root Value) ([]Value, error) {
	var refs []Value
	err := Walk(root, func(v Value) error {
		if ref, ok := v.(*PersistentRef); ok {
			refs = append(refs, ref.Pid)
		}
		return nil
	})
	return refs, err
}
