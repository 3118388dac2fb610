package pgpickle

import "strings"

// btreePrefixes and btreeKinds enumerate the BTrees family ZODB ships:
// module "BTrees.{PREFIX}BTree", class name "{PREFIX}{Kind}", one pair per
// key/value type combination (Object, Int, Long, Float, unsigned Q) plus the
// filesystem-storage-specific "fs" prefix.
var btreePrefixes = []string{"OO", "IO", "OI", "II", "LO", "OL", "LL", "LF", "IF", "QQ", "fs"}

const (
	btreeKindBTree   = "BTree"
	btreeKindBucket  = "Bucket"
	btreeKindTreeSet = "TreeSet"
	btreeKindSet     = "Set"
)

// btreeShape describes a recognized BTrees class reference.
type btreeShape struct {
	prefix string
	kind   string // one of the btreeKind* constants, or "Length"
}

// detectBTreeShape matches g against the BTrees.{PREFIX}BTree.{PREFIX}{Kind}
// pattern, or the standalone BTrees.Length.Length class.
func detectBTreeShape(g *Global) (btreeShape, bool) {
	if g.Module == "BTrees.Length" && g.Name == "Length" {
		return btreeShape{kind: "Length"}, true
	}
	for _, prefix := range btreePrefixes {
		if g.Module != "BTrees."+prefix+"BTree" {
			continue
		}
		if !strings.HasPrefix(g.Name, prefix) {
			continue
		}
		kind := strings.TrimPrefix(g.Name, prefix)
		switch kind {
		case btreeKindBTree, btreeKindBucket, btreeKindTreeSet, btreeKindSet:
			return btreeShape{prefix: prefix, kind: kind}, true
		}
	}
	return btreeShape{}, false
}

func (s btreeShape) isLeaf() bool     { return s.kind == btreeKindBucket || s.kind == btreeKindSet }
func (s btreeShape) isInternal() bool { return s.kind == btreeKindBTree || s.kind == btreeKindTreeSet }
func (s btreeShape) isMap() bool      { return s.kind == btreeKindBTree || s.kind == btreeKindBucket }

// global reconstructs the Global this shape was detected from.
func (s btreeShape) global() *Global {
	if s.kind == "Length" {
		return &Global{Module: "BTrees.Length", Name: "Length"}
	}
	return &Global{Module: "BTrees." + s.prefix + "BTree", Name: s.prefix + s.kind}
}

// flattenBTreeState converts a BTree/Bucket/Set/TreeSet/Length's Reduce
// state into the marker-object form of the "@s" value that accompanies
// "@cls" for these classes: @kv/@ks plus @next for leaves, @children plus
// @first for internal nodes, or a bare JSON value for Length's plain-integer
// state.
func flattenBTreeState(shape btreeShape, state Value, toJSON func(Value) (interface{}, error)) (interface{}, error) {
	if shape.kind == "Length" {
		return toJSON(state)
	}
	if state == nil {
		return map[string]interface{}{}, nil
	}
	tup, ok := state.(*Tuple)
	if !ok || len(tup.Items) < 1 || len(tup.Items) > 2 {
		return nil, newCodecError(MalformedBTree, "unexpected state shape for %s%s", shape.prefix, shape.kind)
	}

	items, ok := tup.Items[0].(*Tuple)
	if !ok {
		return nil, newCodecError(MalformedBTree, "expected tuple of flat items for %s%s", shape.prefix, shape.kind)
	}

	out := map[string]interface{}{}
	if shape.isInternal() {
		children := make([]interface{}, len(items.Items))
		for i, it := range items.Items {
			j, err := toJSON(it)
			if err != nil {
				return nil, err
			}
			children[i] = j
		}
		out["@children"] = children
		if len(tup.Items) == 2 {
			first, err := toJSON(tup.Items[1])
			if err != nil {
				return nil, err
			}
			out["@first"] = first
		}
		return out, nil
	}

	// Leaf: Bucket is (k,v,k,v,...), Set is (k,k,...).
	if shape.isMap() {
		if len(items.Items)%2 != 0 {
			return nil, newCodecError(MalformedBTree, "odd-length flat item list in %s%s", shape.prefix, shape.kind)
		}
		kv := make([]interface{}, 0, len(items.Items)/2)
		for i := 0; i < len(items.Items); i += 2 {
			k, err := toJSON(items.Items[i])
			if err != nil {
				return nil, err
			}
			v, err := toJSON(items.Items[i+1])
			if err != nil {
				return nil, err
			}
			kv = append(kv, []interface{}{k, v})
		}
		out["@kv"] = kv
	} else {
		ks := make([]interface{}, len(items.Items))
		for i, it := range items.Items {
			j, err := toJSON(it)
			if err != nil {
				return nil, err
			}
			ks[i] = j
		}
		out["@ks"] = ks
	}
	if len(tup.Items) == 2 {
		next, err := toJSON(tup.Items[1])
		if err != nil {
			return nil, err
		}
		out["@next"] = next
	}
	return out, nil
}

// reconstructBTreeState is the inverse of flattenBTreeState.
func reconstructBTreeState(shape btreeShape, marker map[string]interface{}, fromJSON func(interface{}) (Value, error)) (Value, error) {
	if shape.kind == "Length" {
		return nil, newCodecError(MalformedBTree, "Length state must not be a marker object")
	}
	if len(marker) == 0 {
		// flattenBTreeState renders the nil state of an empty tree as {}.
		return nil, nil
	}

	if shape.isInternal() {
		rawChildren, _ := marker["@children"].([]interface{})
		children := make([]Value, len(rawChildren))
		for i, rc := range rawChildren {
			v, err := fromJSON(rc)
			if err != nil {
				return nil, err
			}
			children[i] = v
		}
		items := []Value{&Tuple{Items: children}}
		if first, present := marker["@first"]; present {
			v, err := fromJSON(first)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return &Tuple{Items: items}, nil
	}

	var flat []Value
	if shape.isMap() {
		rawKV, _ := marker["@kv"].([]interface{})
		flat = make([]Value, 0, len(rawKV)*2)
		for _, pairRaw := range rawKV {
			pair, ok := pairRaw.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, newCodecError(MalformedBTree, "@kv entry must be a [k,v] pair")
			}
			k, err := fromJSON(pair[0])
			if err != nil {
				return nil, err
			}
			v, err := fromJSON(pair[1])
			if err != nil {
				return nil, err
			}
			flat = append(flat, k, v)
		}
	} else {
		rawKS, _ := marker["@ks"].([]interface{})
		flat = make([]Value, len(rawKS))
		for i, kr := range rawKS {
			v, err := fromJSON(kr)
			if err != nil {
				return nil, err
			}
			flat[i] = v
		}
	}

	items := []Value{&Tuple{Items: flat}}
	if next, present := marker["@next"]; present {
		v, err := fromJSON(next)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return &Tuple{Items: items}, nil
}
