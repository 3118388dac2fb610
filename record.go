package pgpickle

import (
	"encoding/json"
)

// This file implements the package's text/bytes entry points for single
// pickles and for ZODB's two-pickle record layout, plus a storage-backend
// optimisation that extracts persistent references and sanitises embedded
// NUL bytes in the same walk used to decode a record. "Marker-form value
// tree" below is the generic JSON-ready tree json.go's ToJSON/FromJSON
// produce — the same shape ToJSONText renders to text — not the raw
// PickleValue AST.

// reconstructorModule/Name name a Reduce-wrapped class-pickle shape
// commonly seen in ZODB class pickles: copy_reg's pickle-compatibility shim
// for old-style classes, Global("copy_reg","_reconstructor"), (klass, base, state).
const (
	reconstructorModule = "copy_reg"
	reconstructorName   = "_reconstructor"
)

// PickleToValue decodes a single pickle into its marker-form value tree.
func PickleToValue(data []byte) (interface{}, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return ToJSON(v)
}

// ValueToPickle encodes a marker-form value tree back into a single
// pickle.
func ValueToPickle(tree interface{}) ([]byte, error) {
	v, err := FromJSON(tree)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

// PickleToJSONText is PickleToValue followed by JSON text rendering.
func PickleToJSONText(data []byte) ([]byte, error) {
	tree, err := PickleToValue(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// JSONTextToPickle is the text-boundary inverse of PickleToJSONText.
func JSONTextToPickle(text []byte) ([]byte, error) {
	v, err := FromJSONText(text)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

// DecodeZODBRecord decodes a ZODB record (two concatenated pickles,
// class then state, sharing one memo) into a tree rooted in
// {"@cls": [...], "@s": ...}.
func DecodeZODBRecord(data []byte) (interface{}, error) {
	class, state, err := DecodeTwoBytes(data)
	if err != nil {
		return nil, err
	}
	return classStateToJSON(class, state)
}

func classStateToJSON(class, state Value) (interface{}, error) {
	switch c := class.(type) {
	case *Global:
		stateJSON, err := ToJSON(state)
		if err != nil {
			return nil, err
		}
		out := map[string]interface{}{"@cls": []interface{}{c.Module, c.Name}}
		if state != nil {
			out["@s"] = stateJSON
		}
		return out, nil

	case *Reduce:
		g, ok := c.Callable.(*Global)
		if !ok {
			// Not even a Global callable: give up on a structured class
			// pickle and fall back to the raw-pickle escape hatch for the
			// whole class value, still pairing it with the real state.
			pkl, err := pklFallback(c)
			if err != nil {
				return nil, err
			}
			stateJSON, err := ToJSON(state)
			if err != nil {
				return nil, err
			}
			m := pkl.(map[string]interface{})
			m["@s"] = stateJSON
			return m, nil
		}

		module, name := g.Module, g.Name
		if g.Module == reconstructorModule && g.Name == reconstructorName && c.Args != nil && len(c.Args.Items) >= 1 {
			if inner, ok := c.Args.Items[0].(*Global); ok {
				module, name = inner.Module, inner.Name
			}
		}

		stateJSON, err := ToJSON(state)
		if err != nil {
			return nil, err
		}
		argsJSON, err := toJSONArray(valueOrEmpty(c.Args), 1)
		if err != nil {
			return nil, err
		}
		wrapped := map[string]interface{}{
			"@reduce": map[string]interface{}{
				"callable": map[string]interface{}{"@cls": []interface{}{g.Module, g.Name}},
				"args":     argsJSON,
				"state":    stateJSON,
			},
		}
		return map[string]interface{}{
			"@cls": []interface{}{module, name},
			"@s":   wrapped,
		}, nil

	default:
		pkl, err := pklFallback(class)
		if err != nil {
			return nil, err
		}
		stateJSON, err := ToJSON(state)
		if err != nil {
			return nil, err
		}
		m := pkl.(map[string]interface{})
		m["@s"] = stateJSON
		return m, nil
	}
}

func valueOrEmpty(t *Tuple) []Value {
	if t == nil {
		return nil
	}
	return t.Items
}

// EncodeZODBRecord is the inverse of DecodeZODBRecord: it re-serialises a
// {"@cls","@s"} tree as two pickles sharing one memo.
func EncodeZODBRecord(tree interface{}) ([]byte, error) {
	m, ok := tree.(map[string]interface{})
	if !ok {
		return nil, newCodecError(BadMarker, "EncodeZODBRecord: expected {\"@cls\":...,\"@s\":...} object")
	}
	clsRaw, hasCls := m["@cls"]
	if !hasCls {
		return nil, newCodecError(BadMarker, "EncodeZODBRecord: missing @cls")
	}
	module, name, err := parseClsArray(clsRaw)
	if err != nil {
		return nil, err
	}

	sRaw, hasState := m["@s"]
	if !hasState {
		return EncodeTwoBytes(&Global{Module: module, Name: name}, &None{})
	}

	if wrapped, ok := sRaw.(map[string]interface{}); ok {
		if reduceRaw, ok := wrapped["@reduce"].(map[string]interface{}); ok {
			if classValue, stateValue, ok, err := unwrapReconstructor(reduceRaw); err != nil {
				return nil, err
			} else if ok {
				return EncodeTwoBytes(classValue, stateValue)
			}
		}
	}

	state, err := FromJSON(sRaw)
	if err != nil {
		return nil, err
	}
	return EncodeTwoBytes(&Global{Module: module, Name: name}, state)
}

// unwrapReconstructor recognizes the wrapper classStateToJSON produces for
// a copy_reg._reconstructor class pickle, rebuilding the original class
// Reduce and the real object state. ok is false if reduceRaw's callable
// isn't the reconstructor shape, meaning sRaw was the object's own
// (coincidentally @reduce-shaped) state, not a wrapper.
func unwrapReconstructor(reduceRaw map[string]interface{}) (classValue, stateValue Value, ok bool, err error) {
	callableRaw, _ := reduceRaw["callable"].(map[string]interface{})
	if callableRaw == nil {
		return nil, nil, false, nil
	}
	module, name, perr := parseClsArray(callableRaw["@cls"])
	if perr != nil || module != reconstructorModule || name != reconstructorName {
		return nil, nil, false, nil
	}
	argsRaw, _ := reduceRaw["args"].([]interface{})
	args := make([]Value, len(argsRaw))
	for i, a := range argsRaw {
		v, err := FromJSON(a)
		if err != nil {
			return nil, nil, false, err
		}
		args[i] = v
	}
	stateRaw, hasState := reduceRaw["state"]
	if !hasState {
		return nil, nil, false, newCodecError(BadMarker, "@reduce wrapper missing state")
	}
	state, err := FromJSON(stateRaw)
	if err != nil {
		return nil, nil, false, err
	}
	class := &Reduce{
		Callable: &Global{Module: module, Name: name},
		Args:     &Tuple{Items: args},
	}
	return class, state, true, nil
}

// DecodeZODBRecordWithRefs decodes a ZODB record like DecodeZODBRecord,
// additionally returning every PersistentRef pid reachable from the state
// pickle and, if sanitizeNUL is set, replacing embedded NUL bytes in
// string values with U+FFFD for storage in a PostgreSQL text column.
func DecodeZODBRecordWithRefs(data []byte, sanitizeNUL bool) (tree interface{}, refs []Value, err error) {
	class, state, err := DecodeTwoBytes(data)
	if err != nil {
		return nil, nil, err
	}
	refs, err = ExtractRefs(state)
	if err != nil {
		return nil, nil, err
	}
	if sanitizeNUL {
		if err := sanitizeStrings(state); err != nil {
			return nil, nil, err
		}
	}
	tree, err = classStateToJSON(class, state)
	if err != nil {
		return nil, nil, err
	}
	return tree, refs, nil
}

// sanitizeStrings replaces NUL bytes in every Str reachable from root with
// U+FFFD in place. Reduce nodes are mutated by pointer, consistent with
// the rest of this package's in-place-update design (see decoder.go's
// loadBuild), so a shared Str reached via two paths is sanitised once.
func sanitizeStrings(root Value) error {
	return Walk(root, func(v Value) error {
		if s, ok := v.(*Str); ok {
			s.V = sanitizeNUL(s.V)
		}
		return nil
	})
}

func sanitizeNUL(s string) string {
	if !containsNUL(s) {
		return s
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == 0 {
			out = append(out, '�')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func containsNUL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return true
		}
	}
	return false
}
