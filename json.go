package pgpickle

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"

	"golang.org/x/exp/slices"
)

// This file implements the bidirectional PickleValue <-> JSON marker
// mapper. ToJSON/FromJSON operate on a generic Go value tree
// (map[string]interface{}, []interface{}, string, bool, int64, float64,
// nil, with big integers as an "@bi" decimal string) that encoding/json can marshal and unmarshal
// directly; ToJSONText/FromJSONText add the text boundary.
//
// encoding/json (stdlib) is used here deliberately rather than a
// generated-schema library like mailru/easyjson or tinylib/msgp: both of
// those require go:generate-produced (un)marshalers per concrete struct,
// which does not fit a dynamically-shaped marker tree whose structure
// depends on runtime data, not a fixed Go type.

const safeIntBound = int64(1) << 53 // JS Number.isSafeInteger bound

// ToJSON converts a PickleValue tree into the generic marker-form value
// tree described above.
func ToJSON(v Value) (interface{}, error) {
	return toJSON(v, 0)
}

// ToJSONText renders v as JSON text.
func ToJSONText(v Value) ([]byte, error) {
	generic, err := ToJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func toJSON(v Value, depth int) (interface{}, error) {
	if depth > DefaultLimits().MaxDepth {
		return nil, newCodecError(DepthLimit, "JSON mapping exceeded depth %d", depth)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *None:
		return nil, nil
	case *Bool:
		return t.V, nil
	case *Int:
		if t.V > -safeIntBound && t.V < safeIntBound {
			return t.V, nil
		}
		return map[string]interface{}{"@bi": big.NewInt(t.V).String()}, nil
	case *BigInt:
		return map[string]interface{}{"@bi": t.Digits}, nil
	case *Float:
		return t.V, nil
	case *Str:
		return t.V, nil
	case *Bytes:
		return map[string]interface{}{"@b": base64.StdEncoding.EncodeToString(t.V)}, nil
	case *List:
		return toJSONArray(t.Items, depth)
	case *Tuple:
		arr, err := toJSONArray(t.Items, depth)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"@t": arr}, nil
	case *Set:
		arr, err := toJSONArray(t.Items, depth)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"@set": arr}, nil
	case *FrozenSet:
		arr, err := toJSONArray(t.Items, depth)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"@fset": arr}, nil
	case *Dict:
		return dictToJSON(t, depth)
	case *Global:
		return map[string]interface{}{"@cls": []interface{}{t.Module, t.Name}}, nil
	case *PersistentRef:
		pid, err := toJSON(t.Pid, depth+1)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"@ref": pid}, nil
	case *Reduce:
		return reduceToJSON(t, depth)
	default:
		return nil, newCodecError(BadMarker, "toJSON: unhandled node type %T", v)
	}
}

func toJSONArray(items []Value, depth int) ([]interface{}, error) {
	out := make([]interface{}, len(items))
	for i, it := range items {
		j, err := toJSON(it, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = j
	}
	return out, nil
}

func dictToJSON(d *Dict, depth int) (interface{}, error) {
	plain := true
	for _, e := range d.Entries {
		s, isStr := e.Key.(*Str)
		if !isStr || strings.HasPrefix(s.V, "@") {
			plain = false
			break
		}
	}
	if plain {
		obj := make(map[string]interface{}, len(d.Entries))
		for _, e := range d.Entries {
			v, err := toJSON(e.Val, depth+1)
			if err != nil {
				return nil, err
			}
			obj[e.Key.(*Str).V] = v
		}
		return obj, nil
	}
	arr := make([]interface{}, len(d.Entries))
	for i, e := range d.Entries {
		k, err := toJSON(e.Key, depth+1)
		if err != nil {
			return nil, err
		}
		v, err := toJSON(e.Val, depth+1)
		if err != nil {
			return nil, err
		}
		arr[i] = []interface{}{k, v}
	}
	return map[string]interface{}{"@d": arr}, nil
}

// reduceToJSON tries each known-type handler, then the BTree transform,
// then falls back to a generic "@cls"+"@s" (empty-arg reduce) or "@reduce"
// form, and finally to the "@pkl" raw-pickle escape hatch for anything a
// handler cannot safely reconstruct.
func reduceToJSON(r *Reduce, depth int) (interface{}, error) {
	for _, detect := range []func(*Reduce) (interface{}, bool){
		detectDatetime, detectDate, detectTime, detectTimedelta, detectDecimal, detectUUID,
	} {
		if out, ok := detect(r); ok {
			return out, nil
		}
	}
	if items, ok := detectBuiltinSet(r, false); ok {
		arr, err := toJSONArray(items, depth+1)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"@set": arr}, nil
	}
	if items, ok := detectBuiltinSet(r, true); ok {
		arr, err := toJSONArray(items, depth+1)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"@fset": arr}, nil
	}

	g, isGlobal := r.Callable.(*Global)
	if isGlobal {
		if shape, ok := detectBTreeShape(g); ok {
			flat, err := flattenBTreeState(shape, r.State, func(v Value) (interface{}, error) { return toJSON(v, depth+1) })
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"@cls": []interface{}{g.Module, g.Name},
				"@s":   flat,
			}, nil
		}

		noArgs := r.Args == nil || len(r.Args.Items) == 0
		noExtras := len(r.ListItems) == 0 && len(r.DictItems) == 0
		if noArgs && noExtras {
			out := map[string]interface{}{"@cls": []interface{}{g.Module, g.Name}}
			if r.State != nil {
				s, err := toJSON(r.State, depth+1)
				if err != nil {
					return nil, err
				}
				out["@s"] = s
			}
			return out, nil
		}

		reduceObj := map[string]interface{}{
			"callable": map[string]interface{}{"@cls": []interface{}{g.Module, g.Name}},
		}
		args := []Value{}
		if r.Args != nil {
			args = r.Args.Items
		}
		argsJSON, err := toJSONArray(args, depth+1)
		if err != nil {
			return nil, err
		}
		reduceObj["args"] = argsJSON
		if r.State != nil {
			s, err := toJSON(r.State, depth+1)
			if err != nil {
				return nil, err
			}
			reduceObj["state"] = s
		}
		if len(r.ListItems) > 0 {
			items, err := toJSONArray(r.ListItems, depth+1)
			if err != nil {
				return nil, err
			}
			reduceObj["list"] = items
		}
		if len(r.DictItems) > 0 {
			kvArr := make([]interface{}, len(r.DictItems))
			for i, ent := range r.DictItems {
				k, err := toJSON(ent.Key, depth+1)
				if err != nil {
					return nil, err
				}
				v, err := toJSON(ent.Val, depth+1)
				if err != nil {
					return nil, err
				}
				kvArr[i] = []interface{}{k, v}
			}
			reduceObj["dict"] = kvArr
		}
		return map[string]interface{}{"@reduce": reduceObj}, nil
	}

	// Callable is not a plain Global (unusual, e.g. a nested Reduce as its
	// own callable): fall back to the raw-pickle escape hatch so the
	// transcoder never fails on syntactically-valid input.
	return pklFallback(r)
}

func pklFallback(v Value) (interface{}, error) {
	data, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"@pkl": base64.StdEncoding.EncodeToString(data)}, nil
}

// FromJSON converts a generic marker-form value tree back into a
// PickleValue. Marker keys are checked in a fixed priority order so an
// object carrying more than one recognized "@" key (which a well-formed
// encoder never produces) resolves deterministically rather than by Go's
// unspecified map iteration order.
func FromJSON(v interface{}) (Value, error) {
	return fromJSON(v, 0)
}

// FromJSONText parses JSON text and converts it to a PickleValue. Numbers
// are decoded via json.Number so integers outside float64's exact range
// are not corrupted before FromJSON sees them.
func FromJSONText(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, newCodecError(BadMarker, "invalid JSON: %s", err)
	}
	return FromJSON(generic)
}

func fromJSON(v interface{}, depth int) (Value, error) {
	if depth > DefaultLimits().MaxDepth {
		return nil, newCodecError(DepthLimit, "JSON mapping exceeded depth %d", depth)
	}
	switch t := v.(type) {
	case nil:
		return &None{}, nil
	case bool:
		return &Bool{V: t}, nil
	case string:
		return &Str{V: t}, nil
	case int64:
		return &Int{V: t}, nil
	case float64:
		if t == float64(int64(t)) {
			return &Int{V: int64(t)}, nil
		}
		return &Float{V: t}, nil
	case json.Number:
		return fromJSONNumber(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := fromJSON(it, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &List{Items: items}, nil
	case map[string]interface{}:
		return fromJSONObject(t, depth)
	default:
		return nil, newCodecError(BadMarker, "fromJSON: unhandled JSON type %T", v)
	}
}

func fromJSONNumber(n json.Number) (Value, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return nil, newCodecError(BadMarker, "invalid JSON number %q", truncateLongText(s, DefaultLimits().MaxLongTextChars))
		}
		return &Float{V: f}, nil
	}
	if i, err := n.Int64(); err == nil {
		return &Int{V: i}, nil
	}
	if _, ok := new(big.Int).SetString(s, 10); ok {
		return &BigInt{Digits: s}, nil
	}
	return nil, newCodecError(BadMarker, "invalid JSON integer %q", truncateLongText(s, DefaultLimits().MaxLongTextChars))
}

func fromJSONObject(m map[string]interface{}, depth int) (Value, error) {
	if len(m) == 0 || len(m) > 4 {
		return plainDictFromMap(m, depth)
	}
	hasMarker := false
	for k := range m {
		if strings.HasPrefix(k, "@") {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		return plainDictFromMap(m, depth)
	}

	if raw, ok := m["@t"]; ok {
		arr, isArr := raw.([]interface{})
		if !isArr {
			return nil, newCodecError(BadMarker, "@t: expected array")
		}
		items := make([]Value, len(arr))
		for i, it := range arr {
			v, err := fromJSON(it, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &Tuple{Items: items}, nil
	}
	if raw, ok := m["@b"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@b: expected base64 string")
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, newCodecError(BadMarker, "@b: %s", err)
		}
		return &Bytes{V: data}, nil
	}
	if raw, ok := m["@bi"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@bi: expected decimal string")
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, newCodecError(BadMarker, "@bi: invalid decimal %q", truncateLongText(s, DefaultLimits().MaxLongTextChars))
		}
		if v.IsInt64() {
			return &Int{V: v.Int64()}, nil
		}
		return &BigInt{Digits: s}, nil
	}
	if raw, ok := m["@d"]; ok {
		arr, isArr := raw.([]interface{})
		if !isArr {
			return nil, newCodecError(BadMarker, "@d: expected array of pairs")
		}
		d := &Dict{}
		for _, pairRaw := range arr {
			pair, isPair := pairRaw.([]interface{})
			if !isPair || len(pair) != 2 {
				return nil, newCodecError(BadMarker, "@d: each entry must be a [k,v] pair")
			}
			k, err := fromJSON(pair[0], depth+1)
			if err != nil {
				return nil, err
			}
			v, err := fromJSON(pair[1], depth+1)
			if err != nil {
				return nil, err
			}
			d.Set_(k, v)
		}
		return d, nil
	}
	if raw, ok := m["@set"]; ok {
		items, err := fromJSONItemArray(raw, "@set", depth)
		if err != nil {
			return nil, err
		}
		return &Set{Items: items}, nil
	}
	if raw, ok := m["@fset"]; ok {
		items, err := fromJSONItemArray(raw, "@fset", depth)
		if err != nil {
			return nil, err
		}
		return &FrozenSet{Items: items}, nil
	}
	if raw, ok := m["@ref"]; ok {
		pid, err := fromJSON(raw, depth+1)
		if err != nil {
			return nil, err
		}
		return &PersistentRef{Pid: pid}, nil
	}
	if raw, ok := m["@pkl"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@pkl: expected base64 string")
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, newCodecError(BadMarker, "@pkl: %s", err)
		}
		return Decode(data)
	}

	if raw, ok := m["@dt"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@dt: expected ISO string")
		}
		var tz map[string]interface{}
		if rawTZ, present := m["@tz"]; present {
			tz, _ = rawTZ.(map[string]interface{})
		}
		return buildDatetime(s, tz)
	}
	if raw, ok := m["@date"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@date: expected string")
		}
		return buildDate(s)
	}
	if raw, ok := m["@time"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@time: expected string")
		}
		return buildTime(s)
	}
	if raw, ok := m["@td"]; ok {
		arr, isArr := raw.([]interface{})
		if !isArr {
			return nil, newCodecError(BadMarker, "@td: expected array")
		}
		return buildTimedelta(arr)
	}
	if raw, ok := m["@dec"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@dec: expected string")
		}
		return buildDecimal(s), nil
	}
	if raw, ok := m["@uuid"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, newCodecError(BadMarker, "@uuid: expected string")
		}
		return buildUUID(s)
	}

	if clsRaw, ok := m["@cls"]; ok {
		module, name, err := parseClsArray(clsRaw)
		if err != nil {
			return nil, err
		}
		g := &Global{Module: module, Name: name}
		sRaw, hasState := m["@s"]
		if !hasState {
			return g, nil
		}
		if shape, isBTree := detectBTreeShape(g); isBTree {
			if shape.kind == "Length" {
				state, err := fromJSON(sRaw, depth+1)
				if err != nil {
					return nil, err
				}
				return &Reduce{Callable: g, Args: &Tuple{}, State: state}, nil
			}
			sMap, isMap := sRaw.(map[string]interface{})
			if !isMap {
				return nil, newCodecError(MalformedBTree, "@s: expected BTree shape object")
			}
			state, err := reconstructBTreeState(shape, sMap, func(v interface{}) (Value, error) { return fromJSON(v, depth+1) })
			if err != nil {
				return nil, err
			}
			return &Reduce{Callable: g, Args: &Tuple{}, State: state}, nil
		}
		state, err := fromJSON(sRaw, depth+1)
		if err != nil {
			return nil, err
		}
		return &Reduce{Callable: g, Args: &Tuple{}, State: state}, nil
	}

	if raw, ok := m["@reduce"]; ok {
		obj, isObj := raw.(map[string]interface{})
		if !isObj {
			return nil, newCodecError(BadMarker, "@reduce: expected object")
		}
		return fromJSONReduceObject(obj, depth)
	}

	return plainDictFromMap(m, depth)
}

func fromJSONItemArray(raw interface{}, marker string, depth int) ([]Value, error) {
	arr, isArr := raw.([]interface{})
	if !isArr {
		return nil, newCodecError(BadMarker, "%s: expected array", marker)
	}
	items := make([]Value, len(arr))
	for i, it := range arr {
		v, err := fromJSON(it, depth+1)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

func parseClsArray(raw interface{}) (module, name string, err error) {
	arr, isArr := raw.([]interface{})
	if !isArr || len(arr) != 2 {
		return "", "", newCodecError(BadMarker, "@cls: expected [module, name]")
	}
	module, ok1 := arr[0].(string)
	name, ok2 := arr[1].(string)
	if !ok1 || !ok2 {
		return "", "", newCodecError(BadMarker, "@cls: module/name must be strings")
	}
	return module, name, nil
}

func fromJSONReduceObject(obj map[string]interface{}, depth int) (Value, error) {
	clsRaw, ok := obj["callable"]
	if !ok {
		return nil, newCodecError(BadMarker, "@reduce: missing callable")
	}
	clsMap, isMap := clsRaw.(map[string]interface{})
	if !isMap {
		return nil, newCodecError(BadMarker, "@reduce: callable must be a @cls object")
	}
	module, name, err := parseClsArray(clsMap["@cls"])
	if err != nil {
		return nil, err
	}
	var args []Value
	if rawArgs, present := obj["args"]; present {
		arr, isArr := rawArgs.([]interface{})
		if !isArr {
			return nil, newCodecError(BadMarker, "@reduce: args must be an array")
		}
		args = make([]Value, len(arr))
		for i, a := range arr {
			v, err := fromJSON(a, depth+1)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
	}
	r := &Reduce{Callable: &Global{Module: module, Name: name}, Args: &Tuple{Items: args}}
	if rawState, present := obj["state"]; present {
		state, err := fromJSON(rawState, depth+1)
		if err != nil {
			return nil, err
		}
		r.State = state
	}
	if rawList, present := obj["list"]; present {
		items, err := fromJSONItemArray(rawList, "@reduce.list", depth)
		if err != nil {
			return nil, err
		}
		r.ListItems = items
	}
	if rawDict, present := obj["dict"]; present {
		arr, isArr := rawDict.([]interface{})
		if !isArr {
			return nil, newCodecError(BadMarker, "@reduce: dict must be an array of pairs")
		}
		for _, pairRaw := range arr {
			pair, isPair := pairRaw.([]interface{})
			if !isPair || len(pair) != 2 {
				return nil, newCodecError(BadMarker, "@reduce: dict entries must be [k,v] pairs")
			}
			k, err := fromJSON(pair[0], depth+1)
			if err != nil {
				return nil, err
			}
			v, err := fromJSON(pair[1], depth+1)
			if err != nil {
				return nil, err
			}
			r.DictItems = append(r.DictItems, DictEntry{Key: k, Val: v})
		}
	}
	return r, nil
}

// plainDictFromMap builds a Dict from a JSON object's fields, visiting them
// in sorted key order. A JSON object's own field order isn't preserved
// through encoding/json's map decoding, and Go map iteration is randomized,
// so without this the resulting Dict.Entries order (and therefore any
// re-encoded pickle's SETITEMS order) would vary from run to run for the
// same input.
func plainDictFromMap(m map[string]interface{}, depth int) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d := &Dict{}
	for _, k := range keys {
		val, err := fromJSON(m[k], depth+1)
		if err != nil {
			return nil, err
		}
		d.Set_(&Str{V: k}, val)
	}
	return d, nil
}
