package pgpickle

import (
	"encoding/binary"
	"testing"
)

func packedDate(year, month, day int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], uint16(year))
	b[2], b[3] = byte(month), byte(day)
	return b
}

func packedDatetime(year, month, day, hour, min, sec int) []byte {
	b := make([]byte, 10)
	binary.BigEndian.PutUint16(b[0:2], uint16(year))
	b[2], b[3] = byte(month), byte(day)
	b[4], b[5], b[6] = byte(hour), byte(min), byte(sec)
	return b
}

func TestKnownTypeDatetimeNaive(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "datetime", Name: "datetime"},
		Args:     &Tuple{Items: []Value{&Bytes{V: packedDatetime(2024, 3, 14, 9, 26, 53)}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := j.(map[string]interface{})
	if !ok {
		t.Fatalf("expected marker object, got %#v", j)
	}
	dt, ok := m["@dt"].(string)
	if !ok || dt != "2024-03-14T09:26:53" {
		t.Fatalf("unexpected @dt: %#v", m)
	}

	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch: %#v vs %#v", r, back)
	}
}

func TestKnownTypeDatetimeFixedOffset(t *testing.T) {
	tz := &Reduce{
		Callable: &Global{Module: "datetime", Name: "timezone"},
		Args: &Tuple{Items: []Value{
			&Reduce{
				Callable: &Global{Module: "datetime", Name: "timedelta"},
				Args:     &Tuple{Items: []Value{&Int{V: 0}, &Int{V: 19800}, &Int{V: 0}}},
			},
		}},
	}
	r := &Reduce{
		Callable: &Global{Module: "datetime", Name: "datetime"},
		Args:     &Tuple{Items: []Value{&Bytes{V: packedDatetime(2024, 3, 14, 9, 26, 53)}, tz}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	dt, _ := m["@dt"].(string)
	if dt != "2024-03-14T09:26:53+05:30" {
		t.Fatalf("unexpected @dt: %q", dt)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch: %#v vs %#v", r, back)
	}
}

func TestKnownTypeDate(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "datetime", Name: "date"},
		Args:     &Tuple{Items: []Value{&Bytes{V: packedDate(2024, 3, 14)}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	if m["@date"] != "2024-03-14" {
		t.Fatalf("unexpected @date: %#v", m)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestKnownTypeTime(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "datetime", Name: "time"},
		Args:     &Tuple{Items: []Value{&Bytes{V: []byte{9, 26, 53, 0, 0, 0}}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	if m["@time"] != "09:26:53" {
		t.Fatalf("unexpected @time: %#v", m)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestKnownTypeTimedelta(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "datetime", Name: "timedelta"},
		Args:     &Tuple{Items: []Value{&Int{V: 1}, &Int{V: 3600}, &Int{V: 500}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	td, ok := m["@td"].([]interface{})
	if !ok || len(td) != 3 {
		t.Fatalf("unexpected @td: %#v", m)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestKnownTypeDecimal(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "decimal", Name: "Decimal"},
		Args:     &Tuple{Items: []Value{&Str{V: "3.14159"}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	if m["@dec"] != "3.14159" {
		t.Fatalf("unexpected @dec: %#v", m)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestKnownTypeUUID(t *testing.T) {
	r := &Reduce{
		Callable: &Global{Module: "uuid", Name: "UUID"},
		Args:     &Tuple{Items: []Value{&Str{V: "12345678-1234-5678-1234-567812345678"}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m := j.(map[string]interface{})
	if m["@uuid"] != "12345678-1234-5678-1234-567812345678" {
		t.Fatalf("unexpected @uuid: %#v", m)
	}
	back, err := FromJSON(j)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(r, back) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestKnownTypeBuiltinSet(t *testing.T) {
	for _, frozen := range []bool{false, true} {
		name := "set"
		if frozen {
			name = "frozenset"
		}
		r := &Reduce{
			Callable: &Global{Module: "builtins", Name: name},
			Args:     &Tuple{Items: []Value{&List{Items: []Value{&Int{V: 1}, &Int{V: 2}}}}},
		}
		j, err := ToJSON(r)
		if err != nil {
			t.Fatal(err)
		}
		key := "@set"
		if frozen {
			key = "@fset"
		}
		m, ok := j.(map[string]interface{})
		if !ok {
			t.Fatalf("%s: expected marker object, got %#v", name, j)
		}
		if _, present := m[key]; !present {
			t.Fatalf("%s: expected %q key, got %#v", name, key, m)
		}
		back, err := FromJSON(j)
		if err != nil {
			t.Fatal(err)
		}
		if !Equal(r, back) {
			t.Fatalf("%s roundtrip mismatch", name)
		}
	}
}

func TestDetectionFailureFallsThroughToGenericReduce(t *testing.T) {
	// datetime.datetime with a malformed (9-byte) state must not match
	// detectDatetime and must not error: it falls through to the
	// generic @reduce representation.
	r := &Reduce{
		Callable: &Global{Module: "datetime", Name: "datetime"},
		Args:     &Tuple{Items: []Value{&Bytes{V: make([]byte, 9)}}},
	}
	j, err := ToJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := j.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %#v", j)
	}
	if _, present := m["@dt"]; present {
		t.Fatal("malformed state should not be detected as a datetime")
	}
	if _, present := m["@reduce"]; !present {
		t.Fatalf("expected fallback to @reduce, got %#v", m)
	}
}
