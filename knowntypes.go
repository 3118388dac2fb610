package pgpickle

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// This file implements the known-type table: detecting a Reduce's pickled
// shape for datetime, date, time, timedelta, Decimal, UUID, set, and
// frozenset, and constructing the corresponding Reduce back from a JSON
// marker payload. Detection failure is never an error; callers fall
// through to the generic @reduce / @pkl path.

func globalIs(v Value, module, name string) (*Global, bool) {
	g, ok := v.(*Global)
	if !ok || g.Module != module || g.Name != name {
		return nil, false
	}
	return g, true
}

// ---- datetime / date / time ----

// detectDatetime recognizes Global("datetime","datetime") applied to a
// 10-byte packed state, with an optional second tzinfo argument.
func detectDatetime(r *Reduce) (jsonValue interface{}, ok bool) {
	if _, isG := globalIs(r.Callable, "datetime", "datetime"); !isG {
		return nil, false
	}
	if r.Args == nil || len(r.Args.Items) < 1 {
		return nil, false
	}
	raw, isB := r.Args.Items[0].(*Bytes)
	if !isB || len(raw.V) != 10 {
		return nil, false
	}
	year := int(binary.BigEndian.Uint16(raw.V[0:2]))
	month := time.Month(raw.V[2])
	day := int(raw.V[3])
	hour, min, sec := int(raw.V[4]), int(raw.V[5]), int(raw.V[6])
	micro := int(raw.V[7])<<16 | int(raw.V[8])<<8 | int(raw.V[9])

	var tz *time.Location
	var tzJSON interface{}
	if len(r.Args.Items) >= 2 {
		loc, companion, tzOK := detectTZInfo(r.Args.Items[1])
		if !tzOK {
			return nil, false
		}
		tz = loc
		tzJSON = companion
	}

	var t time.Time
	if tz != nil {
		t = time.Date(year, month, day, hour, min, sec, micro*1000, tz)
	} else {
		t = time.Date(year, month, day, hour, min, sec, micro*1000, time.UTC)
	}

	out := map[string]interface{}{"@dt": formatDatetimeISO(t, tz != nil)}
	if tzJSON != nil {
		out["@tz"] = tzJSON
	}
	return out, true
}

// formatDatetimeISO renders t as CPython's datetime.isoformat() would:
// naive datetimes carry no offset suffix, aware ones use ±HH:MM.
func formatDatetimeISO(t time.Time, aware bool) string {
	base := t.Format("2006-01-02T15:04:05.000000")
	base = strings.TrimSuffix(base, ".000000")
	if !aware {
		return base
	}
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%s%02d:%02d", base, sign, offset/3600, (offset%3600)/60)
}

// detectTZInfo classifies a datetime/time's second Reduce argument into one
// of the three tzinfo shapes this codec knows how to represent (a fixed
// UTC offset, a zoneinfo key, or pytz), returning the *time.Location to
// format the instant's offset with and the JSON "@tz" companion to emit
// (nil companion for the fixed-offset case, which is carried entirely in
// the ISO string's own suffix).
func detectTZInfo(v Value) (*time.Location, interface{}, bool) {
	r, ok := v.(*Reduce)
	if !ok {
		return nil, nil, false
	}
	switch {
	case sameGlobal(r.Callable, "datetime", "timezone"):
		if r.Args == nil || len(r.Args.Items) < 1 {
			return nil, nil, false
		}
		days, secs, micros, tdOK := decodeTimedeltaArgs(r.Args.Items[0])
		if !tdOK {
			return nil, nil, false
		}
		offsetSeconds := days*86400 + secs + micros/1_000_000
		return time.FixedZone("", offsetSeconds), nil, true

	case sameGlobal(r.Callable, "zoneinfo", "ZoneInfo"):
		if r.Args == nil || len(r.Args.Items) != 1 {
			return nil, nil, false
		}
		key, isStr := r.Args.Items[0].(*Str)
		if !isStr {
			return nil, nil, false
		}
		loc, err := time.LoadLocation(key.V)
		if err != nil {
			// Host without tzdata for this key: fall back to UTC for
			// offset formatting, but still carry the zoneinfo key so
			// decode can reconstruct the real reference.
			loc = time.UTC
		}
		return loc, map[string]interface{}{"zoneinfo": key.V}, true

	case sameGlobal(r.Callable, "pytz", "_p"):
		if r.Args == nil || len(r.Args.Items) < 4 {
			return nil, nil, false
		}
		name, isStr := r.Args.Items[0].(*Str)
		utcOff, isInt1 := asInt(r.Args.Items[1])
		dstOff, isInt2 := asInt(r.Args.Items[2])
		abbrev, isStr2 := r.Args.Items[3].(*Str)
		if !isStr || !isInt1 || !isInt2 || !isStr2 {
			return nil, nil, false
		}
		return time.FixedZone(abbrev.V, int(utcOff)),
			map[string]interface{}{
				"name": name.V,
				"pytz": []interface{}{name.V, utcOff, dstOff, abbrev.V},
			}, true
	}
	return nil, nil, false
}

func sameGlobal(v Value, module, name string) bool {
	_, ok := globalIs(v, module, name)
	return ok
}

func asInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case *Int:
		return t.V, true
	default:
		return 0, false
	}
}

func decodeTimedeltaArgs(v Value) (days, secs, micros int64, ok bool) {
	r, isR := v.(*Reduce)
	if !isR || !sameGlobal(r.Callable, "datetime", "timedelta") || r.Args == nil || len(r.Args.Items) != 3 {
		return 0, 0, 0, false
	}
	d, ok1 := asInt(r.Args.Items[0])
	s, ok2 := asInt(r.Args.Items[1])
	us, ok3 := asInt(r.Args.Items[2])
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, false
	}
	return d, s, us, true
}

// buildDatetime reconstructs a datetime Reduce from an ISO string and an
// optional "@tz" companion.
func buildDatetime(iso string, tz map[string]interface{}) (*Reduce, error) {
	var tPart, offsetPart string
	t, err := parseISODatetime(iso, &tPart, &offsetPart)
	if err != nil {
		return nil, newCodecError(BadMarker, "@dt: %s", err)
	}
	packed := packDatetime(t)
	args := []Value{&Bytes{V: packed}}

	switch {
	case tz != nil:
		if key, ok := tz["zoneinfo"].(string); ok {
			args = append(args, &Reduce{
				Callable: &Global{Module: "zoneinfo", Name: "ZoneInfo"},
				Args:     &Tuple{Items: []Value{&Str{V: key}}},
			})
			break
		}
		if pytz, ok := tz["pytz"].([]interface{}); ok && len(pytz) == 4 {
			name, _ := pytz[0].(string)
			utcOff := jsonToInt(pytz[1])
			dstOff := jsonToInt(pytz[2])
			abbrev, _ := pytz[3].(string)
			args = append(args, &Reduce{
				Callable: &Global{Module: "pytz", Name: "_p"},
				Args: &Tuple{Items: []Value{
					&Str{V: name}, &Int{V: utcOff}, &Int{V: dstOff}, &Str{V: abbrev},
				}},
			})
			break
		}
		return nil, newCodecError(BadMarker, "@tz: unrecognized companion shape")
	case offsetPart != "":
		secs := parseISOOffsetSeconds(offsetPart)
		args = append(args, &Reduce{
			Callable: &Global{Module: "datetime", Name: "timezone"},
			Args: &Tuple{Items: []Value{
				&Reduce{
					Callable: &Global{Module: "datetime", Name: "timedelta"},
					Args:     &Tuple{Items: []Value{&Int{V: 0}, &Int{V: int64(secs)}, &Int{V: 0}}},
				},
			}},
		})
	}

	return &Reduce{
		Callable: &Global{Module: "datetime", Name: "datetime"},
		Args:     &Tuple{Items: args},
	}, nil
}

func jsonToInt(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func packDatetime(t time.Time) []byte {
	b := make([]byte, 10)
	binary.BigEndian.PutUint16(b[0:2], uint16(t.Year()))
	b[2] = byte(t.Month())
	b[3] = byte(t.Day())
	b[4] = byte(t.Hour())
	b[5] = byte(t.Minute())
	b[6] = byte(t.Second())
	micro := t.Nanosecond() / 1000
	b[7] = byte(micro >> 16)
	b[8] = byte(micro >> 8)
	b[9] = byte(micro)
	return b
}

// parseISODatetime parses the naive or offset-suffixed ISO-8601 string
// datetime.isoformat() produces. *offsetOut receives the "+HH:MM" suffix
// (empty if the string was naive).
func parseISODatetime(s string, _ *string, offsetOut *string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04:05.000000Z07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05",
	}
	if idx := strings.LastIndexAny(s, "+-"); idx > 10 {
		*offsetOut = s[idx:]
	} else if strings.HasSuffix(s, "Z") {
		*offsetOut = "+00:00"
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func parseISOOffsetSeconds(offset string) int {
	sign := 1
	if strings.HasPrefix(offset, "-") {
		sign = -1
	}
	offset = strings.TrimLeft(offset, "+-")
	parts := strings.SplitN(offset, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m := 0
	if len(parts) == 2 {
		m, _ = strconv.Atoi(parts[1])
	}
	return sign * (h*3600 + m*60)
}

// detectDate recognizes Global("datetime","date") over a 4-byte state.
func detectDate(r *Reduce) (jsonValue interface{}, ok bool) {
	if !sameGlobal(r.Callable, "datetime", "date") || r.Args == nil || len(r.Args.Items) != 1 {
		return nil, false
	}
	raw, isB := r.Args.Items[0].(*Bytes)
	if !isB || len(raw.V) != 4 {
		return nil, false
	}
	year := int(binary.BigEndian.Uint16(raw.V[0:2]))
	month := int(raw.V[2])
	day := int(raw.V[3])
	return map[string]interface{}{"@date": fmt.Sprintf("%04d-%02d-%02d", year, month, day)}, true
}

func buildDate(s string) (*Reduce, error) {
	var year, month, day int
	if _, err := fmt.Sscanf(s, "%04d-%02d-%02d", &year, &month, &day); err != nil {
		return nil, newCodecError(BadMarker, "@date: %s", err)
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], uint16(year))
	b[2], b[3] = byte(month), byte(day)
	return &Reduce{
		Callable: &Global{Module: "datetime", Name: "date"},
		Args:     &Tuple{Items: []Value{&Bytes{V: b}}},
	}, nil
}

// detectTime recognizes Global("datetime","time") over a 6-byte state,
// with the same optional tzinfo argument as datetime.
func detectTime(r *Reduce) (jsonValue interface{}, ok bool) {
	if !sameGlobal(r.Callable, "datetime", "time") || r.Args == nil || len(r.Args.Items) < 1 {
		return nil, false
	}
	raw, isB := r.Args.Items[0].(*Bytes)
	if !isB || len(raw.V) != 6 {
		return nil, false
	}
	hour, min, sec := int(raw.V[0]), int(raw.V[1]), int(raw.V[2])
	micro := int(raw.V[3])<<16 | int(raw.V[4])<<8 | int(raw.V[5])

	text := fmt.Sprintf("%02d:%02d:%02d", hour, min, sec)
	if micro != 0 {
		text += fmt.Sprintf(".%06d", micro)
	}
	out := map[string]interface{}{"@time": text}
	if len(r.Args.Items) >= 2 {
		loc, companion, tzOK := detectTZInfo(r.Args.Items[1])
		if !tzOK {
			return nil, false
		}
		if companion != nil {
			out["@tz"] = companion
		} else {
			// Fixed-offset time: fold the offset into the text, same as datetime.
			t := time.Date(1, 1, 1, hour, min, sec, micro*1000, loc)
			_, off := t.Zone()
			sign := "+"
			if off < 0 {
				sign = "-"
				off = -off
			}
			out["@time"] = text + fmt.Sprintf("%s%02d:%02d", sign, off/3600, (off%3600)/60)
		}
	}
	return out, true
}

func buildTime(s string) (*Reduce, error) {
	offsetIdx := -1
	if idx := strings.LastIndexAny(s, "+-"); idx > 5 {
		offsetIdx = idx
	}
	timePart := s
	offset := ""
	if offsetIdx >= 0 {
		timePart = s[:offsetIdx]
		offset = s[offsetIdx:]
	}
	var hour, min, sec, micro int
	timePart = strings.Replace(timePart, ".", ":", 1)
	pieces := strings.Split(timePart, ":")
	if len(pieces) < 3 {
		return nil, newCodecError(BadMarker, "@time: malformed %q", s)
	}
	hour, _ = strconv.Atoi(pieces[0])
	min, _ = strconv.Atoi(pieces[1])
	sec, _ = strconv.Atoi(pieces[2])
	if len(pieces) == 4 {
		fracStr := pieces[3]
		for len(fracStr) < 6 {
			fracStr += "0"
		}
		micro, _ = strconv.Atoi(fracStr[:6])
	}
	b := make([]byte, 6)
	b[0], b[1], b[2] = byte(hour), byte(min), byte(sec)
	b[3] = byte(micro >> 16)
	b[4] = byte(micro >> 8)
	b[5] = byte(micro)
	args := []Value{&Bytes{V: b}}
	if offset != "" {
		secs := parseISOOffsetSeconds(offset)
		args = append(args, &Reduce{
			Callable: &Global{Module: "datetime", Name: "timezone"},
			Args: &Tuple{Items: []Value{
				&Reduce{
					Callable: &Global{Module: "datetime", Name: "timedelta"},
					Args:     &Tuple{Items: []Value{&Int{V: 0}, &Int{V: int64(secs)}, &Int{V: 0}}},
				},
			}},
		})
	}
	return &Reduce{
		Callable: &Global{Module: "datetime", Name: "time"},
		Args:     &Tuple{Items: args},
	}, nil
}

// ---- timedelta ----

func detectTimedelta(r *Reduce) (jsonValue interface{}, ok bool) {
	days, secs, micros, tdOK := decodeTimedeltaArgsDirect(r)
	if !tdOK {
		return nil, false
	}
	return map[string]interface{}{"@td": []interface{}{days, secs, micros}}, true
}

func decodeTimedeltaArgsDirect(r *Reduce) (days, secs, micros int64, ok bool) {
	if !sameGlobal(r.Callable, "datetime", "timedelta") || r.Args == nil || len(r.Args.Items) != 3 {
		return 0, 0, 0, false
	}
	d, ok1 := asInt(r.Args.Items[0])
	s, ok2 := asInt(r.Args.Items[1])
	us, ok3 := asInt(r.Args.Items[2])
	return d, s, us, ok1 && ok2 && ok3
}

func buildTimedelta(arr []interface{}) (*Reduce, error) {
	if len(arr) != 3 {
		return nil, newCodecError(BadMarker, "@td: expected [days,seconds,microseconds]")
	}
	return &Reduce{
		Callable: &Global{Module: "datetime", Name: "timedelta"},
		Args: &Tuple{Items: []Value{
			&Int{V: jsonToInt(arr[0])}, &Int{V: jsonToInt(arr[1])}, &Int{V: jsonToInt(arr[2])},
		}},
	}, nil
}

// ---- Decimal ----

func detectDecimal(r *Reduce) (jsonValue interface{}, ok bool) {
	if !sameGlobal(r.Callable, "decimal", "Decimal") || r.Args == nil || len(r.Args.Items) != 1 {
		return nil, false
	}
	s, isStr := r.Args.Items[0].(*Str)
	if !isStr {
		return nil, false
	}
	return map[string]interface{}{"@dec": s.V}, true
}

func buildDecimal(s string) *Reduce {
	return &Reduce{
		Callable: &Global{Module: "decimal", Name: "Decimal"},
		Args:     &Tuple{Items: []Value{&Str{V: s}}},
	}
}

// ---- UUID ----

func detectUUID(r *Reduce) (jsonValue interface{}, ok bool) {
	if !sameGlobal(r.Callable, "uuid", "UUID") || r.Args == nil || len(r.Args.Items) != 1 {
		return nil, false
	}
	s, isStr := r.Args.Items[0].(*Str)
	if !isStr {
		return nil, false
	}
	id, err := uuid.Parse(s.V)
	if err != nil {
		return nil, false
	}
	return map[string]interface{}{"@uuid": id.String()}, true
}

func buildUUID(s string) (*Reduce, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, newCodecError(BadMarker, "@uuid: %s", err)
	}
	return &Reduce{
		Callable: &Global{Module: "uuid", Name: "UUID"},
		Args:     &Tuple{Items: []Value{&Str{V: id.String()}}},
	}, nil
}

// ---- set / frozenset ----

func detectBuiltinSet(r *Reduce, wantFrozen bool) (items []Value, ok bool) {
	name := "set"
	if wantFrozen {
		name = "frozenset"
	}
	if !sameGlobal(r.Callable, "builtins", name) || r.Args == nil || len(r.Args.Items) != 1 {
		return nil, false
	}
	l, isList := r.Args.Items[0].(*List)
	if !isList {
		return nil, false
	}
	return l.Items, true
}

func buildBuiltinSet(items []Value, frozen bool) *Reduce {
	name := "set"
	if frozen {
		name = "frozenset"
	}
	return &Reduce{
		Callable: &Global{Module: "builtins", Name: name},
		Args:     &Tuple{Items: []Value{&List{Items: items}}},
	}
}
