package pgpickle

import "testing"

func TestSniffProtocolFromEncodedStream(t *testing.T) {
	data, err := Encode(&Int{V: 1})
	if err != nil {
		t.Fatal(err)
	}
	proto, err := SniffProtocol(data)
	if err != nil {
		t.Fatal(err)
	}
	if proto != 2 {
		t.Fatalf("expected protocol 2, got %d", proto)
	}
}

func TestSniffProtocolFromExplicitHeader(t *testing.T) {
	for _, version := range []byte{0, 1, 2, 3, 4, 5} {
		data := []byte{opProto, version, opNone, opStop}
		proto, err := SniffProtocol(data)
		if err != nil {
			t.Fatalf("version %d: %v", version, err)
		}
		if proto != int(version) {
			t.Fatalf("expected protocol %d, got %d", version, proto)
		}
	}
}

func TestSniffProtocolNoHeaderDefaultsToZero(t *testing.T) {
	// A stream with no PROTO opcode at all (pre-protocol-2 style) reports
	// protocol 0, matching pickle's own implicit default.
	data := []byte{opNone, opStop}
	proto, err := SniffProtocol(data)
	if err != nil {
		t.Fatal(err)
	}
	if proto != 0 {
		t.Fatalf("expected protocol 0, got %d", proto)
	}
}

func TestSniffProtocolEmptyInput(t *testing.T) {
	_, err := SniffProtocol(nil)
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	kind, ok := KindOf(err)
	if !ok || kind != Truncated {
		t.Fatalf("expected Truncated, got %v", err)
	}
}

func TestSniffProtocolTruncatedHeader(t *testing.T) {
	_, err := SniffProtocol([]byte{opProto})
	if err == nil {
		t.Fatal("expected error for truncated PROTO opcode")
	}
	kind, ok := KindOf(err)
	if !ok || kind != Truncated {
		t.Fatalf("expected Truncated, got %v", err)
	}
}
