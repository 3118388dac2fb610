package pgpickle

// SniffProtocol reports the pickle protocol version a stream declares via
// its leading PROTO opcode, without running a full decode. Pre-protocol-2
// streams have no PROTO opcode;
// SniffProtocol reports protocol 0 for those, matching pickle's own
// default when a stream omits the marker.
func SniffProtocol(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, newCodecError(Truncated, "sniff: empty input")
	}
	if data[0] != opProto {
		return 0, nil
	}
	if len(data) < 2 {
		return 0, newCodecError(Truncated, "sniff: truncated PROTO opcode")
	}
	return int(data[1]), nil
}
