package docengine

import (
	"encoding/binary"
	"fmt"
)

// Awareness wire format, per entry: varint id, varint clock, byte flag
// (0 = present, 1 = removed), then [varint len, state bytes] when present.

// EncodeAwareness builds an awareness frame body encoding the given ids.
// A nil entry in states marks that id as removed.
func EncodeAwareness(ids []uint32, clocks []uint32, states [][]byte) []byte {
	var out []byte
	var buf [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(buf[:], v)
		out = append(out, buf[:n]...)
	}

	for i, id := range ids {
		putUvarint(uint64(id))
		putUvarint(uint64(clocks[i]))
		if states[i] == nil {
			out = append(out, 1)
			continue
		}
		out = append(out, 0)
		putUvarint(uint64(len(states[i])))
		out = append(out, states[i]...)
	}
	return out
}

// DecodeAwareness parses an awareness frame body into parallel id/clock/state
// slices, with a nil state marking a removal.
func DecodeAwareness(body []byte) (ids []uint32, clocks []uint32, states [][]byte, err error) {
	for len(body) > 0 {
		id64, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, nil, nil, fmt.Errorf("docengine: malformed awareness id")
		}
		body = body[n:]

		clock64, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, nil, nil, fmt.Errorf("docengine: malformed awareness clock")
		}
		body = body[n:]

		if len(body) < 1 {
			return nil, nil, nil, fmt.Errorf("docengine: truncated awareness entry")
		}
		flag := body[0]
		body = body[1:]

		ids = append(ids, uint32(id64))
		clocks = append(clocks, uint32(clock64))

		if flag == 1 {
			states = append(states, nil)
			continue
		}

		length, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, nil, nil, fmt.Errorf("docengine: malformed awareness state length")
		}
		body = body[n:]
		if uint64(len(body)) < length {
			return nil, nil, nil, fmt.Errorf("docengine: truncated awareness state")
		}
		states = append(states, body[:length])
		body = body[length:]
	}
	return ids, clocks, states, nil
}
