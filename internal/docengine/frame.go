// Package docengine implements the per-document CRDT room engine (spec §4.3).
package docengine

import (
	"encoding/binary"
	"fmt"
)

// FrameType is the outer wire-frame discriminator for the CRDT channel.
type FrameType uint64

const (
	FrameSync      FrameType = 0
	FrameAwareness FrameType = 1
	FrameFileOp    FrameType = 2
)

// maxFrameSize is the inbound frame size cap for the CRDT channel (spec §5).
const maxFrameSize = 10 * 1024 * 1024

// DecodeFrame splits a raw WebSocket binary message into its varint frame
// type and body. An unrecognized type is returned as-is; callers must drop
// it silently per spec §4.3.
func DecodeFrame(msg []byte) (FrameType, []byte, error) {
	if len(msg) > maxFrameSize {
		return 0, nil, fmt.Errorf("docengine: frame exceeds max size")
	}
	v, n := binary.Uvarint(msg)
	if n <= 0 {
		return 0, nil, fmt.Errorf("docengine: malformed frame header")
	}
	return FrameType(v), msg[n:], nil
}

// EncodeFrame prefixes body with its varint frame type.
func EncodeFrame(t FrameType, body []byte) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(t))
	out := make([]byte, 0, n+len(body))
	out = append(out, buf[:n]...)
	out = append(out, body...)
	return out
}

// SyncMessageType discriminates the sub-messages carried by a sync frame.
type SyncMessageType uint64

const (
	SyncStep1  SyncMessageType = 0 // body: requester's state vector
	SyncStep2  SyncMessageType = 1 // body: length-prefixed updates the requester is missing
	SyncUpdate SyncMessageType = 2 // body: one incremental update inbound; a length-prefixed updates blob in server broadcasts
)

// EncodeSyncStep1 builds a sync frame carrying a step-1 state-vector query.
func EncodeSyncStep1(sv uint64) []byte {
	return EncodeFrame(FrameSync, encodeSyncBody(SyncStep1, encodeUvarint(sv)))
}

// EncodeSyncStep2 builds a sync frame carrying the updates a peer is missing.
func EncodeSyncStep2(updatesBlob []byte) []byte {
	return EncodeFrame(FrameSync, encodeSyncBody(SyncStep2, updatesBlob))
}

// EncodeSyncUpdate builds an incremental-update sync frame around payload.
// The document engine passes a length-prefixed updates blob (see joinUpdates).
func EncodeSyncUpdate(update []byte) []byte {
	return EncodeFrame(FrameSync, encodeSyncBody(SyncUpdate, update))
}

func encodeSyncBody(t SyncMessageType, payload []byte) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(t))
	out := make([]byte, 0, n+len(payload))
	out = append(out, buf[:n]...)
	out = append(out, payload...)
	return out
}

// DecodeSync splits a sync frame's body into its sub-message type and payload.
func DecodeSync(body []byte) (SyncMessageType, []byte, error) {
	v, n := binary.Uvarint(body)
	if n <= 0 {
		return 0, nil, fmt.Errorf("docengine: malformed sync sub-message")
	}
	return SyncMessageType(v), body[n:], nil
}

func encodeUvarint(v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return buf[:n]
}

func decodeUvarint(b []byte) (uint64, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, fmt.Errorf("docengine: malformed state vector")
	}
	return v, nil
}
