package pubsub

import (
	"fmt"
	"strconv"
)

// Message is one event on the pub/sub fabric: three ASCII-decimal fields,
// no terminators (spec.md §6 "Pub/Sub wire").
type Message struct {
	ID, Data1, Data2 uint32
}

// Encode renders m as three multipart frames.
func Encode(m Message) [][]byte {
	return [][]byte{
		[]byte(strconv.FormatUint(uint64(m.ID), 10)),
		[]byte(strconv.FormatUint(uint64(m.Data1), 10)),
		[]byte(strconv.FormatUint(uint64(m.Data2), 10)),
	}
}

// Decode parses three multipart frames into a Message. Parse failure on
// any field logs a read error and drops the whole event (spec.md §6); the
// caller is responsible for the logging, Decode only reports the error.
func Decode(parts [][]byte) (Message, error) {
	if len(parts) != 3 {
		return Message{}, fmt.Errorf("pubsub: expected 3 parts, got %d", len(parts))
	}
	id, err := strconv.ParseUint(string(parts[0]), 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("pubsub: decode id: %w", err)
	}
	d1, err := strconv.ParseUint(string(parts[1]), 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("pubsub: decode data1: %w", err)
	}
	d2, err := strconv.ParseUint(string(parts[2]), 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("pubsub: decode data2: %w", err)
	}
	return Message{ID: uint32(id), Data1: uint32(d1), Data2: uint32(d2)}, nil
}
