// Package serial implements the Serial Link of spec.md §4.6: a framed,
// acknowledged, length-checksummed transport over a reconnectable byte
// stream. Byte-exact to the spec's framing constants.
package serial

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Framing constants (spec.md §4.6), byte-exact.
const (
	FieldSep   byte = 0x2C
	CommandSep byte = 0x3B
	Escape     byte = 0x2F
	Nul        byte = 0x00

	EventLeadByte byte = 0x30
	AckLeadByte   byte = 0x31
)

func needsEscape(b byte) bool {
	return b == FieldSep || b == CommandSep || b == Escape || b == Nul
}

func encodeField(v uint32, out *bytes.Buffer) {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], v)
	for _, b := range raw {
		if needsEscape(b) {
			out.WriteByte(Escape)
		}
		out.WriteByte(b)
	}
}

func decodeField(raw []byte) (uint32, error) {
	if len(raw) != 4 {
		return 0, fmt.Errorf("serial: field must be 4 bytes, got %d", len(raw))
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// EncodeEvent serializes an EVENT message. withChecksum appends the XOR
// checksum field.
func EncodeEvent(id, data1, data2 uint32, withChecksum bool) []byte {
	var buf bytes.Buffer
	buf.WriteByte(EventLeadByte)
	encodeField(id, &buf)
	buf.WriteByte(FieldSep)
	encodeField(data1, &buf)
	buf.WriteByte(FieldSep)
	encodeField(data2, &buf)
	if withChecksum {
		buf.WriteByte(FieldSep)
		encodeField(id^data1^data2, &buf)
	}
	buf.WriteByte(CommandSep)
	return buf.Bytes()
}

// EncodeAck serializes an ACK message. checksum is nil when checksums are
// disabled or the peer's frame carried none.
func EncodeAck(checksum *uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(AckLeadByte)
	if checksum != nil {
		encodeField(*checksum, &buf)
	}
	buf.WriteByte(CommandSep)
	return buf.Bytes()
}

// DecodedMessage is either a decoded EVENT or a decoded ACK.
type DecodedMessage struct {
	IsEvent bool

	ID, Data1, Data2 uint32

	HasChecksum bool
	Checksum    uint32
}

// decoderState is the receiver FSM state (spec.md §4.6 "Receiver state
// machine").
type decoderState int

const (
	stateAwait decoderState = iota
	stateReadEvent
	stateReadAck
)

// Decoder is the byte-at-a-time receiver state machine. It is not safe for
// concurrent use; one Decoder per Link reader goroutine.
type Decoder struct {
	state    decoderState
	cur      []byte
	fields   [][]byte
	escaping bool
}

// Feed consumes one wire byte. It returns (msg, true, nil) when a complete
// message is available, (zero, false, nil) when more bytes are needed, and
// (zero, false, err) when a just-completed frame failed to decode (bad
// field width or checksum mismatch) — the decoder has already reset to
// Await and the caller should log err and continue reading.
func (d *Decoder) Feed(b byte) (DecodedMessage, bool, error) {
	switch d.state {
	case stateAwait:
		switch b {
		case EventLeadByte:
			d.reset(stateReadEvent)
		case AckLeadByte:
			d.reset(stateReadAck)
		}
		return DecodedMessage{}, false, nil
	default:
		if d.escaping {
			d.cur = append(d.cur, b)
			d.escaping = false
			return DecodedMessage{}, false, nil
		}
		switch b {
		case Escape:
			d.escaping = true
			return DecodedMessage{}, false, nil
		case FieldSep:
			d.fields = append(d.fields, d.cur)
			d.cur = nil
			return DecodedMessage{}, false, nil
		case CommandSep:
			return d.finish()
		default:
			d.cur = append(d.cur, b)
			return DecodedMessage{}, false, nil
		}
	}
}

func (d *Decoder) reset(state decoderState) {
	d.state = state
	d.fields = nil
	d.cur = nil
	d.escaping = false
}

func (d *Decoder) finish() (DecodedMessage, bool, error) {
	if len(d.cur) > 0 {
		d.fields = append(d.fields, d.cur)
	}
	fields := d.fields
	wasEvent := d.state == stateReadEvent
	d.reset(stateAwait)

	if wasEvent {
		return decodeEventFields(fields)
	}
	return decodeAckFields(fields)
}

func decodeEventFields(fields [][]byte) (DecodedMessage, bool, error) {
	if len(fields) != 3 && len(fields) != 4 {
		return DecodedMessage{}, false, fmt.Errorf("serial: event frame expected 3 or 4 fields, got %d", len(fields))
	}
	id, err := decodeField(fields[0])
	if err != nil {
		return DecodedMessage{}, false, err
	}
	d1, err := decodeField(fields[1])
	if err != nil {
		return DecodedMessage{}, false, err
	}
	d2, err := decodeField(fields[2])
	if err != nil {
		return DecodedMessage{}, false, err
	}
	msg := DecodedMessage{IsEvent: true, ID: id, Data1: d1, Data2: d2}
	if len(fields) == 4 {
		cksum, err := decodeField(fields[3])
		if err != nil {
			return DecodedMessage{}, false, err
		}
		if cksum != id^d1^d2 {
			return DecodedMessage{}, false, fmt.Errorf("serial: event checksum mismatch")
		}
		msg.HasChecksum = true
		msg.Checksum = cksum
	}
	return msg, true, nil
}

func decodeAckFields(fields [][]byte) (DecodedMessage, bool, error) {
	if len(fields) > 1 {
		return DecodedMessage{}, false, fmt.Errorf("serial: ack frame expected 0 or 1 fields, got %d", len(fields))
	}
	msg := DecodedMessage{IsEvent: false}
	if len(fields) == 1 {
		cksum, err := decodeField(fields[0])
		if err != nil {
			return DecodedMessage{}, false, err
		}
		msg.HasChecksum = true
		msg.Checksum = cksum
	}
	return msg, true, nil
}
