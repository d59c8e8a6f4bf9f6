package serial_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/serial"
)

func feedAll(t *testing.T, d *serial.Decoder, frame []byte) (serial.DecodedMessage, error) {
	t.Helper()
	for i, b := range frame {
		msg, done, err := d.Feed(b)
		if err != nil {
			return msg, err
		}
		if done {
			require.Equal(t, len(frame)-1, i, "frame completed before its final byte")
			return msg, nil
		}
	}
	t.Fatal("frame never completed")
	return serial.DecodedMessage{}, nil
}

func TestEventRoundTripWithoutChecksum(t *testing.T) {
	frame := serial.EncodeEvent(1, 2, 3, false)
	var d serial.Decoder
	msg, err := feedAll(t, &d, frame)
	require.NoError(t, err)
	assert.True(t, msg.IsEvent)
	assert.Equal(t, uint32(1), msg.ID)
	assert.Equal(t, uint32(2), msg.Data1)
	assert.Equal(t, uint32(3), msg.Data2)
	assert.False(t, msg.HasChecksum)
}

func TestEventRoundTripWithChecksum(t *testing.T) {
	frame := serial.EncodeEvent(10, 20, 30, true)
	var d serial.Decoder
	msg, err := feedAll(t, &d, frame)
	require.NoError(t, err)
	assert.True(t, msg.HasChecksum)
	assert.Equal(t, uint32(10^20^30), msg.Checksum)
}

// noEscapeTriple picks three field values whose little-endian bytes (and
// whose XOR checksum bytes) never collide with a framing byte, so the
// encoded frame has a fixed, predictable length with no escape bytes.
// Used by tests that corrupt a frame at a specific offset.
func noEscapeTriple() (id, data1, data2 uint32) {
	return 0x01010101, 0x02020202, 0x05050505 // checksum = 0x06060606, also escape-free
}

func TestEventChecksumMismatchIsRejected(t *testing.T) {
	id, data1, data2 := noEscapeTriple()
	frame := serial.EncodeEvent(id, data1, data2, true)
	// Corrupt data2's low byte: lead(1) + id(4) + sep(1) + data1(4) + sep(1).
	frame[1+4+1+4+1] ^= 0x01
	var d serial.Decoder
	_, err := feedAll(t, &d, frame)
	require.Error(t, err)
}

func TestAckRoundTripWithChecksum(t *testing.T) {
	cksum := uint32(42)
	frame := serial.EncodeAck(&cksum)
	var d serial.Decoder
	msg, err := feedAll(t, &d, frame)
	require.NoError(t, err)
	assert.False(t, msg.IsEvent)
	assert.True(t, msg.HasChecksum)
	assert.Equal(t, cksum, msg.Checksum)
}

func TestAckRoundTripWithoutChecksum(t *testing.T) {
	frame := serial.EncodeAck(nil)
	var d serial.Decoder
	msg, err := feedAll(t, &d, frame)
	require.NoError(t, err)
	assert.False(t, msg.HasChecksum)
}

// TestEscapingPreservesFieldBytesThatCollideWithFraming picks field values
// whose little-endian bytes include every byte that needsEscape() flags
// (comma, semicolon, slash, NUL), and checks the decoder still recovers
// the exact original values.
func TestEscapingPreservesFieldBytesThatCollideWithFraming(t *testing.T) {
	// Little-endian layout of 0x002F3B2C: bytes [0x2C, 0x3B, 0x2F, 0x00].
	tricky := uint32(0x002F3B2C)
	frame := serial.EncodeEvent(tricky, tricky, tricky, true)
	var d serial.Decoder
	msg, err := feedAll(t, &d, frame)
	require.NoError(t, err)
	assert.Equal(t, tricky, msg.ID)
	assert.Equal(t, tricky, msg.Data1)
	assert.Equal(t, tricky, msg.Data2)
}

func TestDecoderResetsAfterMalformedFrame(t *testing.T) {
	var d serial.Decoder
	id, data1, data2 := noEscapeTriple()
	frame := serial.EncodeEvent(id, data1, data2, true)
	frame[1+4+1+4+1] ^= 0x01
	_, err := feedAll(t, &d, frame)
	require.Error(t, err)

	// The decoder must be back in Await and able to decode a fresh frame.
	good := serial.EncodeEvent(5, 6, 7, false)
	msg, err := feedAll(t, &d, good)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), msg.ID)
}
