package pubsub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/pubsub"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := pubsub.Message{ID: 7, Data1: 42, Data2: 0}
	parts := pubsub.Encode(m)
	require.Len(t, parts, 3)

	got, err := pubsub.Decode(parts)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeRejectsWrongPartCount(t *testing.T) {
	_, err := pubsub.Decode([][]byte{[]byte("1"), []byte("2")})
	require.Error(t, err)
}

func TestDecodeRejectsNonNumericField(t *testing.T) {
	_, err := pubsub.Decode([][]byte{[]byte("nope"), []byte("1"), []byte("2")})
	require.Error(t, err)
}
