package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEchoFilterMatchHeadRemovesOnMatch(t *testing.T) {
	var f echoFilter
	m1 := Message{ID: 1}
	m2 := Message{ID: 2}
	f.push(m1)
	f.push(m2)

	assert.False(t, f.matchHead(m2), "head is m1, not m2")
	assert.True(t, f.matchHead(m1))
	assert.Equal(t, 1, f.len())
	assert.True(t, f.matchHead(m2))
	assert.Equal(t, 0, f.len())
}

func TestEchoFilterMatchHeadOnEmptyIsFalse(t *testing.T) {
	var f echoFilter
	assert.False(t, f.matchHead(Message{ID: 1}))
}

func TestEchoFilterDropsOldestOnOverflow(t *testing.T) {
	var f echoFilter
	for i := 0; i < maxFilterLen; i++ {
		f.push(Message{ID: uint32(i)})
	}
	dropped := f.push(Message{ID: 999999})
	assert.True(t, dropped)
	assert.Equal(t, maxFilterLen, f.len())
	// The oldest entry (ID 0) must have been evicted, so the new head is ID 1.
	assert.True(t, f.matchHead(Message{ID: 1}))
}
