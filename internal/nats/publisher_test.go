package nats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedEvent_Marshal(t *testing.T) {
	ev := NewResolvedEvent([]uint32{5057, 4850}, nil)
	ev.World = "Cactuar"
	ev.Datacenter = "Aether"

	data, err := ev.Marshal()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, []any{float64(5057), float64(4850)}, m["ready"])
	assert.NotContains(t, m, "failed")
	assert.NotContains(t, m, "region")
	assert.Equal(t, "Cactuar", m["world"])
	assert.Greater(t, m["timestamp"], float64(0))
}

func TestNewPublisher_Unreachable(t *testing.T) {
	p, err := NewPublisher("nats://127.0.0.1:1", "")
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	assert.False(t, p.IsConnected())
}
