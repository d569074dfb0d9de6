package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJsonrpcIDRequestHasID(t *testing.T) {
	t.Parallel()
	id, ok := jsonrpcID(json.RawMessage(`{"jsonrpc":"2.0","id":"abc","method":"initialize"}`))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestJsonrpcIDNumericID(t *testing.T) {
	t.Parallel()
	id, ok := jsonrpcID(json.RawMessage(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
	assert.True(t, ok)
	assert.Equal(t, "7", id)
}

func TestJsonrpcIDNotificationHasNoID(t *testing.T) {
	t.Parallel()
	_, ok := jsonrpcID(json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.False(t, ok)
}

func TestJsonrpcIDNullIDTreatedAsAbsent(t *testing.T) {
	t.Parallel()
	_, ok := jsonrpcID(json.RawMessage(`{"jsonrpc":"2.0","id":null,"method":"ping"}`))
	assert.False(t, ok)
}

func TestJsonrpcIDMalformedMessage(t *testing.T) {
	t.Parallel()
	_, ok := jsonrpcID(json.RawMessage(`not json`))
	assert.False(t, ok)
}
