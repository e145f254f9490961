package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Generation string `json:"generation"`
	Documents  int    `json:"documents"`
}

func TestEncodeRoundTrip(t *testing.T) {
	msg, err := encode(Event{Type: "index.complete", Key: "g1", Value: payload{Generation: "g1", Documents: 3}})
	require.NoError(t, err)
	assert.Equal(t, []byte("g1"), msg.Key)
	assert.JSONEq(t, `{"generation":"g1","documents":3}`, string(msg.Value))

	msg.Partition, msg.Offset = 2, 42
	m := toMessage(msg)
	assert.Equal(t, "index.complete", m.Type)
	assert.Equal(t, 2, m.Partition)
	assert.Equal(t, int64(42), m.Offset)

	decoded, err := DecodeJSON[payload](m.Value)
	require.NoError(t, err)
	assert.Equal(t, payload{Generation: "g1", Documents: 3}, decoded)
}

func TestEncodeWithoutType(t *testing.T) {
	msg, err := encode(Event{Key: "k", Value: 1})
	require.NoError(t, err)
	assert.Empty(t, msg.Headers)
	assert.Empty(t, toMessage(msg).Type)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Type: "index.complete", Value: make(chan int)})
	assert.ErrorIs(t, err, ErrEncode)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[payload]([]byte("{"))
	assert.Error(t, err)
}

func TestToMessageIgnoresOtherHeaders(t *testing.T) {
	m := toMessage(kafka.Message{Headers: []kafka.Header{{Key: "trace", Value: []byte("x")}}})
	assert.Empty(t, m.Type)
}
