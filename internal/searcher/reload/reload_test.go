package reload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinochka/OIP/internal/indexer"
	"github.com/labinochka/OIP/internal/indexer/index"
	apperrors "github.com/labinochka/OIP/pkg/errors"
	"github.com/labinochka/OIP/pkg/kafka"
)

type fakeReloader struct {
	serving string
	next    string
	err     error
	calls   int
}

func (f *fakeReloader) Reload(context.Context) (index.Summary, error) {
	f.calls++
	if f.err != nil {
		return index.Summary{}, f.err
	}
	f.serving = f.next
	return index.Summary{Generation: f.next, Documents: 3}, nil
}

func (f *fakeReloader) Generation() string { return f.serving }

type countingCache struct{ flushes int }

func (c *countingCache) Invalidate(context.Context) error {
	c.flushes++
	return nil
}

func message(t *testing.T, eventType string, event indexer.IndexCompleteEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Type: eventType, Value: value}
}

func TestReloadsOnNewGeneration(t *testing.T) {
	r := &fakeReloader{serving: "g1", next: "g2"}
	c := &countingCache{}
	h := New(r, c, time.Second)

	require.NoError(t, h.HandleMessage(context.Background(), message(t, indexer.EventIndexComplete, indexer.IndexCompleteEvent{Generation: "g2"})))
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "g2", r.serving)
	assert.Equal(t, 1, c.flushes)

	// A redelivered event for the served generation is a no-op.
	require.NoError(t, h.HandleMessage(context.Background(), message(t, indexer.EventIndexComplete, indexer.IndexCompleteEvent{Generation: "g2"})))
	assert.Equal(t, 1, r.calls)
}

func TestReloadFailureIsReturned(t *testing.T) {
	r := &fakeReloader{serving: "g1", err: errors.New("corrupt index")}
	h := New(r, nil, 0)
	err := h.HandleMessage(context.Background(), message(t, "", indexer.IndexCompleteEvent{Generation: "g2"}))
	assert.Error(t, err)
	assert.Equal(t, "g1", r.serving)
}

func TestIgnoresForeignAndMalformed(t *testing.T) {
	r := &fakeReloader{serving: "g1", next: "g2"}
	h := New(r, nil, 0)

	require.NoError(t, h.HandleMessage(context.Background(), message(t, "document.ingested", indexer.IndexCompleteEvent{Generation: "g2"})))
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.Equal(t, 0, r.calls)
}

func TestReloadsWhenNothingServed(t *testing.T) {
	r := &fakeReloader{next: "g1"}
	h := New(r, nil, time.Second)
	require.NoError(t, h.Apply(context.Background(), indexer.IndexCompleteEvent{Generation: "g1"}))
	assert.Equal(t, "g1", r.serving)
}

type stuckReloader struct{}

func (stuckReloader) Reload(ctx context.Context) (index.Summary, error) {
	<-ctx.Done()
	return index.Summary{}, ctx.Err()
}

func (stuckReloader) Generation() string { return "g1" }

func TestReloadTimesOut(t *testing.T) {
	c := &countingCache{}
	h := New(stuckReloader{}, c, 10*time.Millisecond)
	err := h.Apply(context.Background(), indexer.IndexCompleteEvent{Generation: "g2"})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, 0, c.flushes)
}
