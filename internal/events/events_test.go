package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/directory"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/resilience"
)

type memWriter struct {
	msgs  []segkafka.Message
	err   error
	calls int
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...segkafka.Message) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func newPublisher() (*Publisher, *memWriter) {
	w := &memWriter{}
	p := NewPublisher(kafka.NewProducerWithWriter(w, "term-events"))
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, w
}

func names(svc *service.Service) []string {
	var out []string
	for _, t := range svc.All() {
		out = append(out, t.Line())
	}
	return out
}

func TestPublisher_EncodesChanges(t *testing.T) {
	p, w := newPublisher()
	ctx := context.Background()

	require.NoError(t, p.Notify(ctx, service.Change{Op: service.OpAdd, Name: "apple", Pages: []uint32{3, 7}}))
	require.NoError(t, p.Notify(ctx, service.Change{Op: service.OpRename, Name: "apple", NewName: "pear"}))
	require.NoError(t, p.Notify(ctx, service.Change{Op: service.OpLoad, Name: "terms.txt"}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "apple", string(w.msgs[0].Key))
	assert.JSONEq(t,
		`{"type":"term_added","name":"apple","pages":[3,7],"timestamp":"2024-05-01T12:00:00Z"}`,
		string(w.msgs[0].Value))

	var renamed TermEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &renamed))
	assert.Equal(t, TermRenamed, renamed.Type)
	assert.Equal(t, "pear", renamed.NewName)
}

func TestPublisher_BreakerStopsCallingDeadBroker(t *testing.T) {
	p, w := newPublisher()
	w.err = errors.New("no brokers")
	ctx := context.Background()
	c := service.Change{Op: service.OpRemove, Name: "x"}

	for i := 0; i < 5; i++ {
		assert.Error(t, p.Notify(ctx, c))
	}
	assert.Equal(t, 5, w.calls)

	err := p.Notify(ctx, c)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 5, w.calls)
	assert.Equal(t, health.StatusDown, p.Check(ctx).Status)
}

func TestReplicaFollowsPrimary(t *testing.T) {
	p, w := newPublisher()
	ctx := context.Background()
	primary := service.New(directory.New(), service.WithNotifier(p))
	replica := service.New(directory.New())

	require.NoError(t, primary.Add(ctx, "apple", 3, 7))
	require.NoError(t, primary.Add(ctx, "app", 5))
	require.NoError(t, primary.Add(ctx, "dog", 1))
	require.NoError(t, primary.Add(ctx, "doll", 2))
	_, _, err := primary.Rename(ctx, "dog", "doll")
	require.NoError(t, err)
	_, err = primary.RemovePage(ctx, "apple", 3)
	require.NoError(t, err)
	require.NoError(t, primary.Remove(ctx, "app"))

	handle := HandleMessage(replica, nil)
	for _, msg := range w.msgs {
		require.NoError(t, handle(ctx, msg.Key, msg.Value))
	}

	assert.Equal(t, names(primary), names(replica))
	assert.Equal(t, []string{"apple: 7", "doll: 1, 2"}, names(replica))
}

func TestHandleMessage_SkipsBadInput(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := service.New(directory.New())
	handle := HandleMessage(svc, m)
	ctx := context.Background()

	assert.NoError(t, handle(ctx, []byte("k"), []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"term_added","name":"  ","pages":[1]}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"term_added","name":"zero","pages":[0]}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"term_removed","name":"ghost"}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"something_else","name":"x"}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"term_added","name":"Heap","pages":[4,2]}`)))

	assert.Equal(t, []string{"heap: 2, 4"}, names(svc))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumedTotal.WithLabelValues("unknown", "decode_error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsConsumedTotal.WithLabelValues("term_added", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumedTotal.WithLabelValues("term_added", "applied")))
}
