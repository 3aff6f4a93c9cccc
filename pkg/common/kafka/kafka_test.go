package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/logger"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestPublishEventKeysByAdmission(t *testing.T) {
	logger.Silence()
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "scoring.results")

	err := p.PublishEvent(context.Background(), "hadm-1", EventScoreComputed, "scoring-service", map[string]interface{}{"total_score": 4.0})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "hadm-1", string(w.messages[0].Key))

	var event models.Event
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &event))
	assert.Equal(t, EventScoreComputed, event.Type)
	assert.Equal(t, 4.0, event.Data["total_score"])
	assert.NotEmpty(t, event.ID)
}

func TestPublishEventReturnsWriterError(t *testing.T) {
	logger.Silence()
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("broker down")}, "t")
	assert.Error(t, p.PublishEvent(context.Background(), "", EventScoreFailed, "s", nil))
}

func TestConsumeCommitsHandledAndUndecodableMessages(t *testing.T) {
	logger.Silence()
	good, _ := json.Marshal(models.Event{ID: "e1", Type: EventScoreRequested, Data: map[string]interface{}{"requests": []interface{}{}}})
	bad, _ := json.Marshal(models.Event{ID: "e2", Type: "boom"})

	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		queue: []kafka.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("not json")},
			{Offset: 3, Value: bad},
		},
		cancel: cancel,
	}
	c := NewConsumerWithReader(reader)

	var seen []string
	err := c.Consume(ctx, func(_ context.Context, event models.Event) error {
		seen = append(seen, event.ID)
		if event.Type == "boom" {
			return errors.New("handler failed")
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"e1", "e2"}, seen)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestDecodeData(t *testing.T) {
	event := models.Event{Type: EventScoreRequested, Data: map[string]interface{}{
		"requests": []interface{}{map[string]interface{}{"admission_id": "a1", "schemes": []interface{}{"hfrs"}}},
	}}
	var req models.BatchScoreRequest
	require.NoError(t, DecodeData(event, &req))
	require.Len(t, req.Requests, 1)
	assert.Equal(t, "a1", req.Requests[0].AdmissionID)
	assert.Equal(t, []models.SchemeID{models.SchemeHFRS}, req.Requests[0].Schemes)
}
