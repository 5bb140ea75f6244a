package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	err := p.Publish(context.Background(), &common.ProducerMessage{
		Topic: TopicSubmissionTransitioned,
		Key:   []byte("sub-1"),
		Value: []byte(`{"from":"DRAFT","to":"SUBMITTED"}`),
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, TopicSubmissionTransitioned, w.written[0].Topic)
	assert.Equal(t, []byte("sub-1"), w.written[0].Key)

	sent, failed := p.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
}

func TestProducerPublishValidation(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, logging.NewNopLogger())
	ctx := context.Background()

	err := p.Publish(ctx, &common.ProducerMessage{Value: []byte("x")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))

	err = p.Publish(ctx, &common.ProducerMessage{Topic: TopicDeadLetter})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}

func TestProducerPublishWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	err := p.Publish(context.Background(), &common.ProducerMessage{
		Topic: TopicBatchIngested,
		Value: []byte("{}"),
	})
	require.Error(t, err)
	_, failed := p.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestProducerPublishEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	env, err := NewEventEnvelope("submission.transitioned", "apiserver", SubmissionTransitionedPayload{
		SubmissionID: "sub-9",
		From:         "APPROVED",
		To:           "IN_PROGRESS",
		Actor:        "cro",
		At:           time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, p.PublishEnvelope(context.Background(), TopicSubmissionTransitioned, "sub-9", env))
	require.Len(t, w.written, 1)
	assert.Equal(t, []byte("sub-9"), w.written[0].Key)

	var decoded EventEnvelope
	require.NoError(t, json.Unmarshal(w.written[0].Value, &decoded))
	assert.Equal(t, env.EventID, decoded.EventID)

	var payload SubmissionTransitionedPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "IN_PROGRESS", payload.To)
}

func TestProducerClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), &common.ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.Equal(t, ErrProducerClosed, err)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}
