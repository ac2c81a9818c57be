package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/domain"
)

type stubConn struct {
	mu         sync.Mutex
	subject    string
	published  [][]byte
	publishErr error
	handler    nats.MsgHandler
}

func (s *stubConn) Publish(subject string, data []byte) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.subject = subject
	s.published = append(s.published, data)
	return nil
}

func (s *stubConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = subject
	s.handler = cb
	return nil, nil
}

func (s *stubConn) subscribed() nats.MsgHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func TestNotifierPublishesJobCreated(t *testing.T) {
	c := &stubConn{}
	n := NewNotifier(c, "storyboard.batch.created", zerolog.Nop())
	job := domain.NewBatchJob("job-1", "script-1", domain.JobConfig{Provider: "wanx"}, []string{"a", "b"}, time.Unix(1700000000, 0).UTC())

	require.NoError(t, n.JobCreated(context.Background(), job))
	require.Len(t, c.published, 1)
	assert.Equal(t, "storyboard.batch.created", c.subject)

	var evt JobCreatedEvent
	require.NoError(t, json.Unmarshal(c.published[0], &evt))
	assert.Equal(t, "job-1", evt.JobID)
	assert.Equal(t, "script-1", evt.SubjectID)
	assert.Equal(t, "wanx", evt.Provider)
	assert.Equal(t, 2, evt.Total)
	assert.NotEmpty(t, evt.MessageID)
}

func TestNotifierPublishError(t *testing.T) {
	c := &stubConn{publishErr: errors.New("nats: connection closed")}
	n := NewNotifier(c, "subj", zerolog.Nop())
	err := n.JobCreated(context.Background(), domain.NewBatchJob("j", "s", domain.JobConfig{}, nil, time.Now()))
	assert.ErrorContains(t, err, "publish job event")
}

func TestNotifierListenDispatchesEvents(t *testing.T) {
	c := &stubConn{}
	n := NewNotifier(c, "subj", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan JobCreatedEvent, 2)
	done := make(chan error, 1)
	go func() {
		done <- n.Listen(ctx, func(evt JobCreatedEvent) { received <- evt })
	}()

	require.Eventually(t, func() bool { return c.subscribed() != nil }, time.Second, 5*time.Millisecond)
	handler := c.subscribed()
	handler(&nats.Msg{Subject: "subj", Data: []byte("not json")})
	handler(&nats.Msg{Subject: "subj", Data: []byte(`{"job_id":"job-9","subject_id":"s9"}`)})

	select {
	case evt := <-received:
		assert.Equal(t, "job-9", evt.JobID)
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
	assert.Empty(t, received, "malformed payloads are dropped")

	cancel()
	require.NoError(t, <-done)
}
