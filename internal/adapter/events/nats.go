// Package events publishes batch job notifications over NATS so a worker in
// another process can skip its idle wait.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
)

const connectTimeout = 5 * time.Second

// JobCreatedEvent is the payload published when a batch job is created.
type JobCreatedEvent struct {
	MessageID string    `json:"message_id"`
	JobID     string    `json:"job_id"`
	SubjectID string    `json:"subject_id"`
	Provider  string    `json:"provider"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Notifier implements batch.Notifier on a NATS subject.
type Notifier struct {
	conn    conn
	subject string
	logger  infra.Logger
}

// Connect dials NATS with reconnects enabled and connection events logged.
func Connect(url, name string, logger infra.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

func NewNotifier(c conn, subject string, logger infra.Logger) *Notifier {
	return &Notifier{conn: c, subject: subject, logger: logger}
}

// JobCreated publishes a JobCreatedEvent for job.
func (n *Notifier) JobCreated(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	evt := JobCreatedEvent{
		MessageID: uuid.NewString(),
		JobID:     job.ID,
		SubjectID: job.SubjectID,
		Provider:  job.Config.Provider,
		Total:     job.Progress.Total,
		CreatedAt: job.CreatedAt,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	n.logger.Debug().Str("job_id", job.ID).Str("subject", n.subject).Msg("nats: job event published")
	return nil
}

// Listen calls onEvent for every job event until ctx is done.
func (n *Notifier) Listen(ctx context.Context, onEvent func(JobCreatedEvent)) error {
	sub, err := n.conn.Subscribe(n.subject, n.handler(onEvent))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	n.logger.Info().Str("subject", n.subject).Msg("nats: listening for job events")
	<-ctx.Done()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	return nil
}

func (n *Notifier) handler(onEvent func(JobCreatedEvent)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var evt JobCreatedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			n.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("nats: dropping malformed job event")
			return
		}
		onEvent(evt)
	}
}
