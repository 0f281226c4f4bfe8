// Package asynqq implements the Queue port and the worker task handlers
// of SPEC_FULL §4.2/§6 over hibiken/asynq. Grounded on the reference
// repo's cmd/worker/main.go wiring template (config -> logger -> pool
// -> producer -> consumer -> signal wait) and its queue-adapter
// package shape, rebuilt against asynq's mux/task model instead of the
// reference's Kafka (redpanda) producer/consumer pair.
package asynqq

import (
	"encoding/json"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Task type names. Tasks of each type are enqueued onto their own
// asynq queue ("personas" and "feedback") so that persona and feedback
// work can be scaled independently (§5 "Worker pool sizing").
const (
	TypePersonaGenerate  = "persona:generate"
	TypeFeedbackGenerate = "feedback:generate"
)

// Producer implements domain.Queue by enqueuing asynq tasks.
type Producer struct {
	client *asynq.Client
}

// NewProducer constructs a Producer from an already-configured asynq
// client (built from the shared Redis connection options).
func NewProducer(client *asynq.Client) *Producer {
	return &Producer{client: client}
}

// EnqueuePersona enqueues a persona-generation task onto the "personas"
// queue.
func (p *Producer) EnqueuePersona(ctx domain.Context, payload domain.PersonaTaskPayload) error {
	tracer := otel.Tracer("queue.asynqq")
	ctx, span := tracer.Start(ctx, "Producer.EnqueuePersona")
	defer span.End()
	span.SetAttributes(attribute.String("persona.id", payload.PersonaID))

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "marshal persona task payload").Wrap(err)
	}
	task := asynq.NewTask(TypePersonaGenerate, data)
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue("personas"), asynq.MaxRetry(defaultMaxRetry))
	if err != nil {
		return domain.NewRetriableError(domain.CodeInternal, "enqueue persona task failed").Wrap(err)
	}
	return nil
}

// EnqueueFeedback enqueues a feedback-generation task onto the
// "feedback" queue.
func (p *Producer) EnqueueFeedback(ctx domain.Context, payload domain.FeedbackTaskPayload) error {
	tracer := otel.Tracer("queue.asynqq")
	ctx, span := tracer.Start(ctx, "Producer.EnqueueFeedback")
	defer span.End()
	span.SetAttributes(attribute.String("feedback_result.id", payload.ResultID))

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "marshal feedback task payload").Wrap(err)
	}
	task := asynq.NewTask(TypeFeedbackGenerate, data)
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue("feedback"), asynq.MaxRetry(defaultMaxRetry))
	if err != nil {
		return domain.NewRetriableError(domain.CodeInternal, "enqueue feedback task failed").Wrap(err)
	}
	return nil
}

// defaultMaxRetry is overridden at wiring time by SetMaxRetry; kept as
// a package var (not a const) so the enqueuing process (cmd/server) can
// apply config.QueueMaxRetry before the first enqueue.
var defaultMaxRetry = 5

// SetMaxRetry configures the asynq.MaxRetry applied to every task this
// producer enqueues, per config.Config.QueueMaxRetry (§4.2 "exhaustion").
func SetMaxRetry(n int) {
	if n > 0 {
		defaultMaxRetry = n
	}
}
