package asynqq

import (
	"github.com/hibiken/asynq"
)

// NewServer builds an asynq.Server configured per §5's worker-pool
// sizing: total concurrency is the sum of the two per-queue values,
// and those same values are the queues' priority weights, so persona
// generation (heavier, rarer) does not starve feedback generation
// (lighter, far more numerous).
func NewServer(redisOpt asynq.RedisConnOpt, personaConcurrency, feedbackConcurrency int) *asynq.Server {
	total := personaConcurrency + feedbackConcurrency
	if total <= 0 {
		total = 1
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: total,
		Queues: map[string]int{
			"personas": personaConcurrency,
			"feedback": feedbackConcurrency,
		},
	})
}

// NewMux wires the registered task handlers onto an asynq.ServeMux.
func NewMux(persona PersonaHandler, feedback FeedbackHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePersonaGenerate, persona.ProcessTask)
	mux.HandleFunc(TypeFeedbackGenerate, feedback.ProcessTask)
	return mux
}
