package asynqq

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/ai"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/observability"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	obsctx "github.com/TIGERVENENO/persona-feedback-engine/internal/observability"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

// PersonaHandler implements asynq.Handler for TypePersonaGenerate,
// the worker-side half of §4.2's "Persona generation" pipeline.
type PersonaHandler struct {
	Personas domain.PersonaRepository
	AI       domain.AIClient
}

// ProcessTask fetches the persona-batch request, performs the CAS
// guard of I4, issues one LLM call for the whole batch, validates the
// response, and writes each batch member's terminal fields. A
// transport failure or a 429/502/503/504 that outlasts the gateway's
// own retries surfaces as a retriable domain.AppError, which this
// handler returns unchanged so asynq retries with its own backoff; a
// permanent classification is wrapped in asynq.SkipRetry so the task is
// archived instead.
func (h PersonaHandler) ProcessTask(ctx domain.Context, t *asynq.Task) error {
	tracer := otel.Tracer("queue.asynqq")
	ctx, span := tracer.Start(ctx, "PersonaHandler.ProcessTask")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	var payload domain.PersonaTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	current, err := h.Personas.Get(ctx, payload.PersonaID)
	if err != nil {
		return classify(TypePersonaGenerate, err)
	}

	began, err := h.Personas.TryBeginGeneration(ctx, payload.PersonaID, current.Version)
	if err != nil {
		return classify(TypePersonaGenerate, err)
	}
	if !began {
		lg.Info("persona generation already claimed or completed, skipping", slog.String("persona_id", payload.PersonaID))
		return nil
	}

	sys := ai.BuildPersonaBatchSystemPrompt(payload.Count, payload.Characteristics.MinAge, payload.Characteristics.MaxAge)
	usr := ai.BuildPersonaBatchUserPrompt(payload.Characteristics, payload.Count)

	raw, err := h.AI.ChatJSON(ctx, ai.PersonaBatchParams, sys, usr)
	if err != nil {
		// Only a confirmed-permanent error writes terminal FAILED state;
		// a retriable one leaves the batch claimed so the next asynq
		// attempt can still complete it (§4.2 steps 6-7).
		if !domain.IsRetriable(err) {
			for _, id := range payload.BatchPersonaIDs {
				_ = h.Personas.FailGeneration(ctx, id, "LLM call failed")
			}
		}
		return classify(TypePersonaGenerate, err)
	}

	personas, err := ai.ValidatePersonaBatch(raw)
	if err != nil {
		if !domain.IsRetriable(err) {
			for _, id := range payload.BatchPersonaIDs {
				_ = h.Personas.FailGeneration(ctx, id, "invalid LLM response")
			}
		}
		return classify(TypePersonaGenerate, err)
	}

	for i, id := range payload.BatchPersonaIDs {
		if i >= len(personas) {
			// Tolerant policy (§4.5): a short array still counts as
			// partial success; personas beyond what was returned fail
			// individually rather than failing the whole batch.
			_ = h.Personas.FailGeneration(ctx, id, "LLM returned fewer personas than requested")
			observability.RecordPersonaGeneration(string(domain.PersonaFailed))
			continue
		}
		p := personas[i]
		if err := h.Personas.CompleteGeneration(ctx, id, p.Name, p.DetailedDescription, p.ProductAttitudes, payload.Model); err != nil {
			lg.Error("complete persona generation failed", slog.String("persona_id", id), slog.Any("error", err))
		}
		observability.RecordPersonaGeneration(string(domain.PersonaActive))
	}

	lg.Info("persona batch generated", slog.String("persona_id", payload.PersonaID), slog.Int("count", len(personas)))
	return nil
}

// FeedbackHandler implements asynq.Handler for TypeFeedbackGenerate,
// the worker-side half of §4.2's "Feedback generation" pipeline.
type FeedbackHandler struct {
	Results     domain.FeedbackResultRepository
	Sessions    domain.FeedbackSessionRepository
	Personas    domain.PersonaRepository
	Products    domain.ProductRepository
	AI          domain.AIClient
	Termination usecase.TerminationService
}

// ProcessTask fetches the persona+product context, performs the
// idempotency gate of §4.2 step 2, issues the feedback LLM call,
// validates and writes the terminal result, then invokes the
// Termination Detector once the result has actually reached a terminal
// status (completed, or permanently failed) so the owning session can
// finalize once every cell is terminal. A still-retriable error leaves
// the result IN_PROGRESS for the next attempt and never finalizes.
func (h FeedbackHandler) ProcessTask(ctx domain.Context, t *asynq.Task) error {
	tracer := otel.Tracer("queue.asynqq")
	ctx, span := tracer.Start(ctx, "FeedbackHandler.ProcessTask")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	var payload domain.FeedbackTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	ok, err := h.Results.MarkInProgress(ctx, payload.ResultID)
	if err != nil {
		return classify(TypeFeedbackGenerate, err)
	}
	if !ok {
		lg.Info("feedback result already terminal, skipping", slog.String("result_id", payload.ResultID))
		return nil
	}
	if err := h.Sessions.MarkInProgress(ctx, payload.SessionID); err != nil {
		lg.Warn("session mark-in-progress failed", slog.String("session_id", payload.SessionID), slog.Any("error", err))
	}

	persona, err := h.Personas.Get(ctx, payload.PersonaID)
	if err != nil {
		if !domain.IsRetriable(err) {
			_ = h.Results.Fail(ctx, payload.ResultID, "persona lookup failed")
			observability.RecordFeedbackResult(string(domain.ResultFailed))
			h.finalize(ctx, payload.SessionID, lg)
		}
		return classify(TypeFeedbackGenerate, err)
	}
	product, err := h.Products.GetOwned(ctx, payload.OwnerUserID, payload.ProductID)
	if err != nil {
		if !domain.IsRetriable(err) {
			_ = h.Results.Fail(ctx, payload.ResultID, "product lookup failed")
			observability.RecordFeedbackResult(string(domain.ResultFailed))
			h.finalize(ctx, payload.SessionID, lg)
		}
		return classify(TypeFeedbackGenerate, err)
	}

	sys := ai.BuildFeedbackSystemPrompt(payload.Language)
	usr := ai.BuildFeedbackUserPrompt(persona.Name, persona.DetailedDescription, persona.ProductAttitudes,
		product.Name, product.Description, product.Category, product.Price, product.Currency, product.Features)

	raw, err := h.AI.ChatJSON(ctx, ai.FeedbackParams, sys, usr)
	if err != nil {
		if !domain.IsRetriable(err) {
			_ = h.Results.Fail(ctx, payload.ResultID, "LLM call failed")
			observability.RecordFeedbackResult(string(domain.ResultFailed))
			h.finalize(ctx, payload.SessionID, lg)
		}
		return classify(TypeFeedbackGenerate, err)
	}

	out, err := ai.ValidateFeedback(raw)
	if err != nil {
		if !domain.IsRetriable(err) {
			_ = h.Results.Fail(ctx, payload.ResultID, "invalid LLM response")
			observability.RecordFeedbackResult(string(domain.ResultFailed))
			h.finalize(ctx, payload.SessionID, lg)
		}
		return classify(TypeFeedbackGenerate, err)
	}

	if err := h.Results.Complete(ctx, payload.ResultID, out.Feedback, out.PurchaseIntent, out.KeyConcerns); err != nil {
		lg.Error("complete feedback result failed", slog.String("result_id", payload.ResultID), slog.Any("error", err))
	}
	observability.RecordFeedbackResult(string(domain.ResultCompleted))

	h.finalize(ctx, payload.SessionID, lg)
	lg.Info("feedback result generated", slog.String("result_id", payload.ResultID))
	return nil
}

func (h FeedbackHandler) finalize(ctx domain.Context, sessionID string, lg *slog.Logger) {
	if err := h.Termination.TryFinalize(ctx, sessionID); err != nil {
		lg.Warn("termination finalize attempt failed, will be retried by a future terminal write", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// classify maps a domain.AppError's Retriable flag onto asynq's
// retry/archive contract (§6 Queue): a permanent error is wrapped in
// asynq.SkipRetry so the task is archived on this attempt, a retriable
// one is returned as-is so asynq retries with its own backoff. Either
// way the originating domain.ErrorCode is recorded for observability.
func classify(taskType string, err error) error {
	observability.RecordTaskFailureByCode(taskType, string(domain.CodeOf(err)))
	if domain.IsRetriable(err) {
		return err
	}
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}
