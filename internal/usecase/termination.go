package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	obsctx "github.com/TIGERVENENO/persona-feedback-engine/internal/observability"
	"go.opentelemetry.io/otel"
)

// Aggregator is the narrow port the Termination Detector needs from
// the LLM Gateway + Prompt Builder pair: one call that turns a
// truncated concern list into ranked themes (§4.4 aggregation prompt,
// §4.3 "Theme aggregation" sampling row).
type Aggregator interface {
	AggregateThemes(ctx domain.Context, concerns []string) ([]domain.ThemeCount, error)
}

// TerminationService implements the Termination Detector & Aggregator
// of §4.6. Grounded on the reference repo's Redis-Lua lock technique
// (internal/service/ratelimiter) adapted from a token bucket into a
// plain mutex, and on the reference's conditional-update idiom for
// idempotent terminal writes.
type TerminationService struct {
	Sessions      domain.FeedbackSessionRepository
	Results       domain.FeedbackResultRepository
	Lock          domain.Lock
	Aggregator    Aggregator
	LockWait      time.Duration
	LockLease     time.Duration
	ConcernCap    int
}

// NewTerminationService constructs a TerminationService.
func NewTerminationService(sessions domain.FeedbackSessionRepository, results domain.FeedbackResultRepository, lock domain.Lock, agg Aggregator, lockWait, lockLease time.Duration, concernCap int) TerminationService {
	return TerminationService{Sessions: sessions, Results: results, Lock: lock, Aggregator: agg, LockWait: lockWait, LockLease: lockLease, ConcernCap: concernCap}
}

// TryFinalize is invoked by a feedback worker after any FeedbackResult
// reaches a terminal status. It is safe to call concurrently from any
// number of worker processes: exactly one caller performs the
// aggregation write (§4.6, §8 "Aggregation is at-most-once").
//
// Returns (retriable error) when the lock could not be acquired within
// LockWait, so the caller nacks-with-requeue rather than dropping the
// session into permanent PENDING (§9 "Session completion race").
func (s TerminationService) TryFinalize(ctx domain.Context, sessionID string) error {
	tr := otel.Tracer("usecase.termination")
	ctx, span := tr.Start(ctx, "TerminationService.TryFinalize")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	lockKey := fmt.Sprintf("feedback-session-lock:%s", sessionID)
	token, ok, err := s.Lock.TryAcquire(ctx, lockKey, s.LockWait, s.LockLease)
	if err != nil {
		return domain.NewRetriableError(domain.CodeAIServiceTransient, "lock acquisition error").Wrap(err)
	}
	if !ok {
		lg.Warn("termination lock acquisition timed out, will retry", slog.String("session_id", sessionID))
		return domain.NewRetriableError(domain.CodeAIServiceTransient, "lock acquisition timeout")
	}
	defer func() {
		if err := s.Lock.Release(ctx, lockKey, token); err != nil {
			lg.Warn("termination lock release failed", slog.String("session_id", sessionID), slog.Any("error", err))
		}
	}()

	counts, err := s.Sessions.Counts(ctx, sessionID)
	if err != nil {
		return err
	}
	if counts.Completed+counts.Failed < counts.Total {
		return nil
	}

	if counts.Completed == 0 {
		// Every child FAILED: no aggregation call (resolved Open
		// Question, SPEC_FULL §9).
		finalized, err := s.Sessions.FailConditional(ctx, sessionID)
		if err != nil {
			return err
		}
		if finalized {
			lg.Info("session finalized as FAILED (all children failed)", slog.String("session_id", sessionID))
		}
		return nil
	}

	concerns, scores, err := s.Results.ConcernsForAggregation(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(concerns) > s.ConcernCap {
		concerns = concerns[:s.ConcernCap]
	}

	themes, err := s.Aggregator.AggregateThemes(ctx, concerns)
	if err != nil {
		return err
	}

	insights := domain.AggregatedInsights{
		AverageScore:          average(scores),
		PurchaseIntentPercent: highIntentPercent(scores),
		KeyThemes:             themes,
	}

	finalized, err := s.Sessions.CompleteConditional(ctx, sessionID, insights)
	if err != nil {
		return err
	}
	if finalized {
		lg.Info("session finalized as COMPLETED", slog.String("session_id", sessionID), slog.Int("themes", len(themes)))
	}
	return nil
}

func average(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

// highIntentPercent is the percentage of results with purchase intent
// >= 7 (a purchase-intent score in the top range of the 1..10 scale).
func highIntentPercent(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	high := 0
	for _, s := range scores {
		if s >= 7 {
			high++
		}
	}
	return 100 * float64(high) / float64(len(scores))
}
