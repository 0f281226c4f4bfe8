// Package usecase contains application business logic services.
package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	obsctx "github.com/TIGERVENENO/persona-feedback-engine/internal/observability"
	"go.opentelemetry.io/otel"
)

// validLanguages is the ISO-639-1 whitelist referenced by §4.1/§4.4.
// Kept small and explicit rather than importing a locale library,
// matching the spec's closed-set requirement.
var validLanguages = map[string]bool{
	"en": true, "es": true, "fr": true, "de": true, "pt": true,
	"it": true, "nl": true, "pl": true, "ru": true, "ja": true,
	"zh": true, "ko": true, "ar": true, "tr": true, "vi": true,
	"id": true, "th": true, "uk": true, "sv": true, "fi": true,
}

// PersonaRequest is the dispatch-service input DTO for
// StartPersonaGeneration (§4.1).
type PersonaRequest struct {
	Gender           domain.Gender
	Country          string
	City             string
	MinAge           int
	MaxAge           int
	ActivitySphere   string
	Profession       string
	IncomeLevel      domain.IncomeLevel
	Interests        []string
	AdditionalParams string
	Count            int
	Model            string
	IdemKey          string
}

// FeedbackSessionRequest is the dispatch-service input DTO for
// StartFeedbackSession (§4.1).
type FeedbackSessionRequest struct {
	ProductIDs []string
	PersonaIDs []string
	Language   string
	IdemKey    string
}

// DispatchService validates requests, creates entities, and enqueues
// tasks for both pipelines (§4.1). Grounded on the reference
// EvaluateService.Enqueue: idempotency lookup, transactional create,
// publish-after-commit, structured logging/tracing.
type DispatchService struct {
	Personas domain.PersonaRepository
	Sessions domain.FeedbackSessionRepository
	Products domain.ProductRepository
	Queue    domain.Queue
	Idem     domain.IdempotencyCache
	IdemTTL  time.Duration
}

// NewDispatchService constructs a DispatchService with its dependencies.
func NewDispatchService(
	personas domain.PersonaRepository,
	sessions domain.FeedbackSessionRepository,
	products domain.ProductRepository,
	queue domain.Queue,
	idem domain.IdempotencyCache,
	idemTTL time.Duration,
) DispatchService {
	return DispatchService{Personas: personas, Sessions: sessions, Products: products, Queue: queue, Idem: idem, IdemTTL: idemTTL}
}

// StartPersonaGeneration validates req, creates one Persona row per
// req.Count in GENERATING, and publishes a single batch task to the
// persona queue (the batch-vs-per-persona Open Question is resolved
// as batch — see SPEC_FULL §9). Returns the first persona id of the
// batch as the caller-visible jobId, matching §6's `{jobId,
// status:"GENERATING"}` response shape.
func (s DispatchService) StartPersonaGeneration(ctx domain.Context, userID string, req PersonaRequest) (string, error) {
	tr := otel.Tracer("usecase.dispatch")
	ctx, span := tr.Start(ctx, "DispatchService.StartPersonaGeneration")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	if err := validatePersonaRequest(req); err != nil {
		return "", err
	}

	if req.IdemKey != "" && s.Idem != nil {
		if existing, found, err := s.Idem.Reserve(ctx, idemKeyFor("persona", userID, req.IdemKey), "", s.IdemTTL); err == nil && found && existing != "" {
			lg.Info("dispatch persona idempotent hit", slog.String("persona_id", existing))
			return existing, nil
		}
	}

	ch := domain.Characteristics{
		Country:          req.Country,
		City:             req.City,
		Gender:           req.Gender,
		MinAge:           req.MinAge,
		MaxAge:           req.MaxAge,
		ActivitySphere:   req.ActivitySphere,
		Profession:       req.Profession,
		IncomeLevel:      req.IncomeLevel,
		Interests:        req.Interests,
		AdditionalParams: req.AdditionalParams,
	}
	ch.CharacteristicsHash = characteristicsHash(ch)

	ids, err := s.Personas.CreateBatch(ctx, userID, req.Count, ch)
	if err != nil {
		lg.Error("dispatch persona create failed", slog.Any("error", err))
		return "", err
	}

	payload := domain.PersonaTaskPayload{
		PersonaID:       ids[0],
		OwnerUserID:     userID,
		Characteristics: ch,
		Count:           req.Count,
		Model:           req.Model,
		BatchPersonaIDs: ids,
	}
	if err := s.Queue.EnqueuePersona(ctx, payload); err != nil {
		lg.Error("dispatch persona enqueue failed", slog.Any("error", err), slog.String("persona_id", ids[0]))
		return "", err
	}

	if req.IdemKey != "" && s.Idem != nil {
		_, _, _ = s.Idem.Reserve(ctx, idemKeyFor("persona", userID, req.IdemKey), ids[0], s.IdemTTL)
	}

	lg.Info("dispatch persona enqueued", slog.String("persona_id", ids[0]), slog.Int("count", req.Count))
	return ids[0], nil
}

// StartFeedbackSession validates req, creates a FeedbackSession and
// its |products|x|personas| FeedbackResult cells in one transaction,
// then publishes one feedback task per cell (§4.1).
func (s DispatchService) StartFeedbackSession(ctx domain.Context, userID string, req FeedbackSessionRequest) (string, error) {
	tr := otel.Tracer("usecase.dispatch")
	ctx, span := tr.Start(ctx, "DispatchService.StartFeedbackSession")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	if err := validateFeedbackSessionRequest(req); err != nil {
		return "", err
	}

	if req.IdemKey != "" && s.Idem != nil {
		if existing, found, err := s.Idem.Reserve(ctx, idemKeyFor("session", userID, req.IdemKey), "", s.IdemTTL); err == nil && found && existing != "" {
			lg.Info("dispatch session idempotent hit", slog.String("session_id", existing))
			return existing, nil
		}
	}

	products, err := s.Products.ListOwnedByIDs(ctx, userID, req.ProductIDs)
	if err != nil {
		return "", err
	}
	if len(products) != len(req.ProductIDs) {
		return "", domain.NewAppError(domain.CodeUnauthorizedAccess, "one or more products not owned or not found")
	}

	personas, err := s.Personas.ListActiveOwnedByIDs(ctx, userID, req.PersonaIDs)
	if err != nil {
		return "", err
	}
	if len(personas) != len(req.PersonaIDs) {
		return "", domain.NewAppError(domain.CodePersonasNotReady, "one or more personas not owned, not found, or not ACTIVE")
	}

	sortedProductIDs := sortedCopy(req.ProductIDs)
	sortedPersonaIDs := sortedCopy(req.PersonaIDs)

	sessionID, resultIDs, err := s.Sessions.CreateWithResults(ctx, userID, req.Language, sortedProductIDs, sortedPersonaIDs)
	if err != nil {
		lg.Error("dispatch session create failed", slog.Any("error", err))
		return "", err
	}

	i := 0
	for _, productID := range sortedProductIDs {
		for _, personaID := range sortedPersonaIDs {
			payload := domain.FeedbackTaskPayload{
				ResultID:    resultIDs[i],
				SessionID:   sessionID,
				OwnerUserID: userID,
				ProductID:   productID,
				PersonaID:   personaID,
				Language:    req.Language,
			}
			if err := s.Queue.EnqueueFeedback(ctx, payload); err != nil {
				lg.Error("dispatch feedback enqueue failed", slog.Any("error", err), slog.String("result_id", resultIDs[i]))
				return "", err
			}
			i++
		}
	}

	if req.IdemKey != "" && s.Idem != nil {
		_, _, _ = s.Idem.Reserve(ctx, idemKeyFor("session", userID, req.IdemKey), sessionID, s.IdemTTL)
	}

	lg.Info("dispatch session enqueued", slog.String("session_id", sessionID), slog.Int("results", len(resultIDs)))
	return sessionID, nil
}

func validatePersonaRequest(req PersonaRequest) error {
	if req.Count < 1 || req.Count > 10 {
		return domain.NewAppError(domain.CodeValidation, "count must be between 1 and 10")
	}
	if req.MinAge > req.MaxAge {
		return domain.NewAppError(domain.CodeValidation, "minAge must be <= maxAge")
	}
	if len(req.Interests) == 0 {
		return domain.NewAppError(domain.CodeValidation, "interests must be non-empty")
	}
	if len(req.AdditionalParams) > 500 {
		return domain.NewAppError(domain.CodeValidation, "additionalParams must be <= 500 chars")
	}
	switch req.Gender {
	case domain.GenderMale, domain.GenderFemale, domain.GenderOther:
	default:
		return domain.NewAppError(domain.CodeValidation, "gender invalid")
	}
	switch req.IncomeLevel {
	case domain.IncomeLow, domain.IncomeMedium, domain.IncomeHigh:
	default:
		return domain.NewAppError(domain.CodeValidation, "incomeLevel invalid")
	}
	return nil
}

func validateFeedbackSessionRequest(req FeedbackSessionRequest) error {
	if len(req.ProductIDs) < 1 || len(req.ProductIDs) > 5 {
		return domain.NewAppError(domain.CodeTooManyProducts, "productIds must have between 1 and 5 entries")
	}
	if len(req.PersonaIDs) < 1 || len(req.PersonaIDs) > 5 {
		return domain.NewAppError(domain.CodeTooManyPersonas, "personaIds must have between 1 and 5 entries")
	}
	if !validLanguages[req.Language] {
		return domain.NewAppError(domain.CodeValidation, "language code not in whitelist")
	}
	return nil
}

func idemKeyFor(kind, userID, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", kind, userID, key)
}

func characteristicsHash(ch domain.Characteristics) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%s|%s|%s|%v|%s",
		ch.Country, ch.City, ch.Gender, ch.MinAge, ch.MaxAge,
		ch.ActivitySphere, ch.Profession, ch.IncomeLevel, ch.Interests, ch.AdditionalParams)
	return hex.EncodeToString(h.Sum(nil))
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
