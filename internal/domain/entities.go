// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrUnauthorizedAccess   = errors.New("unauthorized access")
	ErrRateLimited          = errors.New("rate limited")
	ErrUpstreamTimeout      = errors.New("upstream timeout")
	ErrUpstreamRateLimit    = errors.New("upstream rate limit")
	ErrSchemaInvalid        = errors.New("schema invalid")
	ErrPersonasNotReady     = errors.New("personas not ready")
	ErrInternal             = errors.New("internal error")
)

// Gender enumerates the closed set of persona genders.
type Gender string

// Gender values.
const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// IncomeLevel enumerates the closed set of persona income brackets.
type IncomeLevel string

// IncomeLevel values.
const (
	IncomeLow    IncomeLevel = "LOW"
	IncomeMedium IncomeLevel = "MEDIUM"
	IncomeHigh   IncomeLevel = "HIGH"
)

// PersonaStatus captures the lifecycle state of a persona.
type PersonaStatus string

// PersonaStatus values. A Persona never returns to GENERATING (I4).
const (
	PersonaGenerating PersonaStatus = "GENERATING"
	PersonaActive     PersonaStatus = "ACTIVE"
	PersonaFailed     PersonaStatus = "FAILED"
)

// SessionStatus captures the lifecycle state of a FeedbackSession.
type SessionStatus string

// SessionStatus values.
const (
	SessionPending    SessionStatus = "PENDING"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionFailed     SessionStatus = "FAILED"
)

// ResultStatus captures the lifecycle state of a FeedbackResult cell.
type ResultStatus string

// ResultStatus values.
const (
	ResultPending    ResultStatus = "PENDING"
	ResultInProgress ResultStatus = "IN_PROGRESS"
	ResultCompleted  ResultStatus = "COMPLETED"
	ResultFailed     ResultStatus = "FAILED"
)

// User is the identity principal that transitively owns every other
// entity. Deletion is a soft flag only (I5); there is no cascading
// physical delete.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Active       bool
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Product is an item under evaluation, owned by a User.
type Product struct {
	ID          string
	OwnerUserID string
	Name        string
	Description string
	Price       *float64
	Currency    string
	Category    string
	Features    []string
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Characteristics bundles the demographic/psychographic attributes of
// a Persona. CharacteristicsHash is a deterministic digest used for a
// reuse lookup that no query path currently reads (see SPEC_FULL.md §9).
type Characteristics struct {
	Country             string
	City                string
	Gender              Gender
	MinAge              int
	MaxAge              int
	Age                 int
	ActivitySphere      string
	Profession          string
	IncomeLevel         IncomeLevel
	Interests           []string
	AdditionalParams    string
	CharacteristicsHash string
}

// Persona is a generated synthetic consumer profile.
//
//go:generate mockery --name=PersonaRepository --with-expecter --filename=persona_repository_mock.go
//go:generate mockery --name=ProductRepository --with-expecter --filename=product_repository_mock.go
//go:generate mockery --name=UserRepository --with-expecter --filename=user_repository_mock.go
//go:generate mockery --name=FeedbackSessionRepository --with-expecter --filename=session_repository_mock.go
//go:generate mockery --name=FeedbackResultRepository --with-expecter --filename=result_repository_mock.go
//go:generate mockery --name=Queue --with-expecter --filename=queue_mock.go
//go:generate mockery --name=AIClient --with-expecter --filename=aiclient_mock.go
//go:generate mockery --name=Lock --with-expecter --filename=lock_mock.go
//go:generate mockery --name=IdempotencyCache --with-expecter --filename=idempotency_mock.go
type Persona struct {
	ID                   string
	OwnerUserID          string
	Status               PersonaStatus
	Name                 string
	DetailedDescription  string
	ProductAttitudes     string
	Characteristics      Characteristics
	Model                string
	Version              int
	GenerationInProgress bool
	Deleted              bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FeedbackSession is a batch evaluation job over a set of products and
// personas. AggregatedInsights is nil until the session reaches
// COMPLETED (I2).
type FeedbackSession struct {
	ID                 string
	OwnerUserID        string
	Status             SessionStatus
	Language           string
	AggregatedInsights *AggregatedInsights
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AggregatedInsights is the session-level insight document produced by
// the aggregation LLM call plus locally-computed statistics.
type AggregatedInsights struct {
	AverageScore          float64      `json:"averageScore"`
	PurchaseIntentPercent float64      `json:"purchaseIntentPercent"`
	KeyThemes             []ThemeCount `json:"keyThemes"`
}

// ThemeCount is one aggregated theme with its mention count.
type ThemeCount struct {
	Theme    string `json:"theme"`
	Mentions int    `json:"mentions"`
}

// FeedbackResult is one (product x persona) cell of a session. Unique
// over (SessionID, ProductID, PersonaID).
type FeedbackResult struct {
	ID             string
	SessionID      string
	ProductID      string
	PersonaID      string
	Status         ResultStatus
	Feedback       string
	PurchaseIntent int
	KeyConcerns    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionCounts is the single aggregated-count read the Termination
// Detector uses to decide whether a session is ready to finalize.
type SessionCounts struct {
	Completed int
	Failed    int
	Total     int
}

// Repositories (ports)

// UserRepository manages User identity records.
type UserRepository interface {
	Create(ctx Context, u User) (string, error)
	GetByEmail(ctx Context, email string) (User, error)
	GetByID(ctx Context, id string) (User, error)
}

// ProductRepository manages Product records, always scoped by owner.
type ProductRepository interface {
	Create(ctx Context, p Product) (string, error)
	GetOwned(ctx Context, ownerUserID, id string) (Product, error)
	ListOwnedByIDs(ctx Context, ownerUserID string, ids []string) ([]Product, error)
}

// PersonaRepository manages Persona records and their state machine.
type PersonaRepository interface {
	// CreateBatch inserts count GENERATING personas sharing one
	// characteristics bundle and returns their ids in order.
	CreateBatch(ctx Context, ownerUserID string, count int, ch Characteristics) ([]string, error)
	GetOwned(ctx Context, ownerUserID, id string) (Persona, error)
	Get(ctx Context, id string) (Persona, error)
	// ListActiveOwnedByIDs returns only ids owned by ownerUserID whose
	// status is ACTIVE; callers detect missing/inactive ids by length.
	ListActiveOwnedByIDs(ctx Context, ownerUserID string, ids []string) ([]Persona, error)
	// TryBeginGeneration performs the CAS described in I4: it succeeds
	// only if GenerationInProgress is false and Version matches,
	// atomically setting GenerationInProgress=true and bumping Version.
	TryBeginGeneration(ctx Context, id string, expectedVersion int) (bool, error)
	// CompleteGeneration writes the terminal ACTIVE fields and clears
	// the in-progress guard; it is only valid after TryBeginGeneration
	// succeeded for this worker.
	CompleteGeneration(ctx Context, id string, name, description, attitudes, model string) error
	// FailGeneration marks the persona FAILED and clears the guard.
	FailGeneration(ctx Context, id string, reason string) error
}

// FeedbackSessionRepository manages FeedbackSession records.
type FeedbackSessionRepository interface {
	// CreateWithResults creates one session in PENDING plus one
	// FeedbackResult per (product, persona) pair in PENDING, in a
	// single transaction, and returns the session id and the created
	// result ids in (product, persona) iteration order.
	CreateWithResults(ctx Context, ownerUserID, language string, productIDs, personaIDs []string) (string, []string, error)
	GetOwned(ctx Context, ownerUserID, id string) (FeedbackSession, error)
	// GetOwnedWithResultsPage performs the ownership-checked session
	// read and the results-page read inside a single transaction, so a
	// concurrent terminal write can never produce a session/results
	// pair that never coexisted (§4.7 "single read transaction").
	GetOwnedWithResultsPage(ctx Context, ownerUserID, id string, pageNumber, pageSize int) (FeedbackSession, []FeedbackResultDetail, int, error)
	// MarkInProgress transitions PENDING->IN_PROGRESS; a no-op if
	// already past PENDING.
	MarkInProgress(ctx Context, id string) error
	// Counts returns the aggregated child-status counts used by the
	// Termination Detector.
	Counts(ctx Context, id string) (SessionCounts, error)
	// CompleteConditional performs the idempotent `status !=
	// COMPLETED` conditional update described in §4.6, returning
	// whether this call was the one that performed the transition.
	CompleteConditional(ctx Context, id string, insights AggregatedInsights) (bool, error)
	// FailConditional is the FAILED-path equivalent of
	// CompleteConditional, used when every child result failed.
	FailConditional(ctx Context, id string) (bool, error)
}

// FeedbackResultRepository manages FeedbackResult records.
type FeedbackResultRepository interface {
	Get(ctx Context, id string) (FeedbackResult, error)
	// MarkInProgress is the idempotency gate described in §4.2 step 2:
	// it returns ok=false without error when the result is already
	// terminal-success, signaling the caller to ack-and-return.
	MarkInProgress(ctx Context, id string) (ok bool, err error)
	Complete(ctx Context, id string, feedback string, purchaseIntent int, keyConcerns []string) error
	Fail(ctx Context, id string, reason string) error
	// ListPage returns a join-fetched page of results for a session
	// (avoiding N+1 across persona/product), or the full set when
	// pageSize<=0. It does not open a transaction; the transactional
	// read is FeedbackSessionRepository.GetOwnedWithResultsPage.
	ListPage(ctx Context, sessionID string, pageNumber, pageSize int) ([]FeedbackResultDetail, int, error)
	// ConcernsForAggregation returns the key-concerns and
	// purchase-intent scores of every COMPLETED result in the
	// session, truncated by the caller to the aggregation cap.
	ConcernsForAggregation(ctx Context, sessionID string) ([]string, []int, error)
}

// FeedbackResultDetail is a FeedbackResult joined with its Persona and
// Product names, the shape the Query Service returns.
type FeedbackResultDetail struct {
	FeedbackResult
	PersonaName string
	ProductName string
}

// Queue (port)

// Queue is responsible for enqueuing persona and feedback tasks.
type Queue interface {
	EnqueuePersona(ctx Context, payload PersonaTaskPayload) error
	EnqueueFeedback(ctx Context, payload FeedbackTaskPayload) error
}

// AIClient (port)

// AIClient abstracts the LLM provider used for persona/feedback/
// aggregation chat-completion calls.
type AIClient interface {
	// ChatJSON issues a single chat-completion call with the given
	// sampling parameters and returns the extracted first JSON
	// value verbatim; callers unmarshal and validate the result.
	ChatJSON(ctx Context, params SamplingParams, systemPrompt, userPrompt string) (string, error)
}

// SamplingParams carries the per-operation sampling parameters of
// SPEC_FULL §4.3.
type SamplingParams struct {
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
}

// Lock (port)

// Lock abstracts the cluster-wide advisory lock used by the
// Termination Detector.
type Lock interface {
	// TryAcquire blocks up to waitFor for the lock keyed by key,
	// holding it for at most lease. It returns ok=false (no error) on
	// a bounded-wait timeout; callers classify that as retriable.
	TryAcquire(ctx Context, key string, waitFor, lease time.Duration) (token string, ok bool, err error)
	// Release safely releases a lock previously acquired with token;
	// releasing a lock you do not hold is a no-op.
	Release(ctx Context, key, token string) error
}

// IdempotencyCache (port)

// IdempotencyCache records client-chosen idempotency keys for the
// short-lived dispatch dedup window described in §4.1.
type IdempotencyCache interface {
	// Reserve atomically associates key with value if key is unseen
	// within ttl, returning (value, true) if it was already reserved
	// by an earlier call.
	Reserve(ctx Context, key, value string, ttl time.Duration) (existing string, found bool, err error)
}

// PersonaTaskPayload is the persona-queue message body of §6.
type PersonaTaskPayload struct {
	PersonaID       string           `json:"personaId"`
	OwnerUserID     string           `json:"ownerUserId"`
	Characteristics Characteristics  `json:"characteristics"`
	Count           int              `json:"count"`
	Model           string           `json:"model"`
	BatchPersonaIDs []string         `json:"batchPersonaIds"`
}

// FeedbackTaskPayload is the feedback-queue message body of §6.
type FeedbackTaskPayload struct {
	ResultID    string `json:"resultId"`
	SessionID   string `json:"sessionId"`
	OwnerUserID string `json:"ownerUserId"`
	ProductID   string `json:"productId"`
	PersonaID   string `json:"personaId"`
	Language    string `json:"language"`
}

// Context is a type alias to stdlib context.Context for convenience
// across layers, matching the reference codebase's decoupling
// convention.
type Context = context.Context
