package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// SessionRepo persists FeedbackSession records and the
// PENDING/IN_PROGRESS/COMPLETED/FAILED state machine.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// CreateWithResults creates one session in PENDING plus one
// FeedbackResult per (product, persona) pair in PENDING, in a single
// transaction, and returns the session id and the created result ids
// in (product, persona) iteration order.
func (r *SessionRepo) CreateWithResults(ctx domain.Context, ownerUserID, language string, productIDs, personaIDs []string) (string, []string, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.CreateWithResults")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "feedback_sessions"),
		attribute.Int("session.products", len(productIDs)),
		attribute.Int("session.personas", len(personaIDs)),
	)

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("op=session.create_with_results.begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	sessionID := uuid.New().String()
	sq := `INSERT INTO feedback_sessions (id, owner_user_id, status, language, aggregated_insights, created_at, updated_at)
	       VALUES ($1,$2,$3,$4,NULL,$5,$5)`
	if _, err := tx.Exec(ctx, sq, sessionID, ownerUserID, domain.SessionPending, language, now); err != nil {
		return "", nil, fmt.Errorf("op=session.create_with_results.insert_session: %w", err)
	}

	rq := `INSERT INTO feedback_results (id, session_id, product_id, persona_id, status, feedback, purchase_intent, key_concerns, created_at, updated_at)
	       VALUES ($1,$2,$3,$4,$5,'',0,'{}',$6,$6)`
	var resultIDs []string
	for _, productID := range productIDs {
		for _, personaID := range personaIDs {
			id := uuid.New().String()
			if _, err := tx.Exec(ctx, rq, id, sessionID, productID, personaID, domain.ResultPending, now); err != nil {
				return "", nil, fmt.Errorf("op=session.create_with_results.insert_result: %w", err)
			}
			resultIDs = append(resultIDs, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", nil, fmt.Errorf("op=session.create_with_results.commit: %w", err)
	}
	committed = true
	return sessionID, resultIDs, nil
}

const sessionColumns = `id, owner_user_id, status, language, aggregated_insights, created_at, updated_at`

func scanSession(row pgx.Row) (domain.FeedbackSession, error) {
	var s domain.FeedbackSession
	var insights []byte
	if err := row.Scan(&s.ID, &s.OwnerUserID, &s.Status, &s.Language, &insights, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.FeedbackSession{}, err
	}
	if len(insights) > 0 {
		var ai domain.AggregatedInsights
		if err := json.Unmarshal(insights, &ai); err != nil {
			return domain.FeedbackSession{}, fmt.Errorf("unmarshal aggregated_insights: %w", err)
		}
		s.AggregatedInsights = &ai
	}
	return s, nil
}

// GetOwned loads a session owned by ownerUserID.
func (r *SessionRepo) GetOwned(ctx domain.Context, ownerUserID, id string) (domain.FeedbackSession, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.GetOwned")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "feedback_sessions"))

	q := `SELECT ` + sessionColumns + ` FROM feedback_sessions WHERE id=$1 AND owner_user_id=$2`
	s, err := scanSession(r.Pool.QueryRow(ctx, q, id, ownerUserID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FeedbackSession{}, fmt.Errorf("op=session.get_owned: %w", domain.ErrUnauthorizedAccess)
		}
		return domain.FeedbackSession{}, fmt.Errorf("op=session.get_owned: %w", err)
	}
	return s, nil
}

// GetOwnedWithResultsPage loads the ownership-checked session row and
// its results page inside one transaction (§4.7 "single read
// transaction"), so a concurrent terminal write can't be observed
// between the two reads.
func (r *SessionRepo) GetOwnedWithResultsPage(ctx domain.Context, ownerUserID, id string, pageNumber, pageSize int) (domain.FeedbackSession, []domain.FeedbackResultDetail, int, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.GetOwnedWithResultsPage")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "feedback_sessions"))

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return domain.FeedbackSession{}, nil, 0, fmt.Errorf("op=session.get_owned_with_results_page.begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	q := `SELECT ` + sessionColumns + ` FROM feedback_sessions WHERE id=$1 AND owner_user_id=$2`
	s, err := scanSession(tx.QueryRow(ctx, q, id, ownerUserID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FeedbackSession{}, nil, 0, fmt.Errorf("op=session.get_owned_with_results_page: %w", domain.ErrUnauthorizedAccess)
		}
		return domain.FeedbackSession{}, nil, 0, fmt.Errorf("op=session.get_owned_with_results_page: %w", err)
	}

	results, total, err := listResultsPage(ctx, tx, id, pageNumber, pageSize)
	if err != nil {
		return domain.FeedbackSession{}, nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.FeedbackSession{}, nil, 0, fmt.Errorf("op=session.get_owned_with_results_page.commit: %w", err)
	}
	committed = true
	return s, results, total, nil
}

// MarkInProgress transitions PENDING->IN_PROGRESS; a no-op if already
// past PENDING.
func (r *SessionRepo) MarkInProgress(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.MarkInProgress")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "feedback_sessions"))

	q := `UPDATE feedback_sessions SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4`
	if _, err := r.Pool.Exec(ctx, q, id, domain.SessionInProgress, time.Now().UTC(), domain.SessionPending); err != nil {
		return fmt.Errorf("op=session.mark_in_progress: %w", err)
	}
	return nil
}

// Counts returns the aggregated child-status counts used by the
// Termination Detector.
func (r *SessionRepo) Counts(ctx domain.Context, id string) (domain.SessionCounts, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Counts")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "feedback_results"))

	q := `SELECT
	        COUNT(*) FILTER (WHERE status=$2),
	        COUNT(*) FILTER (WHERE status=$3),
	        COUNT(*)
	      FROM feedback_results WHERE session_id=$1`
	row := r.Pool.QueryRow(ctx, q, id, domain.ResultCompleted, domain.ResultFailed)
	var c domain.SessionCounts
	if err := row.Scan(&c.Completed, &c.Failed, &c.Total); err != nil {
		return domain.SessionCounts{}, fmt.Errorf("op=session.counts: %w", err)
	}
	return c, nil
}

// CompleteConditional performs the idempotent `status != COMPLETED`
// conditional update, returning whether this call was the one that
// performed the transition (§4.6 "Aggregation is at-most-once").
func (r *SessionRepo) CompleteConditional(ctx domain.Context, id string, insights domain.AggregatedInsights) (bool, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.CompleteConditional")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "feedback_sessions"))

	data, err := json.Marshal(insights)
	if err != nil {
		return false, fmt.Errorf("op=session.complete_conditional.marshal: %w", err)
	}
	q := `UPDATE feedback_sessions SET status=$2, aggregated_insights=$3, updated_at=$4 WHERE id=$1 AND status != $2`
	tag, err := r.Pool.Exec(ctx, q, id, domain.SessionCompleted, data, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=session.complete_conditional: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FailConditional is the FAILED-path equivalent of CompleteConditional,
// used when every child result failed (resolved Open Question,
// SPEC_FULL §9: no aggregation call on all-failed).
func (r *SessionRepo) FailConditional(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.FailConditional")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "feedback_sessions"))

	q := `UPDATE feedback_sessions SET status=$2, updated_at=$3 WHERE id=$1 AND status != $2`
	tag, err := r.Pool.Exec(ctx, q, id, domain.SessionFailed, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=session.fail_conditional: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
