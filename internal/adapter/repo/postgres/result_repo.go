package postgres

import (
	"fmt"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// FeedbackResultRepo persists FeedbackResult records.
type FeedbackResultRepo struct{ Pool PgxPool }

// NewFeedbackResultRepo constructs a FeedbackResultRepo with the given pool.
func NewFeedbackResultRepo(p PgxPool) *FeedbackResultRepo { return &FeedbackResultRepo{Pool: p} }

const resultColumns = `id, session_id, product_id, persona_id, status, feedback, purchase_intent, key_concerns, created_at, updated_at`

func scanResult(row pgx.Row) (domain.FeedbackResult, error) {
	var fr domain.FeedbackResult
	if err := row.Scan(&fr.ID, &fr.SessionID, &fr.ProductID, &fr.PersonaID, &fr.Status, &fr.Feedback, &fr.PurchaseIntent, &fr.KeyConcerns, &fr.CreatedAt, &fr.UpdatedAt); err != nil {
		return domain.FeedbackResult{}, err
	}
	return fr, nil
}

// Get loads a result by id.
func (r *FeedbackResultRepo) Get(ctx domain.Context, id string) (domain.FeedbackResult, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Get")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "feedback_results"))

	q := `SELECT ` + resultColumns + ` FROM feedback_results WHERE id=$1`
	fr, err := scanResult(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FeedbackResult{}, fmt.Errorf("op=result.get: %w", domain.ErrNotFound)
		}
		return domain.FeedbackResult{}, fmt.Errorf("op=result.get: %w", err)
	}
	return fr, nil
}

// MarkInProgress is the idempotency gate described in §4.2 step 2: it
// returns ok=false without error when the result is already
// terminal-success, signaling the caller to ack-and-return.
func (r *FeedbackResultRepo) MarkInProgress(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.MarkInProgress")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "feedback_results"))

	q := `UPDATE feedback_results SET status=$2, updated_at=$3 WHERE id=$1 AND status != $4`
	tag, err := r.Pool.Exec(ctx, q, id, domain.ResultInProgress, time.Now().UTC(), domain.ResultCompleted)
	if err != nil {
		return false, fmt.Errorf("op=result.mark_in_progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete writes the terminal COMPLETED fields.
func (r *FeedbackResultRepo) Complete(ctx domain.Context, id, feedback string, purchaseIntent int, keyConcerns []string) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "feedback_results"))

	q := `UPDATE feedback_results SET status=$2, feedback=$3, purchase_intent=$4, key_concerns=$5, updated_at=$6 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, domain.ResultCompleted, feedback, purchaseIntent, keyConcerns, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=result.complete: %w", err)
	}
	return nil
}

// Fail marks the result FAILED with reason recorded in feedback text.
func (r *FeedbackResultRepo) Fail(ctx domain.Context, id, reason string) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Fail")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "feedback_results"))

	q := `UPDATE feedback_results SET status=$2, feedback=$3, updated_at=$4 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, domain.ResultFailed, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=result.fail: %w", err)
	}
	return nil
}

// ListPage returns a join-fetched page of results for a session
// (avoiding N+1 across persona/product), or the full set when
// pageSize<=0. It runs against the repo's own pool; GetOwnedWithResultsPage
// calls listResultsPage directly against a caller-managed transaction
// instead, so the session row and the results page are read together.
func (r *FeedbackResultRepo) ListPage(ctx domain.Context, sessionID string, pageNumber, pageSize int) ([]domain.FeedbackResultDetail, int, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.ListPage")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "feedback_results"))

	return listResultsPage(ctx, r.Pool, sessionID, pageNumber, pageSize)
}

// listResultsPage is the shared query body behind ListPage and
// session_repo.go's GetOwnedWithResultsPage; pool may be a *pgxpool.Pool
// or a pgx.Tx (conn.go's PgxPool contract).
func listResultsPage(ctx domain.Context, pool PgxPool, sessionID string, pageNumber, pageSize int) ([]domain.FeedbackResultDetail, int, error) {
	var total int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedback_results WHERE session_id=$1`, sessionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("op=result.list_page.count: %w", err)
	}

	q := `SELECT fr.id, fr.session_id, fr.product_id, fr.persona_id, fr.status, fr.feedback, fr.purchase_intent, fr.key_concerns, fr.created_at, fr.updated_at,
	             p.name, pr.name
	      FROM feedback_results fr
	      JOIN personas p ON p.id = fr.persona_id
	      JOIN products pr ON pr.id = fr.product_id
	      WHERE fr.session_id=$1
	      ORDER BY fr.created_at ASC`
	args := []any{sessionID}
	if pageSize > 0 {
		if pageNumber < 1 {
			pageNumber = 1
		}
		q += ` LIMIT $2 OFFSET $3`
		args = append(args, pageSize, (pageNumber-1)*pageSize)
	}

	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("op=result.list_page: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedbackResultDetail
	for rows.Next() {
		var d domain.FeedbackResultDetail
		if err := rows.Scan(&d.ID, &d.SessionID, &d.ProductID, &d.PersonaID, &d.Status, &d.Feedback, &d.PurchaseIntent, &d.KeyConcerns, &d.CreatedAt, &d.UpdatedAt, &d.PersonaName, &d.ProductName); err != nil {
			return nil, 0, fmt.Errorf("op=result.list_page_scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("op=result.list_page_rows: %w", err)
	}
	return out, total, nil
}

// ConcernsForAggregation returns the key-concerns and purchase-intent
// scores of every COMPLETED result in the session, truncated by the
// caller to the aggregation cap.
func (r *FeedbackResultRepo) ConcernsForAggregation(ctx domain.Context, sessionID string) ([]string, []int, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.ConcernsForAggregation")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "feedback_results"))

	q := `SELECT key_concerns, purchase_intent FROM feedback_results WHERE session_id=$1 AND status=$2`
	rows, err := r.Pool.Query(ctx, q, sessionID, domain.ResultCompleted)
	if err != nil {
		return nil, nil, fmt.Errorf("op=result.concerns_for_aggregation: %w", err)
	}
	defer rows.Close()

	var concerns []string
	var scores []int
	for rows.Next() {
		var kc []string
		var pi int
		if err := rows.Scan(&kc, &pi); err != nil {
			return nil, nil, fmt.Errorf("op=result.concerns_for_aggregation_scan: %w", err)
		}
		concerns = append(concerns, kc...)
		scores = append(scores, pi)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("op=result.concerns_for_aggregation_rows: %w", err)
	}
	return concerns, scores, nil
}
