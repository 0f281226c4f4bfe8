package postgres

import (
	"fmt"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// PersonaRepo persists Persona records and the GENERATING/ACTIVE/FAILED
// state machine of I4.
type PersonaRepo struct{ Pool PgxPool }

// NewPersonaRepo constructs a PersonaRepo with the given pool.
func NewPersonaRepo(p PgxPool) *PersonaRepo { return &PersonaRepo{Pool: p} }

// CreateBatch inserts count GENERATING personas sharing one
// characteristics bundle in a single transaction and returns their ids
// in order.
func (r *PersonaRepo) CreateBatch(ctx domain.Context, ownerUserID string, count int, ch domain.Characteristics) ([]string, error) {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.CreateBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "personas"),
		attribute.Int("persona.batch_count", count),
	)

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=persona.create_batch.begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	ids := make([]string, count)
	q := `INSERT INTO personas
	      (id, owner_user_id, status, name, detailed_description, product_attitudes,
	       country, city, gender, min_age, max_age, age, activity_sphere, profession,
	       income_level, interests, additional_params, characteristics_hash,
	       model, version, generation_in_progress, deleted, created_at, updated_at)
	      VALUES ($1,$2,$3,'','','',$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,'',0,false,false,$16,$16)`
	for i := 0; i < count; i++ {
		id := uuid.New().String()
		if _, err := tx.Exec(ctx, q, id, ownerUserID, domain.PersonaGenerating,
			ch.Country, ch.City, ch.Gender, ch.MinAge, ch.MaxAge, ch.Age, ch.ActivitySphere, ch.Profession,
			ch.IncomeLevel, ch.Interests, ch.AdditionalParams, ch.CharacteristicsHash, now); err != nil {
			return nil, fmt.Errorf("op=persona.create_batch.insert: %w", err)
		}
		ids[i] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=persona.create_batch.commit: %w", err)
	}
	committed = true
	return ids, nil
}

func scanPersona(row pgx.Row) (domain.Persona, error) {
	var p domain.Persona
	if err := row.Scan(
		&p.ID, &p.OwnerUserID, &p.Status, &p.Name, &p.DetailedDescription, &p.ProductAttitudes,
		&p.Characteristics.Country, &p.Characteristics.City, &p.Characteristics.Gender,
		&p.Characteristics.MinAge, &p.Characteristics.MaxAge, &p.Characteristics.Age,
		&p.Characteristics.ActivitySphere, &p.Characteristics.Profession, &p.Characteristics.IncomeLevel,
		&p.Characteristics.Interests, &p.Characteristics.AdditionalParams, &p.Characteristics.CharacteristicsHash,
		&p.Model, &p.Version, &p.GenerationInProgress, &p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Persona{}, err
	}
	return p, nil
}

const personaColumns = `id, owner_user_id, status, name, detailed_description, product_attitudes,
	country, city, gender, min_age, max_age, age, activity_sphere, profession,
	income_level, interests, additional_params, characteristics_hash,
	model, version, generation_in_progress, deleted, created_at, updated_at`

// GetOwned loads a non-deleted persona owned by ownerUserID.
func (r *PersonaRepo) GetOwned(ctx domain.Context, ownerUserID, id string) (domain.Persona, error) {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.GetOwned")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "personas"))

	q := `SELECT ` + personaColumns + ` FROM personas WHERE id=$1 AND owner_user_id=$2 AND deleted=false`
	p, err := scanPersona(r.Pool.QueryRow(ctx, q, id, ownerUserID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Persona{}, fmt.Errorf("op=persona.get_owned: %w", domain.ErrUnauthorizedAccess)
		}
		return domain.Persona{}, fmt.Errorf("op=persona.get_owned: %w", err)
	}
	return p, nil
}

// Get loads a persona by id regardless of owner, used by the worker
// which already trusts the task payload's ownerUserId.
func (r *PersonaRepo) Get(ctx domain.Context, id string) (domain.Persona, error) {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.Get")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "personas"))

	q := `SELECT ` + personaColumns + ` FROM personas WHERE id=$1 AND deleted=false`
	p, err := scanPersona(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Persona{}, fmt.Errorf("op=persona.get: %w", domain.ErrNotFound)
		}
		return domain.Persona{}, fmt.Errorf("op=persona.get: %w", err)
	}
	return p, nil
}

// ListActiveOwnedByIDs returns only ids owned by ownerUserID whose
// status is ACTIVE (I1: personas must be ACTIVE at dispatch time).
func (r *PersonaRepo) ListActiveOwnedByIDs(ctx domain.Context, ownerUserID string, ids []string) ([]domain.Persona, error) {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.ListActiveOwnedByIDs")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "SELECT"), attribute.String("db.sql.table", "personas"))

	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + personaColumns + ` FROM personas WHERE owner_user_id=$1 AND status=$2 AND deleted=false AND id = ANY($3)`
	rows, err := r.Pool.Query(ctx, q, ownerUserID, domain.PersonaActive, ids)
	if err != nil {
		return nil, fmt.Errorf("op=persona.list_active_owned: %w", err)
	}
	defer rows.Close()

	var out []domain.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("op=persona.list_active_owned_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=persona.list_active_owned_rows: %w", err)
	}
	return out, nil
}

// TryBeginGeneration performs the single-winner CAS of I4: it succeeds
// only if generation_in_progress is false and version matches
// expectedVersion, atomically setting generation_in_progress=true and
// bumping version.
func (r *PersonaRepo) TryBeginGeneration(ctx domain.Context, id string, expectedVersion int) (bool, error) {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.TryBeginGeneration")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "personas"))

	q := `UPDATE personas SET generation_in_progress=true, version=version+1, updated_at=$4
	      WHERE id=$1 AND version=$2 AND generation_in_progress=false AND status=$3`
	tag, err := r.Pool.Exec(ctx, q, id, expectedVersion, domain.PersonaGenerating, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=persona.try_begin_generation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteGeneration writes the terminal ACTIVE fields and clears the
// in-progress guard.
func (r *PersonaRepo) CompleteGeneration(ctx domain.Context, id, name, description, attitudes, model string) error {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.CompleteGeneration")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "personas"))

	q := `UPDATE personas SET status=$2, name=$3, detailed_description=$4, product_attitudes=$5, model=$6,
	      generation_in_progress=false, updated_at=$7 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, domain.PersonaActive, name, description, attitudes, model, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=persona.complete_generation: %w", err)
	}
	return nil
}

// FailGeneration marks the persona FAILED and clears the guard.
func (r *PersonaRepo) FailGeneration(ctx domain.Context, id, reason string) error {
	tracer := otel.Tracer("repo.personas")
	ctx, span := tracer.Start(ctx, "personas.FailGeneration")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.operation", "UPDATE"), attribute.String("db.sql.table", "personas"))

	q := `UPDATE personas SET status=$2, generation_in_progress=false, updated_at=$3 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, domain.PersonaFailed, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=persona.fail_generation: %w", err)
	}
	return nil
}
