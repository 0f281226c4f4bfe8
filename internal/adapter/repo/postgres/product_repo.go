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

// ProductRepo persists Product records, always scoped by owner.
type ProductRepo struct{ Pool PgxPool }

// NewProductRepo constructs a ProductRepo with the given pool.
func NewProductRepo(p PgxPool) *ProductRepo { return &ProductRepo{Pool: p} }

// Create inserts a new, non-deleted product and returns its id.
func (r *ProductRepo) Create(ctx domain.Context, p domain.Product) (string, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "products"),
	)
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO products (id, owner_user_id, name, description, price, currency, category, features, deleted, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,$9,$9)`
	if _, err := r.Pool.Exec(ctx, q, id, p.OwnerUserID, p.Name, p.Description, p.Price, p.Currency, p.Category, p.Features, now); err != nil {
		return "", fmt.Errorf("op=product.create: %w", err)
	}
	return id, nil
}

// GetOwned loads a non-deleted product owned by ownerUserID.
func (r *ProductRepo) GetOwned(ctx domain.Context, ownerUserID, id string) (domain.Product, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.GetOwned")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "products"),
	)
	q := `SELECT id, owner_user_id, name, description, price, currency, category, features, deleted, created_at, updated_at
	      FROM products WHERE id=$1 AND owner_user_id=$2 AND deleted=false`
	row := r.Pool.QueryRow(ctx, q, id, ownerUserID)
	var p domain.Product
	if err := row.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.Category, &p.Features, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Product{}, fmt.Errorf("op=product.get_owned: %w", domain.ErrUnauthorizedAccess)
		}
		return domain.Product{}, fmt.Errorf("op=product.get_owned: %w", err)
	}
	return p, nil
}

// ListOwnedByIDs returns only ids owned by ownerUserID and not deleted
// (I3 ownership scoping); callers detect missing/unowned ids by length.
func (r *ProductRepo) ListOwnedByIDs(ctx domain.Context, ownerUserID string, ids []string) ([]domain.Product, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.ListOwnedByIDs")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "products"),
	)
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id, owner_user_id, name, description, price, currency, category, features, deleted, created_at, updated_at
	      FROM products WHERE owner_user_id=$1 AND deleted=false AND id = ANY($2)`
	rows, err := r.Pool.Query(ctx, q, ownerUserID, ids)
	if err != nil {
		return nil, fmt.Errorf("op=product.list_owned: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.Category, &p.Features, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=product.list_owned_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=product.list_owned_rows: %w", err)
	}
	return out, nil
}
