package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/workflow-acl/internal/domain"
)

// GrantRepo is the durable copy of the policy store. Every console instance loads it
// on start and again whenever a grant change is broadcast.
type GrantRepo struct {
	pool *pgxpool.Pool
}

func NewGrantRepo(pool *pgxpool.Pool) *GrantRepo {
	return &GrantRepo{pool: pool}
}

func (r *GrantRepo) GetAllGrants(ctx context.Context) ([]domain.Grant, error) {
	query := `SELECT identity, role, allowed_tags, updated_at FROM access_grants ORDER BY identity`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load grants: %w", err)
	}
	defer rows.Close()

	var results []domain.Grant
	for rows.Next() {
		var g domain.Grant
		if err := rows.Scan(&g.Identity, &g.Role, &g.Tags, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan grant: %w", err)
		}
		results = append(results, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load grants: %w", err)
	}
	return results, nil
}

// UpsertGrant overwrites role and tags of the identity.
func (r *GrantRepo) UpsertGrant(ctx context.Context, g domain.Grant) error {
	query := `
		INSERT INTO access_grants (identity, role, allowed_tags, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (identity) DO UPDATE
		SET role = EXCLUDED.role, allowed_tags = EXCLUDED.allowed_tags, updated_at = NOW()`

	tags := g.Tags
	if tags == nil {
		tags = []string{}
	}
	if _, err := r.pool.Exec(ctx, query, g.Identity, string(g.Role), tags); err != nil {
		return fmt.Errorf("postgres: failed to upsert grant: %w", err)
	}
	return nil
}

// DeleteGrant is a no-op for unknown identities, like policy.Store.Revoke.
func (r *GrantRepo) DeleteGrant(ctx context.Context, identity string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM access_grants WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("postgres: failed to delete grant: %w", err)
	}
	return nil
}
