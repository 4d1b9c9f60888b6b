package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/workflow-acl/internal/domain"
)

const auditColumns = 8

// AuditRepo receives mirrored audit records. The JSONL log stays authoritative;
// this table is for reporting across console instances.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch inserts records in one statement. Records already present (same id) are skipped,
// so a batch can be replayed.
func (r *AuditRepo) WriteBatch(ctx context.Context, records []domain.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	query, args, err := buildAuditInsert(records)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: audit batch of %d: %w", len(records), err)
	}
	return nil
}

func buildAuditInsert(records []domain.AuditRecord) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO audit_records (id, ts, username, action, workflow_id, workflow_name, status, details) VALUES ")

	args := make([]interface{}, 0, len(records)*auditColumns)
	for i, rec := range records {
		if i > 0 {
			sb.WriteByte(',')
		}
		p := i * auditColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

		var details []byte
		if len(rec.Details) > 0 {
			var err error
			if details, err = json.Marshal(rec.Details); err != nil {
				return "", nil, fmt.Errorf("postgres: encode details of %s: %w", rec.ID, err)
			}
		}
		args = append(args,
			rec.ID, rec.Timestamp, rec.Username, string(rec.Action),
			nullable(rec.WorkflowID), nullable(rec.WorkflowName), string(rec.Status), details,
		)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")
	return sb.String(), args, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
