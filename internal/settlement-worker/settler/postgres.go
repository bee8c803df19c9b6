package settler

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// PostgresDiscrepancies persiste a fila de reconciliação em banco
type PostgresDiscrepancies struct{ db *sql.DB }

func NewPostgresDiscrepancies(db *sql.DB) *PostgresDiscrepancies {
	return &PostgresDiscrepancies{db: db}
}

func (p *PostgresDiscrepancies) Record(ctx context.Context, d Discrepancy) error {
	// idempotente por order_id: dois ticks correndo não duplicam a pendência
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settlement_discrepancies
		  (id, order_id, user_id, stake_cents, profit_loss_cents, attempts, resolved, created_at)
		VALUES ($1,$2,$3,$4,$5,0,FALSE,NOW())
		ON CONFLICT (order_id) DO NOTHING`,
		uuid.NewString(), d.OrderID, d.UserID, d.StakeCents, d.ProfitLossCents)
	return err
}

func (p *PostgresDiscrepancies) ListPending(ctx context.Context, limit int) ([]Discrepancy, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, stake_cents, profit_loss_cents, attempts, created_at
		FROM settlement_discrepancies
		WHERE resolved = FALSE
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.ID, &d.OrderID, &d.UserID, &d.StakeCents, &d.ProfitLossCents, &d.Attempts, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresDiscrepancies) MarkResolved(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE settlement_discrepancies SET resolved=TRUE, resolved_at=NOW() WHERE id=$1`, id)
	return err
}

func (p *PostgresDiscrepancies) IncAttempts(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE settlement_discrepancies SET attempts=attempts+1 WHERE id=$1`, id)
	return err
}
