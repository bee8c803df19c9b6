package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

// Postgres implementa o Store em banco.
// O índice parcial em (status, expires_at) atende o FindExpiredActive;
// a transição de liquidação é um UPDATE condicional em status='ACTIVE'.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
	rules Rules
}

func NewPostgres(db *sql.DB, rules Rules, now func() time.Time) *Postgres {
	if now == nil {
		now = time.Now
	}
	return &Postgres{db: db, rules: rules, now: now}
}

const orderColumns = `
	id, user_id, symbol, amount_cents, requested_direction, effective_direction,
	actual_direction, duration_sec, entry_price, exit_price, profit_loss_cents,
	status, created_at, expires_at, settled_at`

func scanOrder(s interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	var effective sql.NullString
	var actual sql.NullString
	var exitPrice sql.NullFloat64
	var pl sql.NullInt64
	var settledAt sql.NullTime

	err := s.Scan(
		&o.ID, &o.UserID, &o.Symbol, &o.AmountCents, &o.RequestedDirection, &effective,
		&actual, &o.DurationSec, &o.EntryPrice, &exitPrice, &pl,
		&o.Status, &o.CreatedAt, &o.ExpiresAt, &settledAt,
	)
	if err != nil {
		return nil, err
	}
	if effective.Valid {
		o.EffectiveDirection = outcome.Direction(effective.String)
	}
	if actual.Valid {
		d := outcome.Direction(actual.String)
		o.ActualDirection = &d
	}
	if exitPrice.Valid {
		o.ExitPrice = &exitPrice.Float64
	}
	if pl.Valid {
		o.ProfitLossCents = &pl.Int64
	}
	if settledAt.Valid {
		o.SettledAt = &settledAt.Time
	}
	return &o, nil
}

func (p *Postgres) Create(ctx context.Context, o *Order) error {
	if err := p.rules.Validate(o.AmountCents, o.DurationSec); err != nil {
		return err
	}

	now := p.now().UTC()
	o.ID = uuid.NewString()
	o.Status = StatusActive
	o.CreatedAt = now
	o.ExpiresAt = now.Add(time.Duration(o.DurationSec) * time.Second)

	var actual *string
	if o.ActualDirection != nil {
		s := string(*o.ActualDirection)
		actual = &s
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO betting_orders
		  (id, user_id, symbol, amount_cents, requested_direction, actual_direction,
		   duration_sec, entry_price, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'ACTIVE',$9,$10)`,
		o.ID, o.UserID, o.Symbol, o.AmountCents, string(o.RequestedDirection), actual,
		o.DurationSec, o.EntryPrice, o.CreatedAt, o.ExpiresAt,
	)
	return err
}

func (p *Postgres) Get(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM betting_orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return o, err
}

func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM betting_orders
		WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM betting_orders
		WHERE status='ACTIVE' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) Settle(ctx context.Context, id string, exitPrice float64, profitLossCents int64, effective outcome.Direction, settledAt time.Time) (*Order, error) {
	// UPDATE condicional: só vence quem encontrar a ordem ainda ACTIVE
	row := p.db.QueryRowContext(ctx, `
		UPDATE betting_orders
		SET status='COMPLETED', exit_price=$1, profit_loss_cents=$2,
		    effective_direction=$3, settled_at=$4
		WHERE id=$5 AND status='ACTIVE'
		RETURNING `+orderColumns,
		exitPrice, profitLossCents, string(effective), settledAt.UTC(), id)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		// já liquidada ou inexistente; distingue pra quem loga
		var status string
		if qerr := p.db.QueryRowContext(ctx, `SELECT status FROM betting_orders WHERE id=$1`, id).Scan(&status); qerr == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadySettled
	}
	return o, err
}
