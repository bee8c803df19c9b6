package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

// Postgres implementa o Ledger em banco.
// Serialização por usuário via lock pessimista (SELECT ... FOR UPDATE)
// na linha da conta; toda mutação registra lançamento em account_ledger.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

type row struct {
	balance   int64
	available int64
	frozen    int64
	bias      string
}

// lockAccount lê a conta com FOR UPDATE, criando-a se não existir
func (p *Postgres) lockAccount(ctx context.Context, tx *sql.Tx, userID string) (row, error) {
	var r row
	err := tx.QueryRowContext(ctx, `
		SELECT balance_cents, available_cents, frozen_cents, outcome_bias
		FROM accounts WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&r.balance, &r.available, &r.frozen, &r.bias)
	if err == sql.ErrNoRows {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO accounts(user_id, balance_cents, available_cents, frozen_cents, outcome_bias, version)
			VALUES($1,0,0,0,$2,1)`, userID, string(outcome.BiasActual)); err != nil {
			return row{}, err
		}
		return row{bias: string(outcome.BiasActual)}, nil
	}
	return r, err
}

func (p *Postgres) writeBack(ctx context.Context, tx *sql.Tx, userID string, r row) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance_cents=$1, available_cents=$2, frozen_cents=$3, version=version+1, updated_at=NOW()
		WHERE user_id=$4`, r.balance, r.available, r.frozen, userID)
	return err
}

func (p *Postgres) appendLedger(ctx context.Context, tx *sql.Tx, userID, op string, amount int64, desc string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_ledger(user_id, operation_type, amount_cents, description)
		VALUES($1,$2,$3,$4)`, userID, op, amount, desc)
	return err
}

func accountOf(userID string, r row) Account {
	return Account{
		UserID:         userID,
		BalanceCents:   r.balance,
		AvailableCents: r.available,
		FrozenCents:    r.frozen,
		Bias:           outcome.Bias(r.bias),
	}
}

func (p *Postgres) GetOrCreate(ctx context.Context, userID string) (Account, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	r, err := p.lockAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return accountOf(userID, r), nil
}

func (p *Postgres) Get(ctx context.Context, userID string) (Account, error) {
	var r row
	err := p.db.QueryRowContext(ctx, `
		SELECT balance_cents, available_cents, frozen_cents, outcome_bias
		FROM accounts WHERE user_id=$1`, userID).
		Scan(&r.balance, &r.available, &r.frozen, &r.bias)
	if err == sql.ErrNoRows {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return accountOf(userID, r), nil
}

func (p *Postgres) Deposit(ctx context.Context, userID string, amountCents int64) (Account, error) {
	if amountCents <= 0 {
		return Account{}, ErrBadAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	r, err := p.lockAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}

	r.available += amountCents
	r.balance += amountCents
	if err = p.writeBack(ctx, tx, userID, r); err != nil {
		return Account{}, err
	}
	if err = p.appendLedger(ctx, tx, userID, "CREDIT", amountCents, "deposit"); err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return accountOf(userID, r), nil
}

func (p *Postgres) Reserve(ctx context.Context, userID string, amountCents int64) error {
	if amountCents <= 0 {
		return ErrBadAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := p.lockAccount(ctx, tx, userID)
	if err != nil {
		return err
	}
	if r.available < amountCents {
		return ErrInsufficientFunds
	}

	r.available -= amountCents
	r.frozen += amountCents
	if err = p.writeBack(ctx, tx, userID, r); err != nil {
		return err
	}
	if err = p.appendLedger(ctx, tx, userID, "RESERVE", amountCents, "stake reserve"); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Release(ctx context.Context, userID string, amountCents int64) error {
	if amountCents <= 0 {
		return ErrBadAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := p.lockAccount(ctx, tx, userID)
	if err != nil {
		return err
	}
	if r.frozen < amountCents {
		return fmt.Errorf("%w: frozen %d < release %d", ErrInvariantViolation, r.frozen, amountCents)
	}

	r.frozen -= amountCents
	r.available += amountCents
	if err = p.writeBack(ctx, tx, userID, r); err != nil {
		return err
	}
	if err = p.appendLedger(ctx, tx, userID, "RELEASE", amountCents, "stake release"); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Settle(ctx context.Context, userID string, stakeCents, profitLossCents int64) (Account, error) {
	if stakeCents <= 0 {
		return Account{}, ErrBadAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	r, err := p.lockAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}
	if r.frozen < stakeCents {
		return Account{}, fmt.Errorf("%w: frozen %d < stake %d", ErrInvariantViolation, r.frozen, stakeCents)
	}
	if r.available+stakeCents+profitLossCents < 0 {
		return Account{}, fmt.Errorf("%w: settle would drive available negative", ErrInvariantViolation)
	}

	r.frozen -= stakeCents
	r.available += stakeCents + profitLossCents
	r.balance += profitLossCents
	if err = p.writeBack(ctx, tx, userID, r); err != nil {
		return Account{}, err
	}
	if err = p.appendLedger(ctx, tx, userID, "SETTLE", profitLossCents, "order settlement"); err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return accountOf(userID, r), nil
}

func (p *Postgres) SetBias(ctx context.Context, userID string, bias outcome.Bias) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = p.lockAccount(ctx, tx, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET outcome_bias=$1, version=version+1, updated_at=NOW()
		WHERE user_id=$2`, string(bias), userID); err != nil {
		return err
	}
	return tx.Commit()
}
