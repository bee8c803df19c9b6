package repository

import (
	"context"
	"database/sql"

	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// PostgresRepo persiste preços em banco Postgres
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// UpsertCurrent insere ou atualiza o preço corrente do símbolo
// Utiliza ON CONFLICT para garantir atomicidade por symbol
func (r *PostgresRepo) UpsertCurrent(ctx context.Context, t events.PriceTick) error {
	const q = `
		INSERT INTO prices_current (symbol, price, version, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (symbol) DO UPDATE SET
		  price      = EXCLUDED.price,
		  version    = EXCLUDED.version,
		  updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, q, t.Symbol, t.Price, t.Version, t.UpdatedAt)
	return err
}

// InsertHistory insere o tick no histórico (prices_history)
func (r *PostgresRepo) InsertHistory(ctx context.Context, t events.PriceTick) error {
	const q = `
		INSERT INTO prices_history (symbol, price, version, updated_at)
		VALUES ($1,$2,$3,$4)
	`
	_, err := r.DB.ExecContext(ctx, q, t.Symbol, t.Price, t.Version, t.UpdatedAt)
	return err
}
