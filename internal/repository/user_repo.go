package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ethed-api/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	// CreateWithWallet crea el usuario y su primera wallet en una transacción.
	CreateWithWallet(ctx context.Context, user domain.User, wallet domain.WalletAddress) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, display_name, created_at
		FROM users
		WHERE id = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.DisplayName,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, translate(err)
	}
	return u, nil
}

func (r *PgUserRepository) CreateWithWallet(ctx context.Context, user domain.User, wallet domain.WalletAddress) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertUser = `
			INSERT INTO users (id, display_name, created_at)
			VALUES ($1, $2, $3)
		`
		if _, err := tx.Exec(ctx, insertUser, user.ID, user.DisplayName, user.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertWalletQuery,
			wallet.ID,
			wallet.UserID,
			wallet.Address,
			wallet.ChainID,
			wallet.IsPrimary,
			wallet.ENSName,
			wallet.ENSAvatar,
			wallet.CreatedAt,
		)
		return err
	})
	return translate(err)
}
