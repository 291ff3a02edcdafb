package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ethed-api/internal/domain"
)

// WalletRepository persiste wallets vinculadas y sus subdominios.
type WalletRepository interface {
	Create(ctx context.Context, wallet domain.WalletAddress) error
	GetByAddress(ctx context.Context, address string) (domain.WalletAddress, error)
	ListByUserID(ctx context.Context, userID string) ([]domain.WalletAddress, error)
	ExistsENSName(ctx context.Context, fullName string) (bool, error)
	UpdateENSName(ctx context.Context, walletID, fullName string) error
	UpdateAvatar(ctx context.Context, walletID, avatar string) error
}

const insertWalletQuery = `
	INSERT INTO wallet_addresses (id, user_id, address, chain_id, is_primary, ens_name, ens_avatar, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const selectWalletColumns = `id, user_id, address, chain_id, is_primary, ens_name, ens_avatar, created_at`

type PgWalletRepository struct {
	pool *pgxpool.Pool
}

func NewPgWalletRepository(pool *pgxpool.Pool) *PgWalletRepository {
	return &PgWalletRepository{pool: pool}
}

func (r *PgWalletRepository) Create(ctx context.Context, wallet domain.WalletAddress) error {
	_, err := r.pool.Exec(ctx, insertWalletQuery,
		wallet.ID,
		wallet.UserID,
		wallet.Address,
		wallet.ChainID,
		wallet.IsPrimary,
		wallet.ENSName,
		wallet.ENSAvatar,
		wallet.CreatedAt,
	)
	return translate(err)
}

func (r *PgWalletRepository) GetByAddress(ctx context.Context, address string) (domain.WalletAddress, error) {
	query := `SELECT ` + selectWalletColumns + ` FROM wallet_addresses WHERE address = $1`
	var w domain.WalletAddress
	err := r.pool.QueryRow(ctx, query, address).Scan(
		&w.ID,
		&w.UserID,
		&w.Address,
		&w.ChainID,
		&w.IsPrimary,
		&w.ENSName,
		&w.ENSAvatar,
		&w.CreatedAt,
	)
	if err != nil {
		return domain.WalletAddress{}, translate(err)
	}
	return w, nil
}

// ListByUserID devuelve primero la wallet primaria y luego por antigüedad.
func (r *PgWalletRepository) ListByUserID(ctx context.Context, userID string) ([]domain.WalletAddress, error) {
	query := `SELECT ` + selectWalletColumns + `
		FROM wallet_addresses
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []domain.WalletAddress
	for rows.Next() {
		var w domain.WalletAddress
		if err := rows.Scan(
			&w.ID,
			&w.UserID,
			&w.Address,
			&w.ChainID,
			&w.IsPrimary,
			&w.ENSName,
			&w.ENSAvatar,
			&w.CreatedAt,
		); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *PgWalletRepository) ExistsENSName(ctx context.Context, fullName string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM wallet_addresses WHERE ens_name = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, fullName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateENSName devuelve ErrConflict si otro registro ya tiene el nombre.
func (r *PgWalletRepository) UpdateENSName(ctx context.Context, walletID, fullName string) error {
	const query = `UPDATE wallet_addresses SET ens_name = $1, ens_avatar = NULL WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, fullName, walletID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgWalletRepository) UpdateAvatar(ctx context.Context, walletID, avatar string) error {
	const query = `UPDATE wallet_addresses SET ens_avatar = $1 WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, avatar, walletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
