package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ethed-api/internal/domain"
)

// CredentialRepository persiste credenciales emitidas. La unicidad por
// (user_id, achievement_kind) la garantiza la base de datos.
type CredentialRepository interface {
	Create(ctx context.Context, credential domain.Credential) error
	GetByID(ctx context.Context, id string) (domain.Credential, error)
	FindByAchievement(ctx context.Context, userID, kind string) (domain.Credential, error)
	ListByUserID(ctx context.Context, userID string) ([]domain.Credential, error)
	SetTransactionHash(ctx context.Context, id, txHash string) error
}

const selectCredentialColumns = `id, user_id, achievement_kind, token_id, name, description, image,
	metadata_uri, contract_address, chain_id, transaction_hash, owner_address, minted_at`

type PgCredentialRepository struct {
	pool *pgxpool.Pool
}

func NewPgCredentialRepository(pool *pgxpool.Pool) *PgCredentialRepository {
	return &PgCredentialRepository{pool: pool}
}

// Create devuelve ErrConflict si ya existe una credencial para el mismo logro.
func (r *PgCredentialRepository) Create(ctx context.Context, c domain.Credential) error {
	const query = `
		INSERT INTO credentials (id, user_id, achievement_kind, token_id, name, description, image,
			metadata_uri, contract_address, chain_id, transaction_hash, owner_address, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, achievement_kind) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.AchievementKind,
		c.TokenID,
		c.Name,
		c.Description,
		c.Image,
		c.MetadataURI,
		c.ContractAddress,
		c.ChainID,
		c.TransactionHash,
		c.OwnerAddress,
		c.MintedAt,
	)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *PgCredentialRepository) GetByID(ctx context.Context, id string) (domain.Credential, error) {
	query := `SELECT ` + selectCredentialColumns + ` FROM credentials WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgCredentialRepository) FindByAchievement(ctx context.Context, userID, kind string) (domain.Credential, error) {
	query := `SELECT ` + selectCredentialColumns + ` FROM credentials WHERE user_id = $1 AND achievement_kind = $2`
	return r.scanOne(ctx, query, userID, kind)
}

func (r *PgCredentialRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Credential, error) {
	query := `SELECT ` + selectCredentialColumns + ` FROM credentials WHERE user_id = $1 ORDER BY minted_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(credentialDest(&c)...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetTransactionHash solo completa un hash vacío; ErrConflict si ya había otro.
func (r *PgCredentialRepository) SetTransactionHash(ctx context.Context, id, txHash string) error {
	const query = `
		UPDATE credentials SET transaction_hash = $1
		WHERE id = $2 AND (transaction_hash IS NULL OR transaction_hash = $1)
	`
	tag, err := r.pool.Exec(ctx, query, txHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *PgCredentialRepository) scanOne(ctx context.Context, query string, args ...any) (domain.Credential, error) {
	var c domain.Credential
	if err := r.pool.QueryRow(ctx, query, args...).Scan(credentialDest(&c)...); err != nil {
		return domain.Credential{}, translate(err)
	}
	return c, nil
}

func credentialDest(c *domain.Credential) []any {
	return []any{
		&c.ID,
		&c.UserID,
		&c.AchievementKind,
		&c.TokenID,
		&c.Name,
		&c.Description,
		&c.Image,
		&c.MetadataURI,
		&c.ContractAddress,
		&c.ChainID,
		&c.TransactionHash,
		&c.OwnerAddress,
		&c.MintedAt,
	}
}
