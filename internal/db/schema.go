package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Las restricciones UNIQUE son las que garantizan unicidad de subdominios y
// de credenciales por logro; los chequeos previos en servicio son solo un
// atajo.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_addresses (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		address    TEXT NOT NULL,
		chain_id   BIGINT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		ens_name   TEXT,
		ens_avatar TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS wallet_addresses_address_key ON wallet_addresses (address)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS wallet_addresses_ens_name_key ON wallet_addresses (ens_name) WHERE ens_name IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS wallet_addresses_user_id_idx ON wallet_addresses (user_id)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(id),
		achievement_kind TEXT NOT NULL,
		token_id         TEXT NOT NULL,
		name             TEXT NOT NULL,
		description      TEXT NOT NULL,
		image            TEXT NOT NULL,
		metadata_uri     TEXT NOT NULL,
		contract_address TEXT NOT NULL,
		chain_id         BIGINT NOT NULL,
		transaction_hash TEXT,
		owner_address    TEXT,
		minted_at        TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, achievement_kind)
	)`,
	`CREATE TABLE IF NOT EXISTS course_completions (
		user_id      TEXT NOT NULL,
		course_id    TEXT NOT NULL,
		course_title TEXT NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, course_id)
	)`,
}

// EnsureSchema crea las tablas e índices que el servicio necesita si no existen.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
