package domain

import "time"

// VerifiedIdentity es el resultado efímero de una autenticación SIWE exitosa.
// No se persiste.
type VerifiedIdentity struct {
	Address    string    `json:"address"`
	ChainID    int64     `json:"chain_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Nonce es el desafío emitido a una sesión antes de firmar.
type Nonce struct {
	Value      string     `json:"nonce"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

type WalletAddress struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Address   string    `json:"address"`
	ChainID   int64     `json:"chain_id"`
	IsPrimary bool      `json:"is_primary"`
	ENSName   *string   `json:"ens_name,omitempty"`
	ENSAvatar *string   `json:"ens_avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Name devuelve el subdominio registrado o "" si no tiene.
func (w WalletAddress) Name() string {
	if w.ENSName == nil {
		return ""
	}
	return *w.ENSName
}
