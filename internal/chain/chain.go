// Package chain abstrae las transacciones on-chain: emisión de NFTs y
// registro de subdominios. La confirmación final queda fuera de este paquete.
package chain

import (
	"context"
	"errors"
)

// MintResult identifica la transacción de mint enviada.
type MintResult struct {
	TokenID string `json:"token_id"`
	TxHash  string `json:"tx_hash"`
}

// Client envía transacciones y devuelve su hash sin esperar confirmación.
type Client interface {
	SubmitMint(ctx context.Context, recipient, metadataURI string) (MintResult, error)
	SubmitNameRegistration(ctx context.Context, label, owner string) (string, error)
}

var ErrEmptyResponse = errors.New("chain relayer returned empty response")
