// Package events publica hechos del dominio para consumidores externos
// (notificaciones, analítica). La publicación es best-effort.
package events

import (
	"context"
	"time"
)

const (
	RoutingCredentialIssued = "credential.issued"
	RoutingNameRegistered   = "name.registered"
)

type CredentialIssued struct {
	CredentialID    string    `json:"credential_id"`
	UserID          string    `json:"user_id"`
	AchievementKind string    `json:"achievement_kind"`
	TokenID         string    `json:"token_id"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	MetadataURI     string    `json:"metadata_uri"`
	MintedAt        time.Time `json:"minted_at"`
}

type NameRegistered struct {
	UserID   string    `json:"user_id"`
	FullName string    `json:"full_name"`
	Owner    string    `json:"owner"`
	TxHash   string    `json:"tx_hash"`
	At       time.Time `json:"at"`
}

// Publisher envía un evento JSON con la clave de ruteo dada.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type noopPublisher struct{}

// NewNoopPublisher descarta los eventos; se usa cuando AMQP no está configurado.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, string, any) error {
	return nil
}
