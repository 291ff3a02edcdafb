package domain

import (
	"strings"
	"time"
)

const (
	AchievementFounding     = "founding"
	AchievementCoursePrefix = "course:"
)

// CourseAchievement arma la clave de logro para completar un curso.
func CourseAchievement(courseID string) string {
	return AchievementCoursePrefix + strings.TrimSpace(courseID)
}

// Credential es el registro persistido de un NFT emitido.
type Credential struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	AchievementKind string    `json:"achievement_kind"`
	TokenID         string    `json:"token_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Image           string    `json:"image"`
	MetadataURI     string    `json:"metadata_uri"`
	ContractAddress string    `json:"contract_address"`
	ChainID         int64     `json:"chain_id"`
	TransactionHash *string   `json:"transaction_hash,omitempty"`
	OwnerAddress    *string   `json:"owner_address,omitempty"`
	MintedAt        time.Time `json:"minted_at"`
}

// AchievementParams describe el evento que origina la credencial.
type AchievementParams struct {
	CourseID    string    `json:"course_id,omitempty"`
	CourseTitle string    `json:"course_title,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// CredentialMetadata sigue el formato de metadata ERC-721.
type CredentialMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	ExternalURL string              `json:"external_url,omitempty"`
	Attributes  []MetadataAttribute `json:"attributes"`
}

type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}
