package domain

import "time"

// User es la cuenta de la plataforma. Su ciclo de vida pertenece al
// aprovisionamiento de cuentas; aquí solo se referencia por ID.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
