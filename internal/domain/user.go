package domain

import "time"

// User es la identidad derivada de una sesion valida.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// DisplayName devuelve el nombre guardado en metadata, si existe.
func (u *User) DisplayName() string {
	if u == nil || u.Metadata == nil {
		return ""
	}
	name, _ := u.Metadata["name"].(string)
	return name
}

// UserProfile es el perfil uno-a-uno con User, resuelto despues del login.
type UserProfile struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	AvatarURL        string    `json:"avatar_url,omitempty"`
	SubscriptionTier string    `json:"subscription_tier,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
