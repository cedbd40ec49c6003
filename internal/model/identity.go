package model

import "time"

// DefaultRole is assigned when the auth service does not report one.
const DefaultRole = "USER"

type Identity struct {
	ID          int64  `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type Credential struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Profile is the registration input.
type Profile struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
