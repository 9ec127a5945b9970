package models

import (
	"net/url"
	"time"
)

const avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg"

// User represents a registered user.
type User struct {
	ID           string    `json:"_id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	ProfileImage string    `json:"profileImage" db:"profile_image"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// AvatarURL derives the deterministic profile image URL for a username.
func AvatarURL(username string) string {
	return avatarBaseURL + "?seed=" + url.QueryEscape(username)
}

// PublicUser is the projection of a user returned by the auth endpoints.
type PublicUser struct {
	ID           string     `json:"_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	ProfileImage string     `json:"profileImage"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// Public returns the projection without the creation time.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
	}
}

// PublicWithCreatedAt returns the projection including the creation time.
func (u *User) PublicWithCreatedAt() PublicUser {
	p := u.Public()
	createdAt := u.CreatedAt
	p.CreatedAt = &createdAt
	return p
}

// RegisterRequest defines the structure for a user registration request.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,appemail"`
	Password string `json:"password" validate:"required,min=8,bcryptmax"`
}

// LoginRequest defines the structure for a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Token   string     `json:"token"`
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

// LoginResponse defines the structure for a successful login response.
type LoginResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}
