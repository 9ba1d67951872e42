package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	FunName      string    `json:"fun_name"`
	Bio          string    `json:"bio"`
	PictureKey   *string   `json:"-"`
	PictureURL   *string   `json:"picture_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RolePlayer UserRole = "player"
)

func (u *User) Role() UserRole {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RolePlayer
}
