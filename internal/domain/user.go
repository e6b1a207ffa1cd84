package domain

import "time"

// User represents a chat account.
type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash []byte    `json:"-"`
	ProfilePic   string    `json:"profilePic"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
