package domain

import "time"

// Account roles available at registration.
const (
	RoleJobSeeker = "job_seeker"
	RoleEmployer  = "employer"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2 encoded
	Role         string // "job_seeker" or "employer"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
