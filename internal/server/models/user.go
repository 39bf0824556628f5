// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. SchemaName names the tenant schema that holds the
// user's data and is carried in every access token.
type User struct {
	ID                    string
	Email                 string
	PasswordHash          string
	SchemaName            string
	EmailVerified         bool
	VerificationTokenHash string
	CreatedAt             time.Time
}
