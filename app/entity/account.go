package entity

import (
	"database/sql"
	"time"
)

// Account is a registered channel owner. Handle and Email are stored
// lower-cased and trimmed; both carry unique indexes. RefreshToken holds
// the single currently valid refresh token for the account, or NULL when
// the session has been revoked.
type Account struct {
	ID           uint64
	Handle       string
	Email        string
	FullName     string
	Avatar       string
	CoverImage   sql.NullString
	PasswordHash string
	RefreshToken sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy with the secret fields blanked. Every account
// that leaves the service layer goes through this.
func (a *Account) Sanitized() *Account {
	clean := *a
	clean.PasswordHash = ""
	clean.RefreshToken = sql.NullString{}
	return &clean
}
