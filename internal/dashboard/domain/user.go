package domain

import "time"

type User struct {
	Username     string
	PasswordHash string // argon2id PHC string, or bcrypt for accounts created before the rewrite
	MFASecret    string // TOTP secret, base32 encoded
	CreatedAt    time.Time
}
