package models

import "time"

// Instance is a registered clinic installation. SecretHash is a bcrypt hash
// of the instance's API secret; the plaintext is shown once at registration.
// Cursor tracks the highest change-log sequence the instance has pulled,
// which bounds how far tombstone garbage collection may advance.
type Instance struct {
	ID           string
	Name         string
	SecretHash   string
	Cursor       int64
	RegisteredAt time.Time
	LastSeenAt   *time.Time
}
