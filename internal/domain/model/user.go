package model

import "time"

// User is a notification recipient identified by a Telegram user id.
type User struct {
	ID         int64
	ExternalID int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
