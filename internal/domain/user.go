// internal/domain/user.go
package domain

import "time"

// User represents a user of the custodial wallet system.
type User struct {
	ID        int64     `db:"id" json:"id"` // Primary key, BIGSERIAL in DB
	Username  string    `db:"username" json:"username"`
	Tier      string    `db:"tier" json:"tier"` // tier name, resolved against TierPolicy
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewUser creates a new User instance on the lowest tier.
func NewUser(username, tier string) *User {
	now := time.Now().UTC()
	return &User{
		Username:  username,
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
