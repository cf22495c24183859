package models

import "time"

// User is the identity record. Rows are created by the identity service;
// this service only mutates the presence fields.
type User struct {
	ID        int        `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Image     *string    `db:"image" json:"image,omitempty"`
	IsOnline  bool       `db:"is_online" json:"is_online"`
	LastSeen  *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// PresenceStatus is the derived presence view of a user. LastSeen is only
// meaningful while the user is offline.
type PresenceStatus struct {
	UserID   int        `db:"id" json:"user_id"`
	IsOnline bool       `db:"is_online" json:"is_online"`
	LastSeen *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}
