package models

import (
	"database/sql"
	"time"
)

// Contact is a recipient imported by the contact-list subsystem.
// Contacts are never mutated during dispatch.
type Contact struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	PhoneNumber string         `db:"phone_number" json:"phone_number"`
	Email       sql.NullString `db:"email" json:"email,omitempty"`
	Tags        sql.NullString `db:"tags" json:"tags,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
