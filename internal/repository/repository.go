// Package repository implements the durable state store for campaigns,
// contacts and per-message delivery status on PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// repositoryImpl is the concrete implementation of Repository interface.
type repositoryImpl struct {
	db       *sqlx.DB
	campaign CampaignRepository
	contact  ContactRepository
	message  MessageRepository
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) Repository {
	return &repositoryImpl{
		db:       db,
		campaign: NewCampaignRepository(db),
		contact:  NewContactRepository(db),
		message:  NewMessageRepository(db),
	}
}

// Campaign returns the campaign repository.
func (r *repositoryImpl) Campaign() CampaignRepository {
	return r.campaign
}

// Contact returns the contact repository.
func (r *repositoryImpl) Contact() ContactRepository {
	return r.contact
}

// Message returns the message repository.
func (r *repositoryImpl) Message() MessageRepository {
	return r.message
}

// Ping checks if the database connection is healthy.
func (r *repositoryImpl) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}
