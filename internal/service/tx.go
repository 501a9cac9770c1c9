package service

import (
	"context"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/db"
	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/google/uuid"
)

// Tx is the unit of work the services run in. *db.Tx implements it.
type Tx interface {
	Enqueue(ctx context.Context, emailID uuid.UUID, now time.Time) error
	DueBefore(ctx context.Context, cutoff time.Time, retryLimit, batchSize int) ([]models.PendingRecord, error)
	MarkSuccess(ctx context.Context, rec models.PendingRecord) error
	MarkFailure(ctx context.Context, rec models.PendingRecord) error
	CountDue(ctx context.Context, cutoff time.Time, retryLimit int) (int, error)
	CountDormant(ctx context.Context, retryLimit int) (int, error)

	GetContact(ctx context.Context, emailID uuid.UUID) (models.Contact, error)
	SaveContact(ctx context.Context, c models.Contact, now time.Time) error

	Commit() error
	Rollback() error
}

// BeginFunc starts a Tx.
type BeginFunc func(ctx context.Context) (Tx, error)

// FromStore adapts a db.Store to a BeginFunc.
func FromStore(s *db.Store) BeginFunc {
	return func(ctx context.Context) (Tx, error) {
		tx, err := s.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
}
