package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrContactNotFound  = errors.New("contact not found")
	ErrPendingNotFound  = errors.New("pending record not found")
	ErrDeliveryRejected = errors.New("delivery rejected by downstream")
)

// PendingRecord is one queued unit of sync work for a contact.
// UpdateTimestamp is the enqueue time used for ordering and cutoff.
type PendingRecord struct {
	EmailID         uuid.UUID `db:"email_id"`
	Retry           int       `db:"retry"`
	CreateTimestamp time.Time `db:"create_timestamp"`
	UpdateTimestamp time.Time `db:"update_timestamp"`
}

// Dormant reports whether the record exhausted its retry budget.
func (p PendingRecord) Dormant(retryLimit int) bool {
	return p.Retry >= retryLimit
}
