package service

import (
	"context"

	"github.com/Guizzs26/ctms-sync/internal/mapper"
)

//go:generate mockgen -destination=mocks/mock_deliverer.go -package=mocks -source=deliverer.go Deliverer

// Deliverer pushes one contact record downstream. Errors wrapping
// models.ErrDeliveryRejected are rejections by the platform; anything else
// is treated as transient. Push must be safe to repeat.
type Deliverer interface {
	Push(ctx context.Context, rec mapper.Record) error
}
