package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/change"
	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/google/uuid"
)

// ContactService is the write path of contacts. It stores the new state of a
// contact and queues it for sync only when the change is material.
type ContactService struct {
	begin  BeginFunc
	logger *slog.Logger
}

func NewContactService(begin BeginFunc, l *slog.Logger) *ContactService {
	return &ContactService{begin: begin, logger: l}
}

// Save replaces the stored contact with next and reports whether a sync was
// queued. Contact write and enqueue share one transaction.
func (s *ContactService) Save(ctx context.Context, next models.Contact, now time.Time) (bool, error) {
	if next.ID() == uuid.Nil {
		return false, errors.New("contact has no email_id")
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin failure: %w", err)
	}
	defer tx.Rollback()

	var changed []string
	prev, err := tx.GetContact(ctx, next.ID())
	switch {
	case errors.Is(err, models.ErrContactNotFound):
		changed = []string{"created"}
	case err != nil:
		return false, err
	default:
		if changed, err = ContactChanges(prev, next); err != nil {
			return false, err
		}
	}

	if err := tx.SaveContact(ctx, next, now); err != nil {
		return false, err
	}
	if len(changed) > 0 {
		if err := tx.Enqueue(ctx, next.ID(), now); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	if len(changed) > 0 {
		s.logger.Debug("Contact queued for sync", "email_id", next.ID(), "changed", changed)
	}
	return len(changed) > 0, nil
}

// Enqueue queues a contact for sync regardless of changes.
func (s *ContactService) Enqueue(ctx context.Context, emailID uuid.UUID, now time.Time) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin failure: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.GetContact(ctx, emailID); err != nil {
		return err
	}
	if err := tx.Enqueue(ctx, emailID, now); err != nil {
		return err
	}
	return tx.Commit()
}

// ContactChanges lists the material differences between two states of a
// contact as "kind.field" names. An empty result means nothing to sync.
// A sub-entity appearing with no business data is not a change.
func ContactChanges(prev, next models.Contact) ([]string, error) {
	var changes []string

	diff := func(a, b change.Snapshot) error {
		names, err := change.Changed(a, b)
		if err != nil {
			return err
		}
		for _, n := range names {
			changes = append(changes, string(a.Kind())+"."+n)
		}
		return nil
	}
	optional := func(kind change.Kind, a, b change.Snapshot) error {
		switch {
		case a == nil && b == nil:
			return nil
		case a == nil:
			if !change.IsDefault(b) {
				changes = append(changes, string(kind)+".added")
			}
			return nil
		case b == nil:
			if !change.IsDefault(a) {
				changes = append(changes, string(kind)+".removed")
			}
			return nil
		}
		return diff(a, b)
	}

	if err := diff(prev.Email, next.Email); err != nil {
		return nil, err
	}
	if err := optional(models.KindAddOns, snapshot(prev.AddOns), snapshot(next.AddOns)); err != nil {
		return nil, err
	}
	if err := optional(models.KindFxA, snapshot(prev.FxA), snapshot(next.FxA)); err != nil {
		return nil, err
	}
	if err := optional(models.KindVpnWaitlist, snapshot(prev.VpnWaitlist), snapshot(next.VpnWaitlist)); err != nil {
		return nil, err
	}

	for _, n := range next.Newsletters {
		old, ok := prev.Newsletter(n.Name)
		if !ok {
			changes = append(changes, "newsletter."+n.Name+".added")
			continue
		}
		names, err := change.Changed(old, n)
		if err != nil {
			return nil, err
		}
		for _, f := range names {
			changes = append(changes, "newsletter."+n.Name+"."+f)
		}
	}
	for _, n := range prev.Newsletters {
		if _, ok := next.Newsletter(n.Name); !ok {
			changes = append(changes, "newsletter."+n.Name+".removed")
		}
	}

	slices.Sort(changes)
	return changes, nil
}

// snapshot turns a nil pointer into a nil interface.
func snapshot[T change.Snapshot](p *T) change.Snapshot {
	if p == nil {
		return nil
	}
	return *p
}
