package broadcaster

import (
	"context"
	"errors"

	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

// Fanout delivers every event to each notifier in turn. A failing notifier
// does not prevent delivery to the others.
type Fanout struct {
	notifiers []outbound.Notifier
}

// NewFanout creates a fan-out over the non-nil notifiers
func NewFanout(notifiers ...outbound.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len returns the number of notifiers
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// Publish sends event to every notifier and joins their errors
func (f *Fanout) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Publish(ctx, auctionID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
