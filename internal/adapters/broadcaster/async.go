package broadcaster

import (
	"context"
	"errors"
	"time"

	"gavel-auction-engine/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrEventQueueFull = errors.New("event queue is full")

// AsyncNotifier hands events to a single background worker so publishers
// never wait on the network. One worker keeps events in publish order.
type AsyncNotifier struct {
	next    outbound.Notifier
	pool    *pond.WorkerPool
	timeout time.Duration
	logger  zerolog.Logger
}

type AsyncNotifierParams struct {
	Notifier outbound.Notifier
	// QueueSize bounds events waiting for delivery; extra events are dropped
	QueueSize int
	// Timeout bounds one delivery to the wrapped notifier
	Timeout time.Duration
	Logger  zerolog.Logger
}

func NewAsyncNotifier(params AsyncNotifierParams) *AsyncNotifier {
	queue := params.QueueSize
	if queue <= 0 {
		queue = 1024
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &AsyncNotifier{
		next:    params.Notifier,
		pool:    pond.New(1, queue),
		timeout: timeout,
		logger:  params.Logger.With().Str("component", "async_notifier").Logger(),
	}
}

// Publish queues event and returns at once. The caller's cancellation does
// not reach the delivery.
func (n *AsyncNotifier) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	if n.pool.Stopped() {
		return ErrEventQueueFull
	}
	base := context.WithoutCancel(ctx)

	queued := n.pool.TrySubmit(func() {
		pctx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()
		if err := n.next.Publish(pctx, auctionID, event); err != nil {
			n.logger.Error().Err(err).
				Str("auction_id", auctionID.String()).
				Str("event_type", string(event.Type)).
				Msg("Failed to deliver event")
		}
	})
	if !queued {
		n.logger.Warn().
			Str("auction_id", auctionID.String()).
			Str("event_type", string(event.Type)).
			Msg("Event queue full, dropping event")
		return ErrEventQueueFull
	}
	return nil
}

// Close delivers the queued events and stops the worker
func (n *AsyncNotifier) Close() {
	n.pool.StopAndWait()
}
