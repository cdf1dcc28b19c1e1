package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultChannelPrefix = "auction:"

// subscription is one client's fan-in of auction channels into a local channel
type subscription struct {
	pubsub   *redis.PubSub
	events   chan outbound.Event
	auctions map[uuid.UUID]struct{}
}

// RedisBroadcaster publishes auction events over Redis pub/sub and forwards
// them to locally subscribed clients
type RedisBroadcaster struct {
	client  *redis.Client
	prefix  string
	mu      sync.RWMutex
	clients map[string]*subscription
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient   *redis.Client
	ChannelPrefix string
	Logger        zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	prefix := params.ChannelPrefix
	if prefix == "" {
		prefix = defaultChannelPrefix
	}

	return &RedisBroadcaster{
		client:  params.RedisClient,
		prefix:  prefix,
		clients: make(map[string]*subscription),
		ctx:     ctx,
		cancel:  cancel,
		logger:  params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

var _ outbound.Broadcaster = (*RedisBroadcaster)(nil)

// ChannelName returns the Redis channel carrying events of an auction
func (r *RedisBroadcaster) ChannelName(auctionID uuid.UUID) string {
	return r.prefix + auctionID.String()
}

// Subscribe adds an auction to a client's subscription. The first call for a
// client fixes the local channel its events are delivered to.
func (r *RedisBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.clients[clientID]
	if ok {
		if _, already := sub.auctions[auctionID]; already {
			return nil
		}
	} else {
		sub = &subscription{
			pubsub:   r.client.Subscribe(ctx),
			events:   eventChan,
			auctions: make(map[uuid.UUID]struct{}),
		}
		r.clients[clientID] = sub
		go r.forward(clientID, sub)
	}

	if err := sub.pubsub.Subscribe(ctx, r.ChannelName(auctionID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("auction_id", auctionID.String()).Msg("Failed to subscribe to Redis channel")
		return fmt.Errorf("failed to subscribe to auction channel: %w", err)
	}
	sub.auctions[auctionID] = struct{}{}

	r.logger.Debug().Str("client_id", clientID).Str("auction_id", auctionID.String()).Msg("Client subscribed to auction")
	return nil
}

// Unsubscribe removes an auction from a client's subscription, releasing the
// client entirely once nothing is left
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return nil
	}
	delete(sub.auctions, auctionID)

	if len(sub.auctions) > 0 {
		if err := sub.pubsub.Unsubscribe(ctx, r.ChannelName(auctionID)); err != nil {
			return fmt.Errorf("failed to unsubscribe from auction channel: %w", err)
		}
		return nil
	}

	delete(r.clients, clientID)
	if err := sub.pubsub.Close(); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
	}
	return nil
}

// IsSubscribed checks if a client is subscribed to an auction
func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, auctionID uuid.UUID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return false
	}
	_, subscribed := sub.auctions[auctionID]
	return subscribed
}

// Publish publishes an event to all subscribers of an auction
func (r *RedisBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, r.ChannelName(auctionID), payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Str("auction_id", auctionID.String()).
		Int64("subscriber_count", receivers).
		Msg("Published event to auction")
	return nil
}

// forward relays Redis messages for one client into its local channel. Slow
// consumers lose events rather than stall the relay.
func (r *RedisBroadcaster) forward(clientID string, sub *subscription) {
	ch := sub.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal Redis message")
				continue
			}
			select {
			case sub.events <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full for client, dropping event")
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// Close releases every client subscription and the Redis client
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, sub := range r.clients {
		if err := sub.pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
		}
		delete(r.clients, clientID)
	}
	return r.client.Close()
}
