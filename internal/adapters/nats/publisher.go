package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const subjectPrefix = "auction.events."

// Publisher appends auction events to a JetStream stream so downstream
// consumers (archival, chat, notifications) receive them durably
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
}

type PublisherParams struct {
	URL    string
	Stream string
	MaxAge time.Duration
	Logger zerolog.Logger
}

// NewPublisher connects to NATS and makes sure the event stream exists
func NewPublisher(ctx context.Context, params PublisherParams) (*Publisher, error) {
	conn, err := nats.Connect(params.URL, nats.Name("auction-engine"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        params.Stream,
		Description: "Auction lifecycle and bid events",
		Subjects:    []string{subjectPrefix + ">"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      maxAge,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &Publisher{
		conn:   conn,
		js:     js,
		logger: params.Logger.With().Str("component", "nats_publisher").Str("stream", params.Stream).Logger(),
	}, nil
}

var _ outbound.Notifier = (*Publisher)(nil)

// Subject returns the subject an event of an auction is published on
func Subject(auctionID uuid.UUID, eventType outbound.EventType) string {
	return fmt.Sprintf("%s%s.%s", subjectPrefix, auctionID.String(), eventType)
}

// Publish appends the event and waits for the stream acknowledgement
func (p *Publisher) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.js.Publish(ctx, Subject(auctionID, event.Type), data)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	p.logger.Debug().
		Str("auction_id", auctionID.String()).
		Str("event_type", string(event.Type)).
		Uint64("seq", ack.Sequence).
		Msg("Published event")
	return nil
}

// Close drains the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
