package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"gavel-auction-engine/internal/config"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendTimeout    = 100 * time.Millisecond
)

var (
	errClientStopped = errors.New("client is stopped")
	errSendQueueFull = errors.New("client send queue is full")
)

// WsClient is one socket connection. Incoming messages are handled on a
// small per-client worker pool; outgoing ones are serialised by the writer.
type WsClient struct {
	id         string
	userID     uuid.UUID
	conn       *websocket.Conn
	outbox     chan *ServerMessage
	events     chan outbound.Event
	ctx        context.Context
	cancel     context.CancelFunc
	router     *WsHandler
	workerPool *pond.WorkerPool
	logger     zerolog.Logger

	mu       sync.Mutex
	auctions map[uuid.UUID]struct{}
	stopOnce sync.Once
}

type WsClientParams struct {
	UserID  uuid.UUID
	Conn    *websocket.Conn
	Handler *WsHandler
	Logger  zerolog.Logger
}

// NewClient wraps an upgraded connection
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	return &WsClient{
		id:       id,
		userID:   params.UserID,
		conn:     params.Conn,
		outbox:   make(chan *ServerMessage, config.WSMaxCapacity),
		events:   make(chan outbound.Event, config.WSMaxCapacity),
		ctx:      ctx,
		cancel:   cancel,
		router:   params.Handler,
		auctions: make(map[uuid.UUID]struct{}),
		workerPool: pond.New(config.WSMaxWorkers, config.WSMaxCapacity,
			pond.Strategy(pond.Balanced())),
		logger: params.Logger.With().Str("client_id", id).Str("user_id", params.UserID.String()).Logger(),
	}
}

// Start launches the reader and writer goroutines
func (c *WsClient) Start() {
	go c.writeLoop()
	go c.readLoop()
}

// Stop closes the connection; safe to call more than once. The worker pool
// is stopped by the reader once it can no longer submit.
func (c *WsClient) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// Send queues a message for the writer
func (c *WsClient) Send(msg *ServerMessage) error {
	if c.ctx.Err() != nil {
		return errClientStopped
	}

	select {
	case c.outbox <- msg:
		return nil
	case <-c.ctx.Done():
		return errClientStopped
	case <-time.After(sendTimeout):
		return errSendQueueFull
	}
}

func (c *WsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("Write to client failed, closing connection")
				c.cancel()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed, closing connection")
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *WsClient) readLoop() {
	defer func() {
		c.cancel()
		c.workerPool.StopAndWait()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected WebSocket close")
			}
			return
		}
		if c.ctx.Err() != nil {
			return
		}

		c.workerPool.Submit(func() {
			if err := c.handle(data); err != nil {
				c.logger.Debug().Err(err).Msg("Invalid client message")
				c.Send(NewErrorMessage(err.Error(), nil))
			}
		})
	}
}

func (c *WsClient) handle(data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Type == MessageTypePing {
		return c.Send(NewServerMessage(MessageTypePong))
	}
	return c.router.HandleClientMessage(c.ctx, c, msg)
}

func (c *WsClient) trackSubscription(auctionID uuid.UUID, subscribed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subscribed {
		c.auctions[auctionID] = struct{}{}
	} else {
		delete(c.auctions, auctionID)
	}
}

func (c *WsClient) subscriptions() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(c.auctions))
	for id := range c.auctions {
		ids = append(ids, id)
	}
	return ids
}
