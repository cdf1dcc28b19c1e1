package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/inbound"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Sender receives server messages for one connection
type Sender interface {
	Send(msg *ServerMessage) error
}

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients        map[string]*WsClient
	clientsMu      sync.RWMutex
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	broadcaster    outbound.Broadcaster
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Broadcaster    outbound.Broadcaster
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*WsClient),
		upgrader:       params.Upgrader,
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		broadcaster:    params.Broadcaster,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket upgrades a bidder connection. Identity arrives already
// authenticated upstream as the user_id query parameter.
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil || userID == uuid.Nil {
		http.Error(w, "a valid user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		handler.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: handler,
		Logger:  handler.logger,
	})
	total := handler.register(client)

	client.Start()
	go handler.forwardEvents(client)
	go func() {
		<-client.ctx.Done()
		handler.release(client)
	}()

	client.logger.Info().Int("total_clients", total).Msg("WebSocket client connected")
}

func (handler *WsHandler) register(client *WsClient) int {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
	return len(handler.clients)
}

// release drops a disconnected client and its live subscriptions
func (handler *WsHandler) release(client *WsClient) {
	handler.clientsMu.Lock()
	delete(handler.clients, client.id)
	total := len(handler.clients)
	handler.clientsMu.Unlock()

	client.Stop()
	if handler.broadcaster != nil {
		for _, auctionID := range client.subscriptions() {
			if err := handler.broadcaster.Unsubscribe(context.Background(), auctionID, client.id); err != nil {
				client.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to release subscription")
			}
		}
	}
	client.logger.Info().Int("total_clients", total).Msg("WebSocket client disconnected")
}

// CloseAll disconnects every client and returns how many there were
func (handler *WsHandler) CloseAll() int {
	handler.clientsMu.RLock()
	clients := make([]*WsClient, 0, len(handler.clients))
	for _, c := range handler.clients {
		clients = append(clients, c)
	}
	handler.clientsMu.RUnlock()

	for _, c := range clients {
		c.Stop()
	}
	return len(clients)
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}

// forwardEvents pushes broadcast events for the client's subscriptions to the
// socket. The same channel backs every subscription of the client.
func (handler *WsHandler) forwardEvents(client *WsClient) {
	for {
		select {
		case event := <-client.events:
			if err := client.Send(ConvertEvent(event)); err != nil {
				client.logger.Debug().Err(err).Str("event", string(event.Type)).Msg("Dropped event for slow client")
			}
		case <-client.ctx.Done():
			return
		}
	}
}

// HandleClientMessage routes a validated message
func (handler *WsHandler) HandleClientMessage(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(ctx, client, msg)
	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(ctx, client, msg)
	default:
		return handler.Dispatch(ctx, client.userID, client, msg)
	}
}

// Dispatch handles the request/response messages that need no subscription
// state
func (handler *WsHandler) Dispatch(ctx context.Context, userID uuid.UUID, out Sender, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypePlaceBid:
		return handler.handlePlaceBid(ctx, userID, out, msg)
	case MessageTypeGetBid:
		return handler.handleGetBid(ctx, out, msg)
	case MessageTypeGetLeadingBid:
		return handler.handleGetLeadingBid(ctx, out, msg)
	case MessageTypeGetAuction:
		return handler.handleGetAuction(ctx, out, msg)
	case MessageTypeGetResult:
		return handler.handleGetResult(ctx, out, msg)
	case MessageTypeCreateAuction:
		return handler.handleCreateAuction(ctx, out, msg)
	default:
		return shared.ErrUnknownMessageType
	}
}

func (handler *WsHandler) handleSubscribe(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	if handler.broadcaster == nil {
		return client.Send(NewErrorMessage("live updates are disabled", msg.AuctionID))
	}

	if client.events == nil {
		return shared.ErrClientEventChannelNotFound
	}

	if _, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID); err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}
	if err := handler.broadcaster.Subscribe(ctx, *msg.AuctionID, client.id, client.events); err != nil {
		return err
	}
	client.trackSubscription(*msg.AuctionID, true)

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "subscribed"
	return client.Send(response)
}

func (handler *WsHandler) handleUnsubscribe(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	if handler.broadcaster == nil {
		return nil
	}
	if err := handler.broadcaster.Unsubscribe(ctx, *msg.AuctionID, client.id); err != nil {
		return err
	}
	client.trackSubscription(*msg.AuctionID, false)

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "unsubscribed"
	return client.Send(response)
}

func (handler *WsHandler) handlePlaceBid(ctx context.Context, userID uuid.UUID, out Sender, msg *ClientMessage) error {
	amount, err := msg.Amount()
	if err != nil {
		return err
	}
	bidID, err := msg.OptionalUUID("bid_id")
	if err != nil {
		return err
	}

	placed, err := handler.bidService.PlaceBid(ctx, inbound.PlaceBidRequest{
		BidID:     bidID,
		AuctionID: *msg.AuctionID,
		BidderID:  userID,
		Amount:    amount,
	})
	if err != nil {
		return out.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	return out.Send(bidMessage(MessageTypeBidAccepted, placed))
}

func (handler *WsHandler) handleGetBid(ctx context.Context, out Sender, msg *ClientMessage) error {
	bidID, err := msg.OptionalUUID("bid_id")
	if err != nil {
		return err
	}

	found, err := handler.bidService.GetBid(ctx, *bidID)
	if err != nil {
		return out.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}
	return out.Send(bidMessage(MessageTypeBidStatus, found))
}

func (handler *WsHandler) handleGetLeadingBid(ctx context.Context, out Sender, msg *ClientMessage) error {
	leading, err := handler.bidService.GetLeadingBid(ctx, *msg.AuctionID)
	if err != nil {
		return out.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}
	return out.Send(bidMessage(MessageTypeBidStatus, leading))
}

func (handler *WsHandler) handleGetAuction(ctx context.Context, out Sender, msg *ClientMessage) error {
	a, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		return out.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}
	return out.Send(auctionMessage(MessageTypeAuctionUpdate, a))
}

func (handler *WsHandler) handleGetResult(ctx context.Context, out Sender, msg *ClientMessage) error {
	res, err := handler.auctionService.GetResult(ctx, *msg.AuctionID)
	if err != nil {
		return out.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}
	return out.Send(resultMessage(res))
}

func (handler *WsHandler) handleCreateAuction(ctx context.Context, out Sender, msg *ClientMessage) error {
	productID, err := msg.OptionalUUID("product_id")
	if err != nil {
		return err
	}
	start, err := msg.Time("start_time")
	if err != nil {
		return err
	}
	end, err := msg.Time("end_time")
	if err != nil {
		return err
	}
	reserve, err := msg.Decimal("reserve_price", false)
	if err != nil {
		return err
	}
	startingPrice, err := msg.Decimal("starting_price", false)
	if err != nil {
		return err
	}
	increment, err := msg.Decimal("min_increment", false)
	if err != nil {
		return err
	}

	a, err := handler.auctionService.CreateAuction(ctx, inbound.CreateAuctionRequest{
		ProductID:     *productID,
		StartTime:     start,
		EndTime:       end,
		ReservePrice:  reserve,
		StartingPrice: startingPrice,
		MinIncrement:  increment,
	})
	if err != nil {
		return out.Send(NewErrorMessage(err.Error(), nil))
	}
	return out.Send(auctionMessage(MessageTypeAuctionCreated, a))
}

// ConvertEvent maps a broadcast event to the message pushed to subscribers
func ConvertEvent(event outbound.Event) *ServerMessage {
	msgType := MessageTypeAuctionUpdate
	switch event.Type {
	case outbound.EventTypeBidPlaced:
		msgType = MessageTypeBidPlaced
	case outbound.EventTypeAuctionClosed:
		msgType = MessageTypeAuctionClosed
	}

	auctionID := event.AuctionID
	data := event.Data
	if data == nil {
		data = make(map[string]interface{})
	}
	data["event"] = string(event.Type)

	return &ServerMessage{
		Type:      msgType,
		AuctionID: &auctionID,
		Data:      data,
		Timestamp: event.Timestamp,
	}
}

func bidMessage(msgType MessageType, b *bid.Bid) *ServerMessage {
	msg := NewServerMessage(msgType)
	msg.AuctionID = &b.AuctionID
	msg.Data["bid_id"] = b.ID.String()
	msg.Data["bidder_id"] = b.BidderID.String()
	msg.Data["amount"] = b.Amount.String()
	msg.Data["status"] = string(b.Status)
	msg.Data["sequence"] = b.Sequence
	msg.Data["placed_at"] = b.PlacedAt.Format(time.RFC3339Nano)
	return msg
}

func auctionMessage(msgType MessageType, a *auction.Auction) *ServerMessage {
	msg := NewServerMessage(msgType)
	msg.AuctionID = &a.ID
	msg.Data["auction_id"] = a.ID.String()
	msg.Data["product_id"] = a.ProductID.String()
	msg.Data["seller_id"] = a.SellerID.String()
	msg.Data["start_time"] = a.StartTime.Format(time.RFC3339)
	msg.Data["end_time"] = a.EndTime.Format(time.RFC3339)
	msg.Data["current_price"] = a.CurrentPrice.String()
	msg.Data["status"] = string(a.Status)
	msg.Data["version"] = a.Version
	if a.HighestBid != nil {
		msg.Data["highest_bid_id"] = a.HighestBid.BidID.String()
	}
	return msg
}

func resultMessage(r *result.AuctionResult) *ServerMessage {
	msg := NewServerMessage(MessageTypeAuctionResult)
	msg.AuctionID = &r.AuctionID
	msg.Data["closed_at"] = r.ClosedAt.Format(time.RFC3339)
	msg.Data["bid_count"] = r.BidCount
	msg.Data["has_winner"] = r.HasWinner()
	if r.HasWinner() {
		msg.Data["winning_bid_id"] = r.WinningBidID.String()
		msg.Data["winner_id"] = r.WinnerID.String()
		msg.Data["final_price"] = r.FinalPrice.String()
	}
	return msg
}
