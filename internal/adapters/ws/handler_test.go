package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"gavel-auction-engine/internal/adapters/clock"
	"gavel-auction-engine/internal/adapters/memory"
	"gavel-auction-engine/internal/app"
	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []*ServerMessage
}

func (s *recordingSender) Send(msg *ServerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) last(t *testing.T) *ServerMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.True(t, len(s.messages) > 0)
	return s.messages[len(s.messages)-1]
}

type handlerFixture struct {
	handler   *WsHandler
	lifecycle *app.LifecycleService
	clock     *clock.Manual
	productID uuid.UUID
	sellerID  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := memory.NewStore()
	directory := memory.NewDirectory()
	productID, sellerID := uuid.New(), uuid.New()
	directory.AddProduct(productID, sellerID)
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	lifecycle := app.NewLifecycleService(app.LifecycleServiceParams{
		Store:     store,
		Directory: directory,
		Clock:     clk,
		Logger:    zerolog.Nop(),
	})
	bids := app.NewBidService(app.BidServiceParams{
		Store:  store,
		Clock:  clk,
		Logger: zerolog.Nop(),
	})

	return &handlerFixture{
		handler: NewHandler(WsHandlerParams{
			AuctionService: lifecycle,
			BidService:     bids,
			Logger:         zerolog.Nop(),
		}),
		lifecycle: lifecycle,
		clock:     clk,
		productID: productID,
		sellerID:  sellerID,
	}
}

func parse(t *testing.T, raw string) *ClientMessage {
	t.Helper()
	msg, err := ParseClientMessage([]byte(raw))
	assert.NoError(t, err)
	assert.NoError(t, msg.Validate())
	return msg
}

func TestDispatch_CreateBidAndClose(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)
	out := &recordingSender{}
	bidderID := uuid.New()

	create := parse(t, `{"type":"create_auction","data":{"product_id":"`+f.productID.String()+`","start_time":"2026-03-01T12:00:00Z","end_time":"2026-03-01T13:00:00Z","reserve_price":"10"}}`)
	assert.NoError(t, f.handler.Dispatch(ctx, bidderID, out, create))
	created := out.last(t)
	assert.Equal(t, MessageTypeAuctionCreated, created.Type)
	auctionID := *created.AuctionID

	_, err := f.lifecycle.Transition(ctx, auctionID, auction.StatusOpen, auction.CauseSchedule)
	assert.NoError(t, err)

	bidID := uuid.New()
	place := parse(t, `{"type":"place_bid","auction_id":"`+auctionID.String()+`","data":{"amount":"25.50","bid_id":"`+bidID.String()+`"}}`)
	assert.NoError(t, f.handler.Dispatch(ctx, bidderID, out, place))
	accepted := out.last(t)
	check.Equal(t, MessageTypeBidAccepted, accepted.Type)
	check.Equal[any](t, bidID.String(), accepted.Data["bid_id"])
	check.Equal(t, "25.5", accepted.Data["amount"])
	check.Equal[any](t, bidderID.String(), accepted.Data["bidder_id"])

	// the same bid id again is answered from the stored bid
	assert.NoError(t, f.handler.Dispatch(ctx, bidderID, out, place))
	check.Equal(t, MessageTypeBidAccepted, out.last(t).Type)

	getBid := parse(t, `{"type":"get_bid","data":{"bid_id":"`+bidID.String()+`"}}`)
	assert.NoError(t, f.handler.Dispatch(ctx, bidderID, out, getBid))
	check.Equal(t, MessageTypeBidStatus, out.last(t).Type)

	leading := parse(t, `{"type":"get_leading_bid","auction_id":"`+auctionID.String()+`"}`)
	assert.NoError(t, f.handler.Dispatch(ctx, bidderID, out, leading))
	check.Equal[any](t, bidID.String(), out.last(t).Data["bid_id"])

	f.clock.Advance(time.Hour)
	_, err = f.lifecycle.Transition(ctx, auctionID, auction.StatusClosing, auction.CauseSchedule)
	assert.NoError(t, err)
	_, err = f.lifecycle.Transition(ctx, auctionID, auction.StatusClosed, auction.CauseSchedule)
	assert.NoError(t, err)

	getResult := parse(t, `{"type":"get_result","auction_id":"`+auctionID.String()+`"}`)
	assert.NoError(t, f.handler.Dispatch(ctx, bidderID, out, getResult))
	res := out.last(t)
	check.Equal(t, MessageTypeAuctionResult, res.Type)
	check.Equal(t, true, res.Data["has_winner"])
	check.Equal[any](t, bidderID.String(), res.Data["winner_id"])
	check.Equal(t, "25.5", res.Data["final_price"])
}

func TestDispatch_RejectionsAreSentAsErrors(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)
	out := &recordingSender{}

	unknown := uuid.New()
	getAuction := parse(t, `{"type":"get_auction","auction_id":"`+unknown.String()+`"}`)
	assert.NoError(t, f.handler.Dispatch(ctx, uuid.New(), out, getAuction))
	msg := out.last(t)
	check.Equal(t, MessageTypeError, msg.Type)
	assert.NotNil(t, msg.Error)

	place := parse(t, `{"type":"place_bid","auction_id":"`+unknown.String()+`","data":{"amount":5}}`)
	assert.NoError(t, f.handler.Dispatch(ctx, uuid.New(), out, place))
	check.Equal(t, MessageTypeError, out.last(t).Type)
}

func TestConvertEvent(t *testing.T) {
	auctionID := uuid.New()

	msg := ConvertEvent(outbound.Event{
		Type:      outbound.EventTypeBidPlaced,
		AuctionID: auctionID,
		Data:      map[string]interface{}{"amount": "10"},
		Timestamp: 42,
	})
	check.Equal(t, MessageTypeBidPlaced, msg.Type)
	check.Equal(t, auctionID, *msg.AuctionID)
	check.Equal(t, int64(42), msg.Timestamp)
	check.Equal(t, "bid.placed", msg.Data["event"])

	check.Equal(t, MessageTypeAuctionClosed, ConvertEvent(outbound.Event{Type: outbound.EventTypeAuctionClosed}).Type)
	check.Equal(t, MessageTypeAuctionUpdate, ConvertEvent(outbound.Event{Type: outbound.EventTypeAuctionOpened}).Type)
}
