package events

import "context"

// Stream carrying all auction lifecycle events.
const StreamAuction = "events:auction"

// Event types
const (
	EventAuctionCreated  = "auction_created"
	EventBidPlaced       = "bid_placed"
	EventAuctionExtended = "auction_extended"
	EventAuctionEnded    = "auction_ended"
	EventAuctionSettled  = "auction_settled"
	EventBidWithdrawn    = "bid_withdrawn"
	EventNFTReclaimed    = "nft_reclaimed"
	EventDepositCredited = "deposit_credited"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// Nop discards events; used by tests and the worker when no broker is wired.
type Nop struct{}

func (Nop) Publish(ctx context.Context, stream string, event Event) error { return nil }
