package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID        uuid.UUID `json:"id"`
	Actor     string    `json:"actor"` // wallet address, or "system"
	Operation string    `json:"operation"`
	AuctionID *uint64   `json:"auction_id,omitempty"`
	Meta      any       `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
