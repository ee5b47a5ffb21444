package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bus topics for post-commit domain events.
const (
	TopicPurchaseCompleted = "purchases.completed"
	TopicDisputeResolved   = "disputes.resolved"
	TopicWalletAdjusted    = "wallets.adjusted"
	TopicPurchaseCommand   = "commands.purchase"
)

// LedgerEvent is published after a unit of work that moved money commits.
// Consumers use WalletIDs to reconcile the touched wallets.
type LedgerEvent struct {
	Topic      string          `json:"topic"`
	EntityID   uuid.UUID       `json:"entity_id"`
	WalletIDs  []uuid.UUID     `json:"wallet_ids"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   *string   `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
