package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletActive WalletStatus = "active"
	WalletFrozen WalletStatus = "frozen"
	WalletClosed WalletStatus = "closed"
)

type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Status    WalletStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Reference types recorded on ledger transactions.
const (
	RefPurchase = "purchase"
	RefDispute  = "dispute"
	RefDeposit  = "deposit"
	RefWithdraw = "withdrawal"
	RefTransfer = "transfer"
)

// Reference points a ledger transaction at the business entity that caused it.
type Reference struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// LedgerTransaction is one immutable money movement on one wallet.
// SourceWalletID and DestinationWalletID describe the counterparty legs;
// either is nil for money entering or leaving the system.
type LedgerTransaction struct {
	ID                  uuid.UUID       `json:"id"`
	WalletID            uuid.UUID       `json:"wallet_id"`
	Type                EntryType       `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
	SourceWalletID      *uuid.UUID      `json:"source_wallet_id,omitempty"`
	DestinationWalletID *uuid.UUID      `json:"destination_wallet_id,omitempty"`
	Reference           Reference       `json:"reference"`
	IdempotencyKey      string          `json:"idempotency_key"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Signed returns the amount as a balance delta.
func (t LedgerTransaction) Signed() decimal.Decimal {
	if t.Type == EntryDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type DepositRequest struct {
	WalletID       uuid.UUID       `json:"wallet_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Reconciliation compares a stored balance with the balance replayed from history.
type Reconciliation struct {
	WalletID       uuid.UUID       `json:"wallet_id"`
	Stored         decimal.Decimal `json:"stored"`
	Replayed       decimal.Decimal `json:"replayed"`
	Drift          decimal.Decimal `json:"drift"`
	TotalCredits   decimal.Decimal `json:"total_credits"`
	TotalDebits    decimal.Decimal `json:"total_debits"`
	EntriesScanned int             `json:"entries_scanned"`
}

func (r Reconciliation) Balanced() bool {
	return r.Drift.IsZero()
}
