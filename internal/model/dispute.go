package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeClosed      DisputeStatus = "closed"
)

type ResolutionType string

const (
	ResolutionRefundSeller   ResolutionType = "refund_seller"
	ResolutionRefundProvider ResolutionType = "refund_provider"
	ResolutionPartialRefund  ResolutionType = "partial_refund"
	ResolutionNoRefund       ResolutionType = "no_refund"
)

func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionRefundSeller, ResolutionRefundProvider, ResolutionPartialRefund, ResolutionNoRefund:
		return true
	}
	return false
}

type Dispute struct {
	ID             uuid.UUID        `json:"id"`
	PurchaseID     uuid.UUID        `json:"purchase_id"`
	OpenedBy       uuid.UUID        `json:"opened_by"`
	Reason         string           `json:"reason"`
	Status         DisputeStatus    `json:"status"`
	Resolution     *ResolutionType  `json:"resolution,omitempty"`
	Percentage     *decimal.Decimal `json:"partial_refund_percentage,omitempty"`
	ReviewerID     *uuid.UUID       `json:"reviewer_id,omitempty"`
	ResolverID     *uuid.UUID       `json:"resolver_id,omitempty"`
	RefundedAmount decimal.Decimal  `json:"refunded_amount"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
}

// CanMoveTo reports whether the one-way state machine allows next.
func (d Dispute) CanMoveTo(next DisputeStatus) bool {
	switch d.Status {
	case DisputeOpen:
		return next == DisputeUnderReview || next == DisputeClosed
	case DisputeUnderReview:
		return next == DisputeResolved
	case DisputeResolved:
		return next == DisputeClosed
	}
	return false
}

type OpenDisputeRequest struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	Reason     string    `json:"reason"`
}

type ResolveRequest struct {
	DisputeID  uuid.UUID        `json:"dispute_id"`
	ResolverID uuid.UUID        `json:"resolver_id"`
	Type       ResolutionType   `json:"resolution_type"`
	Percentage *decimal.Decimal `json:"partial_refund_percentage,omitempty"`
}

// Outcome is the snapshot returned after a dispute operation.
type Outcome struct {
	Purchase Purchase `json:"purchase"`
	Dispute  Dispute  `json:"dispute"`
	Replayed bool     `json:"replayed,omitempty"`
}
