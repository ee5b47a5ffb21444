package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := New("purchase.Purchase", OutOfStock, "no units for product")
	wrapped := fmt.Errorf("unit of work: %w", err)

	assert.True(t, errors.Is(wrapped, ErrOutOfStock))
	assert.False(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.Equal(t, OutOfStock, KindOf(wrapped))
}

func TestWrapKeepsClassifiedErrors(t *testing.T) {
	classified := New("ledger.Debit", InsufficientFunds, "insufficient funds")
	assert.Same(t, classified, Wrap("purchase.Purchase", classified))

	raw := errors.New("connection reset")
	wrapped := Wrap("purchase.Purchase", raw)
	assert.Equal(t, Internal, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, raw)
	assert.Nil(t, Wrap("noop", nil))
}

func TestMessageHidesInternalDetails(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("pq: password authentication failed")))
	assert.Equal(t, "insufficient funds", Message(ErrInsufficientFunds))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransient("repository.WithinTx", errors.New("deadlock detected"))))
	assert.False(t, IsRetryable(ErrOutOfStock))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND [dispute.Resolve]: dispute 7 not found", NotFoundf("dispute.Resolve", "dispute", 7).Error())
	assert.Equal(t, "OUT_OF_STOCK: out of stock", ErrOutOfStock.Error())
}
