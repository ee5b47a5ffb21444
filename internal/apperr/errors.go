package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InsufficientFunds        Kind = "INSUFFICIENT_FUNDS"
	OutOfStock               Kind = "OUT_OF_STOCK"
	WalletNotActive          Kind = "WALLET_NOT_ACTIVE"
	ProductNotFound          Kind = "PRODUCT_NOT_FOUND"
	DuplicateIdempotencyKey  Kind = "DUPLICATE_IDEMPOTENCY_KEY"
	InvalidDisputeTransition Kind = "INVALID_DISPUTE_TRANSITION"
	UnitNotAssigned          Kind = "UNIT_NOT_ASSIGNED"
	NotFound                 Kind = "NOT_FOUND"
	InvalidRequest           Kind = "INVALID_REQUEST"
	Forbidden                Kind = "FORBIDDEN"
	Transient                Kind = "TRANSIENT"
	Internal                 Kind = "INTERNAL_ERROR"
)

// Error is a classified failure. Op names the operation that raised it,
// e.g. "purchase.Purchase".
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s -> %v", e.Kind, e.Op, e.Message, e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrOutOfStock)
// holds for every OutOfStock error regardless of Op and Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInsufficientFunds        = &Error{Kind: InsufficientFunds, Message: "insufficient funds"}
	ErrOutOfStock               = &Error{Kind: OutOfStock, Message: "out of stock"}
	ErrWalletNotActive          = &Error{Kind: WalletNotActive, Message: "wallet is not active"}
	ErrProductNotFound          = &Error{Kind: ProductNotFound, Message: "product not found"}
	ErrDuplicateIdempotencyKey  = &Error{Kind: DuplicateIdempotencyKey, Message: "idempotency key reused with different parameters"}
	ErrInvalidDisputeTransition = &Error{Kind: InvalidDisputeTransition, Message: "invalid dispute transition"}
	ErrUnitNotAssigned          = &Error{Kind: UnitNotAssigned, Message: "inventory unit is not assigned"}
	ErrNotFound                 = &Error{Kind: NotFound, Message: "not found"}
	ErrInvalidRequest           = &Error{Kind: InvalidRequest, Message: "invalid request"}
	ErrForbidden                = &Error{Kind: Forbidden, Message: "forbidden"}
	ErrTransient                = &Error{Kind: Transient, Message: "temporary storage failure, retry"}
)

func New(op string, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func Newf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(op, resource string, id any) *Error {
	return &Error{Kind: NotFound, Op: op, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

func Invalid(op, field string, value any) *Error {
	return &Error{Kind: InvalidRequest, Op: op, Message: fmt.Sprintf("invalid %s: %v", field, value)}
}

func NewTransient(op string, err error) *Error {
	return &Error{Kind: Transient, Op: op, Message: "temporary storage failure, retry", Err: err}
}

// Wrap classifies err as Internal unless it already carries a kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: Internal, Op: op, Message: "internal error", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func IsRetryable(err error) bool {
	return KindOf(err) == Transient
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal server error"
}
