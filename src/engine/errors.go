package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive and at most MaxQuantity")
	ErrLevelFull        = errors.New("price level quantity would exceed MaxQuantity")
	ErrInvalidPrice     = errors.New("price must be positive")
	ErrDuplicateOrderID = errors.New("order id already resting in book")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidSide      = errors.New("invalid side")
	ErrInvalidOrderType = errors.New("invalid order type")
)

// RejectError reports an order the engine refused. The book is untouched.
type RejectError struct {
	OrderID OrderID
	Reason  error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order %d rejected: %v", e.OrderID, e.Reason)
}

func (e *RejectError) Unwrap() error {
	return e.Reason
}

func reject(id OrderID, reason error) error {
	return &RejectError{OrderID: id, Reason: reason}
}
