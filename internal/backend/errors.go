package backend

import (
	"errors"
	"fmt"
)

var (
	ErrTransport = errors.New("transport failure")
	ErrDecode    = errors.New("decode failure")

	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNoItemSelected  = errors.New("no item selected")
	ErrInvalidOrderID  = errors.New("invalid order id")
	ErrDateRequired    = errors.New("date required")
)

// BusinessError is a request the backend understood and refused, either
// with success:false or with a 4xx carrying an error message.
type BusinessError struct {
	Op      string
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected by backend", e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsValidation reports whether err was raised before any request was sent.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrNoItemSelected) ||
		errors.Is(err, ErrInvalidOrderID) ||
		errors.Is(err, ErrDateRequired)
}

// ValidateAddItem checks an add-item command without contacting the backend.
func ValidateAddItem(orderID, itemID int64, qty int) error {
	if orderID <= 0 {
		return ErrInvalidOrderID
	}
	if itemID <= 0 {
		return ErrNoItemSelected
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// decodeErr wraps both sentinels: a malformed payload is handled like a
// transport failure.
func decodeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w: %w", op, ErrTransport, ErrDecode, err)
}
