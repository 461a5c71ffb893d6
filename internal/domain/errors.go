package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is matched by every transaction rejected for bad parameters.
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	ErrInvalidPrice        = fmt.Errorf("%w: unit price must be positive", ErrInvalidInput)
	ErrInvalidSide         = fmt.Errorf("%w: side must be buy or sell", ErrInvalidInput)
	ErrInvalidSymbol       = fmt.Errorf("%w: symbol and asset id are required", ErrInvalidInput)
	ErrInsufficientHolding = fmt.Errorf("%w: insufficient holding", ErrInvalidInput)

	// ErrPriceUnavailable marks a single asset whose price could not be fetched this cycle.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrSourceUnreachable means no price at all could be fetched this cycle.
	ErrSourceUnreachable = errors.New("price source unreachable")
	// ErrPersistence is returned when the ledger, snapshot history or an export cannot be written.
	ErrPersistence = errors.New("persistence failure")
)
