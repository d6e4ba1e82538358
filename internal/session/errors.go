package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/PizzaHomicide/acectl/internal/content"
	"github.com/PizzaHomicide/acectl/internal/engine"
)

var (
	// ErrValidation rejects malformed input before any engine contact.
	ErrValidation = content.ErrValidation
	// ErrInvalidState rejects a command the current state does not permit.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyActive rejects a load while another one is in flight.
	ErrAlreadyActive = fmt.Errorf("%w: load already active", ErrInvalidState)
	// ErrBusy rejects an asynchronous command when the outbound queue is full.
	ErrBusy = fmt.Errorf("%w: command queue full", ErrInvalidState)
	// ErrNoActiveAd rejects ad lifecycle calls that do not match the current advertisement.
	ErrNoActiveAd = fmt.Errorf("%w: no matching active advertisement", ErrInvalidState)
	// ErrTimeout is returned when a synchronous command exceeds the configured bound.
	ErrTimeout = errors.New("engine command timed out")
	// ErrEngine marks failures reported by the engine or loss of the engine connection.
	ErrEngine = engine.ErrEngine
	// ErrReleased marks use of a destroyed session handle.
	ErrReleased = errors.New("session released")
)

// ContractError is the panic value for retain/release on a destroyed handle.  Such calls are programming errors,
// in the same way a negative sync.WaitGroup counter is.
type ContractError struct {
	Op     string
	Handle uuid.UUID
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s on released session %s", e.Op, e.Handle)
}

func (e *ContractError) Unwrap() error {
	return ErrReleased
}
