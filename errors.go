package cellgc

import (
	"errors"
	"fmt"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/internal/collector"
)

var (
	// ErrPoolExhausted is returned when an allocation finds both arenas full:
	// the active arena was exhausted again right after a role swap.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrStaleHandle is returned when a handle refers to a recycled slot.
	ErrStaleHandle = errors.New("stale handle")

	// ErrForeignHandle is returned when a handle names no arena of the heap.
	ErrForeignHandle = errors.New("foreign handle")

	// ErrInvalidKindPayload is returned when a payload does not match its kind.
	ErrInvalidKindPayload = errors.New("invalid kind payload")

	// ErrNotCons is returned when a pair accessor is applied to a leaf cell.
	ErrNotCons = errors.New("not a cons cell")

	// ErrClosed is returned by operations on a closed heap.
	ErrClosed = errors.New("heap closed")

	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("invalid capacity")

	// ErrDoubleFree is the panic value raised when a free slot is released
	// again. It signals a collector bug and is never returned.
	ErrDoubleFree = arena.ErrDoubleFree
)

// KindPayloadError indicates a payload that cannot be stored as Kind.
//
// It matches ErrInvalidKindPayload with errors.Is.
type KindPayloadError struct {
	Kind    Kind
	Payload any
	Reason  string
	cause   error
}

func (e *KindPayloadError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid payload %T for kind %s", e.Payload, e.Kind)
	}
	return fmt.Sprintf("invalid payload %T for kind %s: %s", e.Payload, e.Kind, e.Reason)
}

func (e *KindPayloadError) Is(target error) bool { return target == ErrInvalidKindPayload }

func (e *KindPayloadError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pe *cell.PayloadError
	if errors.As(err, &pe) {
		return &KindPayloadError{Kind: pe.Kind, Payload: pe.Payload, Reason: pe.Reason, cause: err}
	}
	if errors.Is(err, cell.ErrInvalidPayload) {
		return fmt.Errorf("%w: %w", ErrInvalidKindPayload, err)
	}

	switch {
	case errors.Is(err, collector.ErrPoolExhausted):
		return fmt.Errorf("%w: %w", ErrPoolExhausted, err)
	case errors.Is(err, arena.ErrStaleHandle):
		return fmt.Errorf("%w: %w", ErrStaleHandle, err)
	case errors.Is(err, arena.ErrForeignHandle):
		return fmt.Errorf("%w: %w", ErrForeignHandle, err)
	case errors.Is(err, collector.ErrNotCons):
		return fmt.Errorf("%w: %w", ErrNotCons, err)
	case errors.Is(err, collector.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, arena.ErrInvalidCapacity):
		return fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	return err
}
