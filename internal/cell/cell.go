package cell

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// ErrInvalidPayload is returned when a payload does not match the declared kind.
var ErrInvalidPayload = errors.New("cell: payload does not match kind")

// Kind is the variant tag of a Cell.
type Kind uint8

const (
	// KindNil is the empty list. It is the zero Kind so a cleared slot reads as Nil.
	KindNil Kind = iota
	KindCons
	KindInt
	KindReal
	KindChar
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k <= KindChar
}

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindCons:
		return "cons"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindChar:
		return "char"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Pair is the payload of a Cons cell.
type Pair struct {
	Car Handle
	Cdr Handle
}

// PayloadError describes a rejected (kind, payload) combination.
type PayloadError struct {
	Kind    Kind
	Payload any
	Reason  string
}

func (e *PayloadError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cell: invalid %T payload for %s: %s", e.Payload, e.Kind, e.Reason)
	}
	return fmt.Sprintf("cell: invalid %T payload for %s", e.Payload, e.Kind)
}

func (e *PayloadError) Unwrap() error { return ErrInvalidPayload }

// Cell is the tagged union stored in an arena slot.
//
// Leaf values share one word: Int stores the two's complement bits, Real the
// IEEE-754 bits and Char the code point.
type Cell struct {
	kind Kind
	word uint64
	pair Pair
}

// Cons returns a pair cell.
func Cons(car, cdr Handle) Cell {
	return Cell{kind: KindCons, pair: Pair{Car: car, Cdr: cdr}}
}

// Int returns an integer cell.
func Int(v int64) Cell {
	return Cell{kind: KindInt, word: uint64(v)}
}

// Real returns a real cell.
func Real(v float64) Cell {
	return Cell{kind: KindReal, word: math.Float64bits(v)}
}

// Char returns a character cell.
func Char(r rune) Cell {
	return Cell{kind: KindChar, word: uint64(uint32(r))}
}

// Nil returns the nil cell.
func Nil() Cell {
	return Cell{}
}

// New builds a cell of the given kind from an untyped payload.
//
// Accepted payloads: Pair for KindCons, int64 or int for KindInt, float64 for
// KindReal, rune for KindChar and nil for KindNil. Cons handles must be non-zero.
func New(kind Kind, payload any) (Cell, error) {
	switch kind {
	case KindNil:
		if payload != nil {
			return Cell{}, &PayloadError{Kind: kind, Payload: payload}
		}
		return Nil(), nil
	case KindCons:
		p, ok := payload.(Pair)
		if !ok {
			return Cell{}, &PayloadError{Kind: kind, Payload: payload}
		}
		if p.Car.IsZero() || p.Cdr.IsZero() {
			return Cell{}, &PayloadError{Kind: kind, Payload: payload, Reason: "zero handle"}
		}
		return Cons(p.Car, p.Cdr), nil
	case KindInt:
		switch v := payload.(type) {
		case int64:
			return Int(v), nil
		case int:
			return Int(int64(v)), nil
		}
		return Cell{}, &PayloadError{Kind: kind, Payload: payload}
	case KindReal:
		v, ok := payload.(float64)
		if !ok {
			return Cell{}, &PayloadError{Kind: kind, Payload: payload}
		}
		return Real(v), nil
	case KindChar:
		r, ok := payload.(rune)
		if !ok {
			return Cell{}, &PayloadError{Kind: kind, Payload: payload}
		}
		if !utf8.ValidRune(r) {
			return Cell{}, &PayloadError{Kind: kind, Payload: payload, Reason: "not a valid code point"}
		}
		return Char(r), nil
	default:
		return Cell{}, &PayloadError{Kind: kind, Payload: payload, Reason: "unknown kind"}
	}
}

// Kind returns the variant tag.
func (c Cell) Kind() Kind { return c.kind }

// IsCons reports whether c is a pair.
func (c Cell) IsCons() bool { return c.kind == KindCons }

// Pair returns the car/cdr handles; ok is false for non-Cons cells.
func (c Cell) Pair() (Pair, bool) {
	return c.pair, c.kind == KindCons
}

// Car returns the first handle of a Cons cell, or the zero Handle.
func (c Cell) Car() Handle { return c.pair.Car }

// Cdr returns the second handle of a Cons cell, or the zero Handle.
func (c Cell) Cdr() Handle { return c.pair.Cdr }

// Int returns the integer value; ok is false for other kinds.
func (c Cell) Int() (int64, bool) {
	return int64(c.word), c.kind == KindInt
}

// Real returns the real value; ok is false for other kinds.
func (c Cell) Real() (float64, bool) {
	return math.Float64frombits(c.word), c.kind == KindReal
}

// Char returns the character value; ok is false for other kinds.
func (c Cell) Char() (rune, bool) {
	return rune(uint32(c.word)), c.kind == KindChar
}

// WithCar returns a copy of a Cons cell with car replaced.
func (c Cell) WithCar(h Handle) Cell {
	c.pair.Car = h
	return c
}

// WithCdr returns a copy of a Cons cell with cdr replaced.
func (c Cell) WithCdr(h Handle) Cell {
	c.pair.Cdr = h
	return c
}

func (c Cell) String() string {
	switch c.kind {
	case KindCons:
		return fmt.Sprintf("(%s . %s)", c.pair.Car, c.pair.Cdr)
	case KindInt:
		v, _ := c.Int()
		return fmt.Sprintf("%d", v)
	case KindReal:
		v, _ := c.Real()
		return fmt.Sprintf("%g", v)
	case KindChar:
		r, _ := c.Char()
		return fmt.Sprintf("%q", r)
	default:
		return "nil"
	}
}
