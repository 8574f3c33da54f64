package cell

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	h1 := NewHandle(ArenaA, 1, 1)
	h2 := NewHandle(ArenaB, 7, 3)

	tests := []struct {
		name    string
		kind    Kind
		payload any
		check   func(t *testing.T, c Cell)
	}{
		{"nil", KindNil, nil, func(t *testing.T, c Cell) {
			assert.Equal(t, KindNil, c.Kind())
		}},
		{"cons", KindCons, Pair{Car: h1, Cdr: h2}, func(t *testing.T, c Cell) {
			p, ok := c.Pair()
			require.True(t, ok)
			assert.Equal(t, h1, p.Car)
			assert.Equal(t, h2, p.Cdr)
		}},
		{"int64", KindInt, int64(-42), func(t *testing.T, c Cell) {
			v, ok := c.Int()
			require.True(t, ok)
			assert.Equal(t, int64(-42), v)
		}},
		{"int", KindInt, 4, func(t *testing.T, c Cell) {
			v, ok := c.Int()
			require.True(t, ok)
			assert.Equal(t, int64(4), v)
		}},
		{"real", KindReal, math.Pi, func(t *testing.T, c Cell) {
			v, ok := c.Real()
			require.True(t, ok)
			assert.Equal(t, math.Pi, v)
		}},
		{"char", KindChar, '世', func(t *testing.T, c Cell) {
			r, ok := c.Char()
			require.True(t, ok)
			assert.Equal(t, '世', r)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.kind, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, c.Kind())
			tt.check(t, c)
		})
	}
}

func TestNew_InvalidPayload(t *testing.T) {
	h := NewHandle(ArenaA, 0, 1)

	tests := []struct {
		name    string
		kind    Kind
		payload any
	}{
		{"nil with value", KindNil, 1},
		{"cons with int", KindCons, int64(1)},
		{"cons with zero car", KindCons, Pair{Cdr: h}},
		{"int with float", KindInt, 1.5},
		{"real with int", KindReal, int64(1)},
		{"char with string", KindChar, "a"},
		{"char surrogate", KindChar, rune(0xD800)},
		{"unknown kind", Kind(42), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)

			var pe *PayloadError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestCell_Accessors(t *testing.T) {
	c := Int(9)
	_, ok := c.Real()
	assert.False(t, ok)
	_, ok = c.Pair()
	assert.False(t, ok)
	assert.True(t, c.Car().IsZero())

	h := NewHandle(ArenaB, 2, 5)
	q := Cons(h, h).WithCar(NewHandle(ArenaA, 1, 1))
	assert.Equal(t, uint32(1), q.Car().Slot())
	assert.Equal(t, h, q.Cdr())

	assert.Equal(t, "9", c.String())
	assert.Equal(t, "nil", Nil().String())
}

func TestArenaID(t *testing.T) {
	assert.Equal(t, ArenaB, ArenaA.Other())
	assert.Equal(t, ArenaA, ArenaB.Other())
	assert.True(t, ArenaB.Valid())
	assert.False(t, ArenaID(2).Valid())
	assert.Equal(t, "A", ArenaA.String())
}

func TestHandle_Zero(t *testing.T) {
	assert.True(t, Handle{}.IsZero())
	assert.False(t, NewHandle(ArenaA, 0, 1).IsZero())
	assert.Equal(t, "B:3@2", NewHandle(ArenaB, 3, 2).String())
}

func TestHandle_Accessors(t *testing.T) {
	h := NewHandle(ArenaB, 3, 1<<40)
	assert.Equal(t, ArenaB, h.Arena())
	assert.Equal(t, uint32(3), h.Slot())
	assert.Equal(t, uint64(1<<40), h.Gen())
	assert.Equal(t, "B:3@1099511627776", h.String())
}
