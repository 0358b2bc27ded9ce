// decimal.go pins the wire codec for decimal values.
//
// The exchange serialises every price and quantity as a JSON string to avoid
// float rounding ("0.00000001", not 1e-8). shopspring/decimal already accepts
// both strings and numbers on input and emits quoted strings on output; this
// file locks that behaviour in (init below) and adds the one shape the stdlib
// codec cannot express: order book levels as ["price","quantity"] pairs.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// Quoted output is the package default, but it is load-bearing for this
	// client: a process that flips it would corrupt order payloads.
	decimal.MarshalJSONWithoutQuotes = false
}

// ParseDecimal parses a wire decimal string.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// PriceLevel is a single bid or ask level. On the wire it is a two-element
// array ["price","quantity"]; in memory it is a typed pair.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Level constructs a PriceLevel from wire strings, panicking on bad input.
// Intended for tests and fixtures.
func Level(price, qty string) PriceLevel {
	return PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

// UnmarshalJSON decodes ["price","quantity"]. Elements may be strings or
// numbers; the exchange sends strings.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair [2]decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("price level: %w", err)
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

// MarshalJSON encodes back to the ["price","quantity"] wire shape.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]decimal.Decimal{l.Price, l.Quantity})
}
