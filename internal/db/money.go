package db

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// Credit amounts and prices are stored as exact integer cents so guarded
// arithmetic in SQL never goes through floating point.
const moneyScale = 2

// cents converts an amount to stored cents. Callers validate the scale;
// anything finer is rounded half away from zero.
func cents(d decimal.Decimal) int64 {
	return d.Shift(moneyScale).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -moneyScale)
}

// ExactCents reports whether d fits the stored precision without rounding.
func ExactCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyScale))
}

// money scans a cents column into dst.
func money(dst *decimal.Decimal) sql.Scanner {
	return centsScanner{dst: dst}
}

type centsScanner struct {
	dst *decimal.Decimal
}

func (s centsScanner) Scan(src any) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return fmt.Errorf("money column: %w", err)
	}
	if !n.Valid {
		return fmt.Errorf("money column: unexpected NULL")
	}
	*s.dst = fromCents(n.Int64)
	return nil
}

func centsPtr(n sql.NullInt64) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := fromCents(n.Int64)
	return &v
}

func nullableCents(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return cents(*d)
}
