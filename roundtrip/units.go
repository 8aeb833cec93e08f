package roundtrip

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var errNegativeAmount = errors.New("amount must not be negative")

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// FromBaseUnits scales a base-unit amount (lamports) to native units (SOL).
func FromBaseUnits(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
}

// ToBaseUnits converts a native-unit amount such as "0.001" to base units,
// truncating anything below one base unit.
func ToBaseUnits(native string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(native)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", native, err)
	}
	if d.IsNegative() {
		return 0, errNegativeAmount
	}
	scaled := d.Shift(decimals).Truncate(0)
	if scaled.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("amount %q overflows base units", native)
	}
	return scaled.BigInt().Uint64(), nil
}

func formatUnits(amount uint64, decimals int32) string {
	return FromBaseUnits(amount, decimals).String()
}
