package roundtrip

import (
	"math"
	"math/bits"
)

// Threshold returns the worst-case acceptable output for a leg:
// floor(expectedOut * (10000 - slippageBps) / 10000).
// It always rounds down, so 0 <= Threshold <= expectedOut.
// slippageBps above 10000 is a contract violation and returns ErrSlippageOutOfRange.
func Threshold(expectedOut uint64, slippageBps uint16) (uint64, error) {
	if slippageBps > MaxSlippageBps {
		return 0, ErrSlippageOutOfRange
	}
	// hi < 10000 because the multiplier is at most 10000, so Div64 cannot overflow
	hi, lo := bits.Mul64(expectedOut, uint64(MaxSlippageBps-slippageBps))
	q, _ := bits.Div64(hi, lo, MaxSlippageBps)
	return q, nil
}

// mulDivUp returns ceil(x * num / den), saturating at the uint64 max. den zero yields zero.
func mulDivUp(x, num, den uint64) uint64 {
	if den == 0 {
		return 0
	}
	hi, lo := bits.Mul64(x, num)
	if hi >= den {
		return math.MaxUint64
	}
	q, rem := bits.Div64(hi, lo, den)
	if rem > 0 && q < math.MaxUint64 {
		q++
	}
	return q
}

func addSaturating(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}
