package roundtrip

import "github.com/shopspring/decimal"

// FeeInputs are the base-unit figures the profit gate works with.
// All outputs are worst-case (slippage adjusted), never the optimistic quote amounts.
type FeeInputs struct {
	InputAmount          uint64
	WorstCaseReturnOut   uint64
	NumSignatures        uint64
	SignatureFeeLamports uint64
	IncentiveAmount      uint64
	VenueFees            uint64
	Decimals             int32
}

type Evaluation struct {
	TxFees    uint64
	VenueFees uint64
	NetAmount decimal.Decimal
	Profit    decimal.Decimal
	Submit    bool
}

// TotalTxFees is numSignatures * perSignatureFee + incentiveAmount.
func TotalTxFees(numSignatures, perSignatureFee, incentiveAmount uint64) uint64 {
	return numSignatures*perSignatureFee + incentiveAmount
}

// VenueFees sums the route fees of both legs in base units of baseMint.
func VenueFees(baseMint string, legs ...*Quote) uint64 {
	var total uint64
	for _, q := range legs {
		if q == nil {
			continue
		}
		total = addSaturating(total, q.FeesInBase(baseMint))
	}
	return total
}

// Evaluate nets the worst-case return against every fee and the original input.
// The bundle is worth submitting only when profit is strictly positive.
func Evaluate(in FeeInputs) Evaluation {
	txFees := TotalTxFees(in.NumSignatures, in.SignatureFeeLamports, in.IncentiveAmount)

	out := FromBaseUnits(in.WorstCaseReturnOut, in.Decimals)
	fees := FromBaseUnits(txFees, in.Decimals)
	venue := FromBaseUnits(in.VenueFees, in.Decimals)
	input := FromBaseUnits(in.InputAmount, in.Decimals)

	net := out.Sub(fees).Sub(venue)
	profit := net.Sub(input)
	return Evaluation{
		TxFees:    txFees,
		VenueFees: in.VenueFees,
		NetAmount: net,
		Profit:    profit,
		Submit:    profit.IsPositive(),
	}
}
