package roundtrip

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTotalTxFees(t *testing.T) {
	require.Equal(t, uint64(1_015_000), TotalTxFees(3, 5000, 1_000_000))
	require.Equal(t, uint64(0), TotalTxFees(0, 5000, 0))
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		in         FeeInputs
		wantNet    string
		wantProfit string
		wantSubmit bool
	}{
		{
			name: "profitable",
			in: FeeInputs{
				InputAmount:          1_000_000_000,
				WorstCaseReturnOut:   1_002_000_000,
				NumSignatures:        3,
				SignatureFeeLamports: 5000,
				IncentiveAmount:      1_485_000,
				Decimals:             9,
			},
			wantNet:    "1.0005",
			wantProfit: "0.0005",
			wantSubmit: true,
		},
		{
			name: "fees eat the spread",
			in: FeeInputs{
				InputAmount:          1_000_000_000,
				WorstCaseReturnOut:   1_002_000_000,
				NumSignatures:        3,
				SignatureFeeLamports: 5000,
				IncentiveAmount:      2_985_000,
				Decimals:             9,
			},
			wantNet:    "0.999",
			wantProfit: "-0.001",
			wantSubmit: false,
		},
		{
			name: "venue fees count",
			in: FeeInputs{
				InputAmount:          1_000_000_000,
				WorstCaseReturnOut:   1_002_000_000,
				NumSignatures:        3,
				SignatureFeeLamports: 5000,
				IncentiveAmount:      985_000,
				VenueFees:            500_000,
				Decimals:             9,
			},
			wantNet:    "1.0005",
			wantProfit: "0.0005",
			wantSubmit: true,
		},
		{
			name: "break even is not submitted",
			in: FeeInputs{
				InputAmount:        1_000_000_000,
				WorstCaseReturnOut: 1_001_000_000,
				IncentiveAmount:    1_000_000,
				Decimals:           9,
			},
			wantNet:    "1",
			wantProfit: "0",
			wantSubmit: false,
		},
		{
			name: "fees above return",
			in: FeeInputs{
				InputAmount:        1_000,
				WorstCaseReturnOut: 10,
				IncentiveAmount:    1_000_000,
				Decimals:           9,
			},
			wantNet:    "-0.00099999",
			wantProfit: "-0.00100099",
			wantSubmit: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := Evaluate(tt.in)
			require.True(t, decimal.RequireFromString(tt.wantNet).Equal(eval.NetAmount), "net %s", eval.NetAmount)
			require.True(t, decimal.RequireFromString(tt.wantProfit).Equal(eval.Profit), "profit %s", eval.Profit)
			require.Equal(t, tt.wantSubmit, eval.Submit)
			require.Equal(t, tt.in.VenueFees, eval.VenueFees)
		})
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	base := FeeInputs{
		InputAmount:          1_000_000_000,
		WorstCaseReturnOut:   1_002_000_000,
		NumSignatures:        3,
		SignatureFeeLamports: 5000,
		IncentiveAmount:      100_000,
		Decimals:             9,
	}
	prev := Evaluate(base).Profit
	for i := 1; i <= 20; i++ {
		in := base
		in.IncentiveAmount += uint64(i) * 100_000
		profit := Evaluate(in).Profit
		require.True(t, profit.LessThan(prev), "raising fees must lower profit")
		prev = profit
	}

	prev = Evaluate(base).Profit
	for i := 1; i <= 20; i++ {
		in := base
		in.WorstCaseReturnOut += uint64(i) * 1_000
		profit := Evaluate(in).Profit
		require.True(t, profit.GreaterThan(prev), "raising the return must raise profit")
		prev = profit
	}
}

func TestVenueFees(t *testing.T) {
	// 1 SOL buys 150 USDC, so one USDC base unit costs 1e9/1.5e8 lamports
	leg1 := func(steps ...RoutePlanStep) *Quote {
		return &Quote{
			InputMint:  WrappedSOLMint,
			OutputMint: usdcMint,
			InAmount:   1_000_000_000,
			OutAmount:  150_000_000,
			RoutePlan:  steps,
		}
	}
	leg2 := func(steps ...RoutePlanStep) *Quote {
		return &Quote{
			InputMint:  usdcMint,
			OutputMint: WrappedSOLMint,
			InAmount:   150_000_000,
			OutAmount:  1_000_000_000,
			RoutePlan:  steps,
		}
	}
	fee := func(amount uint64, mint string) RoutePlanStep {
		return RoutePlanStep{SwapInfo: SwapInfo{FeeAmount: amount, FeeMint: mint}}
	}

	tests := []struct {
		name string
		legs []*Quote
		want uint64
	}{
		{
			name: "base mint fees",
			legs: []*Quote{leg1(fee(2500, WrappedSOLMint)), leg2(fee(1000, WrappedSOLMint))},
			want: 3500,
		},
		{
			name: "intermediate mint fees on both legs",
			// ceil(2500*1e9/1.5e8) + ceil(4000*1e9/1.5e8)
			legs: []*Quote{leg1(fee(2500, usdcMint)), leg2(fee(4000, usdcMint))},
			want: 16_667 + 26_667,
		},
		{
			name: "exact conversion",
			legs: []*Quote{leg1(fee(900, usdcMint)), leg2(fee(1500, usdcMint))},
			want: 6000 + 10_000,
		},
		{
			name: "mixed mints",
			legs: []*Quote{
				leg1(fee(2500, WrappedSOLMint), fee(900, usdcMint)),
				leg2(fee(1000, WrappedSOLMint), fee(1500, usdcMint)),
			},
			want: 2500 + 6000 + 1000 + 10_000,
		},
		{
			name: "third mint has no rate",
			legs: []*Quote{leg1(fee(777, "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"))},
			want: 0,
		},
		{
			name: "no legs",
			want: 0,
		},
		{
			name: "nil and empty quotes",
			legs: []*Quote{nil, {}},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, VenueFees(WrappedSOLMint, tt.legs...))
		})
	}
}

func TestVenueFees_PlatformFee(t *testing.T) {
	// charged in USDC on leg 1, in SOL on leg 2
	leg1 := &Quote{
		InputMint:   WrappedSOLMint,
		OutputMint:  usdcMint,
		InAmount:    1_000_000_000,
		OutAmount:   150_000_000,
		PlatformFee: &PlatformFee{Amount: 77, FeeBps: 10},
	}
	leg2 := &Quote{
		InputMint:   usdcMint,
		OutputMint:  WrappedSOLMint,
		InAmount:    150_000_000,
		OutAmount:   1_000_000_000,
		PlatformFee: &PlatformFee{Amount: 300, FeeBps: 10},
	}

	require.Equal(t, uint64(514+300), VenueFees(WrappedSOLMint, leg1, leg2))
}

func TestVenueFees_LowersProfit(t *testing.T) {
	legs := []*Quote{
		{InputMint: WrappedSOLMint, OutputMint: usdcMint, InAmount: 1_000_000_000, OutAmount: 150_000_000,
			RoutePlan: []RoutePlanStep{{SwapInfo: SwapInfo{FeeAmount: 2500, FeeMint: usdcMint}}}},
		{InputMint: usdcMint, OutputMint: WrappedSOLMint, InAmount: 150_000_000, OutAmount: 1_000_000_000,
			RoutePlan: []RoutePlanStep{{SwapInfo: SwapInfo{FeeAmount: 4000, FeeMint: usdcMint}}}},
	}
	in := FeeInputs{
		InputAmount:        1_000_000_000,
		WorstCaseReturnOut: 1_000_040_000,
		Decimals:           9,
	}
	require.True(t, Evaluate(in).Submit)

	in.VenueFees = VenueFees(WrappedSOLMint, legs...)
	require.False(t, Evaluate(in).Submit)
}
