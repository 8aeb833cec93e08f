package roundtrip

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Stage names one step of an iteration.
type Stage string

const (
	StageQuote       Stage = "quote"
	StageAnchor      Stage = "anchor"
	StageIncentive   Stage = "incentive"
	StageThreshold1  Stage = "threshold_1"
	StageBuildSwap1  Stage = "build_swap_1"
	StageReturnQuote Stage = "return_quote"
	StageThreshold2  Stage = "threshold_2"
	StageBuildSwap2  Stage = "build_swap_2"
	StageSign        Stage = "sign"
	StageAssemble    Stage = "assemble"
	StageEvaluate    Stage = "evaluate"
	StageSubmit      Stage = "submit"
)

// Status is the result of one iteration.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusSkipped   Status = "skipped"
	StatusAborted   Status = "aborted"
)

// QuoteRequest is a quote query for one leg.
type QuoteRequest struct {
	InputMint        string
	OutputMint       string
	Amount           uint64
	SlippageBps      uint16
	OnlyDirectRoutes bool
}

type PlatformFee struct {
	Amount uint64
	FeeBps int
}

type SwapInfo struct {
	AmmKey     string
	Label      string
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	FeeAmount  uint64
	FeeMint    string
}

type RoutePlanStep struct {
	SwapInfo SwapInfo
	Percent  int
}

// Quote is the routing venue's answer for one leg. The original response is kept
// verbatim because the swap endpoint wants it back.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	SlippageBps          uint16
	PlatformFee          *PlatformFee
	RoutePlan            []RoutePlanStep
	ContextSlot          uint64

	raw json.RawMessage
}

type wireSwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

type wireQuote struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          uint16 `json:"slippageBps"`
	PlatformFee          *struct {
		Amount string `json:"amount"`
		FeeBps int    `json:"feeBps"`
	} `json:"platformFee"`
	RoutePlan []struct {
		SwapInfo wireSwapInfo `json:"swapInfo"`
		Percent  int          `json:"percent"`
	} `json:"routePlan"`
	ContextSlot uint64 `json:"contextSlot"`
}

// parseAmount parses a base-unit amount string; an absent amount is zero.
func parseAmount(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (q *Quote) UnmarshalJSON(data []byte) error {
	var w wireQuote
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var (
		res Quote
		err error
	)
	res.InputMint = w.InputMint
	res.OutputMint = w.OutputMint
	res.SlippageBps = w.SlippageBps
	res.ContextSlot = w.ContextSlot
	if res.InAmount, err = parseAmount("inAmount", w.InAmount); err != nil {
		return err
	}
	if res.OutAmount, err = parseAmount("outAmount", w.OutAmount); err != nil {
		return err
	}
	if res.OtherAmountThreshold, err = parseAmount("otherAmountThreshold", w.OtherAmountThreshold); err != nil {
		return err
	}
	if w.PlatformFee != nil {
		amount, err := parseAmount("platformFee.amount", w.PlatformFee.Amount)
		if err != nil {
			return err
		}
		res.PlatformFee = &PlatformFee{Amount: amount, FeeBps: w.PlatformFee.FeeBps}
	}
	res.RoutePlan = make([]RoutePlanStep, 0, len(w.RoutePlan))
	for _, step := range w.RoutePlan {
		info := SwapInfo{
			AmmKey:     step.SwapInfo.AmmKey,
			Label:      step.SwapInfo.Label,
			InputMint:  step.SwapInfo.InputMint,
			OutputMint: step.SwapInfo.OutputMint,
			FeeMint:    step.SwapInfo.FeeMint,
		}
		if info.InAmount, err = parseAmount("swapInfo.inAmount", step.SwapInfo.InAmount); err != nil {
			return err
		}
		if info.OutAmount, err = parseAmount("swapInfo.outAmount", step.SwapInfo.OutAmount); err != nil {
			return err
		}
		if info.FeeAmount, err = parseAmount("swapInfo.feeAmount", step.SwapInfo.FeeAmount); err != nil {
			return err
		}
		res.RoutePlan = append(res.RoutePlan, RoutePlanStep{SwapInfo: info, Percent: step.Percent})
	}
	res.raw = append(json.RawMessage(nil), data...)
	*q = res
	return nil
}

// Raw returns the quote exactly as the venue sent it.
func (q *Quote) Raw() json.RawMessage {
	return q.raw
}

// FeesInBase sums the venue-reported fees of this quote, priced in the base mint.
// Fees charged in the other side of the leg are converted at this leg's own rate,
// rounding up. Fees in any further mint of a multi-hop route have no rate here
// and are left out.
func (q *Quote) FeesInBase(base string) uint64 {
	var total uint64
	for _, step := range q.RoutePlan {
		total = addSaturating(total, q.priceInBase(step.SwapInfo.FeeAmount, step.SwapInfo.FeeMint, base))
	}
	if q.PlatformFee != nil {
		// the platform fee is taken from the output
		total = addSaturating(total, q.priceInBase(q.PlatformFee.Amount, q.OutputMint, base))
	}
	return total
}

func (q *Quote) priceInBase(amount uint64, mint, base string) uint64 {
	switch {
	case amount == 0:
		return 0
	case mint == base:
		return amount
	case q.InputMint == base && mint == q.OutputMint:
		// selling base: one output unit costs InAmount/OutAmount base units
		return mulDivUp(amount, q.InAmount, q.OutAmount)
	case q.OutputMint == base && mint == q.InputMint:
		// buying base: one input unit is worth OutAmount/InAmount base units
		return mulDivUp(amount, q.OutAmount, q.InAmount)
	default:
		return 0
	}
}

// Anchor is a recent blockhash together with the time it was fetched.
type Anchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	AcquiredAt           time.Time
}

// SignedTransaction is a fully signed wire transaction, base58 encoded for the relay.
type SignedTransaction string

// Bundle is the ordered, fixed-size set of transactions executed atomically by the relay:
// swap leg 1, swap leg 2, incentive payment.
type Bundle [BundleSize]SignedTransaction

func (b Bundle) Encoded() []string {
	out := make([]string, 0, BundleSize)
	for _, tx := range b {
		out = append(out, string(tx))
	}
	return out
}

// Outcome describes one iteration. It is recomputed every iteration and never persisted.
type Outcome struct {
	Iteration       uint64          `json:"iteration"`
	Status          Status          `json:"status"`
	Stage           Stage           `json:"stage,omitempty"`
	InputAmount     uint64          `json:"inputAmount"`
	Leg1Threshold   uint64          `json:"leg1Threshold"`
	ReturnThreshold uint64          `json:"returnThreshold"`
	TxFees          uint64          `json:"txFees"`
	VenueFees       uint64          `json:"venueFees"`
	NetAmount       decimal.Decimal `json:"netAmount"`
	Profit          decimal.Decimal `json:"profit"`
	Recipient       string          `json:"recipient,omitempty"`
	BundleID        string          `json:"bundleId,omitempty"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"startedAt"`
	Duration        time.Duration   `json:"duration"`
}
