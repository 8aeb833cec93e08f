package roundtrip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOutputMint = usdcMint

type fakeQuotes struct {
	mu       sync.Mutex
	requests []QuoteRequest
	leg1     *Quote
	leg2     *Quote
	leg1Err  error
	leg2Err  error
	block    bool
}

func (f *fakeQuotes) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if req.InputMint == WrappedSOLMint {
		return f.leg1, f.leg1Err
	}
	return f.leg2, f.leg2Err
}

type swapCall struct {
	inputMint string
	threshold uint64
	params    SwapParams
}

type fakeSwaps struct {
	mu      sync.Mutex
	calls   []swapCall
	leg1Err error
	leg2Err error
}

func (f *fakeSwaps) BuildSwap(_ context.Context, quote *Quote, params SwapParams, threshold uint64) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, swapCall{inputMint: quote.InputMint, threshold: threshold, params: params})
	f.mu.Unlock()
	if quote.InputMint == WrappedSOLMint {
		return []byte("leg1"), f.leg1Err
	}
	return []byte("leg2"), f.leg2Err
}

type fakeAnchors struct {
	err error
}

func (f *fakeAnchors) Anchor(context.Context) (Anchor, error) {
	if f.err != nil {
		return Anchor{}, f.err
	}
	return Anchor{Blockhash: solana.Hash{42}, AcquiredAt: time.Now()}, nil
}

type fakeDrafter struct {
	recipient solana.PublicKey
}

func (f *fakeDrafter) Draft(anchor Anchor) (*solana.Transaction, solana.PublicKey, error) {
	tx := &solana.Transaction{}
	tx.Message.RecentBlockhash = anchor.Blockhash
	return tx, f.recipient, nil
}

type fakeSigner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSigner) PublicKey() solana.PublicKey {
	return solana.PublicKey{}
}

func (f *fakeSigner) SignPayload(payload []byte) (SignedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return SignedTransaction("signed-" + string(payload)), nil
}

func (f *fakeSigner) SignTransaction(tx *solana.Transaction) (SignedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if tx.Message.RecentBlockhash != (solana.Hash{42}) {
		return "", errors.New("tip drafted without the anchor") //nolint:goerr113
	}
	return "signed-tip", nil
}

type fakeSender struct {
	bundles []Bundle
	err     error
}

func (f *fakeSender) SendBundle(_ context.Context, bundle Bundle) (string, error) {
	f.bundles = append(f.bundles, bundle)
	if f.err != nil {
		return "", f.err
	}
	return "bundle-1", nil
}

type pipelineFixture struct {
	quotes  *fakeQuotes
	swaps   *fakeSwaps
	anchors *fakeAnchors
	drafter *fakeDrafter
	signer  *fakeSigner
	relay   *fakeSender
	cfg     PipelineConfig
}

// newPipelineFixture sets up a round trip of 1 SOL that returns returnOut lamports before slippage.
func newPipelineFixture(returnOut uint64) *pipelineFixture {
	return &pipelineFixture{
		quotes: &fakeQuotes{
			leg1: &Quote{InputMint: WrappedSOLMint, OutputMint: testOutputMint, InAmount: 1_000_000_000, OutAmount: 150_000_000},
			leg2: &Quote{InputMint: testOutputMint, OutputMint: WrappedSOLMint, InAmount: 149_250_000, OutAmount: returnOut},
		},
		swaps:   &fakeSwaps{},
		anchors: &fakeAnchors{},
		drafter: &fakeDrafter{recipient: solana.MustPublicKeyFromBase58(DefaultTipAccounts[0])},
		signer:  &fakeSigner{},
		relay:   &fakeSender{},
		cfg: PipelineConfig{
			InputMint:            WrappedSOLMint,
			OutputMint:           testOutputMint,
			TradeSize:            1_000_000_000,
			SlippageBps:          50,
			Swap:                 SwapParams{ComputeUnitLimit: 300_000, PriorityFeeLamports: 10_000},
			SignatureFeeLamports: 5000,
			IncentiveAmount:      1_000_000,
			Decimals:             9,
		},
	}
}

func (f *pipelineFixture) pipeline() *Pipeline {
	return NewPipeline(zap.NewNop(), f.cfg, f.quotes, f.swaps, f.anchors, f.drafter, f.signer, f.relay)
}

func TestPipeline_SubmitsProfitableRoundTrip(t *testing.T) {
	f := newPipelineFixture(1_010_000_000)

	outcome, err := f.pipeline().RunIteration(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, outcome.Status)
	require.Equal(t, "bundle-1", outcome.BundleID)
	require.Equal(t, uint64(149_250_000), outcome.Leg1Threshold)
	require.Equal(t, uint64(1_004_950_000), outcome.ReturnThreshold)
	require.Equal(t, uint64(1_015_000), outcome.TxFees)
	require.Equal(t, "0.003935", outcome.Profit.String())
	require.Equal(t, DefaultTipAccounts[0], outcome.Recipient)
	require.Empty(t, outcome.Error)

	// the return leg sells exactly the worst-case output of leg 1
	require.Len(t, f.quotes.requests, 2)
	require.Equal(t, QuoteRequest{
		InputMint:   testOutputMint,
		OutputMint:  WrappedSOLMint,
		Amount:      149_250_000,
		SlippageBps: 50,
	}, f.quotes.requests[1])

	require.Equal(t, []swapCall{
		{inputMint: WrappedSOLMint, threshold: 149_250_000, params: f.cfg.Swap},
		{inputMint: testOutputMint, threshold: 1_004_950_000, params: f.cfg.Swap},
	}, f.swaps.calls)

	require.Equal(t, []Bundle{{"signed-leg1", "signed-leg2", "signed-tip"}}, f.relay.bundles)
}

func TestPipeline_SkipsUnprofitableRoundTrip(t *testing.T) {
	f := newPipelineFixture(1_000_000_000)

	outcome, err := f.pipeline().RunIteration(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, outcome.Status)
	require.True(t, outcome.Profit.IsNegative())
	require.Empty(t, f.relay.bundles)
}

func TestPipeline_Aborts(t *testing.T) {
	venueDown := &VenueError{Op: "quote", Status: 503}
	emptySwap := &VenueError{Op: "swap", Status: 200, Err: ErrEmptyPayload}

	tests := []struct {
		name        string
		setup       func(f *pipelineFixture)
		wantStage   Stage
		wantErr     error
		wantQuotes  int
		wantSwaps   int
		wantSigns   int
		wantBundles int
	}{
		{
			name:       "leg 1 quote fails",
			setup:      func(f *pipelineFixture) { f.quotes.leg1Err = venueDown },
			wantStage:  StageQuote,
			wantErr:    venueDown,
			wantQuotes: 1,
		},
		{
			name:       "anchor fails",
			setup:      func(f *pipelineFixture) { f.anchors.err = errors.New("rpc down") }, //nolint:goerr113
			wantStage:  StageAnchor,
			wantQuotes: 1,
		},
		{
			name:       "leg 1 swap payload empty",
			setup:      func(f *pipelineFixture) { f.swaps.leg1Err = emptySwap },
			wantStage:  StageBuildSwap1,
			wantErr:    ErrEmptyPayload,
			wantQuotes: 1,
			wantSwaps:  1,
		},
		{
			name:       "return quote fails",
			setup:      func(f *pipelineFixture) { f.quotes.leg2Err = venueDown },
			wantStage:  StageReturnQuote,
			wantErr:    venueDown,
			wantQuotes: 2,
			wantSwaps:  1,
		},
		{
			name:       "leg 2 swap payload empty",
			setup:      func(f *pipelineFixture) { f.swaps.leg2Err = emptySwap },
			wantStage:  StageBuildSwap2,
			wantErr:    ErrEmptyPayload,
			wantQuotes: 2,
			wantSwaps:  2,
		},
		{
			name:        "relay rejects",
			setup:       func(f *pipelineFixture) { f.relay.err = &VenueError{Op: SendBundleMethod, Body: "bad bundle"} },
			wantStage:   StageSubmit,
			wantQuotes:  2,
			wantSwaps:   2,
			wantSigns:   3,
			wantBundles: 1,
		},
		{
			name: "slippage out of range",
			setup: func(f *pipelineFixture) {
				f.cfg.SlippageBps = 10_001
			},
			wantStage:  StageThreshold1,
			wantErr:    ErrSlippageOutOfRange,
			wantQuotes: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(1_010_000_000)
			tt.setup(f)

			outcome, err := f.pipeline().RunIteration(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			require.Equal(t, tt.wantStage, stageErr.Stage)

			require.Equal(t, StatusAborted, outcome.Status)
			require.Equal(t, tt.wantStage, outcome.Stage)
			require.NotEmpty(t, outcome.Error)

			require.Len(t, f.quotes.requests, tt.wantQuotes)
			require.Len(t, f.swaps.calls, tt.wantSwaps)
			require.Equal(t, tt.wantSigns, f.signer.calls)
			require.Len(t, f.relay.bundles, tt.wantBundles)
		})
	}
}

func TestPipeline_CallTimeout(t *testing.T) {
	f := newPipelineFixture(1_010_000_000)
	f.quotes.block = true
	f.cfg.CallTimeout = 20 * time.Millisecond

	outcome, err := f.pipeline().RunIteration(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StageQuote, outcome.Stage)
	require.Zero(t, f.signer.calls)
}
