package roundtrip

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/roundtrip-labs/roundtrip-node/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PipelineConfig is the fixed round trip: InputMint -> OutputMint -> InputMint.
type PipelineConfig struct {
	InputMint            string
	OutputMint           string
	TradeSize            uint64
	SlippageBps          uint16
	OnlyDirectRoutes     bool
	Swap                 SwapParams
	SignatureFeeLamports uint64
	IncentiveAmount      uint64
	Decimals             int32
	// CallTimeout bounds every outbound call, zero means no bound.
	CallTimeout time.Duration
}

type Pipeline struct {
	log       *zap.Logger
	cfg       PipelineConfig
	quotes    QuoteFetcher
	swaps     SwapBuilder
	anchors   AnchorProvider
	incentive IncentiveDrafter
	signer    TransactionSigner
	relay     BundleSender
}

func NewPipeline(
	log *zap.Logger, cfg PipelineConfig,
	quotes QuoteFetcher, swaps SwapBuilder, anchors AnchorProvider, incentive IncentiveDrafter,
	signer TransactionSigner, relay BundleSender,
) *Pipeline {
	return &Pipeline{
		log:       log.Named("pipeline"),
		cfg:       cfg,
		quotes:    quotes,
		swaps:     swaps,
		anchors:   anchors,
		incentive: incentive,
		signer:    signer,
		relay:     relay,
	}
}

type fanOutResult struct {
	quote     *Quote
	anchor    Anchor
	draft     *solana.Transaction
	recipient solana.PublicKey
}

// RunIteration performs one full pass. Any error aborts only this iteration; the returned
// outcome is filled as far as the pass got.
func (p *Pipeline) RunIteration(ctx context.Context) (outcome Outcome, err error) {
	outcome = Outcome{
		Status:      StatusAborted,
		InputAmount: p.cfg.TradeSize,
		StartedAt:   time.Now(),
	}
	defer func() {
		outcome.Duration = time.Since(outcome.StartedAt)
		if err != nil {
			outcome.Status = StatusAborted
			outcome.Error = err.Error()
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				outcome.Stage = stageErr.Stage
			}
		}
	}()

	fan, err := p.fanOut(ctx)
	if err != nil {
		return outcome, err
	}
	outcome.Recipient = fan.recipient.String()
	p.log.Debug("Fan-out done",
		zap.String("blockhash", fan.anchor.Blockhash.String()),
		zap.String("recipient", outcome.Recipient),
		zap.Uint64("leg1_expected_out", fan.quote.OutAmount),
	)

	leg1Threshold, err := Threshold(fan.quote.OutAmount, p.cfg.SlippageBps)
	if err != nil {
		return outcome, stageErr(StageThreshold1, err)
	}
	outcome.Leg1Threshold = leg1Threshold

	leg1Payload, err := p.buildSwap(ctx, fan.quote, leg1Threshold)
	if err != nil {
		return outcome, stageErr(StageBuildSwap1, err)
	}

	// the return leg only sells what leg 1 is guaranteed to deliver
	returnQuote, err := p.quote(ctx, QuoteRequest{
		InputMint:        p.cfg.OutputMint,
		OutputMint:       p.cfg.InputMint,
		Amount:           leg1Threshold,
		SlippageBps:      p.cfg.SlippageBps,
		OnlyDirectRoutes: p.cfg.OnlyDirectRoutes,
	})
	if err != nil {
		return outcome, stageErr(StageReturnQuote, err)
	}

	returnThreshold, err := Threshold(returnQuote.OutAmount, p.cfg.SlippageBps)
	if err != nil {
		return outcome, stageErr(StageThreshold2, err)
	}
	outcome.ReturnThreshold = returnThreshold

	leg2Payload, err := p.buildSwap(ctx, returnQuote, returnThreshold)
	if err != nil {
		return outcome, stageErr(StageBuildSwap2, err)
	}

	leg1, err := p.signer.SignPayload(leg1Payload)
	if err != nil {
		return outcome, stageErr(StageSign, err)
	}
	leg2, err := p.signer.SignPayload(leg2Payload)
	if err != nil {
		return outcome, stageErr(StageSign, err)
	}
	tip, err := p.signer.SignTransaction(fan.draft)
	if err != nil {
		return outcome, stageErr(StageSign, err)
	}

	bundle, err := AssembleBundle(leg1, leg2, tip)
	if err != nil {
		return outcome, stageErr(StageAssemble, err)
	}

	eval := Evaluate(FeeInputs{
		InputAmount:          p.cfg.TradeSize,
		WorstCaseReturnOut:   returnThreshold,
		NumSignatures:        BundleSize,
		SignatureFeeLamports: p.cfg.SignatureFeeLamports,
		IncentiveAmount:      p.cfg.IncentiveAmount,
		VenueFees:            VenueFees(p.cfg.InputMint, fan.quote, returnQuote),
		Decimals:             p.cfg.Decimals,
	})
	outcome.TxFees = eval.TxFees
	outcome.VenueFees = eval.VenueFees
	outcome.NetAmount = eval.NetAmount
	outcome.Profit = eval.Profit

	p.log.Info("Evaluated round trip",
		zap.String("sol_input", formatUnits(p.cfg.TradeSize, p.cfg.Decimals)),
		zap.Uint64("leg1_expected_out", fan.quote.OutAmount),
		zap.Uint64("leg1_threshold", leg1Threshold),
		zap.String("sol_return_threshold", formatUnits(returnThreshold, p.cfg.Decimals)),
		zap.String("sol_tx_fees", formatUnits(eval.TxFees, p.cfg.Decimals)),
		zap.String("sol_venue_fees", formatUnits(eval.VenueFees, p.cfg.Decimals)),
		zap.String("sol_net", eval.NetAmount.String()),
		zap.String("sol_profit", eval.Profit.String()),
		zap.Bool("submit", eval.Submit),
	)

	if !eval.Submit {
		outcome.Status = StatusSkipped
		return outcome, nil
	}

	bundleID, err := p.send(ctx, bundle)
	if err != nil {
		metrics.IncRelayFailures()
		return outcome, stageErr(StageSubmit, err)
	}
	outcome.BundleID = bundleID
	outcome.Status = StatusSubmitted
	return outcome, nil
}

// fanOut runs the leg 1 quote, the anchor fetch and the incentive draft concurrently.
// The first failure cancels the others.
func (p *Pipeline) fanOut(ctx context.Context) (fanOutResult, error) {
	var res fanOutResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		quote, err := p.quote(gctx, QuoteRequest{
			InputMint:        p.cfg.InputMint,
			OutputMint:       p.cfg.OutputMint,
			Amount:           p.cfg.TradeSize,
			SlippageBps:      p.cfg.SlippageBps,
			OnlyDirectRoutes: p.cfg.OnlyDirectRoutes,
		})
		if err != nil {
			return stageErr(StageQuote, err)
		}
		res.quote = quote
		return nil
	})
	g.Go(func() error {
		anchor, err := p.anchor(gctx)
		if err != nil {
			return stageErr(StageAnchor, err)
		}
		res.anchor = anchor
		return nil
	})
	g.Go(func() error {
		// shares the anchor fetch above
		anchor, err := p.anchor(gctx)
		if err != nil {
			return stageErr(StageAnchor, err)
		}
		draft, recipient, err := p.incentive.Draft(anchor)
		if err != nil {
			return stageErr(StageIncentive, err)
		}
		res.draft = draft
		res.recipient = recipient
		return nil
	})

	if err := g.Wait(); err != nil {
		return fanOutResult{}, err
	}
	return res, nil
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.cfg.CallTimeout)
}

func (p *Pipeline) quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.quotes.Quote(ctx, req)
}

func (p *Pipeline) anchor(ctx context.Context) (Anchor, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.anchors.Anchor(ctx)
}

func (p *Pipeline) buildSwap(ctx context.Context, quote *Quote, threshold uint64) ([]byte, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.swaps.BuildSwap(ctx, quote, p.cfg.Swap, threshold)
}

func (p *Pipeline) send(ctx context.Context, bundle Bundle) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.relay.SendBundle(ctx, bundle)
}
