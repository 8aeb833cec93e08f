// Package roundtrip implements the round trip bundle node
// Here is a full flow of data through one iteration:
//
// Pipeline fans out:
//   - QuoteFetcher quotes leg 1 (A -> B)
//   - AnchorCache returns the recent blockhash
//   - IncentiveBuilder drafts the tip transfer
//
// Pipeline -> Threshold applies slippage to leg 1
// Pipeline -> SwapBuilder builds leg 1, QuoteFetcher quotes leg 2 (B -> A), SwapBuilder builds leg 2
// Pipeline -> Signer signs both legs and the tip
// Pipeline -> Evaluate decides submit or skip
// Pipeline -> BundleSender sends the bundle to the relay
//
// Runner drives the pipeline forever and paces iterations.
package roundtrip

const (
	// BundleSize is the number of transactions in every bundle: two swap legs and the tip.
	BundleSize = 3

	MaxSlippageBps = 10_000

	DefaultSignatureFeeLamports = 5000
	DefaultComputeUnitLimit     = 1_400_000
	DefaultBaseDecimals         = 9

	WrappedSOLMint = "So11111111111111111111111111111111111111112"

	SendBundleMethod  = "sendBundle"
	LastOutcomeMethod = "roundtrip_lastOutcome"
)
