package roundtrip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"
)

var errQuoteWithoutPayload = errors.New("quote has no venue payload")

const (
	DefaultJupiterAPI = "https://quote-api.jup.ag/v6"

	maxErrorBodySize = 4096
)

type QuoteFetcher interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

type SwapBuilder interface {
	BuildSwap(ctx context.Context, quote *Quote, params SwapParams, threshold uint64) ([]byte, error)
}

// SwapParams carries the per-transaction execution settings sent with every swap build.
type SwapParams struct {
	ComputeUnitLimit    uint32
	PriorityFeeLamports uint64
}

// JupiterClient talks to the routing venue. It implements both QuoteFetcher and SwapBuilder.
// It does not retry; the runner decides what happens after a failed iteration.
type JupiterClient struct {
	baseURL string
	user    solana.PublicKey
	client  *http.Client
	limiter *rate.Limiter
}

func NewJupiterClient(baseURL string, user solana.PublicKey, limit rate.Limit, burst int) *JupiterClient {
	return &JupiterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("inputMint", req.InputMint)
	query.Set("outputMint", req.OutputMint)
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	query.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	query.Set("onlyDirectRoutes", strconv.FormatBool(req.OnlyDirectRoutes))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(httpReq, "quote")
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, &VenueError{Op: "quote", Status: http.StatusOK, Body: truncate(body), Err: err}
	}
	return &quote, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	ComputeUnitLimit          uint32          `json:"computeUnitLimit,omitempty"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// BuildSwap asks the venue for an unsigned swap transaction. The worst-case threshold replaces
// the quote's otherAmountThreshold so the on-chain minimum-output guard uses it.
func (c *JupiterClient) BuildSwap(ctx context.Context, quote *Quote, params SwapParams, threshold uint64) ([]byte, error) {
	quoteResponse, err := withThreshold(quote.Raw(), threshold)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(swapRequest{
		QuoteResponse:             quoteResponse,
		UserPublicKey:             c.user.String(),
		WrapAndUnwrapSol:          false,
		ComputeUnitLimit:          params.ComputeUnitLimit,
		PrioritizationFeeLamports: params.PriorityFeeLamports,
	})
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	body, err := c.do(httpReq, "swap")
	if err != nil {
		return nil, err
	}

	var res swapResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &VenueError{Op: "swap", Status: http.StatusOK, Body: truncate(body), Err: err}
	}
	if res.SwapTransaction == "" {
		return nil, &VenueError{Op: "swap", Status: http.StatusOK, Body: truncate(body), Err: ErrEmptyPayload}
	}
	payload, err := base64.StdEncoding.DecodeString(res.SwapTransaction)
	if err != nil {
		return nil, &InvalidPayloadError{Reason: "swap transaction is not base64", Err: err}
	}
	return payload, nil
}

func (c *JupiterClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &VenueError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &VenueError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &VenueError{Op: op, Status: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}

func withThreshold(raw json.RawMessage, threshold uint64) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, errQuoteWithoutPayload
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["otherAmountThreshold"] = json.RawMessage(strconv.Quote(strconv.FormatUint(threshold, 10)))
	return json.Marshal(fields)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	return string(body)
}
