package roundtrip

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// DefaultTipAccounts are the public tip accounts of the Jito block engine.
var DefaultTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// Config is everything the node needs, as read from flags and environment.
// It holds the private key, so it must never be logged as a whole.
type Config struct {
	RPCEndpoint   string
	RelayEndpoint string
	QuoteAPI      string
	PrivateKey    string

	InputMint  string
	OutputMint string
	// TradeSize and TipAmount are in native units, e.g. "0.5"
	TradeSize string
	TipAmount string

	SlippageBps          int
	PriorityFeeLamports  uint64
	ComputeUnitLimit     uint32
	SignatureFeeLamports uint64
	BaseDecimals         int32
	OnlyDirectRoutes     bool
	TipAccounts          []string

	PaceInterval     time.Duration
	RetryPolicy      RetryPolicy
	RetryMaxInterval time.Duration
	AnchorMaxAge     time.Duration
	CallTimeout      time.Duration
	QuoteRateLimit   float64
}

type TipAccountsConfig struct {
	TipAccounts []string `yaml:"tip_accounts"`
}

// LoadTipAccounts parses the incentive recipient pool from a yaml file
func LoadTipAccounts(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var config TipAccountsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return config.TipAccounts, nil
}

// SplitList splits a comma separated setting, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate returns a *ConfigurationError naming every missing or invalid setting.
func (c *Config) Validate() error {
	var problems []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}
	require(c.RPCEndpoint, "rpc endpoint")
	require(c.RelayEndpoint, "relay endpoint")
	require(c.QuoteAPI, "quote api")
	require(c.PrivateKey, "private key")
	require(c.InputMint, "input mint")
	require(c.OutputMint, "output mint")

	if c.PrivateKey != "" {
		// the parse error may quote the input, so it is not passed on
		if _, err := solana.PrivateKeyFromBase58(c.PrivateKey); err != nil {
			problems = append(problems, "private key is not a base58 keypair")
		}
	}
	for name, mint := range map[string]string{"input mint": c.InputMint, "output mint": c.OutputMint} {
		if mint == "" {
			continue
		}
		if _, err := solana.PublicKeyFromBase58(mint); err != nil {
			problems = append(problems, fmt.Sprintf("%s %q: %s", name, mint, err))
		}
	}
	if c.InputMint != "" && c.InputMint == c.OutputMint {
		problems = append(problems, "input and output mint must differ")
	}

	if c.SlippageBps < 0 || c.SlippageBps > MaxSlippageBps {
		problems = append(problems, fmt.Sprintf("slippage bps %d outside [0, %d]", c.SlippageBps, MaxSlippageBps))
	}
	if c.BaseDecimals < 0 || c.BaseDecimals > 18 {
		problems = append(problems, fmt.Sprintf("base decimals %d outside [0, 18]", c.BaseDecimals))
	}
	if size, err := ToBaseUnits(c.TradeSize, c.BaseDecimals); err != nil {
		problems = append(problems, "trade size: "+err.Error())
	} else if size == 0 {
		problems = append(problems, "trade size must be positive")
	}
	if _, err := ToBaseUnits(c.TipAmount, c.BaseDecimals); err != nil {
		problems = append(problems, "tip amount: "+err.Error())
	}

	if len(c.TipAccounts) == 0 {
		problems = append(problems, "tip account pool is empty")
	}
	for _, account := range c.TipAccounts {
		if _, err := solana.PublicKeyFromBase58(account); err != nil {
			problems = append(problems, fmt.Sprintf("tip account %q: %s", account, err))
		}
	}

	if c.PaceInterval <= 0 {
		problems = append(problems, "pace interval must be positive")
	}
	if _, err := NewRetryBackOff(c.RetryPolicy, time.Second, time.Second); err != nil {
		problems = append(problems, err.Error())
	}
	if c.QuoteRateLimit <= 0 {
		problems = append(problems, "quote rate limit must be positive")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// TipRecipients parses the pool. Call after Validate.
func (c *Config) TipRecipients() ([]solana.PublicKey, error) {
	pool := make([]solana.PublicKey, 0, len(c.TipAccounts))
	for _, account := range c.TipAccounts {
		key, err := solana.PublicKeyFromBase58(account)
		if err != nil {
			return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("tip account %q: %s", account, err)}}
		}
		pool = append(pool, key)
	}
	return pool, nil
}

// PipelineConfig converts native-unit settings to base units. Call after Validate.
func (c *Config) PipelineConfig() (PipelineConfig, error) {
	tradeSize, err := ToBaseUnits(c.TradeSize, c.BaseDecimals)
	if err != nil {
		return PipelineConfig{}, &ConfigurationError{Problems: []string{"trade size: " + err.Error()}}
	}
	tip, err := ToBaseUnits(c.TipAmount, c.BaseDecimals)
	if err != nil {
		return PipelineConfig{}, &ConfigurationError{Problems: []string{"tip amount: " + err.Error()}}
	}
	return PipelineConfig{
		InputMint:        c.InputMint,
		OutputMint:       c.OutputMint,
		TradeSize:        tradeSize,
		SlippageBps:      uint16(c.SlippageBps),
		OnlyDirectRoutes: c.OnlyDirectRoutes,
		Swap: SwapParams{
			ComputeUnitLimit:    c.ComputeUnitLimit,
			PriorityFeeLamports: c.PriorityFeeLamports,
		},
		SignatureFeeLamports: c.SignatureFeeLamports,
		IncentiveAmount:      tip,
		Decimals:             c.BaseDecimals,
		CallTimeout:          c.CallTimeout,
	}, nil
}
