package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/flashbots/go-utils/cli"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	redisadapter "github.com/roundtrip-labs/roundtrip-node/adapters/redis"
	"github.com/roundtrip-labs/roundtrip-node/jsonrpcserver"
	"github.com/roundtrip-labs/roundtrip-node/roundtrip"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

var version = "dev" // is set during build process

// nodeFlags are the command line flags; their defaults come from the environment.
type nodeFlags struct {
	debug            *bool
	logProd          *bool
	logService       *string
	metricsPort      *string
	rpc              *string
	relay            *string
	quoteAPI         *string
	inputMint        *string
	outputMint       *string
	tradeSize        *string
	tipAmount        *string
	slippageBps      *string
	priorityFee      *string
	computeUnitLimit *string
	signatureFee     *string
	baseDecimals     *string
	onlyDirect       *bool
	tipAccounts      *string
	tipAccountsFile  *string
	pace             *string
	retryPolicy      *string
	retryMax         *string
	anchorMaxAge     *string
	callTimeout      *string
	quoteRateLimit   *string
	redis            *string
	redisChannel     *string
}

// loadEnvFile loads .env into the environment. A missing file is not an error.
func loadEnvFile(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// parseFlags reads the environment, so .env must be loaded before it is called.
func parseFlags() *nodeFlags {
	// Default values
	defaultDebug := os.Getenv("DEBUG") == "1"
	defaultLogProd := os.Getenv("LOG_PROD") == "1"
	defaultLogService := os.Getenv("LOG_SERVICE")
	defaultMetricsPort := cli.GetEnv("METRICS_PORT", "8088")
	defaultRPCEndpoint := cli.GetEnv("RPC_ENDPOINT", "https://api.mainnet-beta.solana.com")
	defaultRelayEndpoint := cli.GetEnv("RELAY_ENDPOINT", "https://mainnet.block-engine.jito.wtf/api/v1/bundles")
	defaultQuoteAPI := cli.GetEnv("QUOTE_API", roundtrip.DefaultJupiterAPI)
	defaultInputMint := cli.GetEnv("INPUT_MINT", roundtrip.WrappedSOLMint)
	defaultOutputMint := os.Getenv("OUTPUT_MINT")
	defaultTradeSize := cli.GetEnv("TRADE_SIZE", "1")
	defaultTipAmount := cli.GetEnv("TIP_AMOUNT", "0.0001")
	defaultSlippageBps := cli.GetEnv("SLIPPAGE_BPS", "50")
	defaultPriorityFee := cli.GetEnv("PRIORITY_FEE_LAMPORTS", "0")
	defaultComputeUnitLimit := cli.GetEnv("COMPUTE_UNIT_LIMIT", strconv.Itoa(roundtrip.DefaultComputeUnitLimit))
	defaultSignatureFee := cli.GetEnv("SIGNATURE_FEE_LAMPORTS", strconv.Itoa(roundtrip.DefaultSignatureFeeLamports))
	defaultBaseDecimals := cli.GetEnv("BASE_DECIMALS", strconv.Itoa(roundtrip.DefaultBaseDecimals))
	defaultOnlyDirectRoutes := os.Getenv("ONLY_DIRECT_ROUTES") == "1"
	defaultTipAccounts := os.Getenv("TIP_ACCOUNTS")
	defaultTipAccountsFile := os.Getenv("TIP_ACCOUNTS_FILE")
	defaultPaceInterval := cli.GetEnv("PACE_INTERVAL", "1s")
	defaultRetryPolicy := cli.GetEnv("RETRY_POLICY", string(roundtrip.RetryConstant))
	defaultRetryMaxInterval := cli.GetEnv("RETRY_MAX_INTERVAL", "30s")
	defaultAnchorMaxAge := cli.GetEnv("ANCHOR_MAX_AGE", "30s")
	defaultCallTimeout := cli.GetEnv("CALL_TIMEOUT", "10s")
	defaultQuoteRateLimit := cli.GetEnv("QUOTE_RATE_LIMIT", "10")
	defaultRedisEndpoint := os.Getenv("REDIS_ENDPOINT")
	defaultRedisChannel := cli.GetEnv("REDIS_CHANNEL", "roundtrip-outcomes")

	f := &nodeFlags{
		debug:            flag.Bool("debug", defaultDebug, "print debug output"),
		logProd:          flag.Bool("log-prod", defaultLogProd, "log in production mode (json)"),
		logService:       flag.String("log-service", defaultLogService, "'service' tag to logs"),
		metricsPort:      flag.String("metrics-port", defaultMetricsPort, "port for metrics, pprof and status"),
		rpc:              flag.String("rpc", defaultRPCEndpoint, "solana rpc endpoint"),
		relay:            flag.String("relay", defaultRelayEndpoint, "bundle relay endpoint"),
		quoteAPI:         flag.String("quote-api", defaultQuoteAPI, "routing venue base url"),
		inputMint:        flag.String("input-mint", defaultInputMint, "round trip base asset (A)"),
		outputMint:       flag.String("output-mint", defaultOutputMint, "round trip intermediate asset (B)"),
		tradeSize:        flag.String("trade-size", defaultTradeSize, "trade size in native units of the base asset"),
		tipAmount:        flag.String("tip-amount", defaultTipAmount, "relay tip in native units"),
		slippageBps:      flag.String("slippage-bps", defaultSlippageBps, "slippage tolerance in basis points (0-10000)"),
		priorityFee:      flag.String("priority-fee", defaultPriorityFee, "priority fee hint in lamports"),
		computeUnitLimit: flag.String("compute-unit-limit", defaultComputeUnitLimit, "compute unit budget per swap"),
		signatureFee:     flag.String("signature-fee", defaultSignatureFee, "assumed fee per signature in lamports"),
		baseDecimals:     flag.String("base-decimals", defaultBaseDecimals, "decimals of the base asset"),
		onlyDirect:       flag.Bool("only-direct-routes", defaultOnlyDirectRoutes, "restrict the venue to direct routes"),
		tipAccounts:      flag.String("tip-accounts", defaultTipAccounts, "tip recipients (comma separated)"),
		tipAccountsFile:  flag.String("tip-accounts-file", defaultTipAccountsFile, "yaml file with tip recipients"),
		pace:             flag.String("pace", defaultPaceInterval, "delay between iterations"),
		retryPolicy:      flag.String("retry-policy", defaultRetryPolicy, "pacing after aborted iterations (constant|exponential)"),
		retryMax:         flag.String("retry-max-interval", defaultRetryMaxInterval, "max delay for the exponential retry policy"),
		anchorMaxAge:     flag.String("anchor-max-age", defaultAnchorMaxAge, "refetch the blockhash after this age (0 = never)"),
		callTimeout:      flag.String("call-timeout", defaultCallTimeout, "timeout for every outbound call (0 = none)"),
		quoteRateLimit:   flag.String("quote-rate-limit", defaultQuoteRateLimit, "routing venue requests per second"),
		redis:            flag.String("redis", defaultRedisEndpoint, "redis url for outcome pub/sub (optional)"),
		redisChannel:     flag.String("redis-channel", defaultRedisChannel, "redis pub/sub channel for outcomes"),
	}
	flag.Parse()
	return f
}

func main() {
	envErr := loadEnvFile()
	f := parseFlags()

	logger, _ := zap.NewDevelopment()
	if *f.logProd {
		atom := zap.NewAtomicLevel()
		if *f.debug {
			atom.SetLevel(zap.DebugLevel)
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
	}
	defer func() { _ = logger.Sync() }()
	if *f.logService != "" {
		logger = logger.With(zap.String("service", *f.logService))
	}

	logger.Info("Starting roundtrip-node", zap.String("version", version))
	if envErr != nil {
		logger.Debug("Failed to load .env", zap.Error(envErr))
	}

	cfg, err := loadConfig(f)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	pipelineCfg, err := cfg.PipelineConfig()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	tipRecipients, err := cfg.TipRecipients()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	signer, err := roundtrip.NewSignerFromBase58(cfg.PrivateKey)
	if err != nil {
		logger.Fatal("Failed to load signer key")
	}
	logger.Info("Loaded signer", zap.String("signer", signer.String()))

	rpcClient := rpc.New(cfg.RPCEndpoint)
	anchors := roundtrip.NewAnchorCache(logger, rpcClient, roundtrip.FreshnessPolicy{MaxAge: cfg.AnchorMaxAge}, cfg.CallTimeout)
	jupiter := roundtrip.NewJupiterClient(cfg.QuoteAPI, signer.PublicKey(), rate.Limit(cfg.QuoteRateLimit), 2)
	incentive, err := roundtrip.NewIncentiveBuilder(signer.PublicKey(), tipRecipients, pipelineCfg.IncentiveAmount, roundtrip.NewRand())
	if err != nil {
		logger.Fatal("Failed to create incentive builder", zap.Error(err))
	}
	relay := roundtrip.NewJSONRPCRelay(cfg.RelayEndpoint)

	pipeline := roundtrip.NewPipeline(logger, pipelineCfg, jupiter, jupiter, anchors, incentive, signer, relay)

	retry, err := roundtrip.NewRetryBackOff(cfg.RetryPolicy, cfg.PaceInterval, cfg.RetryMaxInterval)
	if err != nil {
		logger.Fatal("Invalid retry policy", zap.Error(err))
	}

	var hooks []roundtrip.OutcomeHook
	if *f.redis != "" {
		redisOpts, err := redis.ParseURL(*f.redis)
		if err != nil {
			logger.Fatal("Failed to parse redis url", zap.Error(err))
		}
		publisher := redisadapter.NewOutcomePublisher(logger, redis.NewClient(redisOpts), *f.redisChannel)
		hooks = append(hooks, publisher.Hook())
	}

	runner := roundtrip.NewRunner(logger, pipeline, cfg.PaceInterval, retry, hooks...)

	statusHandler, err := jsonrpcserver.NewHandler(jsonrpcserver.Methods{
		roundtrip.LastOutcomeMethod: runner.LastOutcome,
	})
	if err != nil {
		logger.Fatal("Failed to create status handler", zap.Error(err))
	}

	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	metricsMux.Handle("/status", statusHandler)
	metricsMux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	metricsMux.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	metricsMux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	metricsMux.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	metricsMux.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
	go func() {
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%s", *f.metricsPort),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           metricsMux,
		}

		err := metricsServer.ListenAndServe()
		if err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}()

	ctx, ctxCancel := context.WithCancel(context.Background())
	go func() {
		notifier := make(chan os.Signal, 1)
		signal.Notify(notifier, os.Interrupt, syscall.SIGTERM)
		<-notifier
		logger.Info("Shutting down...")
		ctxCancel()
	}()

	logger.Info("Starting round trip loop",
		zap.String("input_mint", pipelineCfg.InputMint),
		zap.String("output_mint", pipelineCfg.OutputMint),
		zap.Uint64("trade_size", pipelineCfg.TradeSize),
		zap.Uint16("slippage_bps", pipelineCfg.SlippageBps),
		zap.Uint64("tip", pipelineCfg.IncentiveAmount),
		zap.Int("tip_accounts", len(tipRecipients)),
		zap.Duration("pace", cfg.PaceInterval),
		zap.String("relay", relay.String()),
	)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("Round trip loop stopped", zap.Error(err))
	}
}

// loadConfig collects flags into a roundtrip.Config. Parse failures are configuration errors.
func loadConfig(f *nodeFlags) (*roundtrip.Config, error) {
	var problems []string
	parseUint := func(name, value string, bitSize int) uint64 {
		v, err := strconv.ParseUint(value, 10, bitSize)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s", name, err))
		}
		return v
	}
	parseDuration := func(name, value string) time.Duration {
		v, err := time.ParseDuration(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s", name, err))
		}
		return v
	}

	slippage, err := strconv.Atoi(*f.slippageBps)
	if err != nil {
		problems = append(problems, fmt.Sprintf("slippage-bps: %s", err))
	}
	rateLimit, err := strconv.ParseFloat(*f.quoteRateLimit, 64)
	if err != nil {
		problems = append(problems, fmt.Sprintf("quote-rate-limit: %s", err))
	}

	tipAccounts := roundtrip.SplitList(*f.tipAccounts)
	if *f.tipAccountsFile != "" {
		fromFile, err := roundtrip.LoadTipAccounts(*f.tipAccountsFile)
		if err != nil {
			problems = append(problems, fmt.Sprintf("tip-accounts-file: %s", err))
		}
		tipAccounts = append(tipAccounts, fromFile...)
	}
	if len(tipAccounts) == 0 {
		tipAccounts = roundtrip.DefaultTipAccounts
	}

	cfg := &roundtrip.Config{
		RPCEndpoint:          *f.rpc,
		RelayEndpoint:        *f.relay,
		QuoteAPI:             *f.quoteAPI,
		PrivateKey:           os.Getenv("PRIVATE_KEY"),
		InputMint:            *f.inputMint,
		OutputMint:           *f.outputMint,
		TradeSize:            *f.tradeSize,
		TipAmount:            *f.tipAmount,
		SlippageBps:          slippage,
		PriorityFeeLamports:  parseUint("priority-fee", *f.priorityFee, 64),
		ComputeUnitLimit:     uint32(parseUint("compute-unit-limit", *f.computeUnitLimit, 32)),
		SignatureFeeLamports: parseUint("signature-fee", *f.signatureFee, 64),
		BaseDecimals:         int32(parseUint("base-decimals", *f.baseDecimals, 8)),
		OnlyDirectRoutes:     *f.onlyDirect,
		TipAccounts:          tipAccounts,
		PaceInterval:         parseDuration("pace", *f.pace),
		RetryPolicy:          roundtrip.RetryPolicy(*f.retryPolicy),
		RetryMaxInterval:     parseDuration("retry-max-interval", *f.retryMax),
		AnchorMaxAge:         parseDuration("anchor-max-age", *f.anchorMaxAge),
		CallTimeout:          parseDuration("call-timeout", *f.callTimeout),
		QuoteRateLimit:       rateLimit,
	}
	if len(problems) > 0 {
		return nil, &roundtrip.ConfigurationError{Problems: problems}
	}
	return cfg, nil
}
