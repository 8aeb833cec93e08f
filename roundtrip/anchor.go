package roundtrip

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	gocache "github.com/patrickmn/go-cache"
	"github.com/roundtrip-labs/roundtrip-node/metrics"
	"github.com/roundtrip-labs/roundtrip-node/spike"
	"go.uber.org/zap"
)

const anchorKey = "blockhash"

var errNoBlockhash = errors.New("rpc returned no blockhash")

type AnchorProvider interface {
	Anchor(ctx context.Context) (Anchor, error)
}

// BlockhashSource is the part of the Solana RPC client the cache needs. *rpc.Client implements it.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// FreshnessPolicy decides when a cached anchor must be refetched.
// MaxAge zero keeps the first anchor for the whole process lifetime.
type FreshnessPolicy struct {
	MaxAge time.Duration
}

func (p FreshnessPolicy) Fresh(anchor Anchor, now time.Time) bool {
	if p.MaxAge <= 0 {
		return true
	}
	return now.Sub(anchor.AcquiredAt) < p.MaxAge
}

// AnchorCache holds one recent blockhash, fetched lazily and shared by every caller.
// Concurrent misses share a single RPC call. The stored entry expires after MaxAge;
// the freshness policy is checked again against the cache clock on every read.
type AnchorCache struct {
	log        *zap.Logger
	source     BlockhashSource
	commitment rpc.CommitmentType
	policy     FreshnessPolicy
	now        func() time.Time

	manager *spike.Manager[Anchor]
}

func NewAnchorCache(log *zap.Logger, source BlockhashSource, policy FreshnessPolicy, fetchTimeout time.Duration) *AnchorCache {
	c := &AnchorCache{
		log:        log.Named("anchor"),
		source:     source,
		commitment: rpc.CommitmentFinalized,
		policy:     policy,
		now:        time.Now,
	}
	expiration := policy.MaxAge
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	c.manager = spike.NewCacheManager(c.fetch, spike.CacheOptions[Anchor]{
		Expiration: expiration,
		Valid:      c.fresh,
		Timeout:    fetchTimeout,
	})
	return c
}

func (c *AnchorCache) Anchor(ctx context.Context) (Anchor, error) {
	return c.manager.GetResult(ctx, anchorKey)
}

func (c *AnchorCache) fresh(anchor Anchor) bool {
	return c.policy.Fresh(anchor, c.now())
}

func (c *AnchorCache) fetch(ctx context.Context, _ string) (Anchor, error) {
	res, err := c.source.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return Anchor{}, err
	}
	if res == nil || res.Value == nil {
		return Anchor{}, errNoBlockhash
	}
	metrics.IncAnchorRefresh()
	anchor := Anchor{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		AcquiredAt:           c.now(),
	}
	c.log.Debug("Fetched blockhash",
		zap.String("blockhash", anchor.Blockhash.String()),
		zap.Uint64("last_valid_block_height", anchor.LastValidBlockHeight),
	)
	return anchor, nil
}
