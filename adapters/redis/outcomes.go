// Package redis provides an adapter to redis client
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/roundtrip-labs/roundtrip-node/roundtrip"
	"go.uber.org/zap"
)

var publishTimeout = time.Second

// OutcomePublisher fans iteration outcomes out on a pub/sub channel for dashboards and alerting.
// Nothing is stored.
type OutcomePublisher struct {
	log        *zap.Logger
	client     *redis.Client
	pubChannel string
}

func NewOutcomePublisher(log *zap.Logger, client *redis.Client, pubChannel string) *OutcomePublisher {
	return &OutcomePublisher{
		log:        log.Named("outcomes"),
		client:     client,
		pubChannel: pubChannel,
	}
}

func (p *OutcomePublisher) Publish(ctx context.Context, outcome roundtrip.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.pubChannel, data).Err()
}

// Hook adapts Publish to a runner hook. Publishing is best effort and never blocks the loop for long.
func (p *OutcomePublisher) Hook() roundtrip.OutcomeHook {
	return func(ctx context.Context, outcome roundtrip.Outcome) {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, outcome); err != nil {
			p.log.Warn("Failed to publish outcome", zap.Error(err), zap.Uint64("iteration", outcome.Iteration))
		}
	}
}
