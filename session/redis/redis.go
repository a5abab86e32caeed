// Package redis provides a session.Store backed by Redis lists. History for
// one conversation lives under a single key, trimmed to a configurable cap
// and expired after a configurable TTL. Individual commands are retried with
// exponential backoff on transient network failures so a flaky connection
// does not surface as lost history.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/session"
)

const keyPrefix = "convomesh:history:"

// Options configure the Redis history store.
type Options struct {
	// TTL expires a conversation's history after inactivity. Zero disables expiry.
	TTL time.Duration
	// MaxMessages caps the stored history per conversation. Zero means uncapped.
	MaxMessages int64
	// MaxRetryElapsed bounds the per-command retry window.
	MaxRetryElapsed time.Duration
}

// Store is a session.Store backed by a Redis list per conversation key.
type Store struct {
	client redis.UniversalClient
	opts   Options
}

// New creates a Store around an existing Redis client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		TTL:             30 * 24 * time.Hour,
		MaxMessages:     200,
		MaxRetryElapsed: 5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

// Append implements session.Store.
func (s *Store) Append(ctx context.Context, key core.ConversationKey, msg session.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	redisKey := keyPrefix + key.String()
	return s.retry(ctx, func() error {
		pipe := s.client.TxPipeline()
		pipe.RPush(ctx, redisKey, data)
		if s.opts.MaxMessages > 0 {
			pipe.LTrim(ctx, redisKey, -s.opts.MaxMessages, -1)
		}
		if s.opts.TTL > 0 {
			pipe.Expire(ctx, redisKey, s.opts.TTL)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// History implements session.Store.
func (s *Store) History(ctx context.Context, key core.ConversationKey, limit int) ([]session.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	var raw []string
	err := s.retry(ctx, func() error {
		var err error
		raw, err = s.client.LRange(ctx, keyPrefix+key.String(), start, -1).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]session.Message, 0, len(raw))
	for _, item := range raw {
		var msg session.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear implements session.Store.
func (s *Store) Clear(ctx context.Context, key core.ConversationKey) error {
	return s.retry(ctx, func() error {
		return s.client.Del(ctx, keyPrefix+key.String()).Err()
	})
}

// retry runs op with exponential backoff until it succeeds, the retry window
// closes or the context is cancelled.
func (s *Store) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = s.opts.MaxRetryElapsed
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

var _ session.Store = (*Store)(nil)
