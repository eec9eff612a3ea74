package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
)

// SessionBackend keeps sessions in Redis with the idle timeout as key TTL.
type SessionBackend struct {
	client goredis.UniversalClient
	prefix string
}

func NewSessionBackend(client goredis.UniversalClient, prefix string) *SessionBackend {
	return &SessionBackend{client: client, prefix: prefix}
}

func (b *SessionBackend) key(token string) string {
	return b.prefix + token
}

func (b *SessionBackend) Save(ctx context.Context, token string, s *auth.Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := b.client.Set(ctx, b.key(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *SessionBackend) Get(ctx context.Context, token string) (*auth.Session, error) {
	return b.get(ctx, b.client, token)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (b *SessionBackend) get(ctx context.Context, c getter, token string) (*auth.Session, error) {
	raw, err := c.Get(ctx, b.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var s auth.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// a record we cannot read is as good as absent
		return nil, auth.ErrSessionNotFound
	}
	return &s, nil
}

func (b *SessionBackend) Refresh(ctx context.Context, s *auth.Session, ttl time.Duration) (*auth.Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b.swap(ctx, s.Token, func(p goredis.Pipeliner) {
		p.Set(ctx, b.key(s.Token), raw, ttl)
	}, s)
}

func (b *SessionBackend) Rotate(ctx context.Context, oldToken string, next *auth.Session, ttl time.Duration, forward *auth.Session, forwardTTL time.Duration) (*auth.Session, error) {
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	forwardRaw, err := json.Marshal(forward)
	if err != nil {
		return nil, fmt.Errorf("encode forward record: %w", err)
	}
	return b.swap(ctx, oldToken, func(p goredis.Pipeliner) {
		p.Set(ctx, b.key(next.Token), nextRaw, ttl)
		p.Set(ctx, b.key(oldToken), forwardRaw, forwardTTL)
	}, next)
}

// swapAttempts bounds WATCH retries when the key keeps changing under us.
const swapAttempts = 3

// swap runs writes in a MULTI guarded by WATCH on token, but only while token
// still holds the live session. Otherwise it returns whatever now holds the
// state.
func (b *SessionBackend) swap(ctx context.Context, token string, writes func(goredis.Pipeliner), written *auth.Session) (*auth.Session, error) {
	var result *auth.Session
	txf := func(tx *goredis.Tx) error {
		current, err := b.get(ctx, tx, token)
		if err != nil {
			return err
		}
		if current.IsForward() {
			result, err = b.get(ctx, tx, current.ForwardTo)
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			writes(p)
			return nil
		}); err != nil {
			return err
		}
		out := *written
		result = &out
		return nil
	}

	for i := 0; i < swapAttempts; i++ {
		err := b.client.Watch(ctx, txf, b.key(token))
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("redis swap: %w", err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("redis swap: %w", goredis.TxFailedErr)
}

func (b *SessionBackend) Delete(ctx context.Context, token string) error {
	if err := b.client.Del(ctx, b.key(token)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
