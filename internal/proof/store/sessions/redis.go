package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"attest/internal/proof/domain/session"
	"attest/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "attest:session:"
	expiryIndexKey   = "attest:session-expiry"

	// expiryGrace keeps records around past their expiry so the sweeper can
	// still report the outcome.
	expiryGrace  = 10 * time.Minute
	maxTxRetries = 5
)

// Redis stores sessions as JSON with optimistic WATCH transactions and a
// sorted-set expiry index.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func key(id string) string { return sessionKeyPrefix + id }

func (r *Redis) Create(ctx context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt) + expiryGrace
	ok, err := r.client.SetNX(ctx, key(sess.ID), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	score := float64(sess.ExpiresAt.UnixMilli())
	if err := r.client.ZAdd(ctx, expiryIndexKey, redis.Z{Score: score, Member: sess.ID}).Err(); err != nil {
		return fmt.Errorf("index session expiry: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*session.Session, error) {
	raw, err := r.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decode(raw)
}

// Update runs fn inside a WATCH transaction, retrying when another writer
// got there first. It gives up with sentinel.ErrConflict.
func (r *Redis) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	k := key(id)
	var out *session.Session
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		sess, err := decode(raw)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		updated, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetArgs(ctx, k, updated, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		out = sess
		return nil
	}

	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, sentinel.ErrConflict
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key(id))
		p.ZRem(ctx, expiryIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Expired lists sessions whose expiry is not after now, oldest first.
func (r *Redis) Expired(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan session expiry: %w", err)
	}
	return ids, nil
}
