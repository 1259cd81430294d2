package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"receiptd/internal/types"
)

// NonceStore keeps the signed-request seen-set in Redis so every receiptd
// process sharing the ledger rejects the same replays. Entries expire with
// their TTL.
type NonceStore struct {
	client *goredis.Client
	prefix string
}

func NewNonceStore(client *goredis.Client, prefix string) *NonceStore {
	if prefix == "" {
		prefix = "receiptd"
	}
	return &NonceStore{client: client, prefix: prefix}
}

func (s *NonceStore) Remember(ctx context.Context, caller types.Identity, nonce string, ttl time.Duration) (bool, error) {
	key := s.prefix + ":nonce:" + string(caller) + ":" + nonce
	ok, err := s.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("remember nonce: %w", err)
	}
	return ok, nil
}
