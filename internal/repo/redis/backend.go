// Package redis stores receipts in Redis so several receiptd processes can
// share one ledger.
package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"receiptd/internal/state"
	"receiptd/internal/types"
)

// insertReceipt allocates the id, writes the record and both listings in
// one script. Every check runs before the first write so a failing insert
// leaves no trace. Lua errors do not roll back.
var insertReceipt = goredis.NewScript(`
local function isList(key)
	return type(redis.pcall("LLEN", key)) == "number"
end
if not isList(KEYS[2]) or not isList(KEYS[3]) then
	return redis.error_reply("WRONGTYPE receipt listing is not a list")
end
local id = redis.call("INCR", KEYS[1])
local key = ARGV[1] .. id
if redis.call("EXISTS", key) == 1 then
	redis.call("DECR", KEYS[1])
	return redis.error_reply("receipt key " .. key .. " already exists")
end
redis.call("HSET", key,
	"issuer", ARGV[2], "payer", ARGV[3], "payee", ARGV[4],
	"amount", ARGV[5], "details", ARGV[6], "timestamp", ARGV[7],
	"revoked", "0")
redis.call("RPUSH", KEYS[2], id)
redis.call("RPUSH", KEYS[3], id)
return id
`)

// markRevoked returns 0 for a missing record, -1 when it is already
// revoked and 1 when it set the flag.
var markRevoked = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
	return -1
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`)

type Backend struct {
	client *goredis.Client
	prefix string
}

var _ state.Backend = (*Backend)(nil)

func NewBackend(client *goredis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = "receiptd"
	}
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) counterKey() string { return b.prefix + ":next_id" }
func (b *Backend) ownerKey() string   { return b.prefix + ":owner" }

func (b *Backend) receiptKey(id uint64) string {
	return b.prefix + ":receipt:" + strconv.FormatUint(id, 10)
}

func (b *Backend) indexKey(kind state.IndexKind, who types.Identity) string {
	return b.prefix + ":idx:" + kind.String() + ":" + string(who)
}

func (b *Backend) Insert(ctx context.Context, r types.Receipt) (uint64, error) {
	keys := []string{
		b.counterKey(),
		b.indexKey(state.IndexIssuer, r.Issuer),
		b.indexKey(state.IndexPayee, r.Payee),
	}
	id, err := insertReceipt.Run(ctx, b.client, keys,
		b.prefix+":receipt:",
		string(r.Issuer),
		string(r.Payer),
		string(r.Payee),
		strconv.FormatUint(r.Amount, 10),
		r.Details,
		strconv.FormatInt(r.Timestamp, 10),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("insert receipt: %w", err)
	}
	return uint64(id), nil
}

func (b *Backend) Get(ctx context.Context, id uint64) (types.Receipt, bool, error) {
	fields, err := b.client.HGetAll(ctx, b.receiptKey(id)).Result()
	if err != nil {
		return types.Receipt{}, false, fmt.Errorf("load receipt %d: %w", id, err)
	}
	if len(fields) == 0 {
		return types.Receipt{}, false, nil
	}
	amount, err := strconv.ParseUint(fields["amount"], 10, 64)
	if err != nil {
		return types.Receipt{}, false, fmt.Errorf("receipt %d amount: %w", id, err)
	}
	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return types.Receipt{}, false, fmt.Errorf("receipt %d timestamp: %w", id, err)
	}
	return types.Receipt{
		ID:        id,
		Issuer:    types.Identity(fields["issuer"]),
		Payer:     types.Identity(fields["payer"]),
		Payee:     types.Identity(fields["payee"]),
		Amount:    amount,
		Details:   fields["details"],
		Timestamp: ts,
		Revoked:   fields["revoked"] == "1",
	}, true, nil
}

func (b *Backend) SetRevoked(ctx context.Context, id uint64) error {
	n, err := markRevoked.Run(ctx, b.client, []string{b.receiptKey(id)}).Int()
	if err != nil {
		return fmt.Errorf("revoke receipt %d: %w", id, err)
	}
	switch n {
	case 0:
		return state.ErrNotFound
	case -1:
		return state.ErrAlreadyRevoked
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, id uint64) error {
	if err := b.client.Del(ctx, b.receiptKey(id)).Err(); err != nil {
		return fmt.Errorf("delete receipt %d: %w", id, err)
	}
	return nil
}

func (b *Backend) ListIndex(ctx context.Context, kind state.IndexKind, who types.Identity) ([]uint64, error) {
	raw, err := b.client.LRange(ctx, b.indexKey(kind, who), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s index: %w", kind, err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s index entry %q: %w", kind, s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Backend) Owner(ctx context.Context) (types.Identity, error) {
	who, err := b.client.Get(ctx, b.ownerKey()).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load owner: %w", err)
	}
	return types.Identity(who), nil
}

func (b *Backend) SetOwnerOnce(ctx context.Context, who types.Identity) (bool, error) {
	ok, err := b.client.SetNX(ctx, b.ownerKey(), string(who), 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim owner: %w", err)
	}
	return ok, nil
}

// Close leaves the client open; its lifetime belongs to the caller.
func (b *Backend) Close() error { return nil }
