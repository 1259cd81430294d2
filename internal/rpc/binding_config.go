package rpc

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"receiptd/internal/config"
	mycrypto "receiptd/internal/crypto"
	"receiptd/internal/types"
)

const pubKeyEnvPrefix = "RECEIPTD_PUBKEY_"

// keyBinding maps callers to the ed25519 key that must sign their
// mutating requests. Config entries win over the environment; the
// environment is read per request so keys can be added without a restart.
type keyBinding struct {
	require bool
	keys    map[types.Identity]ed25519.PublicKey
}

func newKeyBinding(cfg config.BindingConfig) (*keyBinding, error) {
	b := &keyBinding{
		require: cfg.RequireSignature,
		keys:    make(map[types.Identity]ed25519.PublicKey, len(cfg.PubKeyByCaller)),
	}
	for caller, b64 := range cfg.PubKeyByCaller {
		b64 = strings.TrimSpace(b64)
		if caller == "" || b64 == "" {
			continue
		}
		pub, err := mycrypto.DecodePublicKey(b64)
		if err != nil {
			return nil, fmt.Errorf("binding key for %q: %w", caller, err)
		}
		b.keys[types.Identity(caller)] = pub
	}
	return b, nil
}

// lookup returns the bound key for caller. A malformed environment value
// is an error rather than "unbound" so a typo never disables the check.
func (b *keyBinding) lookup(caller types.Identity) (ed25519.PublicKey, bool, error) {
	if caller.IsNull() {
		return nil, false, nil
	}
	if pub, ok := b.keys[caller]; ok {
		return pub, true, nil
	}
	v, ok := os.LookupEnv(pubKeyEnvPrefix + string(caller))
	if !ok || strings.TrimSpace(v) == "" {
		return nil, false, nil
	}
	pub, err := mycrypto.DecodePublicKey(strings.TrimSpace(v))
	if err != nil {
		return nil, false, fmt.Errorf("%s%s: %w", pubKeyEnvPrefix, caller, err)
	}
	return pub, true, nil
}
