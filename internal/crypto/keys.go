package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrBadKeyEncoding = errors.New("bad_key_encoding")

type NodeKey struct {
	Algo string `json:"algo"`     // "ed25519"
	Priv string `json:"priv_hex"` // 64 bytes, hex
	Pub  string `json:"pub_hex"`  // 32 bytes, hex
}

// LoadOrCreate reads the node key at path. A missing or corrupt file is
// replaced with a freshly generated key.
func LoadOrCreate(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if b, err := os.ReadFile(path); err == nil {
		var nk NodeKey
		if json.Unmarshal(b, &nk) == nil && nk.Algo == "ed25519" {
			priv, err1 := hex.DecodeString(nk.Priv)
			pub, err2 := hex.DecodeString(nk.Pub)
			if err1 == nil && err2 == nil && len(priv) == ed25519.PrivateKeySize && len(pub) == ed25519.PublicKeySize {
				return ed25519.PrivateKey(priv), ed25519.PublicKey(pub), nil
			}
		}
		_ = os.Remove(path)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate node key: %w", err)
	}
	nk := NodeKey{
		Algo: "ed25519",
		Priv: hex.EncodeToString(priv),
		Pub:  hex.EncodeToString(pub),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create key dir: %w", err)
	}
	b, err := json.MarshalIndent(nk, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, nil, fmt.Errorf("write node key: %w", err)
	}
	return priv, pub, nil
}

// DecodePublicKey accepts a base64 ed25519 public key.
func DecodePublicKey(b64 string) (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, ErrBadKeyEncoding
	}
	return ed25519.PublicKey(b), nil
}

// VerifyB64 checks a base64 signature over msg.
func VerifyB64(pub ed25519.PublicKey, msg []byte, sigB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
