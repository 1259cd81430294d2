package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "node_key.json")
	priv1, pub1, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	priv2, pub2, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(priv1, priv2) || !bytes.Equal(pub1, pub2) {
		t.Fatal("key changed between loads")
	}
}

func TestLoadOrCreateReplacesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_key.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, pub, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		t.Fatalf("pub len=%d", len(pub))
	}
}

func TestVerifyB64(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	msg := []byte("POST /v1/receipts\nabc")
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, msg))

	got, err := DecodePublicKey(base64.StdEncoding.EncodeToString(pub))
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	if !VerifyB64(got, msg, sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifyB64(got, []byte("other"), sig) {
		t.Fatal("signature over other message accepted")
	}
	if VerifyB64(got, msg, "!!") {
		t.Fatal("garbage signature accepted")
	}
	if _, err := DecodePublicKey("AAAA"); err != ErrBadKeyEncoding {
		t.Fatalf("short key: %v", err)
	}
}
