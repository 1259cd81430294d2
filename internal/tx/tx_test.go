package tx

import (
	"bytes"
	"strings"
	"testing"

	"receiptd/internal/types"
)

func TestLeafDigestIgnoresRevocation(t *testing.T) {
	r := types.Receipt{ID: 1, Issuer: "a", Payer: "a", Payee: "b", Amount: 100, Details: "inv-1", Timestamp: 1700000000}
	before := LeafDigest(r)
	r.Revoked = true
	if !bytes.Equal(before, LeafDigest(r)) {
		t.Fatal("digest changed after revocation")
	}
	if len(before) != 32 {
		t.Fatalf("digest len=%d", len(before))
	}
}

func TestLeafDigestCoversFields(t *testing.T) {
	r := types.Receipt{ID: 1, Issuer: "a", Payer: "a", Payee: "b", Amount: 100}
	d := LeafDigest(r)
	r.Amount = 99
	if bytes.Equal(d, LeafDigest(r)) {
		t.Fatal("amount not covered by digest")
	}
}

func TestSigningMessage(t *testing.T) {
	msg := string(SigningMessage("POST", "/v1/receipts", "1767323045000", []byte(`{}`)))
	const prefix = "POST /v1/receipts\n1767323045000\n"
	if !strings.HasPrefix(msg, prefix) {
		t.Fatalf("unexpected prefix: %q", msg)
	}
	if len(msg) != len(prefix)+64 {
		t.Fatalf("unexpected length %d", len(msg))
	}
	if bytes.Equal([]byte(msg), SigningMessage("POST", "/v1/receipts", "1767323045001", []byte(`{}`))) {
		t.Fatal("nonce not covered by the signing message")
	}
}

func TestParseNonce(t *testing.T) {
	cases := map[string]bool{"1767323045000": true, "1": true, "0": false, "-5": false, "soon": false, "": false}
	for in, ok := range cases {
		if _, got := ParseNonce(in); got != ok {
			t.Fatalf("ParseNonce(%q) ok=%v want %v", in, got, ok)
		}
	}
}

func TestParseID(t *testing.T) {
	cases := map[string]bool{"1": true, "42": true, "0": false, "-1": false, "x": false, "": false}
	for in, ok := range cases {
		if _, got := ParseID(in); got != ok {
			t.Errorf("ParseID(%q) ok=%v want %v", in, got, ok)
		}
	}
}

func TestBodyDigestIsPlainBlake3(t *testing.T) {
	// blake3("") from the reference test vectors
	const empty = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if got := BodyDigest(nil); got != empty {
		t.Fatalf("BodyDigest(empty)=%s", got)
	}
}
