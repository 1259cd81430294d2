package tx

import (
	"encoding/hex"
	"strconv"

	"receiptd/internal/codec"
	"receiptd/internal/types"
)

// Issue is the body of an issue request. The issuer is never part of the
// body; it is the authenticated caller.
type Issue struct {
	Payer   types.Identity `json:"payer"   cbor:"payer"`
	Payee   types.Identity `json:"payee"   cbor:"payee"`
	Amount  uint64         `json:"amount"  cbor:"amount"`
	Details string         `json:"details" cbor:"details"`
}

// Verify is the body of a verify request.
type Verify struct {
	Payer  types.Identity `json:"payer"  cbor:"payer"`
	Payee  types.Identity `json:"payee"  cbor:"payee"`
	Amount uint64         `json:"amount" cbor:"amount"`
}

// LeafDigest hashes the issuance-time fields of a receipt. The revoked flag
// is excluded so the digest never changes after issuance.
func LeafDigest(r types.Receipt) []byte {
	type canon struct {
		ID        uint64 `cbor:"id"`
		Issuer    string `cbor:"issuer"`
		Payer     string `cbor:"payer"`
		Payee     string `cbor:"payee"`
		Amount    uint64 `cbor:"amount"`
		Details   string `cbor:"details"`
		Timestamp int64  `cbor:"timestamp"`
	}
	b, err := codec.MarshalCBOR(canon{
		ID: r.ID, Issuer: string(r.Issuer), Payer: string(r.Payer), Payee: string(r.Payee),
		Amount: r.Amount, Details: r.Details, Timestamp: r.Timestamp,
	})
	if err != nil {
		// only reachable on an encoder bug: every field is a plain scalar
		panic("tx: leaf encoding: " + err.Error())
	}
	return leafHash(b)
}

// BodyDigest is the hex blake3 digest of a raw request body.
func BodyDigest(body []byte) string {
	return hex.EncodeToString(bodyHash(body))
}

// SigningMessage is what a caller signs to bind a request to its key:
// "METHOD path\nnonce\n" followed by the hex body digest. The nonce is the
// X-Nonce header value, the signer's clock in unix milliseconds.
func SigningMessage(method, path, nonce string, body []byte) []byte {
	msg := make([]byte, 0, len(method)+len(path)+len(nonce)+3+64)
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	msg = append(msg, nonce...)
	msg = append(msg, '\n')
	msg = append(msg, BodyDigest(body)...)
	return msg
}

// ParseNonce parses an X-Nonce value.
func ParseNonce(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func FormatID(id uint64) string { return strconv.FormatUint(id, 10) }

// ParseID parses a receipt id. Zero is never a valid id.
func ParseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
