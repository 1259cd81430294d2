package tx

import "github.com/zeebo/blake3"

// leafContext separates leaf digests from every other blake3 use, so a
// leaf can never collide with a body digest of the same bytes.
const leafContext = "receiptd 2026 receipt leaf v1"

func leafHash(canon []byte) []byte {
	h := blake3.NewDeriveKey(leafContext)
	_, _ = h.Write(canon)
	return h.Sum(nil)
}

// bodyHash is plain blake3-256 so clients can reproduce it with any
// blake3 implementation.
func bodyHash(body []byte) []byte {
	sum := blake3.Sum256(body)
	return sum[:]
}
