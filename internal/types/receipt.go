package types

// Identity is an opaque caller identity. The empty value is the null
// identity and never matches a real caller.
type Identity string

func (id Identity) IsNull() bool { return id == "" }

type Receipt struct {
	ID        uint64   `json:"id"        cbor:"id"`
	Issuer    Identity `json:"issuer"    cbor:"issuer"`
	Payer     Identity `json:"payer"     cbor:"payer"`
	Payee     Identity `json:"payee"     cbor:"payee"`
	Amount    uint64   `json:"amount"    cbor:"amount"`
	Details   string   `json:"details"   cbor:"details"`
	Timestamp int64    `json:"timestamp" cbor:"timestamp"` // unix seconds, set once at issuance
	Revoked   bool     `json:"revoked"   cbor:"revoked"`
}

// Matches reports whether the receipt is live and payer, payee and amount
// are exactly equal to the stored values.
func (r Receipt) Matches(payer, payee Identity, amount uint64) bool {
	if r.Revoked {
		return false
	}
	return r.Payer == payer && r.Payee == payee && r.Amount == amount
}
