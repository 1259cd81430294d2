package types

// Checkpoint is a signed merkle root over the receipts issued between
// two consecutive commits.
type Checkpoint struct {
	Round        uint64 `json:"round"          cbor:"round"`
	FromID       uint64 `json:"from_id"        cbor:"from_id"`
	ToID         uint64 `json:"to_id"          cbor:"to_id"`
	LeafCount    uint64 `json:"leaf_count"     cbor:"leaf_count"`
	Root         string `json:"root"           cbor:"root"` // hex
	TimeUTC      int64  `json:"time_utc"       cbor:"time_utc"`
	SignatureHex string `json:"signature_hex,omitempty" cbor:"signature_hex,omitempty"`
}

// Leaf is one entry of the issuance log: the receipt id and the digest of
// its fields as issued.
type Leaf struct {
	ID     uint64 `json:"id"     cbor:"id"`
	Digest []byte `json:"digest" cbor:"digest"`
}
