package types

type EventKind string

const (
	EventReceiptIssued       EventKind = "ReceiptIssued"
	EventReceiptRevoked      EventKind = "ReceiptRevoked"
	EventReceiptPurged       EventKind = "ReceiptPurged"
	EventOwnershipClaimed    EventKind = "OwnershipClaimed"
	EventCheckpointCommitted EventKind = "CheckpointCommitted"
)

// Event is the envelope pushed to every sink. Exactly one of the payload
// pointers is set, matching Kind.
type Event struct {
	ID      string    `json:"event_id"`
	Kind    EventKind `json:"kind"`
	TimeUTC int64     `json:"time"`

	Issued     *ReceiptIssued       `json:"issued,omitempty"`
	Revoked    *ReceiptRevoked      `json:"revoked,omitempty"`
	Purged     *ReceiptPurged       `json:"purged,omitempty"`
	Claimed    *OwnershipClaimed    `json:"claimed,omitempty"`
	Checkpoint *CheckpointCommitted `json:"checkpoint,omitempty"`
}

type ReceiptIssued struct {
	ID     uint64   `json:"id"`
	Issuer Identity `json:"issuer"`
	Payer  Identity `json:"payer"`
	Payee  Identity `json:"payee"`
	Amount uint64   `json:"amount"`
}

type ReceiptRevoked struct {
	ID        uint64   `json:"id"`
	RevokedBy Identity `json:"revoked_by"`
}

type ReceiptPurged struct {
	ID       uint64   `json:"id"`
	PurgedBy Identity `json:"purged_by"`
}

type OwnershipClaimed struct {
	NewOwner Identity `json:"new_owner"`
}

type CheckpointCommitted struct {
	Round uint64 `json:"round"`
	Root  string `json:"root"`
}
