package state

import "errors"

// Domain failures. All are detected before any mutation.
const (
	ErrAlreadyClaimed = errStr("already_claimed")
	ErrInvalidParty   = errStr("invalid_party")
	ErrNotFound       = errStr("not_found")
	ErrAlreadyRevoked = errStr("already_revoked")
	ErrNotAuthorized  = errStr("not_authorized")
)

type errStr string

func (e errStr) Error() string { return string(e) }

// Code returns the wire code of a domain error, or "" for anything else.
func Code(err error) string {
	var e errStr
	if errors.As(err, &e) {
		return string(e)
	}
	return ""
}
