package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"receiptd/internal/app"
	"receiptd/internal/state"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeMissingCaller     = "missing_caller"
	codeMalformedBody     = "malformed_body"
	codeSignatureRequired = "signature_required"
	codeBadSignature      = "bad_signature"
	codePubKeyMismatch    = "pubkey_mismatch"
	codeNonceRequired     = "nonce_required"
	codeStaleNonce        = "stale_nonce"
	codeReplayedNonce     = "replayed_nonce"
	codeNoPending         = "no_pending"
	codeInternal          = "internal"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	metricErrors.Add(1)
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// writeDomainError maps a service error to its status and code. Anything
// unrecognized is an infrastructure failure and its text is not exposed.
func (s *server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, state.ErrInvalidParty):
		writeError(w, http.StatusBadRequest, state.Code(err), "payer and payee must be set")
	case errors.Is(err, state.ErrNotFound):
		writeError(w, http.StatusNotFound, state.Code(err), "no such receipt")
	case errors.Is(err, state.ErrAlreadyRevoked):
		writeError(w, http.StatusConflict, state.Code(err), "receipt is already revoked")
	case errors.Is(err, state.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, state.Code(err), "ownership has already been claimed")
	case errors.Is(err, state.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, state.Code(err), "caller is not allowed to do this")
	case errors.Is(err, app.ErrNoPending):
		writeError(w, http.StatusConflict, codeNoPending, "nothing issued since the last checkpoint")
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
