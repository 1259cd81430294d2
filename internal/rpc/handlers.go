package rpc

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"receiptd/internal/buildinfo"
	"receiptd/internal/codec"
	"receiptd/internal/state"
	"receiptd/internal/tx"
	"receiptd/internal/types"
)

type issueResponse struct {
	ID uint64 `json:"id"`
}

type verifyResponse struct {
	ID    uint64 `json:"id"`
	Valid bool   `json:"valid"`
}

type listResponse struct {
	Who types.Identity `json:"who"`
	IDs []uint64       `json:"ids"`
}

type ownerResponse struct {
	Owner   types.Identity `json:"owner"`
	Claimed bool           `json:"claimed"`
}

// receiptID parses the {id} path segment. A segment that cannot name a
// receipt becomes 0, which the service reports as not found.
func receiptID(r *http.Request) uint64 {
	id, _ := tx.ParseID(chi.URLParam(r, "id"))
	return id
}

func (s *server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeMalformedBody, "request body is unreadable")
			return false
		}
		body = b
	}
	if err := codec.Decode(r.Header.Get("Content-Type"), body, out); err != nil {
		writeError(w, http.StatusBadRequest, codeMalformedBody, "request body is not valid JSON or CBOR")
		return false
	}
	return true
}

func (s *server) claimOwnership(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if err := s.eng.ClaimOwnership(r.Context(), caller); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerResponse{Owner: caller, Claimed: true})
}

func (s *server) getOwner(w http.ResponseWriter, r *http.Request) {
	owner, claimed, err := s.eng.Owner(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerResponse{Owner: owner, Claimed: claimed})
}

func (s *server) issueReceipt(w http.ResponseWriter, r *http.Request) {
	var in tx.Issue
	if !s.decodeBody(w, r, &in) {
		return
	}
	id, err := s.eng.IssueReceipt(r.Context(), callerFrom(r.Context()), in.Payer, in.Payee, in.Amount, in.Details)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/receipts/"+tx.FormatID(id))
	writeJSON(w, http.StatusCreated, issueResponse{ID: id})
}

func (s *server) getReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.eng.GetReceipt(r.Context(), receiptID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) revokeReceipt(w http.ResponseWriter, r *http.Request) {
	id := receiptID(r)
	if err := s.eng.RevokeReceipt(r.Context(), callerFrom(r.Context()), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "revoked": true})
}

func (s *server) purgeReceipt(w http.ResponseWriter, r *http.Request) {
	id := receiptID(r)
	if err := s.eng.PurgeReceipt(r.Context(), callerFrom(r.Context()), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "purged": true})
}

func (s *server) verifyReceipt(w http.ResponseWriter, r *http.Request) {
	id := receiptID(r)
	var in tx.Verify
	if !s.decodeBody(w, r, &in) {
		return
	}
	valid, err := s.eng.VerifyReceipt(r.Context(), id, in.Payer, in.Payee, in.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{ID: id, Valid: valid})
}

func (s *server) listIssued(w http.ResponseWriter, r *http.Request) {
	who := types.Identity(chi.URLParam(r, "who"))
	ids, err := s.eng.ReceiptsIssuedBy(r.Context(), who)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Who: who, IDs: ids})
}

func (s *server) listReceived(w http.ResponseWriter, r *http.Request) {
	who := types.Identity(chi.URLParam(r, "who"))
	ids, err := s.eng.ReceiptsReceivedBy(r.Context(), who)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Who: who, IDs: ids})
}

func (s *server) commitCheckpoint(w http.ResponseWriter, r *http.Request) {
	c, err := s.eng.CommitCheckpoint(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *server) latestCheckpoint(w http.ResponseWriter, r *http.Request) {
	c, ok := s.eng.LatestCheckpoint()
	if !ok {
		writeError(w, http.StatusNotFound, state.Code(state.ErrNotFound), "no checkpoint committed yet")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "n"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, state.Code(state.ErrNotFound), "no such checkpoint")
		return
	}
	c, ok := s.eng.Checkpoint(n)
	if !ok {
		writeError(w, http.StatusNotFound, state.Code(state.ErrNotFound), "no such checkpoint")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) inclusionProof(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "n"), 10, 64)
	if err != nil {
		s.writeDomainError(w, r, state.ErrNotFound)
		return
	}
	p, err := s.eng.InclusionProof(n, receiptID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"time_utc": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) nodeInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"algo":       "ed25519",
		"pubkey_hex": s.eng.PubKeyHex(),
		"version":    buildinfo.Version,
		"commit":     buildinfo.Commit,
		"go":         buildinfo.Go,
	})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":     st,
		"uptime_sec": int64(time.Since(s.started).Seconds()),
	})
}
