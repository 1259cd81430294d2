package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	mycrypto "receiptd/internal/crypto"
	"receiptd/internal/tx"
	"receiptd/internal/types"
)

type ctxKey int

const callerKey ctxKey = iota

// withCaller stores the X-Caller header in the request context.
func withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := types.Identity(strings.TrimSpace(r.Header.Get("X-Caller")))
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) types.Identity {
	c, _ := ctx.Value(callerKey).(types.Identity)
	return c
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r.Context()).IsNull() {
			writeError(w, http.StatusUnauthorized, codeMissingCaller, "X-Caller header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies and buffers them so later stages can read
// the bytes more than once.
func limitBody(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, max))
			if err != nil {
				writeError(w, http.StatusBadRequest, codeMalformedBody, "request body is unreadable or too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// precheckSignature enforces the caller's key binding. A bound caller must
// sign "METHOD path\nnonce\n" + blake3(body), send it base64 in X-Sig and
// the nonce in X-Nonce. An X-PubKey header, when sent, must equal the
// bound key. Each nonce is accepted once per caller.
func precheckSignature(b *keyBinding, guard *replayGuard, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerFrom(r.Context())
			pub, bound, err := b.lookup(caller)
			if err != nil {
				logger.Error("binding lookup", zap.String("caller", string(caller)), zap.Error(err))
				writeError(w, http.StatusInternalServerError, codeInternal, "key binding is misconfigured")
				return
			}
			if !bound {
				if b.require {
					writeError(w, http.StatusUnauthorized, codeSignatureRequired, "caller has no bound key")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if sent := strings.TrimSpace(r.Header.Get("X-PubKey")); sent != "" {
				if sent != base64.StdEncoding.EncodeToString(pub) {
					incBindMismatch()
					logger.Warn("pubkey mismatch", zap.String("caller", string(caller)))
					writeError(w, http.StatusUnauthorized, codePubKeyMismatch, "X-PubKey does not match the caller's bound key")
					return
				}
			}

			sig := strings.TrimSpace(r.Header.Get("X-Sig"))
			if sig == "" {
				writeError(w, http.StatusUnauthorized, codeSignatureRequired, "X-Sig header is required for this caller")
				return
			}

			rawNonce := strings.TrimSpace(r.Header.Get("X-Nonce"))
			nonce, err := guard.fresh(rawNonce)
			if err != nil {
				code := codeStaleNonce
				if errors.Is(err, errNonceMissing) {
					code = codeNonceRequired
				}
				writeError(w, http.StatusUnauthorized, code, err.Error())
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeMalformedBody, "request body is unreadable")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyRequest(pub, r.Method, r.URL.Path, rawNonce, body, sig) {
				incBadSig()
				logger.Warn("bad signature", zap.String("caller", string(caller)), zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, codeBadSignature, "signature does not verify")
				return
			}

			// only verified requests reach the seen-set, so a forger
			// cannot burn another caller's nonces
			if err := guard.use(r.Context(), caller, nonce); err != nil {
				if errors.Is(err, errNonceReplayed) {
					incReplay()
					logger.Warn("replayed request", zap.String("caller", string(caller)), zap.String("path", r.URL.Path))
					writeError(w, http.StatusUnauthorized, codeReplayedNonce, err.Error())
					return
				}
				logger.Error("nonce store", zap.String("caller", string(caller)), zap.Error(err))
				writeError(w, http.StatusInternalServerError, codeInternal, "nonce store unavailable")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyRequest(pub ed25519.PublicKey, method, path, nonce string, body []byte, sigB64 string) bool {
	return mycrypto.VerifyB64(pub, tx.SigningMessage(method, path, nonce, body), sigB64)
}
