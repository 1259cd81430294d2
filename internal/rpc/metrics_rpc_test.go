package rpc

import (
	"expvar"
	"net/http"
	"net/http/httptest"
	"testing"

	"receiptd/internal/config"
)

func expInt(t *testing.T, name string) int64 {
	t.Helper()
	if v := expvar.Get(name); v != nil {
		if iv, ok := v.(*expvar.Int); ok {
			return iv.Value()
		}
	}
	return -1
}

func TestMetrics_BindingMismatch_Increments(t *testing.T) {
	_, _, bound := newKey(t)
	_, _, other := newKey(t)
	before := expInt(t, "rpc_bind_mismatch_total")

	h := precheckChain(t, config.BindingConfig{PubKeyByCaller: map[string]string{"alice": bound}},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("next should not run on mismatch")
		}))
	r := req(`{}`, "alice")
	r.Header.Set("X-PubKey", other)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized || decodeAPIError(t, w).Code != codePubKeyMismatch {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if after := expInt(t, "rpc_bind_mismatch_total"); after != before+1 {
		t.Fatalf("bind mismatch metric not incremented: before=%d after=%d", before, after)
	}
}

func TestMetrics_BadSig_Increments(t *testing.T) {
	_, _, bound := newKey(t)
	_, otherPriv, _ := newKey(t)
	before := expInt(t, "rpc_bad_signature_total")

	h := precheckChain(t, config.BindingConfig{PubKeyByCaller: map[string]string{"alice": bound}},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("next should not run on bad signature")
		}))
	r := req(`{}`, "alice")
	signReq(otherPriv, r, `{}`)
	h.ServeHTTP(httptest.NewRecorder(), r)

	if after := expInt(t, "rpc_bad_signature_total"); after != before+1 {
		t.Fatalf("bad-signature metric not incremented: before=%d after=%d", before, after)
	}
}

func TestMetrics_ErrorsCounted(t *testing.T) {
	before := expInt(t, "rpc_errors_total")
	w := httptest.NewRecorder()
	writeError(w, http.StatusNotFound, "not_found", "x")
	if after := expInt(t, "rpc_errors_total"); after != before+1 {
		t.Fatalf("rpc_errors_total before=%d after=%d", before, after)
	}
}
