package rpc

import "expvar"

var (
	metricErrors       = expvar.NewInt("rpc_errors_total")
	metricBindMismatch = expvar.NewInt("rpc_bind_mismatch_total")
	metricBadSig       = expvar.NewInt("rpc_bad_signature_total")
	metricReplay       = expvar.NewInt("rpc_replay_rejected_total")
)

func incBindMismatch() { metricBindMismatch.Add(1) }
func incBadSig()       { metricBadSig.Add(1) }
func incReplay()       { metricReplay.Add(1) }
