// Package rpc is the HTTP surface of the receipt service.
package rpc

import (
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"receiptd/internal/app"
	"receiptd/internal/clock"
	"receiptd/internal/config"
)

const defaultMaxBody = 1 << 20

type Options struct {
	Logger  *zap.Logger
	Binding config.BindingConfig

	// Nonces is the seen-set for signed requests. Nil means a
	// process-local MemoryNonces.
	Nonces NonceStore
	Clock  clock.Clock

	// MaxBodyBytes caps mutating request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

type server struct {
	eng     *app.Engine
	logger  *zap.Logger
	binding *keyBinding
	started time.Time
}

func NewRouter(eng *app.Engine, opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	binding, err := newKeyBinding(opts.Binding)
	if err != nil {
		return nil, err
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	guard := newReplayGuard(opts.Binding.NonceWindow, opts.Clock, opts.Nonces)
	s := &server{eng: eng, logger: logger, binding: binding, started: time.Now()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(withCaller)

	r.Get("/health", s.health)
	r.Get("/node/info", s.nodeInfo)
	r.Get("/stats", s.stats)
	r.Handle("/debug/vars", expvar.Handler())
	r.Get("/events/stream", s.eventStream)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/owner", s.getOwner)
		r.Get("/receipts/{id}", s.getReceipt)
		r.Get("/issuers/{who}/receipts", s.listIssued)
		r.Get("/payees/{who}/receipts", s.listReceived)
		r.Get("/checkpoints/latest", s.latestCheckpoint)
		r.Get("/checkpoints/{n}", s.getCheckpoint)
		r.Get("/checkpoints/{n}/proof/{id}", s.inclusionProof)

		// verify reads only, but carries a body like the mutating routes
		r.With(limitBody(maxBody)).Post("/receipts/{id}/verify", s.verifyReceipt)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)
			r.Use(limitBody(maxBody))
			r.Use(precheckSignature(binding, guard, logger))

			r.Post("/owner/claim", s.claimOwnership)
			r.Post("/receipts", s.issueReceipt)
			r.Post("/receipts/{id}/revoke", s.revokeReceipt)
			r.Delete("/receipts/{id}", s.purgeReceipt)
			r.Post("/checkpoints", s.commitCheckpoint)
		})
	})
	return r, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
