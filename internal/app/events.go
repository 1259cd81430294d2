package app

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"receiptd/internal/types"
)

var (
	receiptsIssued  = expvar.NewInt("receipts_issued_total")
	receiptsRevoked = expvar.NewInt("receipts_revoked_total")
	receiptsPurged  = expvar.NewInt("receipts_purged_total")
	sinkErrors      = expvar.NewInt("event_sink_errors_total")
)

// Sink receives events after the state change they describe is complete.
type Sink interface {
	Publish(ctx context.Context, ev types.Event) error
}

// emit stamps ev and hands it to every sink in order. Callers hold e.mu,
// so sinks see events in mutation order. A failing sink is logged and
// does not undo the operation.
func (e *Engine) emit(ctx context.Context, ev types.Event) {
	ev.ID = uuid.NewString()
	ev.TimeUTC = e.clock.Now().Unix()
	for _, s := range e.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			sinkErrors.Add(1)
			e.logger.Warn("event sink failed",
				zap.String("event_id", ev.ID),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
		}
	}
}

// Hub fans events out to live subscribers as JSON. Sends never block: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	return &Hub{subs: make(map[chan []byte]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe() chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, h.buffer)
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe closes ch. Calling it twice is harmless.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Publish(_ context.Context, ev types.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
	return nil
}

// LogSink writes one structured line per event.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Publish(_ context.Context, ev types.Event) error {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
	}
	switch {
	case ev.Issued != nil:
		fields = append(fields,
			zap.Uint64("id", ev.Issued.ID),
			zap.String("issuer", string(ev.Issued.Issuer)),
			zap.String("payee", string(ev.Issued.Payee)),
			zap.Uint64("amount", ev.Issued.Amount))
	case ev.Revoked != nil:
		fields = append(fields, zap.Uint64("id", ev.Revoked.ID), zap.String("by", string(ev.Revoked.RevokedBy)))
	case ev.Purged != nil:
		fields = append(fields, zap.Uint64("id", ev.Purged.ID), zap.String("by", string(ev.Purged.PurgedBy)))
	case ev.Claimed != nil:
		fields = append(fields, zap.String("owner", string(ev.Claimed.NewOwner)))
	case ev.Checkpoint != nil:
		fields = append(fields, zap.Uint64("round", ev.Checkpoint.Round), zap.String("root", ev.Checkpoint.Root))
	}
	s.logger.Info("event", fields...)
	return nil
}
