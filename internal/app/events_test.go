package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"receiptd/internal/testutil"
	"receiptd/internal/types"
)

func TestHubDeliversJSON(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ch := e.Subscribe()
	defer e.Unsubscribe(ch)

	id := mustIssue(t, e, "I", "A", "B", 42)

	raw := testutil.RequireReceive(t, ch, 2*time.Second, "waiting for issued event")
	var ev types.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != types.EventReceiptIssued || ev.Issued == nil || ev.Issued.ID != id || ev.Issued.Amount != 42 {
		t.Fatalf("event=%+v", ev)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := h.Publish(ctx, types.Event{Kind: types.EventOwnershipClaimed}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	testutil.RequireReceive(t, ch, time.Second, "buffered event")
	testutil.RequireNoReceive(t, ch, 20*time.Millisecond, "overflow should be dropped")
}

func TestHubUnsubscribeClosesOnce(t *testing.T) {
	h := NewHub(4)
	ch := h.Subscribe()
	if h.Len() != 1 {
		t.Fatalf("Len=%d", h.Len())
	}
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	if h.Len() != 0 {
		t.Fatalf("Len=%d", h.Len())
	}
	if err := h.Publish(context.Background(), types.Event{Kind: types.EventReceiptPurged}); err != nil {
		t.Fatalf("Publish after unsubscribe: %v", err)
	}
}

func TestNoEventOnFailure(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ch := e.Subscribe()
	defer e.Unsubscribe(ch)

	ctx := context.Background()
	_ = e.RevokeReceipt(ctx, "I", 1)
	_ = e.PurgeReceipt(ctx, "I", 1)
	_, _ = e.IssueReceipt(ctx, "I", "", "", 1, "")

	testutil.RequireNoReceive(t, ch, 20*time.Millisecond, "failed operations must not emit")
}
