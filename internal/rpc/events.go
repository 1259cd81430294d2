package rpc

import (
	"net/http"
)

// eventStream relays engine events as server-sent events until the client
// goes away. Each message is one JSON-encoded event.
func (s *server) eventStream(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.eng.Subscribe()
	defer s.eng.Unsubscribe(ch)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": subscribed\n\n"))
	fl.Flush()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: push\ndata: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			fl.Flush()
		}
	}
}
