package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hericmr/geosantos-sub000/internal/session"
)

// handleEvents streams a session's engine events as Server-Sent Events. The
// SSE event name is the engine event type.
func handleEvents(sessions *session.Registry, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := subscribe(sessions, broker, s.ID)
		defer broker.Unsubscribe(s.ID, ch)

		// Start every stream with a snapshot so late subscribers can render.
		state, _ := json.Marshal(s.State())
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", state)
		flusher.Flush()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data, ok := <-ch:
				if !ok {
					fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType(data), data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

// subscribe registers a stream for the session. A session removed before the
// subscription landed was evicted without it, so the stream gets a closed
// channel instead.
func subscribe(sessions *session.Registry, broker *Broker, id string) chan []byte {
	ch := broker.Subscribe(id)
	if _, err := sessions.Get(id); err != nil {
		broker.Unsubscribe(id, ch)
		closed := make(chan []byte)
		close(closed)
		return closed
	}
	return ch
}

func eventType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}
