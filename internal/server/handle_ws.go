package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
	"github.com/hericmr/geosantos-sub000/internal/session"
)

// wsMessage is what clients send over the session socket.
type wsMessage struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty"`
}

// wsReply answers one client message.
type wsReply struct {
	Type  string                    `json:"type"`
	Score *geosantos.ScoreBreakdown `json:"score,omitempty"`
	State *session.State            `json:"state,omitempty"`
	Error string                    `json:"error,omitempty"`
}

// handleSessionWS upgrades to a WebSocket that carries engine events out and
// click, pause, restart and state requests in.
func handleSessionWS(logger *slog.Logger, sessions *session.Registry, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Hour)
		defer cancel()

		ch := subscribe(sessions, broker, s.ID)
		defer broker.Unsubscribe(s.ID, ch)

		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case data, ok := <-ch:
					if !ok {
						conn.Close(websocket.StatusGoingAway, "session closed")
						return
					}
					if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
						logger.Debug("websocket write failed", "error", err)
						return
					}
				}
			}
		}()

		for {
			var msg wsMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if websocket.CloseStatus(err) == -1 {
					logger.Debug("websocket read ended", "session", s.ID, "error", err)
				}
				return
			}

			reply := handleWSMessage(s, msg)
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func handleWSMessage(s *session.Session, msg wsMessage) wsReply {
	switch msg.Type {
	case "click":
		if !validCoordinate(msg.Lat, msg.Lng) {
			return wsReply{Type: "error", Error: "lat/lng out of range"}
		}
		score, err := s.Click(geosantos.Point{Lat: msg.Lat, Lng: msg.Lng})
		if _, text, failed := clickError(err); failed {
			return wsReply{Type: "click_result", Error: text}
		}
		return wsReply{Type: "click_result", Score: &score}
	case "pause":
		s.Pause()
	case "restart":
		if err := s.Restart(); err != nil {
			return wsReply{Type: "error", Error: "failed to restart session"}
		}
	case "state":
	default:
		return wsReply{Type: "error", Error: "unknown message type"}
	}
	st := s.State()
	return wsReply{Type: "state", State: &st}
}
