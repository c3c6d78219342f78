package stream

import (
	"encoding/json"

	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes serves /ws/:sessionID. A client first receives the current
// snapshot when it belongs to that stream, then every published update.
func RegisterRoutes(r fiber.Router, hub *Hub, current func() tracking.Snapshot) {
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)
		defer hub.Unregister(client)
		log.Debug().Str("session_id", sessionID).Msg("stream client connected")

		if current != nil {
			snap := current()
			if sessionID == CurrentSession || (snap.Session != nil && snap.Session.ID == sessionID) {
				if payload, err := json.Marshal(snap); err == nil {
					client.Send <- payload
				}
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
		log.Debug().Str("session_id", sessionID).Msg("stream client disconnected")
	}))
}
