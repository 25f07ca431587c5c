package server

import (
	"log/slog"

	"chatwarden/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NotificationsFeed upgrades to a websocket that receives the caller's
// violation notices as JSON frames.
func (s *Server) NotificationsFeed() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		moderatorID, ok := conn.Locals("userID").(int64)
		if !ok {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.rt.Hub.Register(moderatorID, conn)
		if err != nil {
			middleware.Logger.Warn("feed connection rejected",
				slog.Int64("user_id", moderatorID),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
