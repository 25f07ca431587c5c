package server

import (
	"chatwarden/internal/models"
	"chatwarden/internal/service"

	"github.com/gofiber/fiber/v2"
)

// IngestMessage runs one message from a trusted service through the same
// pipeline as the Telegram bot and the Kafka consumer.
func (s *Server) IngestMessage(c *fiber.Ctx) error {
	var in service.InboundMessage
	if err := c.BodyParser(&in); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}

	result, err := s.rt.Pipeline.OnMessage(c.UserContext(), service.SourceHTTP, in)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(result)
}
