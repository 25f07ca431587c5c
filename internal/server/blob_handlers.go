package server

import (
	"context"

	"chatwarden/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UploadImage stores the raw request body as an image attachment.
func (s *Server) UploadImage(c *fiber.Ctx) error {
	return s.upload(c, s.rt.Blobs.PutImage)
}

// UploadAudio stores the raw request body as an audio attachment.
func (s *Server) UploadAudio(c *fiber.Ctx) error {
	return s.upload(c, s.rt.Blobs.PutAudio)
}

func (s *Server) upload(c *fiber.Ctx, put func(context.Context, []byte) (uuid.UUID, error)) error {
	// The body buffer is reused by fasthttp after the handler returns.
	data := append([]byte(nil), c.Body()...)
	id, err := put(c.UserContext(), data)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// GetImage streams an image attachment.
func (s *Server) GetImage(c *fiber.Ctx) error {
	return s.download(c, s.rt.Blobs.GetImage)
}

// GetAudio streams an audio attachment.
func (s *Server) GetAudio(c *fiber.Ctx) error {
	return s.download(c, s.rt.Blobs.GetAudio)
}

func (s *Server) download(c *fiber.Ctx, get func(context.Context, uuid.UUID) ([]byte, error)) error {
	id, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return respondErr(c, models.NewValidationError("Invalid attachment ID"))
	}
	data, err := get(c.UserContext(), id)
	if err != nil {
		return respondErr(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	return c.Send(data)
}
