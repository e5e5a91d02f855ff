package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/internal/records"
	"github.com/event-recon/backend/pkg/logger"
)

type Reconstructor interface {
	Reconstruct(ctx context.Context, event model.Event) (*model.Result, error)
}

type ReconstructHandler struct {
	engine Reconstructor
}

func NewReconstructHandler(engine Reconstructor) *ReconstructHandler {
	return &ReconstructHandler{
		engine: engine,
	}
}

func (h *ReconstructHandler) HandleReconstruct(c *fiber.Ctx) error {
	var event model.Event
	if err := c.BodyParser(&event); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.engine.Reconstruct(c.UserContext(), event)
	if err != nil {
		status, message := errorStatus(err)
		logger.Error("Failed to reconstruct event",
			zap.String("event_name", event.EventName),
			zap.Int("status", status),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{
			"error": message,
		})
	}

	return c.JSON(result)
}

func errorStatus(err error) (int, string) {
	var upstream *records.UpstreamError
	switch {
	case errors.Is(err, model.ErrInvalidEvent):
		return fiber.StatusBadRequest, err.Error()
	case errors.As(err, &upstream):
		return fiber.StatusBadGateway, "Record service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Reconstruction timed out"
	default:
		return fiber.StatusInternalServerError, "Failed to reconstruct event"
	}
}
