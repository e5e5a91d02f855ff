package validation

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxEventNameLength int
	MaxParticipants    int
	Logger             *zap.Logger
}

// reconstructRequest mirrors the event fields that are checked before the
// body reaches the handler. Semantic validation stays with the engine.
type reconstructRequest struct {
	EventName     string   `json:"event_name"`
	InternalUsers []string `json:"internal_users"`
	ExternalUsers []string `json:"external_users"`
}

// Middleware rejects reconstruction requests that are not JSON, cannot be
// decoded, or name an unreasonable number of participants.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxEventNameLength == 0 {
		cfg.MaxEventNameLength = 256
	}
	if cfg.MaxParticipants == 0 {
		cfg.MaxParticipants = 200
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var req reconstructRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if len(req.EventName) > cfg.MaxEventNameLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "event_name exceeds maximum length",
			})
		}

		if containsControl(req.EventName) {
			cfg.Logger.Warn("Rejected event name with control characters",
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid event_name content",
			})
		}

		if n := len(req.InternalUsers) + len(req.ExternalUsers); n > cfg.MaxParticipants {
			cfg.Logger.Warn("Too many participants",
				zap.String("ip", c.IP()),
				zap.Int("participants", n),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Too many participants",
			})
		}

		return c.Next()
	}
}

func containsControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
