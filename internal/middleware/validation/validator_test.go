package validation

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Post("/reconstruct", Middleware(Config{MaxParticipants: 3}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func send(t *testing.T, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/reconstruct", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := newApp().Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	longName := strings.Repeat("x", 300)

	cases := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"valid", "application/json", `{"event_name":"230205","internal_users":["U1"]}`, http.StatusNoContent},
		{"charset suffix", "application/json; charset=utf-8", `{"event_name":"e"}`, http.StatusNoContent},
		{"form body", "application/x-www-form-urlencoded", `event_name=e`, http.StatusUnsupportedMediaType},
		{"missing type", "", `{}`, http.StatusUnsupportedMediaType},
		{"broken json", "application/json", `{"event_name":`, http.StatusBadRequest},
		{"long name", "application/json", fmt.Sprintf(`{"event_name":%q}`, longName), http.StatusBadRequest},
		{"control char", "application/json", `{"event_name":"a\u0000b"}`, http.StatusBadRequest},
		{"too many users", "application/json", `{"internal_users":["a","b"],"external_users":["c","d"]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, send(t, tc.contentType, tc.body))
		})
	}
}
