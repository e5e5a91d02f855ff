package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndExpose(t *testing.T) {
	Init()

	RecordsFetched.WithLabelValues("EMAIL").Add(3)

	ReconstructionTotal.WithLabelValues("success").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `event_recon_records_fetched_total{channel="EMAIL"} 3`)
	assert.Contains(t, string(body), "event_recon_reconstruction_total")
}
