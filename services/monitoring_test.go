package services

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfolio/folio_api/shared"
)

// newMeteredApp routes /fail through the metrics middleware and the real
// error handler, mirroring the production middleware order.
func newMeteredApp(failWith error) *fiber.App {
	monSvc := &MonitoringService{}
	httpSvc := &HttpService{}

	app := fiber.New(fiber.Config{
		JSONEncoder:  shared.JSONMarshal,
		JSONDecoder:  shared.JSONUnmarshal,
		ErrorHandler: httpSvc.handleError,
	})
	app.Use(monSvc.MetricsMiddleware())
	app.Get("/fail", func(c *fiber.Ctx) error {
		return failWith
	})
	return app
}

func TestMetricsMiddleware_RecordsErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{
			name:   "caller rate limit",
			err:    &shared.RateLimitError{Limit: 10, ResetAt: time.Now().Add(time.Minute)},
			status: "429",
		},
		{
			name:   "global quota",
			err:    &shared.RateLimitError{Limit: 4000, ResetAt: time.Now().Add(time.Minute), Global: true},
			status: "503",
		},
		{
			name:   "validation",
			err:    shared.NewBadRequestError(nil, "identifier is required"),
			status: "400",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMeteredApp(tt.err)

			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/fail", "GET", tt.status))

			resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
			require.NoError(t, err)
			require.NotEqual(t, fiber.StatusOK, resp.StatusCode)

			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/fail", "GET", tt.status))
			assert.Equal(t, before+1, after, "request must be counted under its real status")
		})
	}

	// Nothing above may have been mislabeled as a success.
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/fail", "GET", "200")))
}
