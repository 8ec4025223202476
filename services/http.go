package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/arcfolio/folio_api/dto"
	"github.com/arcfolio/folio_api/services/handlers"
	"github.com/arcfolio/folio_api/shared"
)

type HttpService struct {
	appContext.DefaultService

	rateLimitSvc  *RateLimitService
	analyticsSvc  *AnalyticsService
	contactSvc    *ContactService
	monitoringSvc *MonitoringService

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.analyticsSvc = svc.Service(ANALYTICS_SVC).(*AnalyticsService)
	svc.contactSvc = svc.Service(CONTACT_SVC).(*ContactService)
	svc.monitoringSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	app := fiber.New(fiber.Config{
		JSONEncoder:  shared.JSONMarshal,
		JSONDecoder:  shared.JSONUnmarshal,
		ErrorHandler: svc.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(svc.monitoringSvc.MetricsMiddleware())

	app.Get("/ping", svc.ping)

	analyticsHandler := handlers.NewAnalyticsHandler(svc.analyticsSvc)
	contactHandler := handlers.NewContactHandler(svc.contactSvc)

	v1 := app.Group("/api/v1", svc.rateLimitSvc.IPRateLimit())

	v1.Post("/analytics", analyticsHandler.Track)
	v1.Get("/analytics", analyticsHandler.Query)
	v1.Post("/analytics/export", analyticsHandler.Export)

	v1.Post("/contacts", contactHandler.Submit)
	v1.Get("/contacts", contactHandler.List)

	svc.app = app

	return app.Listen(fmt.Sprintf(":%d", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

// handleError is the single place service errors become HTTP responses.
// Budget exhaustion always reports the real retry delay so clients can
// back off correctly.
func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	var rlErr *shared.RateLimitError
	if errors.As(err, &rlErr) {
		AddRateLimitHeaders(c, dto.RateLimitInfo{
			Limit:     rlErr.Limit,
			Remaining: rlErr.Remaining,
			ResetAt:   rlErr.ResetAt,
		})
		c.Set("Retry-After", strconv.Itoa(rlErr.RetryAfter()))

		return shared.ResponseJSON(c, rlErr.StatusCode(), rlErr.Message(), fiber.Map{
			"retry_after": rlErr.RetryAfter(),
		})
	}

	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	if errors.Is(err, shared.ErrDocStoreAuth) {
		log.WithError(err).Error("Document store credentials rejected")
		return shared.ResponseJSON(c, fiber.StatusInternalServerError, "Record storage is misconfigured", nil)
	}

	var docErr *shared.DocStoreError
	if errors.As(err, &docErr) {
		log.WithError(err).Error("Document store failure")
		return shared.ResponseJSON(c, fiber.StatusInternalServerError, "Record storage is unavailable", nil)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
