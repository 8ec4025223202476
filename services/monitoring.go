package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/arcfolio/folio_api/shared"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// HTTP Metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Domain Metrics
var (
	docstoreCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_calls_total",
			Help: "Calls issued against the backing document API",
		},
		[]string{"op"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected per rate limit policy",
		},
		[]string{"policy"},
	)

	recordsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "records_ingested_total",
			Help: "Records written to the backing document store",
		},
	)

	recordsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "records_skipped_total",
			Help: "Malformed records excluded from query results",
		},
	)
)

type MonitoringService struct {
	appContext.DefaultService

	port     int
	registry *prometheus.Registry
	server   *http.Server
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Configure(ctx *appContext.Context) error {
	svc.port = DEFAULT_PROMETHEUS_PORT
	if port := os.Getenv("PROMETHEUS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			svc.port = p
		}
	}

	svc.registry = prometheus.NewRegistry()
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDurationSeconds,
		docstoreCalls,
		rateLimitRejections,
		recordsIngested,
		recordsSkipped,
	)

	return svc.DefaultService.Configure(ctx)
}

func (svc *MonitoringService) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))

	svc.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", svc.port),
		Handler: mux,
	}

	go func() {
		if err := svc.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	log.WithField("port", svc.port).Info("Metrics server started")
	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Close()
	}
}

// MetricsMiddleware records request counts and latency per route.
func (svc *MonitoringService) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// On error the response is written by the error handler after this
		// middleware returns, so the status must come from the error
		// itself, not the not-yet-written response.
		status := c.Response().StatusCode()
		if err != nil {
			var rlErr *shared.RateLimitError
			var appErr *shared.AppError
			var ferr *fiber.Error
			switch {
			case errors.As(err, &rlErr):
				status = rlErr.StatusCode()
			case errors.As(err, &appErr):
				status = appErr.StatusCode
			case errors.As(err, &ferr):
				status = ferr.Code
			default:
				status = fiber.StatusInternalServerError
			}
		}

		endpoint := c.Route().Path
		statusStr := strconv.Itoa(status)

		httpRequestsTotal.WithLabelValues(endpoint, c.Method(), statusStr).Inc()
		httpRequestDurationSeconds.WithLabelValues(endpoint, c.Method(), statusStr).
			Observe(time.Since(start).Seconds())

		return err
	}
}
