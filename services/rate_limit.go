package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/arcfolio/folio_api/dto"
	"github.com/arcfolio/folio_api/shared"
)

type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*RateLimitConfig
	mutex   sync.RWMutex

	store WindowStore

	redisSvc *RedisService
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	EndpointType string
	MaxRequests  int
	WindowSize   time.Duration
	Description  string
	IsActive     bool
}

const RATE_LIMIT_SVC = "rate_limit_svc"

// GlobalDocStoreKey is the fixed identifier of the shared backing-API
// budget. Every request that would hit the document store draws from it,
// regardless of which caller triggered it.
const GlobalDocStoreKey = "global:docstore"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.configs = make(map[string]*RateLimitConfig)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.initDefaultConfigs()

	if os.Getenv("RATE_LIMIT_BACKEND") == "redis" {
		svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
		svc.store = NewRedisWindowStore(svc.redisSvc.GetClient())
		log.Info("Rate limiter using shared redis window store")
	} else {
		svc.store = NewMemoryWindowStore()
	}

	return nil
}

// ==================== CONFIGURATION MANAGEMENT ====================

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*RateLimitConfig{
		// Analytics ingestion per caller IP
		"track": {
			EndpointType: "track",
			MaxRequests:  envInt("TRACK_RATE_LIMIT", 100),
			WindowSize:   time.Hour,
			Description:  "Visit tracking rate limit per IP",
			IsActive:     true,
		},

		// Analytics/contact reads per caller IP. The read budget is
		// deliberately larger than the write budget.
		"query": {
			EndpointType: "query",
			MaxRequests:  envInt("QUERY_RATE_LIMIT", 300),
			WindowSize:   time.Hour,
			Description:  "Analytics query rate limit per IP",
			IsActive:     true,
		},

		// Contact form submissions per caller IP
		"contact": {
			EndpointType: "contact",
			MaxRequests:  envInt("CONTACT_RATE_LIMIT", 10),
			WindowSize:   time.Hour,
			Description:  "Contact form rate limit per IP",
			IsActive:     true,
		},

		// General API calls per IP
		"api_general": {
			EndpointType: "api_general",
			MaxRequests:  1000,
			WindowSize:   time.Hour,
			Description:  "General API rate limit per IP",
			IsActive:     true,
		},

		// Record exports are expensive; keep them rare.
		"export": {
			EndpointType: "export",
			MaxRequests:  5,
			WindowSize:   time.Hour,
			Description:  "Analytics export rate limit per IP",
			IsActive:     true,
		},

		// Shared budget for calls against the backing document API. The
		// ceiling sits below the provider's advertised hourly quota so
		// untracked internal calls keep some headroom.
		"global_docstore": {
			EndpointType: "global_docstore",
			MaxRequests:  envInt("DOCSTORE_HOURLY_BUDGET", 4000),
			WindowSize:   time.Hour,
			Description:  "Shared backing document API budget",
			IsActive:     true,
		},
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.WithField("key", key).Warn("Ignoring invalid rate limit override")
	}
	return fallback
}

// ==================== CORE RATE LIMITING LOGIC ====================

// IsAllowed advances the window for identifier under the named policy and
// reports whether the request fits the budget. State mutates on every
// call; a denied request still lands inside the current window and never
// extends it.
func (svc *RateLimitService) IsAllowed(ctx context.Context, identifier, endpointType string) (dto.RateLimitInfo, error) {
	svc.mutex.RLock()
	config, exists := svc.configs[endpointType]
	svc.mutex.RUnlock()

	if !exists || !config.IsActive {
		// If no config exists or inactive, allow the request
		return dto.RateLimitInfo{Allowed: true, Remaining: -1}, nil
	}

	count, resetAt, err := svc.store.Incr(ctx, fmt.Sprintf("%s:%s", endpointType, identifier), config.WindowSize)
	if err != nil {
		return dto.RateLimitInfo{}, err
	}

	info := dto.RateLimitInfo{
		Limit:   config.MaxRequests,
		ResetAt: resetAt,
	}

	if count > config.MaxRequests {
		info.Allowed = false
		info.Remaining = 0
		return info, nil
	}

	info.Allowed = true
	info.Remaining = config.MaxRequests - count
	return info, nil
}

// CheckCaller enforces a per-caller budget, converting denial into the
// 429-shaped error. On store failure the request is allowed through so a
// broken limiter backend never blocks users.
func (svc *RateLimitService) CheckCaller(ctx context.Context, identifier, endpointType string) (dto.RateLimitInfo, error) {
	info, err := svc.IsAllowed(ctx, identifier, endpointType)
	if err != nil {
		log.WithError(err).WithField("endpoint", endpointType).Error("Rate limit check failed")
		return dto.RateLimitInfo{Allowed: true, Remaining: -1}, nil
	}

	if !info.Allowed {
		rateLimitRejections.WithLabelValues(endpointType).Inc()
		return info, &shared.RateLimitError{
			Limit:     info.Limit,
			Remaining: info.Remaining,
			ResetAt:   info.ResetAt,
		}
	}

	return info, nil
}

// CheckGlobal enforces the shared backing-API budget. Denial surfaces as
// 503, not 429: exhaustion here reflects the document store's quota, not
// the caller's behavior.
func (svc *RateLimitService) CheckGlobal(ctx context.Context) (dto.RateLimitInfo, error) {
	info, err := svc.IsAllowed(ctx, GlobalDocStoreKey, "global_docstore")
	if err != nil {
		log.WithError(err).Error("Global quota check failed")
		return dto.RateLimitInfo{Allowed: true, Remaining: -1}, nil
	}

	if !info.Allowed {
		rateLimitRejections.WithLabelValues("global_docstore").Inc()
		return info, &shared.RateLimitError{
			Limit:     info.Limit,
			Remaining: info.Remaining,
			ResetAt:   info.ResetAt,
			Global:    true,
		}
	}

	return info, nil
}

// ==================== MIDDLEWARE FUNCTIONS ====================

// IPRateLimit applies general rate limiting by IP address
func (svc *RateLimitService) IPRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := shared.GetClientIP(c)

		info, err := svc.IsAllowed(c.UserContext(), ip, "api_general")
		if err != nil {
			log.WithError(err).WithField("ip", ip).Error("IP rate limit check error")
			// Continue with request on error to avoid blocking users due
			// to limiter backend issues
			return c.Next()
		}

		AddRateLimitHeaders(c, info)

		if !info.Allowed {
			rateLimitRejections.WithLabelValues("api_general").Inc()
			return &shared.RateLimitError{
				Limit:     info.Limit,
				Remaining: info.Remaining,
				ResetAt:   info.ResetAt,
			}
		}

		return c.Next()
	}
}

// ==================== HELPER FUNCTIONS ====================

func AddRateLimitHeaders(c *fiber.Ctx, info dto.RateLimitInfo) {
	if info.Limit > 0 {
		c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	}

	if info.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}

	if !info.ResetAt.IsZero() {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
	}
}

