package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/setrag/rail-booking-backend/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterFactory builds per-route rate limit middleware on a shared
// backend: Redis when a client is given, process memory otherwise.
type RateLimiterFactory struct {
	redis  *redis.Client
	logger *logrus.Logger
}

// NewRateLimiterFactory creates a RateLimiterFactory. rdb may be nil.
func NewRateLimiterFactory(rdb *redis.Client, logger *logrus.Logger) *RateLimiterFactory {
	return &RateLimiterFactory{redis: rdb, logger: logger}
}

func (f *RateLimiterFactory) store(routeID string, period time.Duration) (limiter.Store, error) {
	options := limiter.StoreOptions{
		Prefix:          fmt.Sprintf("rate_limiter:%s", routeID),
		MaxRetry:        3,
		CleanUpInterval: period,
	}
	if f.redis == nil {
		return memorystore.NewStoreWithOptions(options), nil
	}

	store, err := redisstore.NewStoreWithOptions(f.redis, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
	}
	return store, nil
}

// New returns middleware limiting each client IP to rate (ulule format,
// e.g. "10-M"). A bad rate or store error disables limiting for the route
// rather than blocking it.
func (f *RateLimiterFactory) New(rateStr, routeID string) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err == nil {
		var store limiter.Store
		store, err = f.store(routeID, rate.Period)
		if err == nil {
			return f.middleware(limiter.New(store, rate), routeID)
		}
	}

	f.logger.WithFields(logrus.Fields{
		"route": routeID,
		"rate":  rateStr,
		"error": err.Error(),
	}).Error("Rate limiter disabled")
	return func(c *gin.Context) {
		c.Next()
	}
}

func (f *RateLimiterFactory) middleware(instance *limiter.Limiter, routeID string) gin.HandlerFunc {
	return ginmiddleware.NewMiddleware(instance,
		ginmiddleware.WithKeyGetter(func(c *gin.Context) string {
			return utils.GetRealIP(c)
		}),
		ginmiddleware.WithLimitReachedHandler(func(c *gin.Context) {
			f.logger.WithFields(logrus.Fields{
				"route": routeID,
				"ip":    utils.GetRealIP(c),
			}).Warn("Rate limit exceeded")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests, please retry later",
				"code":    "RATE_LIMIT_EXCEEDED",
			})
		}),
		ginmiddleware.WithErrorHandler(func(c *gin.Context, err error) {
			// fail open
			f.logger.WithError(err).WithField("route", routeID).Error("Rate limiter store error")
			c.Next()
		}),
	)
}
